package tools

import (
	"context"
	"path/filepath"
	"strings"

	"docpress/contracts"
	"docpress/texttools"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeZip  = "application/zip"
	contentTypeJSON = "application/json"
)

type runFunc func(ctx context.Context, in contracts.ToolInput) (*contracts.ToolOutput, error)

// tool adapts a function to contracts.Tool.
type tool struct {
	name string
	run  runFunc
}

func newTool(name string, run runFunc) contracts.Tool {
	return &tool{name: name, run: run}
}

func (t *tool) Name() string { return t.name }

func (t *tool) Run(ctx context.Context, in contracts.ToolInput) (*contracts.ToolOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Params == nil {
		in.Params = contracts.Params{}
	}
	return t.run(ctx, in)
}

func singleFile(in contracts.ToolInput) (contracts.InputFile, error) {
	switch len(in.Files) {
	case 0:
		return contracts.InputFile{}, contracts.Invalid("file", nil, "no file uploaded")
	case 1:
		return in.Files[0], nil
	}
	return contracts.InputFile{}, contracts.Invalid("file", len(in.Files), "exactly one file is expected")
}

// stem derives "<name>-<tag>" from a source file name, or just tag when
// there is no usable name.
func stem(source, tag string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return tag
	}
	return base + "-" + tag
}

func outputName(source, tag, ext string) string {
	return stem(source, tag) + "." + ext
}

func pdfOutput(data []byte, name string) *contracts.ToolOutput {
	return &contracts.ToolOutput{Data: data, FileName: name, ContentType: contentTypePDF, Meta: map[string]string{}}
}

func jsonOutput(name string, v any) (*contracts.ToolOutput, error) {
	data, err := texttools.MarshalJSON(v)
	if err != nil {
		return nil, err
	}
	return &contracts.ToolOutput{Data: data, FileName: name + ".json", ContentType: contentTypeJSON, Meta: map[string]string{}}, nil
}

// textInput returns the "text" parameter, or the content of the single
// uploaded file when the parameter is absent.
func textInput(in contracts.ToolInput) (string, error) {
	if v, ok := in.Params["text"]; ok {
		return v, nil
	}
	if len(in.Files) == 1 {
		return string(in.Files[0].Data), nil
	}
	return "", contracts.Invalid("text", nil, "no text given")
}
