package contracts

import "context"

type InputFile struct {
	Name string
	Data []byte
}

type ToolInput struct {
	Files  []InputFile
	Params Params
}

type ToolOutput struct {
	Data        []byte
	FileName    string
	ContentType string
	// Meta carries side information such as the strategy that produced Data.
	Meta map[string]string
}

// Tool is one independent utility operation.
type Tool interface {
	Name() string
	Run(ctx context.Context, in ToolInput) (*ToolOutput, error)
}
