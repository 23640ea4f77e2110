package tools

import (
	"context"

	"docpress/contracts"
	"docpress/texttools"
)

// textFunc produces the JSON body of a text tool.
type textFunc func(p contracts.Params, text string) (any, error)

func textTool(name string, needsText bool, fn textFunc) contracts.Tool {
	return newTool(name, func(_ context.Context, in contracts.ToolInput) (*contracts.ToolOutput, error) {
		var text string
		if needsText {
			var err error
			if text, err = textInput(in); err != nil {
				return nil, err
			}
		}
		v, err := fn(in.Params, text)
		if err != nil {
			return nil, err
		}
		if _, ok := in.Params["text"]; !ok && needsText {
			return jsonOutput(stem(in.Files[0].Name, name), v)
		}
		return jsonOutput(name, v)
	})
}

func textTools() []contracts.Tool {
	return []contracts.Tool{
		textTool("word-counter", true, func(_ contracts.Params, text string) (any, error) {
			return texttools.CountWords(text), nil
		}),
		textTool("json-formatter", true, func(p contracts.Params, text string) (any, error) {
			indent, err := p.Int("indent", 2)
			if err != nil {
				return nil, err
			}
			minify, err := p.Bool("minify", false)
			if err != nil {
				return nil, err
			}
			formatted, err := texttools.FormatJSON(text, indent, minify)
			if err != nil {
				return nil, err
			}
			return map[string]string{"formatted": formatted}, nil
		}),
		textTool("base64-encoder", true, func(p contracts.Params, text string) (any, error) {
			result, err := texttools.Base64(text, p.String("action", "encode"))
			if err != nil {
				return nil, err
			}
			return map[string]string{"result": result}, nil
		}),
		textTool("uuid-generator", false, func(p contracts.Params, _ string) (any, error) {
			count, err := p.Int("count", 1)
			if err != nil {
				return nil, err
			}
			ids, err := texttools.UUIDs(count)
			if err != nil {
				return nil, err
			}
			return map[string]any{"uuid": ids[0], "uuids": ids}, nil
		}),
		textTool("password-generator", false, func(p contracts.Params, _ string) (any, error) {
			length, err := p.Int("length", 16)
			if err != nil {
				return nil, err
			}
			symbols, err := p.Bool("symbols", true)
			if err != nil {
				return nil, err
			}
			password, err := texttools.Password(length, symbols)
			if err != nil {
				return nil, err
			}
			return map[string]string{"password": password}, nil
		}),
		textTool("hash-generator", true, func(p contracts.Params, text string) (any, error) {
			return texttools.Hashes(text, p.String("algorithm", "all"))
		}),
		textTool("case-converter", true, func(p contracts.Params, text string) (any, error) {
			result, err := texttools.ConvertCase(text, p.String("type", "upper"))
			if err != nil {
				return nil, err
			}
			return map[string]string{"result": result}, nil
		}),
	}
}
