package tools

import (
	"context"
	"strconv"
	"strings"

	"docpress/contracts"
)

func imageTools(deps Dependencies) []contracts.Tool {
	return []contracts.Tool{
		newTool("image-compressor", compressImage(deps.Compressor)),
		newTool("jpg-to-pdf", imagesToPDF(deps.Converter, deps.JpegQuality)),
	}
}

// compressionRequest maps form-style parameters onto a pipeline request.
// Brightness and contrast arrive as percentages.
func compressionRequest(f contracts.InputFile, p contracts.Params) (contracts.CompressionRequest, error) {
	req := contracts.NewCompressionRequest(f.Data, f.Name)
	req.Target = contracts.Format(strings.ToLower(strings.TrimSpace(p.String("format", string(contracts.FormatOriginal)))))

	var err error
	if req.Quality, err = p.Int("quality", req.Quality); err != nil {
		return req, err
	}
	if req.MaxWidth, err = p.Int("maxWidth", 0); err != nil {
		return req, err
	}
	if req.MaxHeight, err = p.Int("maxHeight", 0); err != nil {
		return req, err
	}
	if req.MaintainAspect, err = p.Bool("maintainAspect", true); err != nil {
		return req, err
	}
	if req.Rotation, err = p.Int("rotation", 0); err != nil {
		return req, err
	}
	if req.FlipH, err = p.Bool("flipH", false); err != nil {
		return req, err
	}
	if req.FlipV, err = p.Bool("flipV", false); err != nil {
		return req, err
	}
	brightness, err := p.Float("brightness", 100)
	if err != nil {
		return req, err
	}
	contrast, err := p.Float("contrast", 100)
	if err != nil {
		return req, err
	}
	req.Brightness = brightness / 100
	req.Contrast = contrast / 100
	return req, nil
}

func compressImage(c ImageCompressor) runFunc {
	return func(_ context.Context, in contracts.ToolInput) (*contracts.ToolOutput, error) {
		f, err := singleFile(in)
		if err != nil {
			return nil, err
		}
		req, err := compressionRequest(f, in.Params)
		if err != nil {
			return nil, err
		}
		res, err := c.Compress(req)
		if err != nil {
			return nil, err
		}
		return &contracts.ToolOutput{
			Data:        res.Data,
			FileName:    outputName(f.Name, "compressed", res.Format.Extension()),
			ContentType: res.Format.ContentType(),
			Meta: map[string]string{
				"method":         res.Backend,
				"format":         string(res.Format),
				"mode":           res.Mode.String(),
				"width":          strconv.Itoa(res.Width),
				"height":         strconv.Itoa(res.Height),
				"originalSize":   strconv.Itoa(len(f.Data)),
				"size":           strconv.Itoa(res.Size),
				"reencoded":      strconv.FormatBool(res.Reencoded),
				"formatFallback": strconv.FormatBool(res.FormatFallback),
			},
		}, nil
	}
}

func imagesToPDF(c contracts.Converter, defaultQuality int) runFunc {
	return func(ctx context.Context, in contracts.ToolInput) (*contracts.ToolOutput, error) {
		if len(in.Files) == 0 {
			return nil, contracts.Invalid("files", 0, "no images uploaded")
		}
		quality, err := in.Params.Int("quality", defaultQuality)
		if err != nil {
			return nil, err
		}
		dpi, err := in.Params.Float("dpi", 0)
		if err != nil {
			return nil, err
		}
		res, err := c.Convert(ctx, contracts.ConversionRequest{
			Images:      in.Files,
			JpegQuality: quality,
			DPI:         dpi,
			Title:       in.Params.String("title", ""),
		})
		if err != nil {
			return nil, err
		}
		out := pdfOutput(res.PDF, "images-to-pdf.pdf")
		out.Meta["method"] = res.Method
		out.Meta["pages"] = strconv.Itoa(res.Pages)
		return out, nil
	}
}
