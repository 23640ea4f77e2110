package tools

import (
	"context"
	"strconv"

	"docpress/contracts"
	"docpress/converter"
	"docpress/pdftools"
)

const (
	methodPdfcpu        = "pdfcpu"
	defaultArchiveTitle = "PDF/A Document"
)

type documentFunc func(pdf []byte, p contracts.Params) ([]byte, error)

// documentTool wraps a one-document operation whose result is a PDF named
// after the source with tag appended.
func documentTool(name, tag string, fn documentFunc) contracts.Tool {
	return newTool(name, func(_ context.Context, in contracts.ToolInput) (*contracts.ToolOutput, error) {
		f, err := singleFile(in)
		if err != nil {
			return nil, err
		}
		data, err := fn(f.Data, in.Params)
		if err != nil {
			return nil, err
		}
		out := pdfOutput(data, outputName(f.Name, tag, "pdf"))
		out.Meta["method"] = methodPdfcpu
		return out, nil
	})
}

// pageListTool parses the page list in param against the document before
// running fn.
func pageListTool(name, tag, param string, fn func(pdf []byte, pages []int) ([]byte, error)) contracts.Tool {
	return documentTool(name, tag, func(pdf []byte, p contracts.Params) ([]byte, error) {
		total, err := pdftools.PageCount(pdf)
		if err != nil {
			return nil, err
		}
		pages, err := pdftools.ParsePages(param, p[param], total)
		if err != nil {
			return nil, err
		}
		return fn(pdf, pages)
	})
}

func pdfTools(deps Dependencies) []contracts.Tool {
	return []contracts.Tool{
		newTool("pdf-merger", mergePDFs),
		newTool("pdf-splitter", splitPDF),
		newTool("pdf-validate", validatePDF),
		documentTool("pdf-compress", "compressed", func(pdf []byte, _ contracts.Params) ([]byte, error) {
			return pdftools.Optimize(pdf)
		}),
		documentTool("pdf-rotate", "rotated", rotatePDF),
		documentTool("pdf-watermark", "watermarked", watermarkPDF(deps.Watermark)),
		documentTool("pdf-protect", "protected", func(pdf []byte, p contracts.Params) ([]byte, error) {
			return pdftools.Protect(pdf, p["password"])
		}),
		documentTool("pdf-unlock", "unlocked", func(pdf []byte, p contracts.Params) ([]byte, error) {
			return pdftools.Unlock(pdf, p["password"])
		}),
		documentTool("pdf-page-numbers", "numbered", numberPages),
		documentTool("pdf-repair", "repaired", func(pdf []byte, _ contracts.Params) ([]byte, error) {
			return pdftools.Repair(pdf)
		}),
		pageListTool("pdf-organize", "organized", "order", pdftools.Collect),
		pageListTool("pdf-extract-pages", "extracted", "pages", pdftools.Collect),
		pageListTool("pdf-delete-pages", "deleted-pages", "pages", pdftools.DeletePages),
		documentTool("pdf-to-pdfa", "pdfa", func(pdf []byte, p contracts.Params) ([]byte, error) {
			return pdftools.SetTitle(pdf, p.String("title", defaultArchiveTitle))
		}),
		documentTool("pdf-sign", "signed", func(pdf []byte, p contracts.Params) ([]byte, error) {
			return pdftools.Sign(pdf, p["signer"], deps.Now())
		}),
		newTool("html-to-pdf", htmlToPDF),
	}
}

func mergePDFs(_ context.Context, in contracts.ToolInput) (*contracts.ToolOutput, error) {
	pdfs := make([][]byte, len(in.Files))
	for i, f := range in.Files {
		pdfs[i] = f.Data
	}
	data, err := pdftools.Merge(pdfs)
	if err != nil {
		return nil, err
	}
	out := pdfOutput(data, "merged.pdf")
	out.Meta["method"] = methodPdfcpu
	out.Meta["files"] = strconv.Itoa(len(pdfs))
	return out, nil
}

// splitPDF supports three modes: "all" returns a zip with one document per
// page, "range" extracts start..end, and "count" reports the page count.
func splitPDF(_ context.Context, in contracts.ToolInput) (*contracts.ToolOutput, error) {
	f, err := singleFile(in)
	if err != nil {
		return nil, err
	}
	total, err := pdftools.PageCount(f.Data)
	if err != nil {
		return nil, err
	}

	switch mode := in.Params.String("mode", "all"); mode {
	case "count":
		return jsonOutput(stem(f.Name, "pages"), map[string]int{"pages": total})
	case "all":
		data, err := pdftools.SplitAll(f.Data)
		if err != nil {
			return nil, err
		}
		return &contracts.ToolOutput{
			Data:        data,
			FileName:    outputName(f.Name, "split-pages", "zip"),
			ContentType: contentTypeZip,
			Meta:        map[string]string{"method": methodPdfcpu, "pages": strconv.Itoa(total)},
		}, nil
	case "range":
		start, err := in.Params.Int("start", 1)
		if err != nil {
			return nil, err
		}
		end, err := in.Params.Int("end", total)
		if err != nil {
			return nil, err
		}
		data, err := pdftools.ExtractRange(f.Data, start, end)
		if err != nil {
			return nil, err
		}
		out := pdfOutput(data, outputName(f.Name, "split-range", "pdf"))
		out.Meta["method"] = methodPdfcpu
		return out, nil
	default:
		return nil, contracts.Invalid("mode", mode, "must be all, range or count")
	}
}

func validatePDF(_ context.Context, in contracts.ToolInput) (*contracts.ToolOutput, error) {
	f, err := singleFile(in)
	if err != nil {
		return nil, err
	}
	out, err := jsonOutput(stem(f.Name, "validation"), pdftools.Validate(f.Data))
	if err != nil {
		return nil, err
	}
	out.Meta["method"] = methodPdfcpu
	return out, nil
}

func rotatePDF(pdf []byte, p contracts.Params) ([]byte, error) {
	angle, err := p.Int("angle", 90)
	if err != nil {
		return nil, err
	}
	var pages []int
	if p.Has("pages") {
		total, err := pdftools.PageCount(pdf)
		if err != nil {
			return nil, err
		}
		if pages, err = pdftools.ParsePages("pages", p["pages"], total); err != nil {
			return nil, err
		}
	}
	return pdftools.Rotate(pdf, angle, pages)
}

func watermarkPDF(defaults pdftools.WatermarkOptions) documentFunc {
	return func(pdf []byte, p contracts.Params) ([]byte, error) {
		o := defaults
		o.Text = p.String("text", o.Text)
		o.Color = p.String("color", o.Color)
		var err error
		if o.Opacity, err = p.Float("opacity", o.Opacity); err != nil {
			return nil, err
		}
		if o.Rotation, err = p.Int("rotation", o.Rotation); err != nil {
			return nil, err
		}
		if o.FontSize, err = p.Int("fontSize", o.FontSize); err != nil {
			return nil, err
		}
		return pdftools.Watermark(pdf, o)
	}
}

func numberPages(pdf []byte, p contracts.Params) ([]byte, error) {
	o := pdftools.DefaultPageNumberOptions()
	o.Position = p.String("position", o.Position)
	o.Format = p.String("format", o.Format)
	o.Color = p.String("color", o.Color)
	var err error
	if o.StartNumber, err = p.Int("startNumber", o.StartNumber); err != nil {
		return nil, err
	}
	if o.FontSize, err = p.Int("fontSize", o.FontSize); err != nil {
		return nil, err
	}
	return pdftools.PageNumbers(pdf, o)
}

// htmlToPDF renders the "html" parameter, or the single input file.
func htmlToPDF(_ context.Context, in contracts.ToolInput) (*contracts.ToolOutput, error) {
	src, name := in.Params["html"], "html-to-pdf.pdf"
	if !in.Params.Has("html") {
		if len(in.Files) == 0 {
			return nil, contracts.Invalid("html", nil, "no HTML given")
		}
		f, err := singleFile(in)
		if err != nil {
			return nil, err
		}
		src, name = string(f.Data), outputName(f.Name, "html-to-pdf", "pdf")
	}
	data, err := converter.HTMLToPDF(src, in.Params.String("title", ""))
	if err != nil {
		return nil, err
	}
	out := pdfOutput(data, name)
	out.Meta["method"] = converter.WriterGofpdf
	return out, nil
}
