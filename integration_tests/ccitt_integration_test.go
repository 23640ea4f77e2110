package tests

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/image/tiff"

	"docpress/contracts"
	"docpress/converter"
	"docpress/pdftools"
	"docpress/tools"
)

// scanTIFF renders a bilevel "page" with dark text bars on white paper,
// stored as an uncompressed TIFF without resolution tags.
func scanTIFF(t *testing.T) []byte {
	t.Helper()
	m := image.NewGray(image.Rect(0, 0, 600, 800))
	for i := range m.Pix {
		m.Pix[i] = 0xff
	}
	for line := 0; line < 20; line++ {
		y0 := 60 + line*34
		for y := y0; y < y0+12; y++ {
			for x := 50; x < 550-(line%3)*60; x++ {
				if (x/9)%4 != 3 {
					m.SetGray(x, y, color.Gray{Y: 0})
				}
			}
		}
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, m, nil); err != nil {
		t.Fatalf("tiff: %v", err)
	}
	return buf.Bytes()
}

func photoPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: uint8((x + y) % 256), A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		t.Fatalf("png: %v", err)
	}
	return buf.Bytes()
}

func runTool(t *testing.T, r *tools.Registry, name string, params contracts.Params, files ...contracts.InputFile) *contracts.ToolOutput {
	t.Helper()
	out, err := r.Run(context.Background(), name, contracts.ToolInput{Files: files, Params: params})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return out
}

func TestCCITTIntegrationWithRawTIFF(t *testing.T) {
	r := tools.NewRegistry(tools.Dependencies{})

	t.Run("convert raw TIFF scan and a photo to one PDF", func(t *testing.T) {
		out := runTool(t, r, "jpg-to-pdf", contracts.Params{"dpi": "300"},
			contracts.InputFile{Name: "scan.tif", Data: scanTIFF(t)},
			contracts.InputFile{Name: "photo.png", Data: photoPNG(t, 300, 200)},
		)
		if out.Meta["method"] != "native" {
			t.Fatalf("method %q, want native", out.Meta["method"])
		}

		pdfContent := string(out.Data)
		requiredPDFElements := []string{
			"%PDF-1.7",
			"/Type /Catalog",
			"/Type /Pages",
			"/Type /Page",
			"/Type /XObject",
			"/Subtype /Image",
			"xref",
			"trailer",
			"startxref",
			"%%EOF",
			"/Filter /DCTDecode",
		}
		for _, element := range requiredPDFElements {
			if !strings.Contains(pdfContent, element) {
				t.Errorf("PDF missing required element: %s", element)
			}
		}
		ccittParams := []string{
			"/Filter /CCITTFaxDecode",
			"/K -1",
			"/Columns 600",
			"/Rows 800",
			"/BitsPerComponent 1",
			"/ColorSpace /DeviceGray",
		}
		for _, param := range ccittParams {
			if !strings.Contains(pdfContent, param) {
				t.Errorf("PDF missing CCITT parameter: %s", param)
			}
		}
		// 600x800 pixels at 300 dpi
		if !strings.Contains(pdfContent, "/MediaBox [0 0 144.00 192.00]") {
			t.Errorf("scan page has the wrong size")
		}

		pdfOutputPath := filepath.Join(t.TempDir(), "scan.pdf")
		if err := os.WriteFile(pdfOutputPath, out.Data, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		config := model.NewDefaultConfiguration()
		config.ValidationMode = model.ValidationRelaxed
		if err := api.ValidateFile(pdfOutputPath, config); err != nil {
			t.Fatalf("pdfcpu validation failed: %v", err)
		}
		n, err := api.PageCountFile(pdfOutputPath)
		if err != nil || n != 2 {
			t.Fatalf("page count %d, %v", n, err)
		}
	})

	t.Run("gofpdf writer embeds the scan as a raster", func(t *testing.T) {
		gofpdfOnly := tools.NewRegistry(tools.Dependencies{
			Converter: converter.New(converter.Options{Writers: []string{converter.WriterGofpdf}}),
		})
		out := runTool(t, gofpdfOnly, "jpg-to-pdf", nil,
			contracts.InputFile{Name: "scan.tif", Data: scanTIFF(t)},
			contracts.InputFile{Name: "photo.png", Data: photoPNG(t, 300, 200)},
		)
		if out.Meta["method"] != converter.WriterGofpdf {
			t.Fatalf("method %q, want gofpdf", out.Meta["method"])
		}
		if rep := pdftools.Validate(out.Data); !rep.Valid || rep.Pages != 2 {
			t.Fatalf("report %+v", rep)
		}
	})
}

func TestCompressConvertStamp(t *testing.T) {
	r := tools.NewRegistry(tools.Dependencies{})

	compressed := runTool(t, r, "image-compressor",
		contracts.Params{"format": "jpeg", "quality": "60", "maxWidth": "400"},
		contracts.InputFile{Name: "photo.png", Data: photoPNG(t, 1000, 800)},
	)
	if compressed.Meta["width"] != "400" || compressed.Meta["height"] != "320" {
		t.Fatalf("compressed to %sx%s, want 400x320", compressed.Meta["width"], compressed.Meta["height"])
	}

	doc := runTool(t, r, "jpg-to-pdf", nil,
		contracts.InputFile{Name: compressed.FileName, Data: compressed.Data},
		contracts.InputFile{Name: "scan.tif", Data: scanTIFF(t)},
	)
	numbered := runTool(t, r, "pdf-page-numbers", contracts.Params{"format": "{n} of {total}"},
		contracts.InputFile{Name: "doc.pdf", Data: doc.Data})
	locked := runTool(t, r, "pdf-protect", contracts.Params{"password": "secret"},
		contracts.InputFile{Name: "doc.pdf", Data: numbered.Data})
	open := runTool(t, r, "pdf-unlock", contracts.Params{"password": "secret"},
		contracts.InputFile{Name: "doc.pdf", Data: locked.Data})

	report := runTool(t, r, "pdf-validate", nil, contracts.InputFile{Name: "doc.pdf", Data: open.Data})
	var rep pdftools.Report
	if err := sonic.Unmarshal(report.Data, &rep); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !rep.Valid || rep.Pages != 2 {
		t.Fatalf("final document %+v", rep)
	}
}
