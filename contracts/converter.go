package contracts

import "context"

// Converter turns a set of page images into one PDF document.
type Converter interface {
	Convert(ctx context.Context, request ConversionRequest) (*ConversionResult, error)
}

type ConversionRequest struct {
	Images      []InputFile
	JpegQuality int
	// DPI overrides the resolution found in image metadata when > 0.
	DPI   float64
	Title string
}

type ConversionResult struct {
	PDF    []byte
	Pages  int
	Method string
}

type PageEncoding int

const (
	EncodingDCT PageEncoding = iota
	EncodingCCITT
)

// PageImage is one page prepared for embedding into a PDF.
type PageImage struct {
	ImgBuffer   []byte
	Encoding    PageEncoding
	Gray        bool
	PixelWidth  int
	PixelHeight int
	DPIX        float64
	DPIY        float64
	PageIndex   int
}

// PointSize returns the page size in PDF points.
func (p *PageImage) PointSize() (float64, float64) {
	dx, dy := p.DPIX, p.DPIY
	if dx <= 0 {
		dx = 72
	}
	if dy <= 0 {
		dy = dx
	}
	return float64(p.PixelWidth) * 72 / dx, float64(p.PixelHeight) * 72 / dy
}
