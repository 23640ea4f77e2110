package compressor

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"docpress/contracts"
)

var errEmptySource = errors.New("source is empty")

// decode reads data into a DecodedImage. The header is checked against the
// pixel limit before any pixel memory is allocated.
func (c *Compressor) decode(data []byte, name string) (*DecodedImage, error) {
	if len(data) == 0 {
		return nil, &contracts.DecodeError{Name: name, Err: errEmptySource}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &contracts.DecodeError{Name: name, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &contracts.DecodeError{Name: name, Err: errors.New("image has no pixels")}
	}
	if c.maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > c.maxPixels {
		return nil, contracts.Invalid("pixels", int64(cfg.Width)*int64(cfg.Height), "exceeds the configured limit")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &contracts.DecodeError{Name: name, Err: err}
	}
	d := fromImage(img)
	if format == "png" && pngColorType(data) == 4 {
		d.Mode = contracts.ModeLA
	}
	return d, nil
}

// fromImage maps the decoder's concrete type onto the working representation.
func fromImage(img image.Image) *DecodedImage {
	b := img.Bounds()
	switch m := img.(type) {
	case *image.Gray:
		if b.Min == (image.Point{}) {
			return &DecodedImage{Image: m, Mode: contracts.ModeGray}
		}
		return &DecodedImage{Image: toGray(m), Mode: contracts.ModeGray}
	case *image.Gray16:
		return &DecodedImage{Image: toGray(m), Mode: contracts.ModeGray}
	case *image.Paletted:
		p := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), m.Palette)
		draw.Draw(p, p.Bounds(), m, b.Min, draw.Src)
		return &DecodedImage{Image: p, Mode: contracts.ModePalette}
	case *image.YCbCr, *image.CMYK:
		return &DecodedImage{Image: imaging.Clone(m), Mode: contracts.ModeRGB}
	}

	n := imaging.Clone(img)
	mode := contracts.ModeRGB
	if !n.Opaque() {
		mode = contracts.ModeRGBA
	}
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA:
		// Alpha-capable sources stay RGBA even when every pixel is opaque.
		mode = contracts.ModeRGBA
	}
	return &DecodedImage{Image: n, Mode: mode}
}

// pngColorType returns the IHDR color type byte, or -1.
func pngColorType(data []byte) int {
	if len(data) < 26 || string(data[12:16]) != "IHDR" {
		return -1
	}
	return int(data[25])
}
