package compressor

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"

	"docpress/contracts"
)

// DecodedImage is the working buffer of one pipeline run. Image is an
// *image.Gray for ModeGray, *image.Paletted for ModePalette and *image.NRGBA
// otherwise, always with a zero origin.
type DecodedImage struct {
	Image image.Image
	Mode  contracts.ColorMode
}

func (d *DecodedImage) Size() (int, int) {
	b := d.Image.Bounds()
	return b.Dx(), b.Dy()
}

// expandPalette converts a paletted buffer to RGBA before pixel arithmetic.
func (d *DecodedImage) expandPalette() {
	if d.Mode != contracts.ModePalette {
		return
	}
	d.Image = imaging.Clone(d.Image)
	d.Mode = contracts.ModeRGBA
}

// set stores the result of an imaging/gift operation, keeping Gray buffers
// in their single-channel form.
func (d *DecodedImage) set(img *image.NRGBA) {
	if d.Mode == contracts.ModeGray {
		d.Image = toGray(img)
		return
	}
	d.Image = img
}

func (d *DecodedImage) nrgba() *image.NRGBA {
	if n, ok := d.Image.(*image.NRGBA); ok {
		return n
	}
	return imaging.Clone(d.Image)
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
