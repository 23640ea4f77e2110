package compressor

import (
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

func clampChannel(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

// adjustTone scales brightness about zero, then contrast about mid-gray.
// Each pass runs only when its multiplier differs from 1.
func adjustTone(d *DecodedImage, brightness, contrast float64) {
	if brightness == 1.0 && contrast == 1.0 {
		return
	}
	d.expandPalette()
	img := d.nrgba()
	if brightness != 1.0 {
		img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			c.R = clampChannel(float64(c.R) * brightness)
			c.G = clampChannel(float64(c.G) * brightness)
			c.B = clampChannel(float64(c.B) * brightness)
			return c
		})
	}
	if contrast != 1.0 {
		img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			c.R = clampChannel(128 + (float64(c.R)-128)*contrast)
			c.G = clampChannel(128 + (float64(c.G)-128)*contrast)
			c.B = clampChannel(128 + (float64(c.B)-128)*contrast)
			return c
		})
	}
	d.set(img)
}
