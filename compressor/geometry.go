package compressor

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// normalizeAngle folds any integer angle into [0, 360).
func normalizeAngle(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// transformGeometry rotates clockwise by rotation degrees, then flips.
// Clockwise on screen is a counter-clockwise imaging rotation by the
// negated angle; the canvas grows to hold the whole rotated image.
func transformGeometry(d *DecodedImage, rotation int, flipH, flipV bool) {
	angle := normalizeAngle(rotation)
	if angle == 0 && !flipH && !flipV {
		return
	}
	d.expandPalette()

	var out *image.NRGBA
	switch angle {
	case 0:
		out = d.nrgba()
	case 90:
		out = imaging.Rotate270(d.Image)
	case 180:
		out = imaging.Rotate180(d.Image)
	case 270:
		out = imaging.Rotate90(d.Image)
	default:
		bg := color.Color(color.White)
		if d.Mode.HasAlpha() {
			bg = color.Transparent
		}
		out = imaging.Rotate(d.Image, float64(-angle), bg)
	}
	if flipH {
		out = imaging.FlipH(out)
	}
	if flipV {
		out = imaging.FlipV(out)
	}
	d.set(out)
}
