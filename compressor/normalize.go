package compressor

import (
	"image"
	"image/color"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"

	"docpress/contracts"
)

// normalizeForFormat flattens alpha and palette buffers onto white when the
// target container cannot store them.
func normalizeForFormat(d *DecodedImage, f contracts.Format) {
	if f.SupportsAlpha() {
		return
	}
	switch d.Mode {
	case contracts.ModeRGBA, contracts.ModeLA, contracts.ModePalette:
		w, h := d.Size()
		bg := imaging.New(w, h, color.White)
		d.Image = imaging.Overlay(bg, d.Image, image.Pt(0, 0), 1.0)
		d.Mode = contracts.ModeRGB
	}
}

const prefilterBelowQuality = 85

// prefilter runs a 3x3 median over full-color buffers at lower qualities.
// Alpha is carried over unfiltered.
func prefilter(d *DecodedImage, quality int) bool {
	if quality >= prefilterBelowQuality {
		return false
	}
	if d.Mode != contracts.ModeRGB && d.Mode != contracts.ModeRGBA {
		return false
	}
	src := d.nrgba()
	g := gift.New(gift.Median(3, false))
	dst := image.NewNRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = src.Pix[i]
	}
	d.Image = dst
	return true
}
