package compressor

import (
	"image"
	"math"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"
)

const sharpenBelowRatio = 0.8

// fitSize scales (w, h) into the bounds without upscaling. A zero bound is
// unlimited.
func fitSize(w, h, maxW, maxH int) (int, int) {
	factor := 1.0
	if maxW > 0 {
		factor = math.Min(factor, float64(maxW)/float64(w))
	}
	if maxH > 0 {
		factor = math.Min(factor, float64(maxH)/float64(h))
	}
	nw := max(1, int(math.Round(float64(w)*factor)))
	nh := max(1, int(math.Round(float64(h)*factor)))
	if maxW > 0 {
		nw = min(nw, maxW)
	}
	if maxH > 0 {
		nh = min(nh, maxH)
	}
	return nw, nh
}

func exactSize(w, h, width, height int) (int, int) {
	if width > 0 {
		w = width
	}
	if height > 0 {
		h = height
	}
	return w, h
}

// resize returns true when the unsharp pass ran.
func resize(d *DecodedImage, maxW, maxH int, keepAspect bool) bool {
	if maxW <= 0 && maxH <= 0 {
		return false
	}
	w, h := d.Size()
	var nw, nh int
	if keepAspect {
		nw, nh = fitSize(w, h, maxW, maxH)
	} else {
		nw, nh = exactSize(w, h, maxW, maxH)
	}
	if nw == w && nh == h {
		return false
	}
	d.expandPalette()
	out := imaging.Resize(d.Image, nw, nh, imaging.Lanczos)
	sharpened := float64(nw) < sharpenBelowRatio*float64(w)
	if sharpened {
		out = unsharp(out)
	}
	d.set(out)
	return sharpened
}

// unsharp applies radius 1, amount 100%, threshold 3 of 255.
func unsharp(src *image.NRGBA) *image.NRGBA {
	g := gift.New(gift.UnsharpMask(1.0, 1.0, 3.0/255.0))
	dst := image.NewNRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}
