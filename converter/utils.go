package converter

import (
	"image"
	"image/color"
)

// OtsuThreshold returns the Otsu split of an 8-bit histogram as the
// smallest value that counts as white: v < threshold is black. A raster
// with a single value has no split and gets 128.
func OtsuThreshold(gray []byte) uint8 {
	var hist [256]int
	for _, v := range gray {
		hist[v]++
	}
	total := len(gray)
	sum := 0
	for i, c := range hist {
		sum += i * c
	}
	sumB, wB := 0, 0
	var maxVar float64
	split := -1
	for i, c := range hist {
		wB += c
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += i * c
		mB := float64(sumB) / float64(wB)
		mF := float64(sum-sumB) / float64(wF)
		varBetween := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if varBetween > maxVar {
			maxVar = varBetween
			split = i
		}
	}
	if split < 0 {
		return 128
	}
	return uint8(split + 1)
}

// MorphologyClose performs a 3×3 cross closing (dilate, then erode) on a
// black mask. Border pixels keep their input value.
func MorphologyClose(bin []bool, w, h int) []bool {
	dil := make([]bool, len(bin))
	copy(dil, bin)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			idx := y*w + x
			dil[idx] = bin[idx] || bin[idx-1] || bin[idx+1] || bin[idx-w] || bin[idx+w]
		}
	}
	ero := make([]bool, len(bin))
	copy(ero, bin)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			idx := y*w + x
			ero[idx] = dil[idx] && dil[idx-1] && dil[idx+1] && dil[idx-w] && dil[idx+w]
		}
	}
	return ero
}

type analysis struct {
	gray    bool
	bilevel bool
	lum     []byte
}

// analyze measures how gray and how bilevel an opaque image is. lum is the
// row-major luminance plane.
func analyze(img *image.NRGBA, o Options) analysis {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n := w * h
	lum := make([]byte, n)
	grayCount, extremes := 0, 0

	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			r, g, bl := row[x*4], row[x*4+1], row[x*4+2]
			if abs(int(r)-int(g)) < o.GrayTolerance && abs(int(r)-int(bl)) < o.GrayTolerance && abs(int(g)-int(bl)) < o.GrayTolerance {
				grayCount++
			}
			v := color.GrayModel.Convert(color.NRGBA{R: r, G: g, B: bl, A: 0xff}).(color.Gray).Y
			lum[y*w+x] = v
			if v <= bilevelLow || v >= bilevelHigh {
				extremes++
			}
		}
	}
	a := analysis{lum: lum}
	a.gray = float64(grayCount) >= o.GrayRatio*float64(n)
	a.bilevel = a.gray && float64(extremes) >= o.BilevelRatio*float64(n)
	return a
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
