package compressor

import (
	"math"
	"path/filepath"

	"docpress/contracts"
	"docpress/jpegenc"
)

const (
	paletteSize         = 256
	webpMaxMethod       = 6
	webpLosslessQuality = 95
	reencodeBelow       = 95
)

// EncodeParameters are derived from quality and color mode only.
type EncodeParameters struct {
	Format  contracts.Format
	Quality int

	// JPEG.
	Subsampling   jpegenc.Subsampling
	Progressive   bool
	StripMetadata bool
	QuantTier     jpegenc.QuantTier

	// PNG.
	CompressionLevel int
	Quantize         bool
	PaletteSize      int
	Dither           bool

	// WebP.
	Lossless bool
	Method   int
	Exact    bool
}

func DeriveParameters(f contracts.Format, quality int, mode contracts.ColorMode) EncodeParameters {
	p := EncodeParameters{Format: f, Quality: quality, StripMetadata: true}
	switch f {
	case contracts.FormatPNG:
		// round half to even, so quality 50 gives level 4
		p.CompressionLevel = int(math.RoundToEven(9 - float64(quality)/100*9))
		if quality < 90 && (mode == contracts.ModeRGB || mode == contracts.ModeRGBA) {
			p.Quantize = true
			p.PaletteSize = paletteSize
			p.Dither = true
		}
	case contracts.FormatWebP:
		p.Method = webpMaxMethod
		if quality >= webpLosslessQuality {
			p.Lossless = true
			p.Exact = true
		} else {
			p.Exact = quality >= 85
		}
	default:
		p.Format = contracts.FormatJPEG
		p.Progressive = true
		switch {
		case quality >= 90:
			p.Subsampling = jpegenc.Subsample444
		case quality >= 80:
			p.Subsampling = jpegenc.Subsample422
		default:
			p.Subsampling = jpegenc.Subsample420
		}
		p.QuantTier = jpegenc.TierLow
		if quality >= 85 {
			p.QuantTier = jpegenc.TierHigh
		}
	}
	return p
}

// BaselineJPEGParameters is the untuned set used by the second JPEG pass.
func BaselineJPEGParameters(quality int) EncodeParameters {
	return EncodeParameters{
		Format:        contracts.FormatJPEG,
		Quality:       quality,
		Subsampling:   jpegenc.Subsample420,
		Progressive:   true,
		StripMetadata: true,
		QuantTier:     jpegenc.TierStandard,
	}
}

// resolveFormat picks the output container. fallback reports an
// unrecognized selector or extension that was replaced by JPEG.
func resolveFormat(target contracts.Format, sourceName string) (f contracts.Format, fallback bool) {
	sel := string(target)
	if target == "" || target == contracts.FormatOriginal {
		sel = filepath.Ext(sourceName)
		if sel == "" {
			return contracts.FormatJPEG, true
		}
	}
	f, ok := contracts.ParseFormat(sel)
	if !ok || f == contracts.FormatOriginal {
		return contracts.FormatJPEG, true
	}
	return f, false
}
