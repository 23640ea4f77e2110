//go:build vips
// +build vips

package compressor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"docpress/contracts"
	"docpress/jpegenc"
)

var vipsStartup sync.Once

func init() {
	registerBackend("vips", func() (Backend, error) {
		vipsStartup.Do(func() {
			vips.LoggingSettings(nil, vips.LogLevelWarning)
			vips.Startup(nil)
		})
		return vipsBackend{}, nil
	})
}

var errVipsNo422 = errors.New("libvips has no 4:2:2 jpeg mode")

type vipsBackend struct{}

func (vipsBackend) Name() string { return "vips" }

func (vipsBackend) Encode(d *DecodedImage, p EncodeParameters) ([]byte, error) {
	if p.Format == contracts.FormatJPEG && p.Subsampling == jpegenc.Subsample422 {
		return nil, errVipsNo422
	}
	src, err := interchangePNG(d)
	if err != nil {
		return nil, err
	}
	ref, err := vips.NewImageFromBuffer(src)
	if err != nil {
		return nil, fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	var out []byte
	switch p.Format {
	case contracts.FormatJPEG:
		out, _, err = ref.ExportJpeg(jpegExportParams(p))
	case contracts.FormatPNG:
		out, _, err = ref.ExportPng(pngExportParams(p))
	case contracts.FormatWebP:
		out, _, err = ref.ExportWebp(webpExportParams(p))
	default:
		return nil, fmt.Errorf("vips backend cannot write %q", p.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("vips export %s: %w", p.Format, err)
	}
	return out, nil
}

func jpegExportParams(p EncodeParameters) *vips.JpegExportParams {
	ep := vips.NewJpegExportParams()
	ep.Quality = p.Quality
	ep.Interlace = p.Progressive
	ep.StripMetadata = p.StripMetadata
	ep.OptimizeCoding = true
	ep.SubsampleMode = vips.VipsForeignSubsampleOn
	if p.Subsampling == jpegenc.Subsample444 {
		ep.SubsampleMode = vips.VipsForeignSubsampleOff
	}
	if p.QuantTier == jpegenc.TierLow {
		// libjpeg table 3 is tuned for lower qualities.
		ep.QuantTable = 3
	}
	return ep
}

// pngExportParams keeps a quantized image paletted; libvips loads the
// interchange PNG as RGB and would write it back out that way.
func pngExportParams(p EncodeParameters) *vips.PngExportParams {
	ep := vips.NewPngExportParams()
	ep.Compression = p.CompressionLevel
	ep.StripMetadata = p.StripMetadata
	ep.Palette = p.Quantize
	return ep
}

// webpExportParams has no equivalent of p.Exact: govips does not expose
// libwebp's exact flag, so transparent pixels may lose their color.
func webpExportParams(p EncodeParameters) *vips.WebpExportParams {
	ep := vips.NewWebpExportParams()
	ep.Quality = p.Quality
	ep.Lossless = p.Lossless
	ep.ReductionEffort = p.Method
	ep.StripMetadata = p.StripMetadata
	return ep
}
