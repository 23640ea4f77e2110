//go:build imagick
// +build imagick

package compressor

import (
	"fmt"
	"strconv"
	"sync"

	"gopkg.in/gographics/imagick.v2/imagick"

	"docpress/contracts"
	"docpress/jpegenc"
)

var imagickStartup sync.Once

func init() {
	registerBackend("imagick", func() (Backend, error) {
		imagickStartup.Do(imagick.Initialize)
		return imagickBackend{}, nil
	})
}

type imagickBackend struct{}

func (imagickBackend) Name() string { return "imagick" }

func samplingFactors(s jpegenc.Subsampling) []float64 {
	switch s {
	case jpegenc.Subsample444:
		return []float64{1, 1}
	case jpegenc.Subsample422:
		return []float64{2, 1}
	}
	return []float64{2, 2}
}

func (imagickBackend) Encode(d *DecodedImage, p EncodeParameters) ([]byte, error) {
	src, err := interchangePNG(d)
	if err != nil {
		return nil, err
	}
	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImageBlob(src); err != nil {
		return nil, fmt.Errorf("imagick read: %w", err)
	}
	if p.StripMetadata {
		if err := mw.StripImage(); err != nil {
			return nil, fmt.Errorf("imagick strip: %w", err)
		}
	}

	var settings []error
	switch p.Format {
	case contracts.FormatJPEG:
		settings = append(settings,
			mw.SetImageFormat("JPEG"),
			mw.SetImageCompressionQuality(uint(p.Quality)),
			mw.SetSamplingFactors(samplingFactors(p.Subsampling)),
		)
		if p.Progressive {
			settings = append(settings, mw.SetInterlaceScheme(imagick.INTERLACE_JPEG))
		}
	case contracts.FormatPNG:
		// ImageMagick reads PNG quality as zlib level*10 + filter; 5 is adaptive.
		settings = append(settings,
			mw.SetImageFormat("PNG"),
			mw.SetImageCompressionQuality(uint(p.CompressionLevel*10+5)),
		)
	case contracts.FormatWebP:
		settings = append(settings,
			mw.SetImageFormat("WEBP"),
			mw.SetImageCompressionQuality(uint(p.Quality)),
			mw.SetOption("webp:method", strconv.Itoa(p.Method)),
			mw.SetOption("webp:lossless", strconv.FormatBool(p.Lossless)),
			mw.SetOption("webp:exact", strconv.FormatBool(p.Exact)),
		)
	default:
		return nil, fmt.Errorf("imagick backend cannot write %q", p.Format)
	}
	for _, err := range settings {
		if err != nil {
			return nil, fmt.Errorf("imagick settings: %w", err)
		}
	}
	return mw.GetImageBlob(), nil
}
