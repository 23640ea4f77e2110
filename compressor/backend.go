package compressor

import (
	"bytes"
	"fmt"
	"image"
	"slices"
	"sort"
	"sync"

	"github.com/chai2010/webp"

	"docpress/contracts"
	"docpress/jpegenc"
	"docpress/pngenc"
)

// Backend encodes a normalized buffer with already derived parameters.
type Backend interface {
	Name() string
	Encode(d *DecodedImage, p EncodeParameters) ([]byte, error)
}

const NativeBackend = "native"

var (
	backendsMu sync.RWMutex
	backends   = map[string]func() (Backend, error){
		NativeBackend: func() (Backend, error) { return nativeBackend{}, nil },
	}
)

// registerBackend is called from init functions of optional backends.
func registerBackend(name string, factory func() (Backend, error)) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// AvailableBackends lists the backends compiled into this binary.
func AvailableBackends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupBackend(name string) (func() (Backend, error), bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	f, ok := backends[name]
	return f, ok
}

// backendOrder keeps the configured order, drops unknown names and makes
// sure the native backend is present as the last resort.
func backendOrder(configured []string) []string {
	order := make([]string, 0, len(configured)+1)
	for _, n := range configured {
		if _, ok := lookupBackend(n); ok && !slices.Contains(order, n) {
			order = append(order, n)
		}
	}
	if !slices.Contains(order, NativeBackend) {
		order = append(order, NativeBackend)
	}
	return order
}

// checkCompatible guards the normalizer's contract before any backend runs.
func checkCompatible(f contracts.Format, mode contracts.ColorMode) error {
	if f == contracts.FormatJPEG && mode != contracts.ModeGray && mode != contracts.ModeRGB {
		return &contracts.EncodeError{Format: f, Mode: mode, Err: fmt.Errorf("jpeg cannot store mode %s", mode)}
	}
	return nil
}

type nativeBackend struct{}

func (nativeBackend) Name() string { return NativeBackend }

func (nativeBackend) Encode(d *DecodedImage, p EncodeParameters) ([]byte, error) {
	var buf bytes.Buffer
	switch p.Format {
	case contracts.FormatJPEG:
		err := jpegenc.Encode(&buf, d.Image, &jpegenc.Options{
			Quality:     p.Quality,
			Subsampling: p.Subsampling,
			Progressive: p.Progressive,
			Tier:        p.QuantTier,
		})
		if err != nil {
			return nil, err
		}
	case contracts.FormatPNG:
		if err := encodePNG(&buf, d, p.CompressionLevel); err != nil {
			return nil, err
		}
	case contracts.FormatWebP:
		err := webp.Encode(&buf, webpSource(d), &webp.Options{
			Lossless: p.Lossless,
			Quality:  float32(p.Quality),
			Exact:    p.Exact,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("native backend cannot write %q", p.Format)
	}
	return buf.Bytes(), nil
}

func pngColorTypeFor(mode contracts.ColorMode) pngenc.ColorType {
	switch mode {
	case contracts.ModeGray:
		return pngenc.Gray
	case contracts.ModePalette:
		return pngenc.Paletted
	case contracts.ModeLA:
		return pngenc.GrayAlpha
	case contracts.ModeRGB:
		return pngenc.RGB
	}
	return pngenc.RGBA
}

func encodePNG(buf *bytes.Buffer, d *DecodedImage, level int) error {
	return pngenc.Encode(buf, d.Image, &pngenc.Options{Level: level, ColorType: pngColorTypeFor(d.Mode)})
}

// webpSource hands libwebp its expected layouts. libwebp reads RGBA bytes as
// straight alpha, so NRGBA pixels are passed through an *image.RGBA header
// without premultiplying.
func webpSource(d *DecodedImage) image.Image {
	if g, ok := d.Image.(*image.Gray); ok {
		return g
	}
	n := d.nrgba()
	return &image.RGBA{Pix: n.Pix, Stride: n.Stride, Rect: n.Rect}
}

// interchangePNG is the lossless hand-off format for library backends.
func interchangePNG(d *DecodedImage) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodePNG(&buf, d, 1); err != nil {
		return nil, fmt.Errorf("interchange png: %w", err)
	}
	return buf.Bytes(), nil
}
