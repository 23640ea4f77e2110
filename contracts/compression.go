package contracts

import "strings"

type Format string

const (
	FormatOriginal Format = "original"
	FormatJPEG     Format = "jpeg"
	FormatPNG      Format = "png"
	FormatWebP     Format = "webp"
)

// ParseFormat maps a user selector or file extension to a container.
// ok is false for anything that is not a supported container.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "jpg", "jpeg", "jpe", "jfif":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "webp":
		return FormatWebP, true
	case "", "original":
		return FormatOriginal, true
	}
	return "", false
}

func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	}
	return "jpg"
}

func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	}
	return "image/jpeg"
}

func (f Format) SupportsAlpha() bool {
	return f == FormatPNG || f == FormatWebP
}

type ColorMode int

const (
	ModeGray ColorMode = iota
	ModePalette
	ModeRGB
	ModeRGBA
	ModeLA
)

func (m ColorMode) String() string {
	switch m {
	case ModeGray:
		return "L"
	case ModePalette:
		return "P"
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	case ModeLA:
		return "LA"
	}
	return "unknown"
}

func (m ColorMode) HasAlpha() bool {
	return m == ModeRGBA || m == ModeLA
}

// CompressionRequest is the input of one pipeline run. Fields hold already
// parsed values; ranges are checked by the pipeline.
type CompressionRequest struct {
	Source         []byte
	SourceName     string
	Target         Format
	Quality        int
	MaxWidth       int
	MaxHeight      int
	MaintainAspect bool
	Rotation       int
	FlipH          bool
	FlipV          bool
	Brightness     float64
	Contrast       float64
}

// NewCompressionRequest returns a request with the neutral defaults.
func NewCompressionRequest(source []byte, name string) CompressionRequest {
	return CompressionRequest{
		Source:         source,
		SourceName:     name,
		Target:         FormatOriginal,
		Quality:        80,
		MaintainAspect: true,
		Brightness:     1.0,
		Contrast:       1.0,
	}
}

type EncodedResult struct {
	Data   []byte
	Format Format
	Size   int
	Width  int
	Height int
	Mode   ColorMode

	// Backend is the encoder strategy that produced Data.
	Backend string
	// Reencoded is set when the baseline second pass was smaller.
	Reencoded bool
	// FormatFallback is set when the requested container was not recognized
	// and JPEG was used instead.
	FormatFallback bool
}
