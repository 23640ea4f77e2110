// Package compressor implements the image transform-and-compress pipeline:
// decode, rotate and flip, tonal adjustment, resize, color normalization,
// median prefilter, encode, and the JPEG size-minimizing second pass.
package compressor

import (
	"fmt"
	"log/slog"
	"math"

	"docpress/contracts"
	"docpress/strategy"
)

const DefaultMaxPixels int64 = 100_000_000

type Options struct {
	// Backends is the preferred encoder order. Names not compiled into the
	// binary are skipped and native is always appended.
	Backends []string
	// MaxPixels limits width*height of decoded sources. Zero selects
	// DefaultMaxPixels; a negative value disables the check.
	MaxPixels int64
	Logger    *slog.Logger
}

type encodeJob struct {
	img    *DecodedImage
	params EncodeParameters
}

// Compressor holds immutable configuration and is safe for concurrent use.
type Compressor struct {
	chain     *strategy.Chain[encodeJob, []byte]
	backends  map[string]Backend
	maxPixels int64
	log       *slog.Logger
}

func New(opts Options) *Compressor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	c := &Compressor{
		backends:  make(map[string]Backend),
		maxPixels: opts.MaxPixels,
		log:       log.With("component", "compressor"),
	}
	if c.maxPixels == 0 {
		c.maxPixels = DefaultMaxPixels
	}

	var steps []strategy.Step[encodeJob, []byte]
	for _, name := range backendOrder(opts.Backends) {
		factory, _ := lookupBackend(name)
		b, err := factory()
		if err != nil {
			c.log.Warn("encoder backend unavailable", "backend", name, "err", err)
			continue
		}
		c.backends[name] = b
		steps = append(steps, strategy.Step[encodeJob, []byte]{
			Name: name,
			Run: func(j encodeJob) ([]byte, error) {
				return b.Encode(j.img, j.params)
			},
		})
	}
	c.chain = strategy.New(steps...)
	return c
}

// Backends returns the encoder order in effect.
func (c *Compressor) Backends() []string {
	return c.chain.Names()
}

func validate(req contracts.CompressionRequest) error {
	if req.Quality < 1 || req.Quality > 100 {
		return contracts.Invalid("quality", req.Quality, "must be between 1 and 100")
	}
	if math.IsNaN(req.Brightness) || req.Brightness <= 0 || math.IsInf(req.Brightness, 0) {
		return contracts.Invalid("brightness", req.Brightness, "must be a positive multiplier")
	}
	if math.IsNaN(req.Contrast) || req.Contrast <= 0 || math.IsInf(req.Contrast, 0) {
		return contracts.Invalid("contrast", req.Contrast, "must be a positive multiplier")
	}
	if req.MaxWidth < 0 {
		return contracts.Invalid("maxWidth", req.MaxWidth, "must not be negative")
	}
	if req.MaxHeight < 0 {
		return contracts.Invalid("maxHeight", req.MaxHeight, "must not be negative")
	}
	return nil
}

// stageReport records which conditional stages ran.
type stageReport struct {
	Sharpened bool
	Filtered  bool
	Palette   string
}

// prepare runs every stage up to, but not including, parameter derivation.
func (c *Compressor) prepare(req contracts.CompressionRequest, f contracts.Format) (*DecodedImage, stageReport, error) {
	var rep stageReport
	d, err := c.decode(req.Source, req.SourceName)
	if err != nil {
		return nil, rep, err
	}
	transformGeometry(d, req.Rotation, req.FlipH, req.FlipV)
	adjustTone(d, req.Brightness, req.Contrast)
	rep.Sharpened = resize(d, req.MaxWidth, req.MaxHeight, req.MaintainAspect)
	normalizeForFormat(d, f)
	rep.Filtered = prefilter(d, req.Quality)
	return d, rep, nil
}

// Compress runs the whole pipeline for one request.
func (c *Compressor) Compress(req contracts.CompressionRequest) (*contracts.EncodedResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	f, fallback := resolveFormat(req.Target, req.SourceName)
	if fallback {
		c.log.Warn("unrecognized output format, using jpeg", "target", req.Target, "source", req.SourceName)
	}

	d, rep, err := c.prepare(req, f)
	if err != nil {
		return nil, err
	}

	params := DeriveParameters(f, req.Quality, d.Mode)
	if params.Quantize {
		rep.Palette, err = quantize(d, params)
		if err != nil {
			return nil, &contracts.EncodeError{Format: f, Mode: d.Mode, Err: fmt.Errorf("quantize: %w", err)}
		}
	}
	if err := checkCompatible(f, d.Mode); err != nil {
		return nil, err
	}

	res, err := c.chain.Run(encodeJob{img: d, params: params})
	if err != nil {
		return nil, &contracts.EncodeError{Format: f, Mode: d.Mode, Err: err}
	}
	for _, a := range res.Failed {
		c.log.Debug("encoder backend failed", "backend", a.Strategy, "err", a.Err)
	}

	data, reencoded := res.Value, false
	if f == contracts.FormatJPEG {
		data, reencoded = c.reencode(c.backends[res.Strategy], data, req.Quality)
	}

	w, h := d.Size()
	c.log.Debug("compressed",
		"source", req.SourceName,
		"format", f,
		"quality", req.Quality,
		"mode", d.Mode.String(),
		"width", w,
		"height", h,
		"backend", res.Strategy,
		"sharpened", rep.Sharpened,
		"median", rep.Filtered,
		"palette", rep.Palette,
		"reencoded", reencoded,
		"in", len(req.Source),
		"out", len(data),
	)
	return &contracts.EncodedResult{
		Data:           data,
		Format:         f,
		Size:           len(data),
		Width:          w,
		Height:         h,
		Mode:           d.Mode,
		Backend:        res.Strategy,
		Reencoded:      reencoded,
		FormatFallback: fallback,
	}, nil
}
