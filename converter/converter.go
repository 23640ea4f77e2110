// Package converter assembles images into one PDF document. Pages are
// prepared in parallel and written in input order; bilevel pages are stored
// as CCITT G4, everything else as JPEG.
package converter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"docpress/contracts"
	"docpress/pdf_writer"
	"docpress/strategy"
)

const (
	WriterNative = "native"
	WriterGofpdf = "gofpdf"

	DefaultJpegQuality = 90
	DefaultDPI         = 72

	// luminance at or below bilevelLow, or at or above bilevelHigh, counts as
	// black or white ink
	bilevelLow  = 50
	bilevelHigh = 205
)

type Options struct {
	// Writers is the PDF writer order. Unknown names are skipped.
	Writers []string
	// DefaultDPI applies to images without resolution metadata.
	DefaultDPI float64
	// GrayTolerance is the largest channel spread of a gray pixel.
	GrayTolerance int
	// GrayRatio is the share of gray pixels that makes a page grayscale.
	GrayRatio float64
	// BilevelRatio is the share of near-black or near-white pixels that
	// makes a grayscale page bilevel. Values above 1 disable CCITT pages.
	BilevelRatio float64
	// CloseGaps runs a morphological closing on bilevel pages.
	CloseGaps bool
	Workers   int
	MaxPixels int64
	Logger    *slog.Logger
}

func (o *Options) setDefaults() {
	if len(o.Writers) == 0 {
		o.Writers = []string{WriterNative, WriterGofpdf}
	}
	if o.DefaultDPI <= 0 {
		o.DefaultDPI = DefaultDPI
	}
	if o.GrayTolerance <= 0 {
		o.GrayTolerance = 10
	}
	if o.GrayRatio <= 0 {
		o.GrayRatio = 0.98
	}
	if o.BilevelRatio <= 0 {
		o.BilevelRatio = 0.97
	}
	if o.Workers <= 0 {
		o.Workers = max(runtime.NumCPU()-1, 1)
	}
	if o.MaxPixels == 0 {
		o.MaxPixels = 100_000_000
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type writeJob struct {
	pages []*preparedPage
	title string
}

type Converter struct {
	opts  Options
	chain *strategy.Chain[writeJob, []byte]
	log   *slog.Logger
}

var _ contracts.Converter = (*Converter)(nil)

func New(opts Options) *Converter {
	opts.setDefaults()
	c := &Converter{opts: opts, log: opts.Logger.With("component", "converter")}

	writers := map[string]func(writeJob) ([]byte, error){
		WriterNative: writeNative,
		WriterGofpdf: writeGofpdf,
	}
	var steps []strategy.Step[writeJob, []byte]
	seen := make(map[string]bool)
	for _, name := range opts.Writers {
		run, ok := writers[name]
		if !ok || seen[name] {
			c.log.Warn("unknown pdf writer skipped", "writer", name)
			continue
		}
		seen[name] = true
		steps = append(steps, strategy.Step[writeJob, []byte]{Name: name, Run: run})
	}
	c.chain = strategy.New(steps...)
	return c
}

// Writers returns the PDF writer order in effect.
func (c *Converter) Writers() []string { return c.chain.Names() }

func (c *Converter) Convert(ctx context.Context, req contracts.ConversionRequest) (*contracts.ConversionResult, error) {
	if len(req.Images) == 0 {
		return nil, contracts.Invalid("images", nil, "at least one image is required")
	}
	quality := req.JpegQuality
	if quality == 0 {
		quality = DefaultJpegQuality
	}
	if quality < 1 || quality > 100 {
		return nil, contracts.Invalid("quality", quality, "must be between 1 and 100")
	}
	if req.DPI < 0 {
		return nil, contracts.Invalid("dpi", req.DPI, "must not be negative")
	}

	pages := make([]*preparedPage, len(req.Images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, f := range req.Images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := c.preparePage(i, f, quality, req.DPI)
			if err != nil {
				return fmt.Errorf("page %d (%s): %w", i+1, f.Name, err)
			}
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res, err := c.chain.Run(writeJob{pages: pages, title: req.Title})
	if err != nil {
		return nil, err
	}
	for _, a := range res.Failed {
		c.log.Warn("pdf writer failed", "writer", a.Strategy, "err", a.Err)
	}
	c.log.Debug("converted", "pages", len(pages), "writer", res.Strategy, "bytes", len(res.Value))
	return &contracts.ConversionResult{
		PDF:    res.Value,
		Pages:  len(pages),
		Method: res.Strategy,
	}, nil
}

func writeNative(job writeJob) ([]byte, error) {
	var buf bytes.Buffer
	pw, err := pdf_writer.NewPDFWriter(&buf)
	if err != nil {
		return nil, err
	}
	pw.SetTitle(job.title)
	for _, p := range job.pages {
		if err := pw.WriteImage(p.page); err != nil {
			return nil, err
		}
	}
	if err := pw.Finish(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
