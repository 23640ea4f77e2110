// Package tools exposes every utility as a contracts.Tool and keeps them in a
// lookup table keyed by tool name.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"docpress/compressor"
	"docpress/contracts"
	"docpress/converter"
	"docpress/pdftools"
)

// ImageCompressor runs the transform-and-compress pipeline.
type ImageCompressor interface {
	Compress(req contracts.CompressionRequest) (*contracts.EncodedResult, error)
}

type Dependencies struct {
	Compressor ImageCompressor
	Converter  contracts.Converter
	// JpegQuality is the jpg-to-pdf quality when the caller gives none.
	JpegQuality int
	// Watermark holds the defaults for parameters the caller leaves out.
	Watermark pdftools.WatermarkOptions
	Logger    *slog.Logger
	// Now dates signature stamps.
	Now func() time.Time
}

type Registry struct {
	tools map[string]contracts.Tool
	log   *slog.Logger
}

// NewRegistry builds the full tool table. Missing dependencies are replaced
// by components with default options.
func NewRegistry(deps Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Compressor == nil {
		deps.Compressor = compressor.New(compressor.Options{Logger: deps.Logger})
	}
	if deps.Converter == nil {
		deps.Converter = converter.New(converter.Options{Logger: deps.Logger})
	}
	if deps.JpegQuality == 0 {
		deps.JpegQuality = converter.DefaultJpegQuality
	}
	if deps.Watermark.Text == "" {
		deps.Watermark = pdftools.DefaultWatermarkOptions()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := &Registry{
		tools: make(map[string]contracts.Tool),
		log:   deps.Logger.With("component", "tools"),
	}
	for _, group := range [][]contracts.Tool{
		imageTools(deps),
		pdfTools(deps),
		textTools(),
	} {
		for _, t := range group {
			r.Register(t)
		}
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t contracts.Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Lookup(name string) (contracts.Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", contracts.ErrUnknownTool, name)
	}
	return t, nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Run(ctx context.Context, name string, in contracts.ToolInput) (*contracts.ToolOutput, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := t.Run(ctx, in)
	if err != nil {
		r.log.Debug("tool failed", "tool", name, "files", len(in.Files), "err", err)
		return nil, err
	}
	r.log.Debug("tool finished", "tool", name, "output", out.FileName, "bytes", len(out.Data), "method", out.Meta["method"])
	return out, nil
}
