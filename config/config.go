// Package config loads docpress settings from an optional YAML file and
// DOCPRESS_* environment variables. Variables may come from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"docpress/compressor"
	"docpress/contracts"
	"docpress/converter"
	"docpress/pdftools"
)

const (
	DefaultFile = "config.yaml"
	envPrefix   = "DOCPRESS_"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CompressorConfig struct {
	Backends  []string `yaml:"backends"`
	MaxPixels int64    `yaml:"max_pixels"`
}

type ConverterConfig struct {
	JpegQuality  int      `yaml:"jpeg_quality"`
	DefaultDPI   float64  `yaml:"default_dpi"`
	Writers      []string `yaml:"writers"`
	BilevelRatio float64  `yaml:"bilevel_ratio"`
	CloseGaps    bool     `yaml:"close_gaps"`
	Workers      int      `yaml:"workers"`
}

type WatermarkConfig struct {
	Text     string  `yaml:"text"`
	Opacity  float64 `yaml:"opacity"`
	Rotation int     `yaml:"rotation"`
	FontSize int     `yaml:"font_size"`
	Color    string  `yaml:"color"`
}

type PDFConfig struct {
	Watermark WatermarkConfig `yaml:"watermark"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Workers    int              `yaml:"workers"`
	OutputDir  string           `yaml:"output_dir"`
	Compressor CompressorConfig `yaml:"compressor"`
	Converter  ConverterConfig  `yaml:"converter"`
	PDF        PDFConfig        `yaml:"pdf"`
}

func Default() *Config {
	wm := pdftools.DefaultWatermarkOptions()
	return &Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		Workers:   max(runtime.NumCPU()-1, 1),
		OutputDir: ".",
		Compressor: CompressorConfig{
			MaxPixels: compressor.DefaultMaxPixels,
		},
		Converter: ConverterConfig{
			JpegQuality:  converter.DefaultJpegQuality,
			DefaultDPI:   converter.DefaultDPI,
			Writers:      []string{converter.WriterNative, converter.WriterGofpdf},
			BilevelRatio: 0.97,
		},
		PDF: PDFConfig{Watermark: WatermarkConfig{
			Text:     wm.Text,
			Opacity:  wm.Opacity,
			Rotation: wm.Rotation,
			FontSize: wm.FontSize,
			Color:    wm.Color,
		}},
	}
}

// Load builds the configuration in three layers: defaults, the YAML file at
// path, then environment variables. An empty path reads config.yaml when it
// exists. envFiles are loaded into the process environment first; with none
// given, .env is used when present. Variables already set are not replaced.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles); err != nil {
		return nil, err
	}

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)
	c.OutputDir = envString("OUTPUT_DIR", c.OutputDir)
	c.Compressor.Backends = envList("BACKENDS", c.Compressor.Backends)
	c.Converter.Writers = envList("PDF_WRITERS", c.Converter.Writers)
	c.PDF.Watermark.Text = envString("WATERMARK_TEXT", c.PDF.Watermark.Text)

	var err error
	if c.Workers, err = envInt("WORKERS", c.Workers); err != nil {
		return err
	}
	if c.Compressor.MaxPixels, err = envInt64("MAX_PIXELS", c.Compressor.MaxPixels); err != nil {
		return err
	}
	if c.Converter.JpegQuality, err = envInt("JPEG_QUALITY", c.Converter.JpegQuality); err != nil {
		return err
	}
	if c.Converter.DefaultDPI, err = envFloat("DEFAULT_DPI", c.Converter.DefaultDPI); err != nil {
		return err
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envList(key string, def []string) []string {
	v := envString(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	v := envString(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func envInt64(key string, def int64) (int64, error) {
	v := envString(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := envString(key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return f, nil
}

func (c *Config) Validate() error {
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		return contracts.Invalid("log.level", c.Log.Level, "must be debug, info, warn or error")
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return contracts.Invalid("log.format", c.Log.Format, "must be text or json")
	}
	if c.Workers < 1 {
		return contracts.Invalid("workers", c.Workers, "must be at least 1")
	}
	if c.Converter.JpegQuality < 1 || c.Converter.JpegQuality > 100 {
		return contracts.Invalid("converter.jpeg_quality", c.Converter.JpegQuality, "must be between 1 and 100")
	}
	if c.Converter.DefaultDPI <= 0 {
		return contracts.Invalid("converter.default_dpi", c.Converter.DefaultDPI, "must be positive")
	}
	if c.Converter.Workers < 0 {
		return contracts.Invalid("converter.workers", c.Converter.Workers, "must not be negative")
	}
	return nil
}

func (c *Config) CompressorOptions(log *slog.Logger) compressor.Options {
	return compressor.Options{
		Backends:  c.Compressor.Backends,
		MaxPixels: c.Compressor.MaxPixels,
		Logger:    log,
	}
}

func (c *Config) ConverterOptions(log *slog.Logger) converter.Options {
	return converter.Options{
		Writers:      c.Converter.Writers,
		DefaultDPI:   c.Converter.DefaultDPI,
		BilevelRatio: c.Converter.BilevelRatio,
		CloseGaps:    c.Converter.CloseGaps,
		Workers:      c.Converter.Workers,
		MaxPixels:    c.Compressor.MaxPixels,
		Logger:       log,
	}
}

func (c *Config) WatermarkOptions() pdftools.WatermarkOptions {
	wm := c.PDF.Watermark
	return pdftools.WatermarkOptions{
		Text:     wm.Text,
		Opacity:  wm.Opacity,
		Rotation: wm.Rotation,
		FontSize: wm.FontSize,
		Color:    wm.Color,
	}
}
