package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"docpress/contracts"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("got %+v, want defaults", cfg)
	}
	if cfg.Workers < 1 {
		t.Fatalf("workers %d", cfg.Workers)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docpress.yaml", `
log:
  level: debug
  format: json
workers: 3
output_dir: out
compressor:
  backends: [vips, native]
  max_pixels: 5000
converter:
  jpeg_quality: 75
  default_dpi: 300
  writers: [gofpdf]
  close_gaps: true
pdf:
  watermark:
    text: CONFIDENTIAL
    font_size: 40
`)
	cfg, err := Load(path, writeFile(t, dir, "empty.env", ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log != (LogConfig{Level: "debug", Format: "json"}) || cfg.Workers != 3 || cfg.OutputDir != "out" {
		t.Fatalf("top level: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Compressor, CompressorConfig{Backends: []string{"vips", "native"}, MaxPixels: 5000}) {
		t.Fatalf("compressor: %+v", cfg.Compressor)
	}
	conv := cfg.Converter
	if conv.JpegQuality != 75 || conv.DefaultDPI != 300 || !conv.CloseGaps || !reflect.DeepEqual(conv.Writers, []string{"gofpdf"}) {
		t.Fatalf("converter: %+v", conv)
	}
	// keys missing from the file keep their defaults
	if conv.BilevelRatio != 0.97 {
		t.Fatalf("bilevel ratio %v", conv.BilevelRatio)
	}
	wm := cfg.WatermarkOptions()
	if wm.Text != "CONFIDENTIAL" || wm.FontSize != 40 || wm.Opacity != 0.3 {
		t.Fatalf("watermark: %+v", wm)
	}

	opts := cfg.ConverterOptions(nil)
	if opts.MaxPixels != 5000 || opts.DefaultDPI != 300 || !opts.CloseGaps {
		t.Fatalf("converter options: %+v", opts)
	}
	if c := cfg.CompressorOptions(nil); c.MaxPixels != 5000 || len(c.Backends) != 2 {
		t.Fatalf("compressor options: %+v", c)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOCPRESS_WORKERS", "2")
	t.Setenv("DOCPRESS_BACKENDS", "imagick, native,")
	t.Setenv("DOCPRESS_DEFAULT_DPI", "150")
	// the process environment wins over the .env file
	t.Setenv("DOCPRESS_LOG_LEVEL", "warn")
	env := writeFile(t, dir, "test.env", "DOCPRESS_LOG_LEVEL=debug\nDOCPRESS_JPEG_QUALITY=60\n")
	t.Cleanup(func() { os.Unsetenv("DOCPRESS_JPEG_QUALITY") })

	cfg, err := Load(writeFile(t, dir, "c.yaml", "workers: 9\n"), env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 2 || cfg.Converter.DefaultDPI != 150 || cfg.Log.Level != "warn" || cfg.Converter.JpegQuality != 60 {
		t.Fatalf("got %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Compressor.Backends, []string{"imagick", "native"}) {
		t.Fatalf("backends %v", cfg.Compressor.Backends)
	}

	t.Setenv("DOCPRESS_WORKERS", "many")
	if _, err := Load(filepath.Join(dir, "c.yaml"), env); err == nil || !strings.Contains(err.Error(), "DOCPRESS_WORKERS") {
		t.Fatalf("got %v, want DOCPRESS_WORKERS error", err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	empty := writeFile(t, dir, "empty.env", "")

	if _, err := Load(filepath.Join(dir, "missing.yaml"), empty); err == nil {
		t.Fatal("missing explicit file accepted")
	}
	if _, err := Load(writeFile(t, dir, "bad.yaml", "workers: [1"), empty); err == nil {
		t.Fatal("malformed yaml accepted")
	}
	if _, err := Load("", filepath.Join(dir, "missing.env")); err == nil {
		t.Fatal("missing env file accepted")
	}

	invalid := map[string]string{
		"log.level":              "log:\n  level: loud\n",
		"log.format":             "log:\n  format: xml\n",
		"workers":                "workers: 0\n",
		"converter.jpeg_quality": "converter:\n  jpeg_quality: 101\n",
		"converter.default_dpi":  "converter:\n  default_dpi: -1\n",
	}
	for field, body := range invalid {
		_, err := Load(writeFile(t, dir, "v.yaml", body), empty)
		var ve *contracts.ValidationError
		if !errors.As(err, &ve) || ve.Field != field {
			t.Errorf("%s: got %v", field, err)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":1`) {
		t.Fatalf("json output %q", out)
	}

	buf.Reset()
	NewLogger(LogConfig{Level: "nonsense"}, &buf).Info("text", "k", "v")
	if !strings.Contains(buf.String(), "msg=text k=v") {
		t.Fatalf("text output %q", buf.String())
	}
}
