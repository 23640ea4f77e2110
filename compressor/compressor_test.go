package compressor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"sync"
	"testing"

	"golang.org/x/image/webp"

	"docpress/contracts"
	"docpress/jpegenc"
	"docpress/pngenc"
)

// texture is a deterministic image with smooth and busy regions. With
// transparentLeft the left half is fully transparent.
func texture(w, h int, transparentLeft bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := uint8(0xff)
			if transparentLeft && x < w/2 {
				a = 0
			}
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x*7 + y*3) % 256),
				G: uint8((x * y) % 251),
				B: uint8(128 + 60*math.Sin(float64(x)/5)*math.Cos(float64(y)/7)),
				A: a,
			})
		}
	}
	return img
}

func pngFixture(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png fixture: %v", err)
	}
	return buf.Bytes()
}

func jpegFixture(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg fixture: %v", err)
	}
	return buf.Bytes()
}

func request(src []byte, name string, target contracts.Format, quality int) contracts.CompressionRequest {
	req := contracts.NewCompressionRequest(src, name)
	req.Target = target
	req.Quality = quality
	return req
}

func mustCompress(t *testing.T, c *Compressor, req contracts.CompressionRequest) *contracts.EncodedResult {
	t.Helper()
	res, err := c.Compress(req)
	if err != nil {
		t.Fatalf("Compress(%s -> %s q%d): %v", req.SourceName, req.Target, req.Quality, err)
	}
	if res.Size != len(res.Data) {
		t.Fatalf("Size = %d, len(Data) = %d", res.Size, len(res.Data))
	}
	return res
}

func TestCompressIdentity(t *testing.T) {
	c := New(Options{})
	gray := image.NewGray(image.Rect(0, 0, 40, 30))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i % 256)
	}

	tests := []struct {
		name   string
		file   string
		src    []byte
		format contracts.Format
		mode   contracts.ColorMode
	}{
		{"rgb png", "in.png", pngFixture(t, texture(64, 48, false)), contracts.FormatPNG, contracts.ModeRGB},
		{"rgba png", "in.png", pngFixture(t, texture(64, 48, true)), contracts.FormatPNG, contracts.ModeRGBA},
		{"gray png", "in.png", pngFixture(t, gray), contracts.FormatPNG, contracts.ModeGray},
		{"rgb jpeg", "in.jpg", jpegFixture(t, texture(64, 48, false)), contracts.FormatJPEG, contracts.ModeRGB},
		{"gray jpeg", "in.jpeg", jpegFixture(t, gray), contracts.FormatJPEG, contracts.ModeGray},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _, err := image.DecodeConfig(bytes.NewReader(tt.src))
			if err != nil {
				t.Fatal(err)
			}
			res := mustCompress(t, c, request(tt.src, tt.file, contracts.FormatOriginal, 100))
			if res.Format != tt.format {
				t.Errorf("Format = %s, want %s", res.Format, tt.format)
			}
			if res.Width != cfg.Width || res.Height != cfg.Height {
				t.Errorf("size = %dx%d, want %dx%d", res.Width, res.Height, cfg.Width, cfg.Height)
			}
			if res.Mode != tt.mode {
				t.Errorf("Mode = %s, want %s", res.Mode, tt.mode)
			}
			if res.Reencoded || res.FormatFallback {
				t.Errorf("Reencoded = %v, FormatFallback = %v", res.Reencoded, res.FormatFallback)
			}
			out, _, err := image.DecodeConfig(bytes.NewReader(res.Data))
			if err != nil {
				t.Fatalf("output does not decode: %v", err)
			}
			if out.Width != cfg.Width || out.Height != cfg.Height {
				t.Errorf("decoded output is %dx%d", out.Width, out.Height)
			}
		})
	}
}

func TestCompressFitWithinBounds(t *testing.T) {
	c := New(Options{})
	src := pngFixture(t, texture(300, 200, false))
	tests := []struct {
		maxW, maxH int
		w, h       int
	}{
		{100, 100, 100, 67},
		{0, 50, 75, 50},
		{150, 0, 150, 100},
		{1000, 1000, 300, 200},
	}
	for _, tt := range tests {
		req := request(src, "in.png", contracts.FormatPNG, 100)
		req.MaxWidth, req.MaxHeight = tt.maxW, tt.maxH
		res := mustCompress(t, c, req)
		if res.Width != tt.w || res.Height != tt.h {
			t.Errorf("fit %dx%d: got %dx%d, want %dx%d", tt.maxW, tt.maxH, res.Width, res.Height, tt.w, tt.h)
		}
	}

	req := request(src, "in.png", contracts.FormatPNG, 100)
	req.MaxWidth, req.MaxHeight, req.MaintainAspect = 50, 120, false
	res := mustCompress(t, c, req)
	if res.Width != 50 || res.Height != 120 {
		t.Errorf("exact resize: got %dx%d, want 50x120", res.Width, res.Height)
	}
}

func TestCompressRotation(t *testing.T) {
	c := New(Options{})
	src := pngFixture(t, texture(60, 40, false))
	tests := []struct {
		deg  int
		w, h int
	}{
		{0, 60, 40},
		{360, 60, 40},
		{-360, 60, 40},
		{90, 40, 60},
		{-90, 40, 60},
		{180, 60, 40},
		{450, 40, 60},
	}
	for _, tt := range tests {
		req := request(src, "in.png", contracts.FormatPNG, 100)
		req.Rotation = tt.deg
		res := mustCompress(t, c, req)
		if res.Width != tt.w || res.Height != tt.h {
			t.Errorf("rotate %d: got %dx%d, want %dx%d", tt.deg, res.Width, res.Height, tt.w, tt.h)
		}
	}

	req := request(src, "in.png", contracts.FormatPNG, 100)
	req.Rotation = 45
	res := mustCompress(t, c, req)
	if res.Width <= 60 || res.Height <= 40 {
		t.Errorf("rotate 45 should grow the canvas, got %dx%d", res.Width, res.Height)
	}
}

func TestTransformGeometryClockwise(t *testing.T) {
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, red)
	img.SetNRGBA(1, 0, blue)

	d := &DecodedImage{Image: img, Mode: contracts.ModeRGB}
	transformGeometry(d, 90, false, false)
	got := d.nrgba()
	if got.Bounds().Dx() != 1 || got.Bounds().Dy() != 2 {
		t.Fatalf("bounds = %v", got.Bounds())
	}
	if got.NRGBAAt(0, 0) != red || got.NRGBAAt(0, 1) != blue {
		t.Errorf("90 clockwise: top %v bottom %v", got.NRGBAAt(0, 0), got.NRGBAAt(0, 1))
	}

	d = &DecodedImage{Image: img, Mode: contracts.ModeRGB}
	transformGeometry(d, 0, true, false)
	got = d.nrgba()
	if got.NRGBAAt(0, 0) != blue || got.NRGBAAt(1, 0) != red {
		t.Errorf("flipH: %v %v", got.NRGBAAt(0, 0), got.NRGBAAt(1, 0))
	}
}

// rotateCW and flip are straightforward pixel maps used as the reference
// for transformGeometry.
func rotateCW(src *image.NRGBA) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < w; y++ {
		for x := 0; x < h; x++ {
			dst.SetNRGBA(x, y, src.NRGBAAt(y, h-1-x))
		}
	}
	return dst
}

func flip(src *image.NRGBA, horizontal bool) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(src.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if horizontal {
				dst.SetNRGBA(x, y, src.NRGBAAt(w-1-x, y))
			} else {
				dst.SetNRGBA(x, y, src.NRGBAAt(x, h-1-y))
			}
		}
	}
	return dst
}

func TestTransformGeometryOrder(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			src.SetNRGBA(x, y, color.NRGBA{uint8(x * 80), uint8(y * 200), uint8(10 + x + 3*y), 255})
		}
	}
	tests := []struct {
		name         string
		deg          int
		flipH, flipV bool
	}{
		{"flipV only", 0, false, true},
		{"flipH and flipV", 0, true, true},
		{"90 then flipH", 90, true, false},
		{"90 then flipV", 90, false, true},
		{"90 then both flips", 90, true, true},
		{"270 then flipH", 270, true, false},
		{"180 then flipV", 180, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := src
			for i := 0; i < tt.deg/90; i++ {
				want = rotateCW(want)
			}
			if tt.flipH {
				want = flip(want, true)
			}
			if tt.flipV {
				want = flip(want, false)
			}

			d := &DecodedImage{Image: src, Mode: contracts.ModeRGB}
			transformGeometry(d, tt.deg, tt.flipH, tt.flipV)
			got := d.nrgba()
			if got.Bounds().Size() != want.Bounds().Size() {
				t.Fatalf("size %v, want %v", got.Bounds().Size(), want.Bounds().Size())
			}
			for y := 0; y < want.Bounds().Dy(); y++ {
				for x := 0; x < want.Bounds().Dx(); x++ {
					if got.NRGBAAt(x, y) != want.NRGBAAt(x, y) {
						t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got.NRGBAAt(x, y), want.NRGBAAt(x, y))
					}
				}
			}
		})
	}
}

func TestAdjustTone(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{100, 200, 28, 77})

	d := &DecodedImage{Image: img, Mode: contracts.ModeRGBA}
	adjustTone(d, 1.5, 1.0)
	if got := d.nrgba().NRGBAAt(0, 0); got != (color.NRGBA{150, 255, 42, 77}) {
		t.Errorf("brightness 1.5: %v", got)
	}

	d = &DecodedImage{Image: img, Mode: contracts.ModeRGBA}
	adjustTone(d, 1.0, 2.0)
	if got := d.nrgba().NRGBAAt(0, 0); got != (color.NRGBA{72, 255, 0, 77}) {
		t.Errorf("contrast 2.0: %v", got)
	}

	d = &DecodedImage{Image: img, Mode: contracts.ModeRGBA}
	adjustTone(d, 1.0, 1.0)
	if d.Image != image.Image(img) {
		t.Error("identity multipliers replaced the buffer")
	}

	// brightness is clamped before contrast sees the value, so the two
	// passes do not commute
	both := []struct {
		in                   color.NRGBA
		brightness, contrast float64
		want                 color.NRGBA
	}{
		{color.NRGBA{100, 200, 28, 255}, 0.5, 2.0, color.NRGBA{0, 72, 0, 255}},
		{color.NRGBA{200, 60, 10, 255}, 1.5, 0.5, color.NRGBA{192, 109, 72, 255}},
	}
	for _, tc := range both {
		px := image.NewNRGBA(image.Rect(0, 0, 1, 1))
		px.SetNRGBA(0, 0, tc.in)
		d := &DecodedImage{Image: px, Mode: contracts.ModeRGB}
		adjustTone(d, tc.brightness, tc.contrast)
		if got := d.nrgba().NRGBAAt(0, 0); got != tc.want {
			t.Errorf("brightness %.1f contrast %.1f on %v: got %v, want %v", tc.brightness, tc.contrast, tc.in, got, tc.want)
		}
	}
}

func TestResizeSharpenBoundary(t *testing.T) {
	c := New(Options{})
	src := pngFixture(t, texture(100, 50, false))
	tests := []struct {
		maxWidth  int
		width     int
		sharpened bool
	}{
		{100, 100, false},
		{90, 90, false},
		{80, 80, false},
		{79, 79, true},
		{40, 40, true},
	}
	for _, tt := range tests {
		req := request(src, "in.png", contracts.FormatPNG, 100)
		req.MaxWidth = tt.maxWidth
		d, rep, err := c.prepare(req, contracts.FormatPNG)
		if err != nil {
			t.Fatalf("maxWidth %d: %v", tt.maxWidth, err)
		}
		if w, _ := d.Size(); w != tt.width {
			t.Errorf("maxWidth %d: width %d, want %d", tt.maxWidth, w, tt.width)
		}
		if rep.Sharpened != tt.sharpened {
			t.Errorf("maxWidth %d: sharpened %v, want %v", tt.maxWidth, rep.Sharpened, tt.sharpened)
		}
	}
}

func TestCompressJPEGSizeFollowsQuality(t *testing.T) {
	c := New(Options{})
	src := pngFixture(t, texture(160, 120, false))
	var prev int
	for _, q := range []int{30, 50, 70} {
		res := mustCompress(t, c, request(src, "in.png", contracts.FormatJPEG, q))
		if res.Size < prev {
			t.Errorf("q%d produced %d bytes, less than the lower quality's %d", q, res.Size, prev)
		}
		prev = res.Size
	}
}

func TestCompressRGBAToJPEGExample(t *testing.T) {
	c := New(Options{})
	src := pngFixture(t, texture(1000, 800, true))
	req := request(src, "photo.png", contracts.FormatJPEG, 60)
	req.MaxWidth = 400

	res := mustCompress(t, c, req)
	if res.Width != 400 || res.Height != 320 {
		t.Fatalf("size = %dx%d, want 400x320", res.Width, res.Height)
	}
	if res.Mode != contracts.ModeRGB || res.Format != contracts.FormatJPEG {
		t.Fatalf("mode %s format %s", res.Mode, res.Format)
	}

	out, err := jpeg.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	ycc, ok := out.(*image.YCbCr)
	if !ok {
		t.Fatalf("decoded %T, want *image.YCbCr", out)
	}
	if ycc.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		t.Errorf("subsampling = %v, want 4:2:0", ycc.SubsampleRatio)
	}
	r, g, b, _ := out.At(40, 160).RGBA()
	if r>>8 < 235 || g>>8 < 235 || b>>8 < 235 {
		t.Errorf("transparent region not composited onto white: %d %d %d", r>>8, g>>8, b>>8)
	}

	d, rep, err := c.prepare(req, contracts.FormatJPEG)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Filtered || !rep.Sharpened {
		t.Errorf("stages: %+v, want median and unsharp", rep)
	}
	var baseline bytes.Buffer
	err = jpegenc.Encode(&baseline, d.Image, &jpegenc.Options{Quality: 60, Progressive: true, Tier: jpegenc.TierStandard})
	if err != nil {
		t.Fatal(err)
	}
	if res.Size > baseline.Len() {
		t.Errorf("output %d bytes is larger than the single-pass baseline %d", res.Size, baseline.Len())
	}
}

func TestReencodeNeverGrows(t *testing.T) {
	c := New(Options{})
	d := &DecodedImage{Image: texture(96, 64, false), Mode: contracts.ModeRGB}
	for _, q := range []int{20, 60, 90} {
		first, err := nativeBackend{}.Encode(d, DeriveParameters(contracts.FormatJPEG, q, d.Mode))
		if err != nil {
			t.Fatal(err)
		}
		out, won := c.reencode(nativeBackend{}, first, q)
		if len(out) > len(first) {
			t.Errorf("q%d: re-encode returned %d bytes, first pass %d", q, len(out), len(first))
		}
		if won != (len(out) < len(first)) {
			t.Errorf("q%d: won = %v with %d vs %d bytes", q, won, len(out), len(first))
		}
	}

	first := []byte("not a jpeg")
	if out, won := c.reencode(nativeBackend{}, first, 50); !bytes.Equal(out, first) || won {
		t.Error("unreadable first pass should be kept")
	}
	good, _ := nativeBackend{}.Encode(d, DeriveParameters(contracts.FormatJPEG, 96, d.Mode))
	if out, won := c.reencode(nativeBackend{}, good, 96); !bytes.Equal(out, good) || won {
		t.Error("quality 96 must skip the second pass")
	}
}

func TestCompressLosslessWebP(t *testing.T) {
	c := New(Options{})
	src := pngFixture(t, texture(48, 32, false))
	req := request(src, "in.png", contracts.FormatWebP, 95)
	req.Rotation = 90

	res := mustCompress(t, c, req)
	if res.Format != contracts.FormatWebP || res.Backend != NativeBackend {
		t.Fatalf("format %s backend %s", res.Format, res.Backend)
	}
	got, err := webp.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode webp: %v", err)
	}

	d, _, err := c.prepare(req, contracts.FormatWebP)
	if err != nil {
		t.Fatal(err)
	}
	want := d.nrgba()
	if got.Bounds().Size() != want.Bounds().Size() {
		t.Fatalf("bounds %v, want %v", got.Bounds(), want.Bounds())
	}
	gb := got.Bounds()
	for y := 0; y < want.Bounds().Dy(); y++ {
		for x := 0; x < want.Bounds().Dx(); x++ {
			g := color.NRGBAModel.Convert(got.At(gb.Min.X+x, gb.Min.Y+y)).(color.NRGBA)
			if w := want.NRGBAAt(x, y); g != w {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, g, w)
			}
		}
	}
}

func TestCompressPNGQuantizes(t *testing.T) {
	c := New(Options{})

	res := mustCompress(t, c, request(pngFixture(t, texture(64, 64, false)), "in.png", contracts.FormatPNG, 50))
	if res.Mode != contracts.ModePalette {
		t.Fatalf("Mode = %s, want P", res.Mode)
	}
	out, err := png.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatal(err)
	}
	if p, ok := out.(*image.Paletted); !ok || len(p.Palette) > paletteSize {
		t.Errorf("decoded %T", out)
	}

	res = mustCompress(t, c, request(pngFixture(t, texture(64, 64, true)), "in.png", contracts.FormatPNG, 50))
	if res.Mode != contracts.ModeRGBA {
		t.Fatalf("Mode = %s, want RGBA", res.Mode)
	}
	out, err = png.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, a := out.At(0, 0).RGBA(); a != 0 {
		t.Errorf("alpha at (0,0) = %d, want 0", a)
	}
	if _, _, _, a := out.At(63, 0).RGBA(); a != 0xffff {
		t.Errorf("alpha at (63,0) = %d, want opaque", a)
	}
}

func TestQuantizeStrategies(t *testing.T) {
	few := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(few.Pix); i += 4 {
		v := uint8((i / 4) % 8 * 32)
		few.Pix[i], few.Pix[i+1], few.Pix[i+2], few.Pix[i+3] = v, 255-v, v/2, 255
	}
	d := &DecodedImage{Image: few, Mode: contracts.ModeRGB}
	p := DeriveParameters(contracts.FormatPNG, 50, d.Mode)
	name, err := quantize(d, p)
	if err != nil {
		t.Fatal(err)
	}
	if name != "exact" {
		t.Errorf("strategy = %q, want exact", name)
	}
	pm, ok := d.Image.(*image.Paletted)
	if !ok {
		t.Fatalf("image is %T", d.Image)
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			want := few.NRGBAAt(x, y)
			if got := color.NRGBAModel.Convert(pm.At(x, y)).(color.NRGBA); got != want {
				t.Fatalf("exact palette changed (%d,%d): %v, want %v", x, y, got, want)
			}
		}
	}

	d = &DecodedImage{Image: texture(64, 64, true), Mode: contracts.ModeRGBA}
	name, err = quantize(d, p)
	if err != nil {
		t.Fatal(err)
	}
	if name != "kmeans" {
		t.Errorf("strategy = %q, want kmeans", name)
	}
	if d.Mode != contracts.ModeRGBA {
		t.Errorf("RGBA became %s", d.Mode)
	}
	if got := d.nrgba().NRGBAAt(0, 5).A; got != 0 {
		t.Errorf("alpha not reattached: %d", got)
	}
}

func TestCompressLASource(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for i := 0; i < len(img.Pix); i += 4 {
		v := uint8(i)
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, uint8(255-i%200)
	}
	var buf bytes.Buffer
	if err := pngenc.Encode(&buf, img, &pngenc.Options{Level: 6, ColorType: pngenc.GrayAlpha}); err != nil {
		t.Fatal(err)
	}

	c := New(Options{})
	res := mustCompress(t, c, request(buf.Bytes(), "la.png", contracts.FormatOriginal, 100))
	if res.Mode != contracts.ModeLA {
		t.Fatalf("Mode = %s, want LA", res.Mode)
	}
	if ct := pngColorType(res.Data); ct != 4 {
		t.Errorf("IHDR color type = %d, want 4", ct)
	}

	res = mustCompress(t, c, request(buf.Bytes(), "la.png", contracts.FormatJPEG, 90))
	if res.Mode != contracts.ModeRGB {
		t.Errorf("LA to jpeg: Mode = %s, want RGB", res.Mode)
	}
}

func TestCompressPalettedSourceToJPEG(t *testing.T) {
	pal := color.Palette{color.NRGBA{0, 0, 0, 0}, color.NRGBA{200, 30, 30, 255}}
	img := image.NewPaletted(image.Rect(0, 0, 32, 32), pal)
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 2)
	}
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	res := mustCompress(t, New(Options{}), request(buf.Bytes(), "a.gif", contracts.FormatJPEG, 80))
	if res.Mode != contracts.ModeRGB {
		t.Errorf("Mode = %s, want RGB", res.Mode)
	}
}

func TestCompressErrors(t *testing.T) {
	c := New(Options{})
	good := pngFixture(t, texture(8, 8, false))

	var de *contracts.DecodeError
	for _, src := range [][]byte{nil, []byte("definitely not an image"), good[:40]} {
		if _, err := c.Compress(request(src, "x.png", contracts.FormatJPEG, 80)); !errors.As(err, &de) {
			t.Errorf("Compress(%d bytes) err = %v, want DecodeError", len(src), err)
		}
	}

	mutate := []struct {
		field string
		fn    func(*contracts.CompressionRequest)
	}{
		{"quality", func(r *contracts.CompressionRequest) { r.Quality = 0 }},
		{"quality", func(r *contracts.CompressionRequest) { r.Quality = 101 }},
		{"brightness", func(r *contracts.CompressionRequest) { r.Brightness = 0 }},
		{"contrast", func(r *contracts.CompressionRequest) { r.Contrast = -1 }},
		{"contrast", func(r *contracts.CompressionRequest) { r.Contrast = math.NaN() }},
		{"maxWidth", func(r *contracts.CompressionRequest) { r.MaxWidth = -5 }},
		{"maxHeight", func(r *contracts.CompressionRequest) { r.MaxHeight = -1 }},
	}
	for _, m := range mutate {
		req := request(good, "x.png", contracts.FormatJPEG, 80)
		m.fn(&req)
		_, err := c.Compress(req)
		var ve *contracts.ValidationError
		if !errors.As(err, &ve) || ve.Field != m.field {
			t.Errorf("%s: err = %v, want ValidationError", m.field, err)
		}
	}

	small := New(Options{MaxPixels: 10})
	var ve *contracts.ValidationError
	if _, err := small.Compress(request(good, "x.png", contracts.FormatPNG, 80)); !errors.As(err, &ve) {
		t.Errorf("pixel limit: err = %v, want ValidationError", err)
	}

	var ee *contracts.EncodeError
	if err := checkCompatible(contracts.FormatJPEG, contracts.ModeRGBA); !errors.As(err, &ee) {
		t.Errorf("checkCompatible: %v", err)
	}
	if err := checkCompatible(contracts.FormatPNG, contracts.ModeRGBA); err != nil {
		t.Errorf("png accepts rgba: %v", err)
	}
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		target   contracts.Format
		name     string
		want     contracts.Format
		fallback bool
	}{
		{contracts.FormatOriginal, "a.JPG", contracts.FormatJPEG, false},
		{contracts.FormatOriginal, "a.png", contracts.FormatPNG, false},
		{contracts.FormatOriginal, "a.webp", contracts.FormatWebP, false},
		{contracts.FormatOriginal, "a.gif", contracts.FormatJPEG, true},
		{contracts.FormatOriginal, "noext", contracts.FormatJPEG, true},
		{"", "a.png", contracts.FormatPNG, false},
		{"jpg", "a.png", contracts.FormatJPEG, false},
		{contracts.FormatPNG, "a.jpg", contracts.FormatPNG, false},
		{"bmp", "a.png", contracts.FormatJPEG, true},
	}
	for _, tt := range tests {
		f, fb := resolveFormat(tt.target, tt.name)
		if f != tt.want || fb != tt.fallback {
			t.Errorf("resolveFormat(%q, %q) = %s, %v; want %s, %v", tt.target, tt.name, f, fb, tt.want, tt.fallback)
		}
	}

	res := mustCompress(t, New(Options{}), request(pngFixture(t, texture(8, 8, false)), "a.png", "tiff", 80))
	if !res.FormatFallback || res.Format != contracts.FormatJPEG {
		t.Errorf("fallback result: %s %v", res.Format, res.FormatFallback)
	}
}

func TestDeriveParameters(t *testing.T) {
	tests := []struct {
		name string
		f    contracts.Format
		q    int
		mode contracts.ColorMode
		want EncodeParameters
	}{
		{"jpeg 95", contracts.FormatJPEG, 95, contracts.ModeRGB, EncodeParameters{
			Format: contracts.FormatJPEG, Quality: 95, Subsampling: jpegenc.Subsample444,
			Progressive: true, StripMetadata: true, QuantTier: jpegenc.TierHigh}},
		{"jpeg 85", contracts.FormatJPEG, 85, contracts.ModeRGB, EncodeParameters{
			Format: contracts.FormatJPEG, Quality: 85, Subsampling: jpegenc.Subsample422,
			Progressive: true, StripMetadata: true, QuantTier: jpegenc.TierHigh}},
		{"jpeg 80", contracts.FormatJPEG, 80, contracts.ModeGray, EncodeParameters{
			Format: contracts.FormatJPEG, Quality: 80, Subsampling: jpegenc.Subsample422,
			Progressive: true, StripMetadata: true, QuantTier: jpegenc.TierLow}},
		{"jpeg 60", contracts.FormatJPEG, 60, contracts.ModeRGB, EncodeParameters{
			Format: contracts.FormatJPEG, Quality: 60, Subsampling: jpegenc.Subsample420,
			Progressive: true, StripMetadata: true, QuantTier: jpegenc.TierLow}},
		{"png 100", contracts.FormatPNG, 100, contracts.ModeRGB, EncodeParameters{
			Format: contracts.FormatPNG, Quality: 100, StripMetadata: true}},
		{"png 50 rgb", contracts.FormatPNG, 50, contracts.ModeRGB, EncodeParameters{
			Format: contracts.FormatPNG, Quality: 50, StripMetadata: true, CompressionLevel: 4,
			Quantize: true, PaletteSize: 256, Dither: true}},
		{"png 50 gray", contracts.FormatPNG, 50, contracts.ModeGray, EncodeParameters{
			Format: contracts.FormatPNG, Quality: 50, StripMetadata: true, CompressionLevel: 4}},
		{"png 10 rgba", contracts.FormatPNG, 10, contracts.ModeRGBA, EncodeParameters{
			Format: contracts.FormatPNG, Quality: 10, StripMetadata: true, CompressionLevel: 8,
			Quantize: true, PaletteSize: 256, Dither: true}},
		{"webp 95", contracts.FormatWebP, 95, contracts.ModeRGBA, EncodeParameters{
			Format: contracts.FormatWebP, Quality: 95, StripMetadata: true, Lossless: true, Method: 6, Exact: true}},
		{"webp 90", contracts.FormatWebP, 90, contracts.ModeRGB, EncodeParameters{
			Format: contracts.FormatWebP, Quality: 90, StripMetadata: true, Method: 6, Exact: true}},
		{"webp 60", contracts.FormatWebP, 60, contracts.ModeRGB, EncodeParameters{
			Format: contracts.FormatWebP, Quality: 60, StripMetadata: true, Method: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveParameters(tt.f, tt.q, tt.mode); got != tt.want {
				t.Errorf("got %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestBackendOrder(t *testing.T) {
	got := backendOrder([]string{"missing", NativeBackend, NativeBackend})
	if len(got) != 1 || got[0] != NativeBackend {
		t.Errorf("backendOrder = %v", got)
	}
	c := New(Options{Backends: []string{"missing"}})
	if names := c.Backends(); names[len(names)-1] != NativeBackend {
		t.Errorf("native must be last: %v", names)
	}
}

func TestCompressConcurrent(t *testing.T) {
	c := New(Options{})
	src := pngFixture(t, texture(80, 60, false))
	want := mustCompress(t, c, request(src, "a.png", contracts.FormatJPEG, 70))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Compress(request(src, "a.png", contracts.FormatJPEG, 70))
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(res.Data, want.Data) {
				errs <- errors.New("concurrent output differs")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
