package pngenc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func gradient(w, h int, alpha, gray bool) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: uint8(x * 13), G: uint8(y * 7), B: uint8(x ^ y), A: 0xff}
			if gray {
				c.G, c.B = c.R, c.R
			}
			if alpha {
				c.A = uint8(x * 255 / max(w-1, 1))
			}
			m.SetNRGBA(x, y, c)
		}
	}
	return m
}

func sameNRGBA(t *testing.T, got, want image.Image) {
	t.Helper()
	if got.Bounds().Size() != want.Bounds().Size() {
		t.Fatalf("size %v, want %v", got.Bounds().Size(), want.Bounds().Size())
	}
	gb, wb := got.Bounds(), want.Bounds()
	for y := 0; y < wb.Dy(); y++ {
		for x := 0; x < wb.Dx(); x++ {
			g := color.NRGBAModel.Convert(got.At(gb.Min.X+x, gb.Min.Y+y)).(color.NRGBA)
			w := color.NRGBAModel.Convert(want.At(wb.Min.X+x, wb.Min.Y+y)).(color.NRGBA)
			if w.A == 0 {
				g, w = color.NRGBA{}, color.NRGBA{}
			}
			if g != w {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, g, w)
			}
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	pal := color.Palette{
		color.NRGBA{0, 0, 0, 0xff},
		color.NRGBA{0xff, 0, 0, 0x80},
		color.NRGBA{0, 0xff, 0, 0xff},
		color.NRGBA{0, 0, 0, 0},
	}
	paletted := image.NewPaletted(image.Rect(0, 0, 33, 9), pal)
	for i := range paletted.Pix {
		paletted.Pix[i] = uint8(i % len(pal))
	}
	gray := image.NewGray(image.Rect(0, 0, 31, 17))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i * 3)
	}

	cases := []struct {
		name  string
		img   image.Image
		ct    ColorType
		code  byte
		level int
	}{
		{"auto gray", gray, Auto, 0, 6},
		{"auto rgb", gradient(40, 20, false, false), Auto, 2, 9},
		{"auto rgba", gradient(40, 20, true, false), Auto, 6, 6},
		{"auto paletted", paletted, Auto, 3, 9},
		{"gray alpha", gradient(25, 10, true, true), GrayAlpha, 4, 6},
		{"forced gray", gradient(25, 10, false, true), Gray, 0, 1},
		{"stored", gradient(64, 64, true, false), RGBA, 6, 0},
		{"sub image", gradient(50, 50, false, false).SubImage(image.Rect(10, 5, 30, 40)), RGB, 2, 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tc.img, &Options{Level: tc.level, ColorType: tc.ct}); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			data := buf.Bytes()
			// color type byte of IHDR
			if data[25] != tc.code {
				t.Fatalf("color type %d, want %d", data[25], tc.code)
			}
			got, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			sameNRGBA(t, got, tc.img)
		})
	}
}

func TestEncodeLevels(t *testing.T) {
	m := gradient(128, 128, false, false)
	var stored, best bytes.Buffer
	if err := Encode(&stored, m, &Options{Level: 0}); err != nil {
		t.Fatal(err)
	}
	if err := Encode(&best, m, &Options{Level: 9}); err != nil {
		t.Fatal(err)
	}
	if best.Len() >= stored.Len() {
		t.Fatalf("level 9 (%d bytes) not smaller than level 0 (%d bytes)", best.Len(), stored.Len())
	}
}

func TestEncodeErrors(t *testing.T) {
	m := gradient(4, 4, false, false)
	cases := map[string]struct {
		img image.Image
		o   *Options
	}{
		"level":        {m, &Options{Level: 10}},
		"empty":        {image.NewNRGBA(image.Rect(0, 0, 0, 3)), nil},
		"not paletted": {m, &Options{Level: 6, ColorType: Paletted}},
	}
	for name, tc := range cases {
		if err := Encode(&bytes.Buffer{}, tc.img, tc.o); err == nil {
			t.Errorf("%s: no error", name)
		}
	}
}
