// Package pngenc writes PNG files with an explicit zlib level and an
// explicit color type, so the caller controls both size and color mode.
package pngenc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"io"

	"github.com/klauspost/compress/zlib"
)

type ColorType int

const (
	// Auto picks Gray, Paletted, RGB or RGBA from the image type and opacity.
	Auto ColorType = iota
	Gray
	RGB
	Paletted
	GrayAlpha
	RGBA
)

func (c ColorType) code() byte {
	switch c {
	case Gray:
		return 0
	case RGB:
		return 2
	case Paletted:
		return 3
	case GrayAlpha:
		return 4
	}
	return 6
}

func (c ColorType) channels() int {
	switch c {
	case Gray, Paletted:
		return 1
	case GrayAlpha:
		return 2
	case RGB:
		return 3
	}
	return 4
}

type Options struct {
	// Level is the zlib level, 0 (store) to 9 (smallest).
	Level     int
	ColorType ColorType
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n")

const idatChunk = 1 << 16

type encoder struct {
	w   *bufio.Writer
	err error
	tmp [8]byte
}

func (e *encoder) writeChunk(name string, data []byte) {
	if e.err != nil {
		return
	}
	binary.BigEndian.PutUint32(e.tmp[:4], uint32(len(data)))
	copy(e.tmp[4:8], name)
	crc := crc32.NewIEEE()
	crc.Write(e.tmp[4:8])
	crc.Write(data)
	if _, e.err = e.w.Write(e.tmp[:8]); e.err != nil {
		return
	}
	if _, e.err = e.w.Write(data); e.err != nil {
		return
	}
	binary.BigEndian.PutUint32(e.tmp[:4], crc.Sum32())
	_, e.err = e.w.Write(e.tmp[:4])
}

// Encode writes m as PNG. A nil Options means level 6 with Auto color type.
func Encode(w io.Writer, m image.Image, o *Options) error {
	opts := Options{Level: 6}
	if o != nil {
		opts = *o
	}
	if opts.Level < 0 || opts.Level > 9 {
		return fmt.Errorf("pngenc: invalid zlib level %d", opts.Level)
	}
	b := m.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return errors.New("pngenc: image has no pixels")
	}

	ct := opts.ColorType
	if ct == Auto {
		ct = detect(m)
	}
	var pal color.Palette
	if ct == Paletted {
		p, ok := m.(*image.Paletted)
		if !ok {
			return fmt.Errorf("pngenc: paletted output needs *image.Paletted, got %T", m)
		}
		if len(p.Palette) == 0 || len(p.Palette) > 256 {
			return fmt.Errorf("pngenc: palette has %d entries", len(p.Palette))
		}
		pal = p.Palette
	}

	e := &encoder{w: bufio.NewWriter(w)}
	if _, e.err = e.w.Write(pngHeader); e.err != nil {
		return e.err
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(b.Dy()))
	ihdr[8] = 8
	ihdr[9] = ct.code()
	e.writeChunk("IHDR", ihdr)

	if pal != nil {
		e.writePalette(pal)
	}

	idat, err := compressRows(m, ct, opts.Level)
	if err != nil {
		return err
	}
	for len(idat) > 0 {
		n := min(len(idat), idatChunk)
		e.writeChunk("IDAT", idat[:n])
		idat = idat[n:]
	}
	e.writeChunk("IEND", nil)
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

func detect(m image.Image) ColorType {
	switch m := m.(type) {
	case *image.Gray:
		return Gray
	case *image.Paletted:
		if len(m.Palette) > 0 && len(m.Palette) <= 256 {
			return Paletted
		}
	}
	if opaque(m) {
		return RGB
	}
	return RGBA
}

func opaque(m image.Image) bool {
	if o, ok := m.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := m.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

func (e *encoder) writePalette(p color.Palette) {
	plte := make([]byte, 3*len(p))
	trns := make([]byte, len(p))
	last := -1
	for i, c := range p {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		plte[3*i], plte[3*i+1], plte[3*i+2] = n.R, n.G, n.B
		trns[i] = n.A
		if n.A != 0xff {
			last = i
		}
	}
	e.writeChunk("PLTE", plte)
	if last >= 0 {
		e.writeChunk("tRNS", trns[:last+1])
	}
}

// rowBytes serializes row y of m in the channel layout of ct.
func rowBytes(m image.Image, ct ColorType, y int, dst []byte) {
	b := m.Bounds()
	switch ct {
	case Gray:
		if g, ok := m.(*image.Gray); ok {
			off := g.PixOffset(b.Min.X, y)
			copy(dst, g.Pix[off:off+b.Dx()])
			return
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			dst[x-b.Min.X] = color.GrayModel.Convert(m.At(x, y)).(color.Gray).Y
		}
	case Paletted:
		p := m.(*image.Paletted)
		off := p.PixOffset(b.Min.X, y)
		copy(dst, p.Pix[off:off+b.Dx()])
	default:
		n, isNRGBA := m.(*image.NRGBA)
		for x := b.Min.X; x < b.Max.X; x++ {
			var c color.NRGBA
			if isNRGBA {
				i := n.PixOffset(x, y)
				c = color.NRGBA{n.Pix[i], n.Pix[i+1], n.Pix[i+2], n.Pix[i+3]}
			} else {
				c = color.NRGBAModel.Convert(m.At(x, y)).(color.NRGBA)
			}
			i := x - b.Min.X
			switch ct {
			case GrayAlpha:
				g := color.GrayModel.Convert(color.NRGBA{c.R, c.G, c.B, 0xff}).(color.Gray).Y
				dst[2*i], dst[2*i+1] = g, c.A
			case RGB:
				dst[3*i], dst[3*i+1], dst[3*i+2] = c.R, c.G, c.B
			default:
				dst[4*i], dst[4*i+1], dst[4*i+2], dst[4*i+3] = c.R, c.G, c.B, c.A
			}
		}
	}
}

func compressRows(m image.Image, ct ColorType, level int) ([]byte, error) {
	var out bytes.Buffer
	zw, err := zlib.NewWriterLevel(&out, level)
	if err != nil {
		return nil, fmt.Errorf("pngenc: zlib writer: %w", err)
	}
	b := m.Bounds()
	bpp := ct.channels()
	n := b.Dx() * bpp

	// cr[0] is the unfiltered row, cr[1..4] the candidate filters.
	var cr [5][]byte
	for i := range cr {
		cr[i] = make([]byte, 1+n)
		cr[i][0] = byte(i)
	}
	prev := make([]byte, 1+n)
	filtered := level > 0 && ct != Paletted

	for y := b.Min.Y; y < b.Max.Y; y++ {
		rowBytes(m, ct, y, cr[0][1:])
		row := cr[0]
		if filtered {
			row = applyFilter(&cr, prev, bpp)
		}
		if _, err := zw.Write(row); err != nil {
			return nil, fmt.Errorf("pngenc: compress row %d: %w", y, err)
		}
		prev, cr[0] = cr[0], prev
		cr[0][0] = 0
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("pngenc: close zlib stream: %w", err)
	}
	return out.Bytes(), nil
}

func abs8(d byte) int {
	if d < 128 {
		return int(d)
	}
	return 256 - int(d)
}

// applyFilter fills cr[1..4] from the raw row in cr[0] and returns the
// candidate with the smallest sum of absolute values.
func applyFilter(cr *[5][]byte, pr []byte, bpp int) []byte {
	cdat0, cdat1, cdat2, cdat3, cdat4 := cr[0][1:], cr[1][1:], cr[2][1:], cr[3][1:], cr[4][1:]
	pdat := pr[1:]
	n := len(cdat0)

	best := 0
	for i := 0; i < n; i++ {
		best += abs8(cdat0[i])
	}
	choice := 0

	// Sub.
	sum := 0
	for i := 0; i < n; i++ {
		var left byte
		if i >= bpp {
			left = cdat0[i-bpp]
		}
		cdat1[i] = cdat0[i] - left
		sum += abs8(cdat1[i])
	}
	if sum < best {
		best, choice = sum, 1
	}

	// Up.
	sum = 0
	for i := 0; i < n; i++ {
		cdat2[i] = cdat0[i] - pdat[i]
		sum += abs8(cdat2[i])
	}
	if sum < best {
		best, choice = sum, 2
	}

	// Average.
	sum = 0
	for i := 0; i < n; i++ {
		left := 0
		if i >= bpp {
			left = int(cdat0[i-bpp])
		}
		cdat3[i] = cdat0[i] - byte((left+int(pdat[i]))/2)
		sum += abs8(cdat3[i])
	}
	if sum < best {
		best, choice = sum, 3
	}

	// Paeth.
	sum = 0
	for i := 0; i < n; i++ {
		var a, c int
		if i >= bpp {
			a = int(cdat0[i-bpp])
			c = int(pdat[i-bpp])
		}
		cdat4[i] = cdat0[i] - paeth(a, int(pdat[i]), c)
		sum += abs8(cdat4[i])
	}
	if sum < best {
		choice = 4
	}
	return cr[choice]
}

func paeth(a, b, c int) byte {
	p := a + b - c
	pa, pb, pc := p-a, p-b, p-c
	if pa < 0 {
		pa = -pa
	}
	if pb < 0 {
		pb = -pb
	}
	if pc < 0 {
		pc = -pc
	}
	if pa <= pb && pa <= pc {
		return byte(a)
	}
	if pb <= pc {
		return byte(b)
	}
	return byte(c)
}
