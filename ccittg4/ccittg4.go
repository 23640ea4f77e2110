// Package ccittg4 encodes bilevel rasters as CCITT Group 4 (T.6) streams,
// the form PDF stores under /CCITTFaxDecode with /K -1.
package ccittg4

import (
	"bytes"
	"errors"
	"fmt"
	"image"
)

// BitWriter packs codes MSB first.
type BitWriter struct {
	buf   bytes.Buffer
	acc   uint64
	count uint
}

func (bw *BitWriter) writeCode(c code) {
	bw.acc = bw.acc<<c.n | uint64(c.bits)
	bw.count += c.n
	for bw.count >= 8 {
		bw.count -= 8
		bw.buf.WriteByte(byte(bw.acc >> bw.count))
	}
	bw.acc &= 1<<bw.count - 1
}

// Flush pads the last byte with zero bits.
func (bw *BitWriter) Flush() {
	if bw.count > 0 {
		bw.buf.WriteByte(byte(bw.acc << (8 - bw.count)))
		bw.acc, bw.count = 0, 0
	}
}

// WriteEOFB writes the end-of-facsimile-block (two EOL codes) and pads.
func (bw *BitWriter) WriteEOFB() {
	bw.writeCode(eol)
	bw.writeCode(eol)
	bw.Flush()
}

func (bw *BitWriter) Bytes() []byte { return bw.buf.Bytes() }

func (bw *BitWriter) writeRun(run int, black bool) {
	t := &whiteRuns
	if black {
		t = &blackRuns
	}
	for run >= 2560 {
		bw.writeCode(extended[len(extended)-1])
		run -= 2560
	}
	if run >= 64 {
		m := run / 64 * 64
		if m <= 1728 {
			bw.writeCode(t.makeup[m/64-1])
		} else {
			bw.writeCode(extended[(m-1792)/64])
		}
		run -= m
	}
	bw.writeCode(t.term[run])
}

var ErrInvalidSize = errors.New("ccittg4: invalid image size")

// Binarize maps gray samples below threshold to black (true).
func Binarize(gray []byte, width, height int, threshold uint8) ([]bool, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidSize
	}
	if len(gray) != width*height {
		return nil, fmt.Errorf("ccittg4: gray data has %d bytes, want %d", len(gray), width*height)
	}
	out := make([]bool, len(gray))
	for i, v := range gray {
		out[i] = v < threshold
	}
	return out, nil
}

// EncodeGray thresholds an 8-bit gray raster and encodes it.
func EncodeGray(gray []byte, width, height int, threshold uint8) ([]byte, error) {
	px, err := Binarize(gray, width, height, threshold)
	if err != nil {
		return nil, err
	}
	return Encode(px, width, height)
}

// EncodeImage is EncodeGray for an *image.Gray of any stride or origin.
func EncodeImage(m *image.Gray, threshold uint8) ([]byte, error) {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrInvalidSize
	}
	gray := make([]byte, w*h)
	for y := 0; y < h; y++ {
		off := m.PixOffset(b.Min.X, b.Min.Y+y)
		copy(gray[y*w:(y+1)*w], m.Pix[off:off+w])
	}
	return EncodeGray(gray, w, h, threshold)
}

// Encode writes one T.6 stream for black (true) / white pixels, row-major.
// The stream ends with EOFB.
func Encode(black []bool, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidSize
	}
	if len(black) != width*height {
		return nil, fmt.Errorf("ccittg4: got %d pixels, want %d", len(black), width*height)
	}
	bw := &BitWriter{}
	ref := make([]bool, width) // imaginary all-white line
	for y := 0; y < height; y++ {
		cur := black[y*width : (y+1)*width]
		encodeLine(bw, ref, cur)
		ref = cur
	}
	bw.WriteEOFB()
	return bw.Bytes(), nil
}

func colorAt(line []bool, i int) bool {
	if i < 0 || i >= len(line) {
		return false
	}
	return line[i]
}

// nextChange returns the first changing element at or after start, or the
// line width. The pixel before the line is white.
func nextChange(line []bool, start int) int {
	if start < 0 {
		start = 0
	}
	for i := start; i < len(line); i++ {
		if line[i] != colorAt(line, i-1) {
			return i
		}
	}
	return len(line)
}

func encodeLine(bw *BitWriter, ref, cur []bool) {
	width := len(cur)
	a0 := -1
	black := false
	for a0 < width {
		a1 := nextChange(cur, a0+1)
		b1 := nextChange(ref, a0+1)
		if b1 < width && ref[b1] == black {
			b1 = nextChange(ref, b1+1)
		}
		b2 := width
		if b1 < width {
			b2 = nextChange(ref, b1+1)
		}

		switch d := a1 - b1; {
		case b2 < a1:
			bw.writeCode(pass)
			a0 = b2
		case d >= -3 && d <= 3:
			bw.writeCode(vertical[d+3])
			a0 = a1
			black = !black
		default:
			a2 := width
			if a1 < width {
				a2 = nextChange(cur, a1+1)
			}
			bw.writeCode(horizontal)
			bw.writeRun(a1-max(a0, 0), black)
			bw.writeRun(a2-a1, !black)
			a0 = a2
		}
	}
}
