// Package jpegenc writes baseline and progressive JFIF files with selectable
// chroma subsampling and quantization tiers. No EXIF or other metadata
// segments are ever written.
package jpegenc

import (
	"bufio"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
)

type Subsampling int

const (
	Subsample420 Subsampling = iota
	Subsample422
	Subsample444
)

func (s Subsampling) String() string {
	switch s {
	case Subsample422:
		return "4:2:2"
	case Subsample444:
		return "4:4:4"
	}
	return "4:2:0"
}

// lumaFactors returns the luma sampling factors; chroma is always 1x1.
func (s Subsampling) lumaFactors() (h, v int) {
	switch s {
	case Subsample422:
		return 2, 1
	case Subsample444:
		return 1, 1
	}
	return 2, 2
}

const DefaultQuality = 75

type Options struct {
	Quality     int
	Subsampling Subsampling
	Progressive bool
	Tier        QuantTier
}

var (
	ErrEmptyImage = errors.New("jpegenc: image has no pixels")
	ErrTooLarge   = errors.New("jpegenc: image is too large to encode")
)

const (
	markerSOF0 = 0xc0
	markerSOF2 = 0xc2
	markerDHT  = 0xc4
	markerSOS  = 0xda
	markerDQT  = 0xdb
	markerAPP0 = 0xe0
)

type component struct {
	id      byte
	h, v    int
	tq      byte
	th      byte // DHT destination for both DC and AC
	dcHuff  int
	acHuff  int
	blocksW int
	blocksH int
	scanW   int
	scanH   int
	coef    [][blockSize]int32
}

func (c *component) block(bx, by int) *[blockSize]int32 {
	return &c.coef[by*c.blocksW+bx]
}

type encoder struct {
	bw    bitWriter
	comps []*component
	mcuX  int
	mcuY  int
	quant [2][blockSize]byte
}

// Encode writes m to w. Gray images produce a single-component file, every
// other image is converted to YCbCr. Alpha is ignored.
func Encode(w io.Writer, m image.Image, o *Options) error {
	opts := Options{Quality: DefaultQuality}
	if o != nil {
		opts = *o
		if opts.Quality == 0 {
			opts.Quality = DefaultQuality
		}
	}
	b := m.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return ErrEmptyImage
	}
	if b.Dx() >= 1<<16 || b.Dy() >= 1<<16 {
		return ErrTooLarge
	}

	e := &encoder{}
	e.quant[0], e.quant[1] = quantTables(opts.Tier, opts.Quality)
	e.build(m, opts.Subsampling)

	buf := bufio.NewWriter(w)
	e.bw.w = buf
	e.bw.write([]byte{0xff, 0xd8})
	e.writeAPP0()
	e.writeDQT()
	if opts.Progressive {
		e.writeSOF(markerSOF2, b.Size())
		e.writeDHT()
		e.progressiveScans()
	} else {
		e.writeSOF(markerSOF0, b.Size())
		e.writeDHT()
		e.baselineScan()
	}
	e.bw.write([]byte{0xff, 0xd9})
	if e.bw.err != nil {
		return e.bw.err
	}
	return buf.Flush()
}

func (e *encoder) build(m image.Image, s Subsampling) {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	planes, gray := samplePlanes(m)

	hmax, vmax := 1, 1
	if !gray {
		hmax, vmax = s.lumaFactors()
	}
	e.mcuX = (w + 8*hmax - 1) / (8 * hmax)
	e.mcuY = (h + 8*vmax - 1) / (8 * vmax)

	for i, plane := range planes {
		c := &component{id: byte(i + 1), h: 1, v: 1}
		if i == 0 {
			c.h, c.v = hmax, vmax
			c.dcHuff, c.acHuff = huffLumaDC, huffLumaAC
		} else {
			c.tq, c.th = 1, 1
			c.dcHuff, c.acHuff = huffChromaDC, huffChromaAC
		}
		c.blocksW = e.mcuX * c.h
		c.blocksH = e.mcuY * c.v
		cw := (w*c.h + hmax - 1) / hmax
		ch := (h*c.v + vmax - 1) / vmax
		c.scanW = (cw + 7) / 8
		c.scanH = (ch + 7) / 8
		fx, fy := hmax/c.h, vmax/c.v
		sampled := resample(plane, w, h, fx, fy, c.blocksW*8, c.blocksH*8)
		c.coef = make([][blockSize]int32, c.blocksW*c.blocksH)
		c.transform(sampled, c.blocksW*8, &e.quant[c.tq])
		e.comps = append(e.comps, c)
	}
}

// samplePlanes splits m into Y (and Cb, Cr) planes of Dx*Dy bytes.
func samplePlanes(m image.Image) ([][]uint8, bool) {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	if g, ok := m.(*image.Gray); ok {
		y := make([]uint8, w*h)
		for j := 0; j < h; j++ {
			off := g.PixOffset(b.Min.X, b.Min.Y+j)
			copy(y[j*w:(j+1)*w], g.Pix[off:off+w])
		}
		return [][]uint8{y}, true
	}

	yp := make([]uint8, w*h)
	cb := make([]uint8, w*h)
	cr := make([]uint8, w*h)
	switch src := m.(type) {
	case *image.NRGBA:
		for j := 0; j < h; j++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+j)
			for i := 0; i < w; i++ {
				p := src.Pix[off+4*i : off+4*i+3]
				yp[j*w+i], cb[j*w+i], cr[j*w+i] = color.RGBToYCbCr(p[0], p[1], p[2])
			}
		}
	case *image.RGBA:
		for j := 0; j < h; j++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+j)
			for i := 0; i < w; i++ {
				p := src.Pix[off+4*i : off+4*i+3]
				yp[j*w+i], cb[j*w+i], cr[j*w+i] = color.RGBToYCbCr(p[0], p[1], p[2])
			}
		}
	default:
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				r, g, bl, _ := m.At(b.Min.X+i, b.Min.Y+j).RGBA()
				yp[j*w+i], cb[j*w+i], cr[j*w+i] = color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			}
		}
	}
	return [][]uint8{yp, cb, cr}, false
}

// resample box-averages fx*fy source cells into each output sample and
// replicates the last row and column into the padding.
func resample(src []uint8, w, h, fx, fy, pw, ph int) []uint8 {
	out := make([]uint8, pw*ph)
	n := fx * fy
	for y := 0; y < ph; y++ {
		for x := 0; x < pw; x++ {
			sum := 0
			for dy := 0; dy < fy; dy++ {
				sy := min(y*fy+dy, h-1)
				for dx := 0; dx < fx; dx++ {
					sx := min(x*fx+dx, w-1)
					sum += int(src[sy*w+sx])
				}
			}
			out[y*pw+x] = uint8((sum + n/2) / n)
		}
	}
	return out
}

var dctBasis [8][8]float64

func init() {
	for u := 0; u < 8; u++ {
		c := 0.5
		if u == 0 {
			c = 0.5 / math.Sqrt2
		}
		for x := 0; x < 8; x++ {
			dctBasis[u][x] = c * math.Cos(float64((2*x+1)*u)*math.Pi/16)
		}
	}
}

// fdct computes the orthonormal 2-D DCT-II of in, natural order.
func fdct(in, out *[blockSize]float64) {
	var tmp [blockSize]float64
	for y := 0; y < 8; y++ {
		for u := 0; u < 8; u++ {
			s := 0.0
			for x := 0; x < 8; x++ {
				s += dctBasis[u][x] * in[y*8+x]
			}
			tmp[y*8+u] = s
		}
	}
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			s := 0.0
			for y := 0; y < 8; y++ {
				s += dctBasis[v][y] * tmp[y*8+u]
			}
			out[v*8+u] = s
		}
	}
}

func (c *component) transform(plane []uint8, stride int, q *[blockSize]byte) {
	var in, out [blockSize]float64
	for by := 0; by < c.blocksH; by++ {
		for bx := 0; bx < c.blocksW; bx++ {
			for y := 0; y < 8; y++ {
				row := plane[(by*8+y)*stride+bx*8:]
				for x := 0; x < 8; x++ {
					in[y*8+x] = float64(row[x]) - 128
				}
			}
			fdct(&in, &out)
			dst := c.block(bx, by)
			for z := 0; z < blockSize; z++ {
				v := int32(math.Round(out[unzig[z]] / float64(q[z])))
				if z > 0 {
					v = max(-1023, min(1023, v))
				}
				dst[z] = v
			}
		}
	}
}

func (e *encoder) writeAPP0() {
	e.bw.marker(markerAPP0, 16)
	e.bw.write([]byte{'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0})
}

func (e *encoder) writeDQT() {
	n := 2
	if len(e.comps) == 1 {
		n = 1
	}
	e.bw.marker(markerDQT, 2+n*(1+blockSize))
	for i := 0; i < n; i++ {
		e.bw.writeByte(byte(i))
		e.bw.write(e.quant[i][:])
	}
}

func (e *encoder) writeSOF(marker byte, size image.Point) {
	e.bw.marker(marker, 8+3*len(e.comps))
	e.bw.write([]byte{8, byte(size.Y >> 8), byte(size.Y), byte(size.X >> 8), byte(size.X), byte(len(e.comps))})
	for _, c := range e.comps {
		e.bw.write([]byte{c.id, byte(c.h<<4 | c.v), c.tq})
	}
}

func (e *encoder) writeDHT() {
	tables := []int{huffLumaDC, huffLumaAC}
	if len(e.comps) > 1 {
		tables = append(tables, huffChromaDC, huffChromaAC)
	}
	length := 2
	for _, t := range tables {
		length += 1 + 16 + len(huffmanSpecs[t].symbols)
	}
	e.bw.marker(markerDHT, length)
	for _, t := range tables {
		// Tc in the high nibble (0 DC, 1 AC), Th in the low nibble.
		class := byte(t % 2)
		e.bw.writeByte(class<<4 | byte(t/2))
		e.bw.write(huffmanSpecs[t].counts[:])
		e.bw.write(huffmanSpecs[t].symbols)
	}
}

func (e *encoder) writeSOS(comps []*component, ss, se byte) {
	e.bw.marker(markerSOS, 6+2*len(comps))
	e.bw.writeByte(byte(len(comps)))
	for _, c := range comps {
		e.bw.write([]byte{c.id, c.th<<4 | c.th})
	}
	e.bw.write([]byte{ss, se, 0})
}

func (e *encoder) encodeDC(c *component, blk *[blockSize]int32, pred *int32) {
	e.bw.emitValue(c.dcHuff, 0, blk[0]-*pred)
	*pred = blk[0]
}

func (e *encoder) encodeAC(c *component, blk *[blockSize]int32, ss, se int) {
	run := int32(0)
	for z := ss; z <= se; z++ {
		v := blk[z]
		if v == 0 {
			run++
			continue
		}
		for run > 15 {
			e.bw.emitHuff(c.acHuff, 0xf0)
			run -= 16
		}
		e.bw.emitValue(c.acHuff, run, v)
		run = 0
	}
	if run > 0 {
		e.bw.emitHuff(c.acHuff, 0x00)
	}
}

// eachMCUBlock visits blocks in interleaved MCU order.
func (e *encoder) eachMCUBlock(fn func(ci int, c *component, blk *[blockSize]int32)) {
	for my := 0; my < e.mcuY; my++ {
		for mx := 0; mx < e.mcuX; mx++ {
			for ci, c := range e.comps {
				for v := 0; v < c.v; v++ {
					for h := 0; h < c.h; h++ {
						fn(ci, c, c.block(mx*c.h+h, my*c.v+v))
					}
				}
			}
		}
	}
}

// eachScanBlock visits the blocks of a single-component scan.
func eachScanBlock(c *component, fn func(blk *[blockSize]int32)) {
	for by := 0; by < c.scanH; by++ {
		for bx := 0; bx < c.scanW; bx++ {
			fn(c.block(bx, by))
		}
	}
}

func (e *encoder) baselineScan() {
	e.writeSOS(e.comps, 0, 63)
	preds := make([]int32, len(e.comps))
	if len(e.comps) == 1 {
		c := e.comps[0]
		eachScanBlock(c, func(blk *[blockSize]int32) {
			e.encodeDC(c, blk, &preds[0])
			e.encodeAC(c, blk, 1, 63)
		})
	} else {
		e.eachMCUBlock(func(ci int, c *component, blk *[blockSize]int32) {
			e.encodeDC(c, blk, &preds[ci])
			e.encodeAC(c, blk, 1, 63)
		})
	}
	e.bw.pad()
}

// progressiveScans uses spectral selection only: one DC scan for all
// components followed by one full AC scan per component.
func (e *encoder) progressiveScans() {
	e.writeSOS(e.comps, 0, 0)
	preds := make([]int32, len(e.comps))
	if len(e.comps) == 1 {
		c := e.comps[0]
		eachScanBlock(c, func(blk *[blockSize]int32) {
			e.encodeDC(c, blk, &preds[0])
		})
	} else {
		e.eachMCUBlock(func(ci int, c *component, blk *[blockSize]int32) {
			e.encodeDC(c, blk, &preds[ci])
		})
	}
	e.bw.pad()

	for _, c := range e.comps {
		e.writeSOS([]*component{c}, 1, 63)
		eachScanBlock(c, func(blk *[blockSize]int32) {
			e.encodeAC(c, blk, 1, 63)
		})
		e.bw.pad()
	}
}
