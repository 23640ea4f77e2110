package jpegenc

import (
	"bufio"
	"math/bits"
)

// bitWriter accumulates entropy-coded bits MSB first and byte-stuffs 0xFF.
type bitWriter struct {
	w     *bufio.Writer
	acc   uint32
	nBits uint32
	err   error
}

func (b *bitWriter) writeByte(c byte) {
	if b.err != nil {
		return
	}
	b.err = b.w.WriteByte(c)
}

func (b *bitWriter) write(p []byte) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.Write(p)
}

// emit writes the low n bits of v; n <= 16.
func (b *bitWriter) emit(v, n uint32) {
	n += b.nBits
	v <<= 32 - n
	v |= b.acc
	for n >= 8 {
		c := byte(v >> 24)
		b.writeByte(c)
		if c == 0xff {
			b.writeByte(0x00)
		}
		v <<= 8
		n -= 8
	}
	b.acc, b.nBits = v, n
}

func (b *bitWriter) emitHuff(table int, symbol byte) {
	c := huffmanCodes[table][symbol]
	b.emit(uint32(c)&0xffff, uint32(c)>>24)
}

// emitValue writes the Huffman symbol run<<4|size followed by size extra bits.
func (b *bitWriter) emitValue(table int, run int32, v int32) {
	a, extra := v, v
	if a < 0 {
		a, extra = -v, v-1
	}
	size := uint32(bits.Len32(uint32(a)))
	b.emitHuff(table, byte(uint32(run)<<4|size))
	if size > 0 {
		b.emit(uint32(extra)&(1<<size-1), size)
	}
}

// pad fills the current byte with 1s so that a marker can follow.
func (b *bitWriter) pad() {
	b.emit(0x7f, 7)
	b.acc, b.nBits = 0, 0
}

func (b *bitWriter) marker(m byte, length int) {
	b.write([]byte{0xff, m, byte(length >> 8), byte(length)})
}
