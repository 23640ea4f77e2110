package compressor

import (
	"bytes"
	"image/jpeg"
)

// reencode decodes the first JPEG pass and encodes it again with the
// baseline parameters on the same backend. It returns the smaller of the
// two byte slices and whether the second pass won. Any failure keeps first.
func (c *Compressor) reencode(b Backend, first []byte, quality int) ([]byte, bool) {
	if quality >= reencodeBelow {
		return first, false
	}
	img, err := jpeg.Decode(bytes.NewReader(first))
	if err != nil {
		c.log.Debug("re-encode skipped, first pass unreadable", "err", err)
		return first, false
	}
	second, err := b.Encode(fromImage(img), BaselineJPEGParameters(quality))
	if err != nil {
		c.log.Debug("re-encode failed, keeping first pass", "backend", b.Name(), "err", err)
		return first, false
	}
	if len(second) < len(first) {
		return second, true
	}
	return first, false
}
