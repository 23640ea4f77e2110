// Package utils reads resolution metadata from encoded images.
package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

var ErrNoDPI = errors.New("no resolution metadata")

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// ImageDPI returns the horizontal and vertical resolution stored in a JPEG,
// PNG or TIFF, or fallback for both when none is recorded.
func ImageDPI(data []byte, fallback float64) (float64, float64) {
	var (
		x, y float64
		err  error
	)
	switch {
	case bytes.HasPrefix(data, pngSignature):
		x, y, err = GetDPIfromPNG(data)
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}):
		x, y, err = GetDPIfromJFIF(data)
		if err != nil {
			x, y, err = GetEXIFDPI(data)
		}
	default:
		x, y, err = GetEXIFDPI(data)
	}
	if err != nil || x <= 0 || y <= 0 {
		return fallback, fallback
	}
	return x, y
}

// GetEXIFDPI reads XResolution, YResolution and ResolutionUnit from the
// EXIF/TIFF IFD0 found anywhere in data.
func GetEXIFDPI(data []byte) (float64, float64, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return 0, 0, fmt.Errorf("EXIF not found: %w", err)
	}

	im := exifcommon.NewIfdMapping()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return 0, 0, err
	}
	ti := exif.NewTagIndex()

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return 0, 0, err
	}

	dpiX, okX := rationalTag(index.RootIfd, "XResolution")
	dpiY, okY := rationalTag(index.RootIfd, "YResolution")
	if !okX {
		return 0, 0, ErrNoDPI
	}
	if !okY {
		dpiY = dpiX
	}

	unit := uint16(2)
	if tags, err := index.RootIfd.FindTagWithName("ResolutionUnit"); err == nil && len(tags) > 0 {
		if val, err := tags[0].Value(); err == nil {
			switch u := val.(type) {
			case uint16:
				unit = u
			case []uint16:
				if len(u) > 0 {
					unit = u[0]
				}
			}
		}
	}
	switch unit {
	case 3:
		dpiX *= 2.54
		dpiY *= 2.54
	case 1:
		// aspect ratio only
		return 0, 0, ErrNoDPI
	}
	return dpiX, dpiY, nil
}

func rationalTag(ifd *exif.Ifd, name string) (float64, bool) {
	tags, err := ifd.FindTagWithName(name)
	if err != nil || len(tags) == 0 {
		return 0, false
	}
	val, err := tags[0].Value()
	if err != nil {
		return 0, false
	}
	rats, ok := val.([]exifcommon.Rational)
	if !ok || len(rats) == 0 || rats[0].Denominator == 0 {
		return 0, false
	}
	return float64(rats[0].Numerator) / float64(rats[0].Denominator), true
}

// GetDPIfromPNG reads the pHYs chunk. Only the metre unit carries a DPI.
func GetDPIfromPNG(data []byte) (float64, float64, error) {
	const physChunk = "pHYs"
	if !bytes.HasPrefix(data, pngSignature) {
		return 0, 0, errors.New("not a PNG")
	}
	buf := bytes.NewReader(data[len(pngSignature):])

	for {
		var length uint32
		if err := binary.Read(buf, binary.BigEndian, &length); err != nil {
			break
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(buf, chunkType); err != nil {
			break
		}

		switch string(chunkType) {
		case physChunk:
			var phys struct {
				X, Y uint32
				Unit byte
			}
			if err := binary.Read(buf, binary.BigEndian, &phys); err != nil {
				return 0, 0, err
			}
			if phys.Unit != 1 {
				return 0, 0, ErrNoDPI
			}
			return float64(phys.X) * 0.0254, float64(phys.Y) * 0.0254, nil
		case "IDAT", "IEND":
			// pHYs must precede the image data
			return 0, 0, ErrNoDPI
		}

		// skip chunk data + CRC
		if _, err := buf.Seek(int64(length)+4, io.SeekCurrent); err != nil {
			break
		}
	}
	return 0, 0, ErrNoDPI
}

// GetDPIfromJFIF reads the density fields of a JFIF APP0 segment.
func GetDPIfromJFIF(data []byte) (float64, float64, error) {
	// SOI, APP0 marker, length, "JFIF\0", version, units, Xdensity, Ydensity
	if len(data) < 18 || data[2] != 0xFF || data[3] != 0xE0 || !bytes.Equal(data[6:11], []byte("JFIF\x00")) {
		return 0, 0, ErrNoDPI
	}
	unit := data[13]
	x := float64(binary.BigEndian.Uint16(data[14:16]))
	y := float64(binary.BigEndian.Uint16(data[16:18]))
	switch unit {
	case 1:
		return x, y, nil
	case 2:
		return x * 2.54, y * 2.54, nil
	}
	return 0, 0, ErrNoDPI
}
