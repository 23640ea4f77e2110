package converter

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"docpress/ccittg4"
	"docpress/contracts"
	"docpress/jpegenc"
	"docpress/pngenc"
	"docpress/utils"
)

// preparedPage is a page ready for either PDF writer. raster is the
// binarized plane of a CCITT page, kept for writers without a CCITT filter.
type preparedPage struct {
	page   *contracts.PageImage
	raster *image.Gray
}

func (c *Converter) preparePage(index int, f contracts.InputFile, quality int, dpi float64) (*preparedPage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return nil, &contracts.DecodeError{Name: f.Name, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &contracts.DecodeError{Name: f.Name, Err: fmt.Errorf("image has no pixels")}
	}
	if c.opts.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > c.opts.MaxPixels {
		return nil, contracts.Invalid("pixels", int64(cfg.Width)*int64(cfg.Height), "exceeds the configured limit")
	}

	dpiX, dpiY := dpi, dpi
	if dpi <= 0 {
		dpiX, dpiY = utils.ImageDPI(f.Data, c.opts.DefaultDPI)
	}
	page := &contracts.PageImage{
		Encoding:    contracts.EncodingDCT,
		PixelWidth:  cfg.Width,
		PixelHeight: cfg.Height,
		DPIX:        dpiX,
		DPIY:        dpiY,
		PageIndex:   index,
	}

	// JPEG data that PDF can show as-is is embedded without recompression.
	if format == "jpeg" && (cfg.ColorModel == color.YCbCrModel || cfg.ColorModel == color.GrayModel) {
		page.ImgBuffer = f.Data
		page.Gray = cfg.ColorModel == color.GrayModel
		c.log.Debug("page passthrough", "page", index, "name", f.Name)
		return &preparedPage{page: page}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, &contracts.DecodeError{Name: f.Name, Err: err}
	}
	flat := flatten(img)

	a := analyze(flat, c.opts)
	if a.bilevel {
		threshold := OtsuThreshold(a.lum)
		raster := binarize(a.lum, cfg.Width, cfg.Height, threshold, c.opts.CloseGaps)
		data, err := ccittg4.EncodeImage(raster, 128)
		if err != nil {
			return nil, fmt.Errorf("page %d: ccitt encode: %w", index, err)
		}
		page.ImgBuffer = data
		page.Encoding = contracts.EncodingCCITT
		page.Gray = true
		c.log.Debug("page bilevel", "page", index, "name", f.Name, "threshold", threshold, "bytes", len(data))
		return &preparedPage{page: page, raster: raster}, nil
	}

	var src image.Image = flat
	if a.gray {
		src = &image.Gray{Pix: a.lum, Stride: cfg.Width, Rect: image.Rect(0, 0, cfg.Width, cfg.Height)}
		page.Gray = true
	}
	var buf bytes.Buffer
	if err := jpegenc.Encode(&buf, src, &jpegenc.Options{Quality: quality, Subsampling: jpegenc.Subsample420}); err != nil {
		return nil, fmt.Errorf("page %d: jpeg encode: %w", index, err)
	}
	page.ImgBuffer = buf.Bytes()
	c.log.Debug("page encoded", "page", index, "name", f.Name, "gray", a.gray, "bytes", buf.Len())
	return &preparedPage{page: page}, nil
}

// flatten composites img over white with a zero origin.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// binarize maps the luminance plane to 0 (black) or 255 (white).
func binarize(lum []byte, w, h int, threshold uint8, closeGaps bool) *image.Gray {
	black := make([]bool, len(lum))
	for i, v := range lum {
		black[i] = v < threshold
	}
	if closeGaps {
		black = MorphologyClose(black, w, h)
	}
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i, b := range black {
		if !b {
			g.Pix[i] = 0xff
		}
	}
	return g
}

// rasterPNG returns the page raster as a gray PNG for writers that cannot
// embed CCITT data.
func rasterPNG(g *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := pngenc.Encode(&buf, g, &pngenc.Options{Level: 9, ColorType: pngenc.Gray}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
