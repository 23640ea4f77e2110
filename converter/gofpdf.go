package converter

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"

	"docpress/contracts"
)

// writeGofpdf lays the pages out with gofpdf. CCITT pages have no gofpdf
// equivalent and are embedded as gray PNG rasters instead.
func writeGofpdf(job writeJob) ([]byte, error) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt"})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	if job.title != "" {
		pdf.SetTitle(job.title, true)
	}
	pdf.SetProducer("docpress", true)

	for i, p := range job.pages {
		w, h := p.page.PointSize()
		imageType, data := "JPG", p.page.ImgBuffer
		if p.page.Encoding == contracts.EncodingCCITT {
			if p.raster == nil {
				return nil, fmt.Errorf("page %d: no raster for CCITT page", i+1)
			}
			png, err := rasterPNG(p.raster)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", i+1, err)
			}
			imageType, data = "PNG", png
		}

		imageID := fmt.Sprintf("img_%d", i)
		opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: false}
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
		pdf.RegisterImageOptionsReader(imageID, opts, bytes.NewReader(data))
		pdf.ImageOptions(imageID, 0, 0, w, h, false, opts, 0, "")
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("error writing PDF: %w", err)
	}
	return buf.Bytes(), nil
}
