// Package pdf_writer streams image pages into a PDF 1.7 file without
// decoding them: JPEG data goes in as /DCTDecode, CCITT G4 data as
// /CCITTFaxDecode. Each page is sized to its image at the image DPI.
package pdf_writer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf16"

	"docpress/contracts"
)

var ErrNoPages = errors.New("pdf_writer: no pages written")

type PDFWriter struct {
	offsets []int64
	bw      *bufio.Writer
	cw      *countingWriter

	pagesObjID int
	pageIDs    []int
	title      string
	created    time.Time
	finished   bool
}

type countingWriter struct {
	w      io.Writer
	offset int64
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	cw.offset += int64(n)
	return n, err
}

func NewPDFWriter(dst io.Writer) (*PDFWriter, error) {
	cw := &countingWriter{w: dst}
	pw := &PDFWriter{
		cw:      cw,
		bw:      bufio.NewWriterSize(cw, 1<<20),
		created: time.Now(),
	}
	if _, err := pw.bw.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n"); err != nil {
		return nil, fmt.Errorf("error writing PDF header: %w", err)
	}
	// Pages is referenced by every page, so its number is taken first and
	// the object itself is written by Finish.
	pw.pagesObjID = pw.reserveObject()
	return pw, nil
}

// SetTitle sets the /Title entry of the document information dictionary.
func (pw *PDFWriter) SetTitle(title string) { pw.title = title }

func (pw *PDFWriter) getOffset() int64 {
	return pw.cw.offset + int64(pw.bw.Buffered())
}

func (pw *PDFWriter) reserveObject() int {
	pw.offsets = append(pw.offsets, -1)
	return len(pw.offsets)
}

func (pw *PDFWriter) beginObject(id int) {
	pw.offsets[id-1] = pw.getOffset()
	fmt.Fprintf(pw.bw, "%d 0 obj\n", id)
}

func (pw *PDFWriter) newObject() int {
	id := pw.reserveObject()
	pw.beginObject(id)
	return id
}

func (pw *PDFWriter) writeStream(dict string, data []byte) {
	fmt.Fprintf(pw.bw, "<<\n%s/Length %d\n>>\nstream\n", dict, len(data))
	pw.bw.Write(data)
	pw.bw.WriteString("\nendstream\nendobj\n")
}

// WriteImage appends one page holding the image.
func (pw *PDFWriter) WriteImage(page *contracts.PageImage) error {
	if pw.finished {
		return errors.New("pdf_writer: write after Finish")
	}
	if page.PixelWidth <= 0 || page.PixelHeight <= 0 {
		return fmt.Errorf("invalid image size %dx%d", page.PixelWidth, page.PixelHeight)
	}
	if len(page.ImgBuffer) == 0 {
		return fmt.Errorf("page %d: empty image data", page.PageIndex)
	}

	var dict strings.Builder
	dict.WriteString("/Type /XObject\n/Subtype /Image\n")
	fmt.Fprintf(&dict, "/Width %d\n/Height %d\n", page.PixelWidth, page.PixelHeight)
	switch page.Encoding {
	case contracts.EncodingCCITT:
		dict.WriteString("/ColorSpace /DeviceGray\n/BitsPerComponent 1\n/Filter /CCITTFaxDecode\n")
		fmt.Fprintf(&dict, "/DecodeParms << /K -1 /Columns %d /Rows %d >>\n", page.PixelWidth, page.PixelHeight)
	case contracts.EncodingDCT:
		if page.Gray {
			dict.WriteString("/ColorSpace /DeviceGray\n")
		} else {
			dict.WriteString("/ColorSpace /DeviceRGB\n")
		}
		dict.WriteString("/BitsPerComponent 8\n/Filter /DCTDecode\n")
	default:
		return fmt.Errorf("page %d: unknown encoding %d", page.PageIndex, page.Encoding)
	}

	imgID := pw.newObject()
	pw.writeStream(dict.String(), page.ImgBuffer)

	w, h := page.PointSize()
	content := fmt.Sprintf("q\n%.2f 0 0 %.2f 0 0 cm\n/Im0 Do\nQ\n", w, h)
	contentID := pw.newObject()
	pw.writeStream("", []byte(content))

	pageID := pw.newObject()
	pw.bw.WriteString("<<\n/Type /Page\n")
	fmt.Fprintf(pw.bw, "/Parent %d 0 R\n", pw.pagesObjID)
	fmt.Fprintf(pw.bw, "/MediaBox [0 0 %.2f %.2f]\n", w, h)
	fmt.Fprintf(pw.bw, "/Resources << /XObject << /Im0 %d 0 R >> >>\n", imgID)
	fmt.Fprintf(pw.bw, "/Contents %d 0 R\n", contentID)
	pw.bw.WriteString(">>\nendobj\n")
	pw.pageIDs = append(pw.pageIDs, pageID)

	// hand large image data to the destination as soon as possible
	if pw.bw.Buffered() > pw.bw.Size()/2 {
		if err := pw.bw.Flush(); err != nil {
			return fmt.Errorf("error flushing page %d: %w", page.PageIndex, err)
		}
	}
	return nil
}

// Pages reports how many pages have been written.
func (pw *PDFWriter) Pages() int { return len(pw.pageIDs) }

func (pw *PDFWriter) writeDocumentStructure() (catalogID, infoID int) {
	pw.beginObject(pw.pagesObjID)
	pw.bw.WriteString("<<\n/Type /Pages\n")
	fmt.Fprintf(pw.bw, "/Count %d\n/Kids [", len(pw.pageIDs))
	for i, id := range pw.pageIDs {
		if i > 0 {
			pw.bw.WriteByte(' ')
		}
		fmt.Fprintf(pw.bw, "%d 0 R", id)
	}
	pw.bw.WriteString("]\n>>\nendobj\n")

	infoID = pw.newObject()
	pw.bw.WriteString("<<\n/Producer (docpress)\n")
	fmt.Fprintf(pw.bw, "/CreationDate (D:%s)\n", pw.created.UTC().Format("20060102150405Z"))
	if pw.title != "" {
		fmt.Fprintf(pw.bw, "/Title %s\n", pdfString(pw.title))
	}
	pw.bw.WriteString(">>\nendobj\n")

	catalogID = pw.newObject()
	fmt.Fprintf(pw.bw, "<<\n/Type /Catalog\n/Pages %d 0 R\n>>\nendobj\n", pw.pagesObjID)
	return catalogID, infoID
}

// Finish writes the page tree, the cross-reference table and the trailer.
func (pw *PDFWriter) Finish() error {
	if pw.finished {
		return nil
	}
	if len(pw.pageIDs) == 0 {
		return ErrNoPages
	}
	pw.finished = true

	catalogID, infoID := pw.writeDocumentStructure()
	startXref := pw.getOffset()
	total := len(pw.offsets) + 1

	fmt.Fprintf(pw.bw, "xref\n0 %d\n", total)
	fmt.Fprintf(pw.bw, "%010d %05d f \n", 0, 65535)
	for _, off := range pw.offsets {
		fmt.Fprintf(pw.bw, "%010d %05d n \n", off, 0)
	}
	fmt.Fprintf(pw.bw, "trailer\n<< /Size %d /Root %d 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		total, catalogID, infoID, startXref)

	if err := pw.bw.Flush(); err != nil {
		return fmt.Errorf("error writing trailer: %w", err)
	}
	return nil
}

// pdfString encodes s as a literal string, or as UTF-16BE hex when it is
// not plain ASCII.
func pdfString(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			ascii = false
			break
		}
	}
	if ascii {
		r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
		return "(" + r.Replace(s) + ")"
	}
	var b strings.Builder
	b.WriteString("<FEFF")
	for _, u := range utf16.Encode([]rune(s)) {
		fmt.Fprintf(&b, "%04X", u)
	}
	b.WriteString(">")
	return b.String()
}
