// Package pdftools implements the document operations on top of pdfcpu.
// Every function takes and returns whole PDF files as bytes.
package pdftools

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"docpress/contracts"
)

func init() {
	// no pdfcpu config directory is created or read
	model.ConfigPath = "disable"
}

func newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

type transform func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error

func apply(op string, pdf []byte, conf *model.Configuration, fn transform) ([]byte, error) {
	var buf bytes.Buffer
	if err := fn(bytes.NewReader(pdf), &buf, conf); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return buf.Bytes(), nil
}

func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), newConf())
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	return n, nil
}

// Merge concatenates the documents in the given order.
func Merge(pdfs [][]byte) ([]byte, error) {
	if len(pdfs) < 2 {
		return nil, contracts.Invalid("files", len(pdfs), "at least two PDF files are required")
	}
	rsc := make([]io.ReadSeeker, len(pdfs))
	for i, p := range pdfs {
		rsc[i] = bytes.NewReader(p)
	}
	return apply("merge", nil, newConf(), func(_ io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.MergeRaw(rsc, w, false, conf)
	})
}

// ExtractRange keeps pages start..end. end is capped at the page count.
func ExtractRange(pdf []byte, start, end int) ([]byte, error) {
	total, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	if start < 1 || end < 1 || start > end {
		return nil, contracts.Invalid("start", start, "range must satisfy 1 <= start <= end")
	}
	if start > total {
		return nil, contracts.Invalid("start", start, "start page is greater than total pages")
	}
	end = min(end, total)
	sel := []string{fmt.Sprintf("%d-%d", start, end)}
	return apply("split", pdf, newConf(), func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.Trim(rs, w, sel, conf)
	})
}

// SplitAll returns a zip archive holding one PDF per page.
func SplitAll(pdf []byte) ([]byte, error) {
	total, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for p := 1; p <= total; p++ {
		page, err := apply("split", pdf, newConf(), func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
			return api.Trim(rs, w, []string{strconv.Itoa(p)}, conf)
		})
		if err != nil {
			return nil, err
		}
		f, err := zw.Create(fmt.Sprintf("page_%d.pdf", p))
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(page); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func Optimize(pdf []byte) ([]byte, error) {
	return apply("optimize", pdf, newConf(), api.Optimize)
}

// Rotate turns pages clockwise by angle, a multiple of 90. Nil pages means
// every page.
func Rotate(pdf []byte, angle int, pages []int) ([]byte, error) {
	if angle%90 != 0 {
		return nil, contracts.Invalid("angle", angle, "must be a multiple of 90")
	}
	angle %= 360
	if angle == 0 {
		return pdf, nil
	}
	sel := selection(pages)
	return apply("rotate", pdf, newConf(), func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.Rotate(rs, w, angle, sel, conf)
	})
}

type WatermarkOptions struct {
	Text     string
	Opacity  float64
	Rotation int
	FontSize int
	Color    string
}

func DefaultWatermarkOptions() WatermarkOptions {
	return WatermarkOptions{Text: "WATERMARK", Opacity: 0.3, Rotation: 45, FontSize: 50, Color: "#808080"}
}

// Watermark stamps text over every page.
func Watermark(pdf []byte, o WatermarkOptions) ([]byte, error) {
	if strings.TrimSpace(o.Text) == "" {
		return nil, contracts.Invalid("text", nil, "watermark text is empty")
	}
	if o.Opacity <= 0 || o.Opacity > 1 {
		return nil, contracts.Invalid("opacity", o.Opacity, "must be in (0, 1]")
	}
	if o.FontSize <= 0 {
		return nil, contracts.Invalid("fontSize", o.FontSize, "must be positive")
	}
	color, err := hexColor(o.Color)
	if err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("fontname:Helvetica, points:%d, rotation:%d, opacity:%.2f, fillcolor:%s, scalefactor:1 abs",
		o.FontSize, o.Rotation, o.Opacity, color)
	wm, err := api.TextWatermark(o.Text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	return apply("watermark", pdf, newConf(), func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.AddWatermarks(rs, w, nil, wm, conf)
	})
}

type PageNumberOptions struct {
	Position    string
	StartNumber int
	FontSize    int
	Format      string
	Color       string
}

func DefaultPageNumberOptions() PageNumberOptions {
	return PageNumberOptions{Position: "bottom-center", StartNumber: 1, FontSize: 12, Format: "Page {n}", Color: "#000000"}
}

// anchor maps a position such as "bottom-center" to a pdfcpu anchor and an
// offset in points away from the page edge.
func anchor(position string) (string, string) {
	pos := strings.ToLower(position)
	row, dy := "", 0
	switch {
	case strings.Contains(pos, "bottom"):
		row, dy = "b", 20
	case strings.Contains(pos, "top"):
		row, dy = "t", -30
	}
	col, dx := "c", 0
	switch {
	case strings.Contains(pos, "right"):
		col, dx = "r", -30
	case strings.Contains(pos, "left"):
		col, dx = "l", 30
	}
	if row == "" {
		// middle row: pdfcpu names it by column alone
		return col, fmt.Sprintf("%d 0", dx)
	}
	return row + col, fmt.Sprintf("%d %d", dx, dy)
}

// PageNumbers stamps "{n}" of Format, counted from StartNumber, on every
// page. "{total}" expands to the page count.
func PageNumbers(pdf []byte, o PageNumberOptions) ([]byte, error) {
	if o.FontSize <= 0 {
		return nil, contracts.Invalid("fontSize", o.FontSize, "must be positive")
	}
	if o.Format == "" {
		o.Format = "{n}"
	}
	color, err := hexColor(o.Color)
	if err != nil {
		return nil, err
	}
	total, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	pos, off := anchor(o.Position)
	desc := fmt.Sprintf("fontname:Helvetica, points:%d, rotation:0, opacity:1, fillcolor:%s, scalefactor:1 abs, position:%s, offset:%s",
		o.FontSize, color, pos, off)

	stamps := make(map[int]*model.Watermark, total)
	for p := 1; p <= total; p++ {
		text := strings.NewReplacer(
			"{n}", strconv.Itoa(p-1+o.StartNumber),
			"{total}", strconv.Itoa(total),
		).Replace(o.Format)
		wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("page numbers: %w", err)
		}
		stamps[p] = wm
	}
	return apply("page numbers", pdf, newConf(), func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.AddWatermarksMap(rs, w, stamps, conf)
	})
}

// Protect encrypts with AES-256, using password as user and owner password.
func Protect(pdf []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, contracts.Invalid("password", nil, "password is required")
	}
	conf := model.NewAESConfiguration(password, password, 256)
	conf.ValidationMode = model.ValidationRelaxed
	return apply("protect", pdf, conf, api.Encrypt)
}

// Unlock removes encryption. A document that is not encrypted is returned
// unchanged.
func Unlock(pdf []byte, password string) ([]byte, error) {
	if ctx, err := api.ReadContext(bytes.NewReader(pdf), newConf()); err == nil && ctx.Encrypt == nil {
		return pdf, nil
	}
	conf := newConf()
	conf.UserPW = password
	conf.OwnerPW = password
	return apply("unlock", pdf, conf, api.Decrypt)
}

// Collect writes the given pages in the given order. Pages may repeat.
func Collect(pdf []byte, pages []int) ([]byte, error) {
	sel := selection(pages)
	return apply("collect", pdf, newConf(), func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.Collect(rs, w, sel, conf)
	})
}

// DeletePages removes pages. At least one page must remain.
func DeletePages(pdf []byte, pages []int) ([]byte, error) {
	total, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	unique := make(map[int]bool)
	for _, p := range pages {
		unique[p] = true
	}
	if len(unique) >= total {
		return nil, contracts.Invalid("pages", len(unique), "cannot delete every page")
	}
	sel := selection(pages)
	return apply("delete pages", pdf, newConf(), func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.RemovePages(rs, w, sel, conf)
	})
}

// Repair reads the document leniently and writes it out again, rebuilding
// the cross-reference table.
func Repair(pdf []byte) ([]byte, error) {
	ctx, err := api.ReadContext(bytes.NewReader(pdf), newConf())
	if err != nil {
		return nil, fmt.Errorf("repair: %w", err)
	}
	if err := api.OptimizeContext(ctx); err != nil {
		return nil, fmt.Errorf("repair: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("repair: %w", err)
	}
	return buf.Bytes(), nil
}

type Report struct {
	Valid bool   `json:"valid"`
	Pages int    `json:"pages,omitempty"`
	Error string `json:"error,omitempty"`
}

// Validate never fails; problems are reported in the Report.
func Validate(pdf []byte) Report {
	if err := api.Validate(bytes.NewReader(pdf), newConf()); err != nil {
		return Report{Error: err.Error()}
	}
	n, err := PageCount(pdf)
	if err != nil {
		return Report{Error: err.Error()}
	}
	return Report{Valid: true, Pages: n}
}

func hexColor(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "#000000", nil
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) != 7 {
		return "", contracts.Invalid("color", s, "want #RRGGBB")
	}
	if _, err := strconv.ParseUint(s[1:], 16, 32); err != nil {
		return "", contracts.Invalid("color", s, "want #RRGGBB")
	}
	return s, nil
}
