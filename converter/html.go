package converter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/phpdave11/gofpdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"docpress/contracts"
)

var (
	htmlSpace  = regexp.MustCompile(`\s+`)
	htmlBreak  = regexp.MustCompile(` ?<br> ?`)
	htmlBreaks = regexp.MustCompile(`(?:<br>){3,}`)

	// the basic HTML writer has no entities, so markup characters in text
	// are swapped for look-alikes
	htmlText = strings.NewReplacer("<", "\u2039", ">", "\u203a", "\u00a0", " ")
)

// simplifyHTML reduces a document to what the gofpdf basic HTML writer
// knows: b, i, u, a and br. Headings become bold lines and list items get a
// dash.
func simplifyHTML(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	walkHTML(&b, doc)
	s := htmlSpace.ReplaceAllString(b.String(), " ")
	s = htmlBreak.ReplaceAllString(s, "<br>")
	s = htmlBreaks.ReplaceAllString(s, "<br><br>")
	for strings.HasPrefix(s, "<br>") {
		s = strings.TrimPrefix(s, "<br>")
	}
	for strings.HasSuffix(s, "<br>") {
		s = strings.TrimSuffix(s, "<br>")
	}
	return strings.TrimSpace(s), nil
}

func walkHTML(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(htmlText.Replace(n.Data))
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		open, end := "", ""
		switch n.DataAtom {
		case atom.Head, atom.Script, atom.Style, atom.Template, atom.Noscript:
			return
		case atom.Br:
			b.WriteString("<br>")
			return
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			open, end = "<br><b>", "</b><br>"
		case atom.Li:
			open = "<br>- "
		case atom.P, atom.Div, atom.Tr, atom.Ul, atom.Ol, atom.Table, atom.Section, atom.Article, atom.Blockquote, atom.Pre:
			open, end = "<br>", "<br>"
		case atom.B, atom.Strong:
			open, end = "<b>", "</b>"
		case atom.I, atom.Em:
			open, end = "<i>", "</i>"
		case atom.U:
			open, end = "<u>", "</u>"
		case atom.A:
			for _, a := range n.Attr {
				if a.Key == "href" && a.Val != "" {
					open, end = `<a href="`+strings.ReplaceAll(a.Val, `"`, "%22")+`">`, "</a>"
				}
			}
		}
		b.WriteString(open)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkHTML(b, c)
		}
		b.WriteString(end)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(b, c)
	}
}

// HTMLToPDF lays out simple HTML on A4 pages with the core Helvetica font.
// Styling, images and tables are not rendered; their text is kept.
func HTMLToPDF(src, title string) ([]byte, error) {
	body, err := simplifyHTML(src)
	if err != nil {
		return nil, fmt.Errorf("html parse: %w", err)
	}
	if strings.Trim(strings.ReplaceAll(body, "<br>", ""), " -") == "" {
		return nil, contracts.Invalid("html", nil, "no content to render")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	if title != "" {
		pdf.SetTitle(title, true)
	}
	pdf.SetProducer("docpress", true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)
	_, lineHt := pdf.GetFontSize()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	hb := pdf.HTMLBasicNew()
	hb.Write(lineHt*1.4, tr(body))
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("html layout: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("error writing PDF: %w", err)
	}
	return buf.Bytes(), nil
}
