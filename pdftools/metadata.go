package pdftools

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"docpress/contracts"
)

var literalEscaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
var literalUnescaper = strings.NewReplacer(`\\`, `\`, `\(`, `(`, `\)`, `)`)

// infoText encodes s as a PDF text string: a literal for printable ASCII,
// UTF-16BE with a byte order mark otherwise.
func infoText(s string) types.Object {
	ascii := true
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			ascii = false
			break
		}
	}
	if ascii {
		return types.StringLiteral(literalEscaper.Replace(s))
	}
	b := []byte{0xfe, 0xff}
	for _, u := range utf16.Encode([]rune(s)) {
		b = append(b, byte(u>>8), byte(u))
	}
	return types.HexLiteral(hex.EncodeToString(b))
}

func decodeInfoText(o types.Object) string {
	switch v := o.(type) {
	case types.StringLiteral:
		return literalUnescaper.Replace(string(v))
	case types.HexLiteral:
		b, err := hex.DecodeString(string(v))
		if err != nil {
			return ""
		}
		if len(b) >= 2 && b[0] == 0xfe && b[1] == 0xff {
			u := make([]uint16, 0, len(b)/2)
			for i := 2; i+1 < len(b); i += 2 {
				u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
			}
			return string(utf16.Decode(u))
		}
		return string(b)
	}
	return ""
}

func infoDict(ctx *model.Context, create bool) (types.Dict, error) {
	if ctx.Info == nil {
		if !create {
			return nil, nil
		}
		d := types.Dict{}
		ir, err := ctx.IndRefForNewObject(d)
		if err != nil {
			return nil, err
		}
		ctx.Info = ir
		return d, nil
	}
	return ctx.DereferenceDict(*ctx.Info)
}

// SetTitle rewrites the document with title in its Info dictionary.
func SetTitle(pdf []byte, title string) ([]byte, error) {
	if strings.TrimSpace(title) == "" {
		return nil, contracts.Invalid("title", nil, "title is empty")
	}
	return rewrite("set title", pdf, func(ctx *model.Context) error {
		d, err := infoDict(ctx, true)
		if err != nil {
			return err
		}
		d["Title"] = infoText(title)
		return nil
	})
}

// Title returns the Info dictionary title, or "" when there is none.
func Title(pdf []byte) (string, error) {
	ctx, err := api.ReadContext(bytes.NewReader(pdf), newConf())
	if err != nil {
		return "", fmt.Errorf("title: %w", err)
	}
	d, err := infoDict(ctx, false)
	if err != nil || d == nil {
		return "", err
	}
	o, ok := d["Title"]
	if !ok {
		return "", nil
	}
	return decodeInfoText(o), nil
}

// rewrite reads pdf, lets edit change the model and writes it back out.
// A nil edit is a plain read and write cycle.
func rewrite(op string, pdf []byte, edit func(ctx *model.Context) error) ([]byte, error) {
	ctx, err := api.ReadContext(bytes.NewReader(pdf), newConf())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if edit != nil {
		if err := edit(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return buf.Bytes(), nil
}

// Sign stamps "Signed by <signer>" and the date in the bottom right corner
// of the last page. Without a signer the document is only rewritten.
func Sign(pdf []byte, signer string, date time.Time) ([]byte, error) {
	signer = strings.TrimSpace(signer)
	if signer == "" {
		return rewrite("sign", pdf, nil)
	}
	total, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	pos, off := anchor("bottom-right")
	desc := fmt.Sprintf("fontname:Helvetica, points:10, rotation:0, opacity:1, fillcolor:#000000, scalefactor:1 abs, position:%s, offset:%s", pos, off)
	wm, err := api.TextWatermark("Signed by "+signer+", "+date.Format("2006-01-02"), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	stamps := map[int]*model.Watermark{total: wm}
	return apply("sign", pdf, newConf(), func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.AddWatermarksMap(rs, w, stamps, conf)
	})
}
