// Package texttools holds the small text utilities: counting, JSON
// formatting, base64, UUIDs, passwords, digests and case conversion.
package texttools

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"hash"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"docpress/contracts"
)

type Stats struct {
	Words              int `json:"words"`
	Characters         int `json:"characters"`
	CharactersNoSpaces int `json:"charactersNoSpaces"`
	Lines              int `json:"lines"`
	Paragraphs         int `json:"paragraphs"`
	Sentences          int `json:"sentences"`
}

func CountWords(text string) Stats {
	s := Stats{Words: len(strings.Fields(text))}
	for _, r := range text {
		s.Characters++
		if !unicode.IsSpace(r) {
			s.CharactersNoSpaces++
		}
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	inParagraph := false
	for sc.Scan() {
		s.Lines++
		blank := strings.TrimSpace(sc.Text()) == ""
		if !blank && !inParagraph {
			s.Paragraphs++
		}
		inParagraph = !blank
	}

	inSentence := false
	for _, r := range text {
		switch {
		case r == '.' || r == '!' || r == '?':
			if inSentence {
				s.Sentences++
			}
			inSentence = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			inSentence = true
		}
	}
	if inSentence {
		s.Sentences++
	}
	return s
}

// FormatJSON re-indents text with indent spaces, or strips all insignificant
// whitespace when minify is set. Key order is kept.
func FormatJSON(text string, indent int, minify bool) (string, error) {
	var v any
	if err := sonic.UnmarshalString(text, &v); err != nil {
		return "", contracts.Invalid("text", nil, "invalid JSON: "+err.Error())
	}
	if indent < 0 || indent > 8 {
		return "", contracts.Invalid("indent", indent, "must be between 0 and 8")
	}
	var buf bytes.Buffer
	var err error
	if minify {
		err = json.Compact(&buf, []byte(text))
	} else {
		err = json.Indent(&buf, []byte(strings.TrimSpace(text)), "", strings.Repeat(" ", indent))
	}
	if err != nil {
		return "", contracts.Invalid("text", nil, "invalid JSON: "+err.Error())
	}
	return buf.String(), nil
}

func Base64(text, action string) (string, error) {
	switch strings.ToLower(action) {
	case "", "encode":
		return base64.StdEncoding.EncodeToString([]byte(text)), nil
	case "decode":
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
		if err != nil {
			return "", contracts.Invalid("text", nil, "invalid base64: "+err.Error())
		}
		if !utf8.Valid(data) {
			return "", contracts.Invalid("text", nil, "decoded data is not UTF-8 text")
		}
		return string(data), nil
	}
	return "", contracts.Invalid("action", action, "must be encode or decode")
}

const MaxUUIDs = 100

func UUIDs(count int) ([]string, error) {
	if count < 1 || count > MaxUUIDs {
		return nil, contracts.Invalid("count", count, "must be between 1 and 100")
	}
	out := make([]string, count)
	for i := range out {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, err
		}
		out[i] = id.String()
	}
	return out, nil
}

const (
	letters     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits      = "0123456789"
	punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// Password draws length characters uniformly with crypto/rand.
func Password(length int, symbols bool) (string, error) {
	if length < 4 || length > 128 {
		return "", contracts.Invalid("length", length, "must be between 4 and 128")
	}
	charset := letters + digits
	if symbols {
		charset += punctuation
	}
	limit := big.NewInt(int64(len(charset)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}

var hashes = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// Hashes returns hex digests keyed by algorithm name. "all" selects every
// supported algorithm.
func Hashes(text, algorithm string) (map[string]string, error) {
	algorithm = strings.ToLower(strings.TrimSpace(algorithm))
	if algorithm == "" {
		algorithm = "all"
	}
	out := make(map[string]string)
	for name, newHash := range hashes {
		if algorithm != "all" && algorithm != name {
			continue
		}
		h := newHash()
		h.Write([]byte(text))
		out[name] = hex.EncodeToString(h.Sum(nil))
	}
	if len(out) == 0 {
		return nil, contracts.Invalid("algorithm", algorithm, "must be md5, sha1, sha256, sha512 or all")
	}
	return out, nil
}

func ConvertCase(text, kind string) (string, error) {
	switch strings.ToLower(kind) {
	case "", "upper":
		return cases.Upper(language.Und).String(text), nil
	case "lower":
		return cases.Lower(language.Und).String(text), nil
	case "title":
		return cases.Title(language.Und).String(text), nil
	case "sentence":
		return sentenceCase(text), nil
	}
	return "", contracts.Invalid("type", kind, "must be upper, lower, title or sentence")
}

// sentenceCase lowers text and capitalizes the first letter of each sentence.
func sentenceCase(text string) string {
	lower := []rune(cases.Lower(language.Und).String(text))
	start := true
	for i, r := range lower {
		switch {
		case r == '.' || r == '!' || r == '?':
			start = true
		case start && unicode.IsLetter(r):
			lower[i] = unicode.ToUpper(r)
			start = false
		case unicode.IsDigit(r):
			start = false
		}
	}
	return string(lower)
}

// MarshalJSON renders tool results with sorted map keys.
func MarshalJSON(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}
