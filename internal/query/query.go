// Package query reads and writes the startup parameters of a caption
// render: caption, img and fontsz.
package query

import (
	"net/url"
	"strconv"
	"strings"
)

// Query-string keys.
const (
	KeyCaption  = "caption"
	KeyImage    = "img"
	KeyFontSize = "fontsz"
)

// Params are the values seeded from a query string.
type Params struct {
	Caption  string
	Img      string
	FontSize int // zero when absent or invalid
	Present  bool
}

// Parse reads raw, with or without a leading '?'. Unknown keys are ignored.
func Parse(raw string) Params {
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil && values == nil {
		return Params{}
	}
	return FromValues(values)
}

// FromValues reads already parsed query values.
func FromValues(values url.Values) Params {
	p := Params{
		Caption: values.Get(KeyCaption),
		Img:     values.Get(KeyImage),
	}
	if n, ok := ParseFontSize(values.Get(KeyFontSize)); ok {
		p.FontSize = n
	}
	for _, key := range []string{KeyCaption, KeyImage, KeyFontSize} {
		if values.Has(key) {
			p.Present = true
		}
	}
	return p
}

// Encode builds a query string from p, omitting empty values.
func (p Params) Encode() string {
	values := url.Values{}
	if p.Caption != "" {
		values.Set(KeyCaption, p.Caption)
	}
	if p.Img != "" {
		values.Set(KeyImage, p.Img)
	}
	if p.FontSize > 0 {
		values.Set(KeyFontSize, strconv.Itoa(p.FontSize))
	}
	return values.Encode()
}

// ParseFontSize reads an optional sign followed by leading decimal digits,
// ignoring surrounding whitespace and anything after the digits. It reports
// false when no digits are found or the value is zero.
func ParseFontSize(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// PadFontSize renders a font-size field for display, left-padded with
// zeros to two characters.
func PadFontSize(s string) string {
	if len(s) >= 2 {
		return s
	}
	return strings.Repeat("0", 2-len(s)) + s
}
