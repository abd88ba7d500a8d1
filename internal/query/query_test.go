package query

import (
	"net/url"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Params
	}{
		{
			name: "all keys",
			raw:  "caption=Hi&img=https://example.com/a.png&fontsz=30",
			expected: Params{
				Caption:  "Hi",
				Img:      "https://example.com/a.png",
				FontSize: 30,
				Present:  true,
			},
		},
		{
			name: "leading question mark",
			raw:  "?caption=Hello%20there",
			expected: Params{
				Caption: "Hello there",
				Present: true,
			},
		},
		{
			name: "zero font size ignored",
			raw:  "img=a.png&fontsz=0",
			expected: Params{
				Img:     "a.png",
				Present: true,
			},
		},
		{
			name: "non-numeric font size ignored",
			raw:  "fontsz=big",
			expected: Params{
				Present: true,
			},
		},
		{
			name:     "empty query",
			raw:      "",
			expected: Params{},
		},
		{
			name:     "unrelated keys",
			raw:      "utm_source=x",
			expected: Params{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Parse(tc.raw); got != tc.expected {
				t.Errorf("Parse(%q) = %+v, want %+v", tc.raw, got, tc.expected)
			}
		})
	}
}

func TestParseFontSize(t *testing.T) {
	tests := []struct {
		input string
		value int
		ok    bool
	}{
		{"30", 30, true},
		{" 42 ", 42, true},
		{"24px", 24, true},
		{"+12", 12, true},
		{"-5", -5, true},
		{"0", 0, false},
		{"", 0, false},
		{"px", 0, false},
		{"-", 0, false},
		{"99999999999999999999999", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			value, ok := ParseFontSize(tc.input)
			if value != tc.value || ok != tc.ok {
				t.Errorf("ParseFontSize(%q) = (%d, %v), want (%d, %v)", tc.input, value, ok, tc.value, tc.ok)
			}
		})
	}
}

func TestParams_Encode(t *testing.T) {
	p := Params{Caption: "Hi there", Img: "https://example.com/a.png", FontSize: 30}

	values, err := url.ParseQuery(p.Encode())
	if err != nil {
		t.Fatalf("failed to parse encoded query: %v", err)
	}
	if values.Get("caption") != "Hi there" || values.Get("img") != p.Img || values.Get("fontsz") != "30" {
		t.Errorf("unexpected encoded values %v", values)
	}

	if got := (Params{}).Encode(); got != "" {
		t.Errorf("expected empty query, got %q", got)
	}
}

func TestPadFontSize(t *testing.T) {
	tests := map[string]string{
		"":    "00",
		"7":   "07",
		"20":  "20",
		"120": "120",
	}
	for input, expected := range tests {
		if got := PadFontSize(input); got != expected {
			t.Errorf("PadFontSize(%q) = %q, want %q", input, got, expected)
		}
	}
}
