package caption

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func newTestComposer(t *testing.T) *Composer {
	t.Helper()
	c, err := NewComposer(DefaultOptions())
	if err != nil {
		t.Fatalf("failed to create composer: %v", err)
	}
	return c
}

func TestComposer_RenderEmptyTitle(t *testing.T) {
	c := newTestComposer(t)
	red := color.RGBA{R: 255, A: 255}

	canvas, err := c.Render(solidImage(100, 50, red), "", 20)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	// 20px top margin plus 18px bottom margin.
	if canvas.Bounds().Dx() != 100 || canvas.Bounds().Dy() != 88 {
		t.Fatalf("expected 100x88 canvas, got %v", canvas.Bounds())
	}
	if got := canvas.RGBAAt(50, 10); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("expected white bar, got %v", got)
	}
	if got := canvas.RGBAAt(50, 38); got != red {
		t.Errorf("expected image to start at the bar edge, got %v", got)
	}
	if got := canvas.RGBAAt(50, 37); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("expected last bar row to be white, got %v", got)
	}
}

func TestComposer_RenderDrawsText(t *testing.T) {
	c := newTestComposer(t)
	canvas, err := c.Render(solidImage(300, 60, color.White), "Caption text", 24)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	layout, err := c.Layout(300, 60, "Caption text", 24)
	if err != nil {
		t.Fatalf("layout failed: %v", err)
	}

	dark := 0
	for y := 0; y < layout.BarHeight; y++ {
		for x := 0; x < 300; x++ {
			if px := canvas.RGBAAt(x, y); px.R < 128 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Error("expected caption pixels in the bar")
	}
}

func TestComposer_RenderIsDeterministic(t *testing.T) {
	c := newTestComposer(t)
	src := solidImage(120, 80, color.RGBA{G: 128, B: 255, A: 255})
	title := "the same caption drawn twice should match exactly"

	a, err := c.Render(src, title, 18)
	if err != nil {
		t.Fatalf("first render failed: %v", err)
	}
	b, err := c.Render(src, title, 18)
	if err != nil {
		t.Fatalf("second render failed: %v", err)
	}

	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("expected byte-identical canvases")
	}
}

func TestComposer_RenderErrors(t *testing.T) {
	c := newTestComposer(t)

	tests := []struct {
		name     string
		img      image.Image
		fontSize float64
		expected error
	}{
		{"nil image", nil, 20, ErrEmptyImage},
		{"zero-size image", image.NewRGBA(image.Rect(0, 0, 0, 0)), 20, ErrEmptyImage},
		{"zero font size", solidImage(10, 10, color.White), 0, ErrInvalidFontSize},
		{"negative font size", solidImage(10, 10, color.White), -4, ErrInvalidFontSize},
		{"font size overflowing the bar height", solidImage(2000, 10, color.White), 3e15, ErrCanvasTooLarge},
		{"font size near the int64 limit", solidImage(2000, 10, color.White), 9.22e18, ErrCanvasTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Render(tc.img, "x", tc.fontSize)
			if !errors.Is(err, tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, err)
			}
			var renderErr *RenderError
			if !errors.As(err, &renderErr) {
				t.Errorf("expected *RenderError, got %T", err)
			}
		})
	}
}

func TestComposer_MaxPixels(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPixels = 1000
	c, err := NewComposer(opts)
	if err != nil {
		t.Fatalf("failed to create composer: %v", err)
	}

	_, err = c.Render(solidImage(40, 40, color.White), "", 10)
	if !errors.Is(err, ErrCanvasTooLarge) {
		t.Errorf("expected ErrCanvasTooLarge, got %v", err)
	}
}

func TestComposer_Measurer(t *testing.T) {
	c := newTestComposer(t)

	measure, err := c.Measurer(20)
	if err != nil {
		t.Fatalf("failed to get measurer: %v", err)
	}
	if measure("") != 0 {
		t.Errorf("expected empty string to measure 0, got %v", measure(""))
	}
	if measure("ab") <= measure("a") {
		t.Error("expected longer text to be wider")
	}

	bigger, _ := c.Measurer(40)
	if bigger("hello") <= measure("hello") {
		t.Error("expected larger font to be wider")
	}

	if _, err := c.Measurer(0); !errors.Is(err, ErrInvalidFontSize) {
		t.Errorf("expected ErrInvalidFontSize, got %v", err)
	}
}

func TestNewComposer_BadFontPath(t *testing.T) {
	opts := DefaultOptions()
	opts.FontPath = filepath.Join(t.TempDir(), "missing.ttf")

	if _, err := NewComposer(opts); err == nil {
		t.Error("expected error for missing font file")
	}
}

func TestEncode(t *testing.T) {
	img := solidImage(4, 4, color.White)

	var buf bytes.Buffer
	if err := Encode(&buf, img, "png", 0); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("expected decodable png: %v", err)
	}

	buf.Reset()
	if err := Encode(&buf, img, "jpeg", 500); err != nil {
		t.Fatalf("jpeg encode failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected jpeg output")
	}

	if err := Encode(&buf, img, "tiff", 0); err == nil {
		t.Error("expected error for unsupported format")
	}
}
