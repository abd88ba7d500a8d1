package caption

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// DefaultMaxPixels caps the canvas area of a single render.
const DefaultMaxPixels = 40_000_000

var (
	ErrEmptyImage      = errors.New("image has no pixels")
	ErrInvalidFontSize = errors.New("font size must be a positive number")
	ErrCanvasTooLarge  = errors.New("canvas exceeds the pixel limit")
)

// RenderError reports a failure while laying out or drawing a caption.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return "render failed: " + e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Options configures a Composer.
type Options struct {
	FontPath   string // TTF file; empty uses Go Regular
	MaxPixels  int
	Background color.Color
	Foreground color.Color
	Layout     LayoutOptions
}

// DefaultOptions returns white-bar, black-text options with the built-in font.
func DefaultOptions() Options {
	return Options{
		MaxPixels:  DefaultMaxPixels,
		Background: color.White,
		Foreground: color.Black,
	}
}

// Composer draws captioned canvases. It is safe for concurrent use; every
// render builds its own font face.
type Composer struct {
	font *truetype.Font
	opts Options
}

// NewComposer parses the configured font.
func NewComposer(opts Options) (*Composer, error) {
	data := goregular.TTF
	if opts.FontPath != "" {
		b, err := os.ReadFile(opts.FontPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		data = b
	}

	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if opts.Background == nil {
		opts.Background = color.White
	}
	if opts.Foreground == nil {
		opts.Foreground = color.Black
	}

	return &Composer{font: f, opts: opts}, nil
}

// Options returns the composer configuration.
func (c *Composer) Options() Options {
	return c.opts
}

func (c *Composer) face(fontSize float64) font.Face {
	// 72 DPI makes one point one pixel.
	return truetype.NewFace(c.font, &truetype.Options{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// Measurer returns a MeasureFunc for the composer's font at fontSize.
func (c *Composer) Measurer(fontSize float64) (MeasureFunc, error) {
	if err := checkFontSize(fontSize); err != nil {
		return nil, err
	}
	return measureWith(c.face(fontSize)), nil
}

func measureWith(face font.Face) MeasureFunc {
	return func(text string) float64 {
		return float64(font.MeasureString(face, text)) / 64
	}
}

// Layout computes the geometry Render would use without drawing.
func (c *Composer) Layout(imgW, imgH int, title string, fontSize float64) (Layout, error) {
	if err := checkFontSize(fontSize); err != nil {
		return Layout{}, &RenderError{Err: err}
	}
	face := c.face(fontSize)
	defer face.Close()
	return ComputeLayout(imgW, imgH, title, fontSize, measureWith(face), c.opts.Layout), nil
}

// Render returns a canvas as wide as img, with the wrapped title drawn in
// a bar above it.
func (c *Composer) Render(img image.Image, title string, fontSize float64) (*image.RGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, &RenderError{Err: ErrEmptyImage}
	}
	if err := checkFontSize(fontSize); err != nil {
		return nil, &RenderError{Err: err}
	}

	b := img.Bounds()
	// The bar is never shorter than its margins, so oversized fonts are
	// rejected before a face is built for them.
	m := MarginsFor(fontSize, c.opts.Layout.SymmetricMargins)
	if err := c.checkArea(float64(b.Dx()) * (float64(b.Dy()) + m.Top + m.Bottom)); err != nil {
		return nil, err
	}

	face := c.face(fontSize)
	defer face.Close()

	layout := ComputeLayout(b.Dx(), b.Dy(), title, fontSize, measureWith(face), c.opts.Layout)
	if err := c.checkArea(layout.Area); err != nil {
		return nil, err
	}

	dc := gg.NewContext(layout.Width, layout.Height)
	dc.SetColor(color.Black)
	dc.Clear()

	dc.SetColor(c.opts.Background)
	dc.DrawRectangle(0, 0, float64(layout.Width), float64(layout.BarHeight))
	dc.Fill()

	canvas, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, &RenderError{Err: errors.New("unexpected canvas type")}
	}
	dst := image.Rect(0, layout.BarHeight, layout.Width, layout.Height)
	draw.Draw(canvas, dst, img, b.Min, draw.Over)

	// Lines are positioned by their top edge; the drawer wants a baseline.
	ascent := float64(face.Metrics().Ascent) / 64
	dc.SetFontFace(face)
	dc.SetColor(c.opts.Foreground)
	for _, line := range layout.Lines {
		dc.DrawString(line.Text, line.X, line.Y+ascent)
	}

	return canvas, nil
}

func (c *Composer) checkArea(area float64) error {
	if area > float64(c.opts.MaxPixels) {
		return &RenderError{Err: fmt.Errorf("%w: %.0f pixels", ErrCanvasTooLarge, area)}
	}
	return nil
}

func checkFontSize(fontSize float64) error {
	if math.IsNaN(fontSize) || math.IsInf(fontSize, 0) || fontSize <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidFontSize, fontSize)
	}
	return nil
}
