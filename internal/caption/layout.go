package caption

import "math"

// Layout ratios, all relative to the font size.
const (
	HorizontalMarginRatio      = 1.0
	TopMarginRatio             = 1.0
	BottomMarginRatio          = 0.9
	SymmetricBottomMarginRatio = 1.0
	LineHeightRatio            = 1.2
)

// Margins are the caption bar spacings in pixels for one font size.
type Margins struct {
	Horizontal float64
	Top        float64
	Bottom     float64
	LineHeight float64
}

// MarginsFor returns the margins for fontSize. With symmetric set the
// bottom margin equals the top margin.
func MarginsFor(fontSize float64, symmetric bool) Margins {
	bottom := BottomMarginRatio
	if symmetric {
		bottom = SymmetricBottomMarginRatio
	}
	return Margins{
		Horizontal: HorizontalMarginRatio * fontSize,
		Top:        TopMarginRatio * fontSize,
		Bottom:     bottom * fontSize,
		LineHeight: LineHeightRatio * fontSize,
	}
}

// LayoutOptions selects the layout variant.
type LayoutOptions struct {
	SymmetricMargins bool
	Wrap             WrapOptions
}

// Line is one wrapped caption line and the top-left corner it is drawn at.
type Line struct {
	Text string
	X    float64
	Y    float64
}

// Layout is the geometry of a captioned canvas.
type Layout struct {
	FontSize    float64
	Margins     Margins
	TextWidth   float64
	Lines       []Line
	TitleHeight float64
	BarHeight   int
	Width       int
	Height      int
	// Area is the canvas area computed in floating point, so it stays
	// meaningful when the integer sizes had to be clamped.
	Area float64
}

// maxDimension bounds BarHeight and Height so the integer conversion is
// defined for any font size.
const maxDimension = math.MaxInt32

// ComputeLayout wraps title against the usable width of an imgW x imgH
// image and derives the caption bar and canvas sizes.
func ComputeLayout(imgW, imgH int, title string, fontSize float64, measure MeasureFunc, opts LayoutOptions) Layout {
	m := MarginsFor(fontSize, opts.SymmetricMargins)
	textWidth := float64(imgW) - 2*m.Horizontal

	wrapped := Wrap(title, textWidth, measure, opts.Wrap)

	titleHeight := 0.0
	if len(wrapped) > 0 {
		titleHeight = fontSize + m.LineHeight*float64(len(wrapped)-1)
	}
	barF := math.Ceil(titleHeight + m.Top + m.Bottom)
	area := float64(imgW) * (float64(imgH) + barF)
	barHeight := int(math.Min(barF, maxDimension))
	height := imgH + barHeight
	if float64(imgH)+barF > maxDimension {
		height = maxDimension
	}

	lines := make([]Line, len(wrapped))
	y := m.Top
	for i, text := range wrapped {
		lines[i] = Line{Text: text, X: m.Horizontal, Y: y}
		y += m.LineHeight
	}

	return Layout{
		FontSize:    fontSize,
		Margins:     m,
		TextWidth:   textWidth,
		Lines:       lines,
		TitleHeight: titleHeight,
		BarHeight:   barHeight,
		Width:       imgW,
		Height:      height,
		Area:        area,
	}
}

// Texts returns the wrapped line strings.
func (l Layout) Texts() []string {
	out := make([]string, len(l.Lines))
	for i, line := range l.Lines {
		out[i] = line.Text
	}
	return out
}
