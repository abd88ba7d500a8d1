// Package caption lays out and draws a wrapped caption bar above an image.
package caption

import "strings"

// MeasureFunc returns the rendered width of text in pixels.
type MeasureFunc func(text string) float64

// WrapOptions controls how a caption is split into words.
type WrapOptions struct {
	// CollapseSpaces splits on runs of whitespace instead of single spaces.
	// When false, consecutive spaces yield empty words that are kept in
	// the output lines.
	CollapseSpaces bool
}

// Wrap breaks text into lines whose measured width does not exceed
// maxWidth. Words are never split: a word wider than maxWidth occupies a
// line of its own.
func Wrap(text string, maxWidth float64, measure MeasureFunc, opts WrapOptions) []string {
	words := splitWords(text, opts)
	if len(words) == 0 {
		return nil
	}

	lines := make([]string, 0, 4)
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if measure(candidate) > maxWidth {
			lines = append(lines, current)
			current = word
		} else {
			current = candidate
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

func splitWords(text string, opts WrapOptions) []string {
	if opts.CollapseSpaces {
		return strings.Fields(text)
	}
	return strings.Split(text, " ")
}
