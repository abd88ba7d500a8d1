// Package suggest asks a vision-capable LLM to propose a caption for an image.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoImage is returned when a request carries no image bytes.
var ErrNoImage = errors.New("suggestion request has no image")

// Provider is the interface that all suggestion providers must implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// Suggest returns a caption for the image in req.
	Suggest(ctx context.Context, req Request) (*Result, error)

	// Validate checks if the provider is properly configured.
	Validate() error
}

// Request is one image to caption.
type Request struct {
	Image       []byte  `json:"-"`
	MIME        string  `json:"mime"`
	Language    string  `json:"language,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Prompt      string  `json:"prompt,omitempty"` // replaces the built-in prompt
}

// Result contains a suggested caption.
type Result struct {
	Caption string     `json:"caption"`
	Usage   TokenUsage `json:"usage"`
	Model   string     `json:"model"`
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// DefaultRequest returns a request with the default generation settings.
func DefaultRequest() Request {
	return Request{
		Language:    "en",
		MaxTokens:   256,
		Temperature: 0.3,
	}
}

// BuildPrompt returns the instruction sent alongside the image.
func BuildPrompt(req Request) string {
	if req.Prompt != "" {
		return req.Prompt
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}
	return fmt.Sprintf("Write one short, funny caption for this image, in the language with code %q. "+
		"It will be printed above the picture like a meme title. Reply with the caption text only.", lang)
}

func validateRequest(req Request) error {
	if len(req.Image) == 0 {
		return ErrNoImage
	}
	return nil
}

// CleanCaption trims whitespace and wrapping quotes and joins lines.
func CleanCaption(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, q := range []string{`"`, "'", "“", "”"} {
		s = strings.TrimPrefix(s, q)
		s = strings.TrimSuffix(s, q)
	}
	return strings.TrimSpace(s)
}
