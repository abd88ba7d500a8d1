// Package config manages application configuration.
package config

import (
	"time"

	"github.com/roboco-io/imgcaption/internal/caption"
	"github.com/roboco-io/imgcaption/internal/session"
	"github.com/roboco-io/imgcaption/internal/source"
)

// Config represents the application configuration.
type Config struct {
	Render  RenderConfig  `yaml:"render"`
	Layout  LayoutConfig  `yaml:"layout"`
	Text    TextConfig    `yaml:"text"`
	Session SessionConfig `yaml:"session"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Server  ServerConfig  `yaml:"server"`
	Suggest SuggestConfig `yaml:"suggest"`
}

// RenderConfig contains canvas and output options.
type RenderConfig struct {
	FontSize    int    `yaml:"font_size"`
	FontPath    string `yaml:"font_path,omitempty"` // TTF file; empty uses the built-in face
	MaxPixels   int    `yaml:"max_pixels"`
	Format      string `yaml:"format"` // png or jpeg
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// LayoutConfig selects the caption bar margins.
type LayoutConfig struct {
	SymmetricMargins bool `yaml:"symmetric_margins"`
}

// TextConfig controls caption word splitting.
type TextConfig struct {
	CollapseSpaces bool `yaml:"collapse_spaces"`
}

// SessionConfig selects the re-render policy of interactive sessions.
type SessionConfig struct {
	CancelSuperseded       bool              `yaml:"cancel_superseded"`
	RewriteKnownHosts      bool              `yaml:"rewrite_known_hosts"`
	AutoRenderOnEmptyQuery bool              `yaml:"auto_render_on_empty_query"`
	HostRules              []source.HostRule `yaml:"host_rules,omitempty"`
}

// FetchConfig contains image download options.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"` // 0 = no timeout
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

// ServerConfig contains HTTP server options.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SuggestConfig configures caption suggestion providers.
type SuggestConfig struct {
	DefaultProvider string              `yaml:"default_provider"`
	Auto            bool                `yaml:"auto"` // fill empty captions on render
	Language        string              `yaml:"language"`
	Temperature     float64             `yaml:"temperature"`
	Providers       map[string]Provider `yaml:"providers"`
}

// Provider represents an LLM provider configuration.
type Provider struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	Endpoint  string `yaml:"endpoint,omitempty"` // for Ollama or custom endpoints
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Render: RenderConfig{
			FontSize:    session.DefaultFontSize,
			MaxPixels:   caption.DefaultMaxPixels,
			Format:      "png",
			JPEGQuality: caption.DefaultJPEGQuality,
		},
		Session: SessionConfig{
			CancelSuperseded:  true,
			RewriteKnownHosts: true,
		},
		Fetch: FetchConfig{
			MaxBytes:  source.DefaultMaxBytes,
			UserAgent: source.DefaultUserAgent,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Suggest: SuggestConfig{
			DefaultProvider: "anthropic",
			Language:        "en",
			Temperature:     0.3,
			Providers: map[string]Provider{
				"openai": {
					APIKey:    "${OPENAI_API_KEY}",
					Model:     "gpt-4o-mini",
					MaxTokens: 256,
				},
				"anthropic": {
					APIKey:    "${ANTHROPIC_API_KEY}",
					Model:     "claude-sonnet-4-20250514",
					MaxTokens: 256,
				},
				"gemini": {
					APIKey:    "${GOOGLE_API_KEY}",
					Model:     "gemini-1.5-flash",
					MaxTokens: 256,
				},
				"ollama": {
					Endpoint:  "http://localhost:11434",
					Model:     "llava",
					MaxTokens: 256,
				},
			},
		},
	}
}

// GetProvider returns the provider configuration by name.
func (c *Config) GetProvider(name string) (*Provider, bool) {
	p, ok := c.Suggest.Providers[name]
	if !ok {
		return nil, false
	}
	return &p, true
}

// GetDefaultProvider returns the default provider configuration.
func (c *Config) GetDefaultProvider() (*Provider, bool) {
	return c.GetProvider(c.Suggest.DefaultProvider)
}

// CaptionOptions returns the composer options.
func (c *Config) CaptionOptions() caption.Options {
	opts := caption.DefaultOptions()
	opts.FontPath = c.Render.FontPath
	if c.Render.MaxPixels > 0 {
		opts.MaxPixels = c.Render.MaxPixels
	}
	opts.Layout = caption.LayoutOptions{
		SymmetricMargins: c.Layout.SymmetricMargins,
		Wrap:             caption.WrapOptions{CollapseSpaces: c.Text.CollapseSpaces},
	}
	return opts
}

// SessionOptions returns the orchestration policy.
func (c *Config) SessionOptions() session.Options {
	rules := c.Session.HostRules
	if len(rules) == 0 {
		rules = source.DefaultHostRules()
	}
	return session.Options{
		CancelSuperseded:       c.Session.CancelSuperseded,
		RewriteKnownHosts:      c.Session.RewriteKnownHosts,
		SymmetricMargins:       c.Layout.SymmetricMargins,
		AutoRenderOnEmptyQuery: c.Session.AutoRenderOnEmptyQuery,
		DefaultFontSize:        c.FontSize(),
		HostRules:              rules,
	}
}

// HTTPConfig returns the image loader options.
func (c *Config) HTTPConfig() source.HTTPConfig {
	return source.HTTPConfig{
		Timeout:   c.Fetch.Timeout,
		MaxBytes:  c.Fetch.MaxBytes,
		UserAgent: c.Fetch.UserAgent,
	}
}

// FontSize returns the configured fallback font size.
func (c *Config) FontSize() int {
	if c.Render.FontSize <= 0 {
		return session.DefaultFontSize
	}
	return c.Render.FontSize
}
