package suggest

import (
	"fmt"
	"os"
	"strings"

	"github.com/roboco-io/imgcaption/internal/config"
)

// Built-in provider names.
const (
	NameAnthropic = "anthropic"
	NameOpenAI    = "openai"
	NameGemini    = "gemini"
	NameOllama    = "ollama"
)

var builtins = []Info{
	{Name: NameAnthropic, DefaultModel: "claude-sonnet-4-20250514", EnvKey: "ANTHROPIC_API_KEY", Description: "Anthropic Claude"},
	{Name: NameOpenAI, DefaultModel: "gpt-4o-mini", EnvKey: "OPENAI_API_KEY", Description: "OpenAI GPT"},
	{Name: NameGemini, DefaultModel: "gemini-1.5-flash", EnvKey: "GOOGLE_API_KEY", Description: "Google Gemini"},
	{Name: NameOllama, DefaultModel: "llava", EnvKey: "OLLAMA_HOST", Description: "Local Ollama server"},
}

// Builtins returns the listing details of the built-in providers.
func Builtins() []Info {
	return append([]Info(nil), builtins...)
}

// NewFromConfig creates the named provider from cfg. Settings missing from
// cfg fall back to the provider's environment variable and default model.
func NewFromConfig(name string, cfg *config.Config) (Provider, error) {
	info, ok := builtinInfo(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}

	var pc config.Provider
	if cfg != nil {
		if p, ok := cfg.GetProvider(name); ok {
			pc = *p
		}
	}
	if pc.Model == "" {
		pc.Model = info.DefaultModel
	}

	switch name {
	case NameAnthropic:
		return NewAnthropic(keyOrEnv(pc.APIKey, info.EnvKey), pc.Model), nil
	case NameOpenAI:
		return NewOpenAI(keyOrEnv(pc.APIKey, info.EnvKey), pc.Model), nil
	case NameGemini:
		return NewGemini(keyOrEnv(pc.APIKey, info.EnvKey), pc.Model), nil
	default:
		endpoint := config.GetEnvOrDefault("OLLAMA_HOST", os.ExpandEnv(pc.Endpoint))
		if endpoint == "" {
			endpoint = "http://localhost:11434"
		}
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		return NewOllama(endpoint, pc.Model), nil
	}
}

// NewRegistryFromConfig registers every built-in provider configured from cfg.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	r := NewRegistry()
	for _, info := range builtins {
		p, err := NewFromConfig(info.Name, cfg)
		if err != nil {
			return nil, err
		}
		if err := r.Register(p, info); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RequestFromConfig returns the generation settings for the named provider.
func RequestFromConfig(cfg *config.Config, name string) Request {
	req := DefaultRequest()
	if cfg == nil {
		return req
	}
	if cfg.Suggest.Language != "" {
		req.Language = cfg.Suggest.Language
	}
	if cfg.Suggest.Temperature > 0 {
		req.Temperature = cfg.Suggest.Temperature
	}
	if p, ok := cfg.GetProvider(name); ok && p.MaxTokens > 0 {
		req.MaxTokens = p.MaxTokens
	}
	return req
}

// DetectProvider guesses the provider from a model name.
func DetectProvider(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		return NameAnthropic
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return NameOpenAI
	case strings.HasPrefix(m, "gemini"):
		return NameGemini
	default:
		return NameOllama
	}
}

// WithModel returns a copy of cfg whose named provider uses model.
func WithModel(cfg *config.Config, name, model string) *config.Config {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	out := *cfg
	out.Suggest.Providers = make(map[string]config.Provider, len(cfg.Suggest.Providers)+1)
	for k, v := range cfg.Suggest.Providers {
		out.Suggest.Providers[k] = v
	}
	p := out.Suggest.Providers[name]
	p.Model = model
	out.Suggest.Providers[name] = p
	return &out
}

func builtinInfo(name string) (Info, bool) {
	for _, info := range builtins {
		if info.Name == name {
			return info, true
		}
	}
	return Info{}, false
}

func keyOrEnv(key, env string) string {
	if key = os.ExpandEnv(key); key != "" {
		return key
	}
	return os.Getenv(env)
}
