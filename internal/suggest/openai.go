package suggest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider suggests captions through an OpenAI-compatible chat
// completion API. It also serves local Ollama models.
type OpenAIProvider struct {
	name       string
	apiKey     string
	model      string
	requireKey bool
	client     *openai.Client
}

// NewOpenAI creates a provider for api.openai.com.
func NewOpenAI(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		name:       "openai",
		apiKey:     apiKey,
		model:      model,
		requireKey: true,
		client:     openai.NewClient(apiKey),
	}
}

// NewOllama creates a provider for an Ollama server at endpoint.
func NewOllama(endpoint, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = strings.TrimRight(endpoint, "/") + "/v1"
	return &OpenAIProvider{
		name:   "ollama",
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Validate checks that an API key (when needed) and model are set.
func (p *OpenAIProvider) Validate() error {
	if p.requireKey && p.apiKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}
	if p.model == "" {
		return fmt.Errorf("%s model is not set", p.name)
	}
	return nil
}

// Suggest sends the image as a data URL part.
func (p *OpenAIProvider) Suggest(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	dataURL := "data:" + req.MIME + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: BuildPrompt(req)},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	return &Result{
		Caption: CleanCaption(resp.Choices[0].Message.Content),
		Model:   resp.Model,
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}
