package suggest

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider suggests captions with the Gemini API.
type GeminiProvider struct {
	apiKey string
	model  string
}

// NewGemini creates a provider. The client is created per request.
func NewGemini(apiKey, model string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, model: model}
}

// Name returns "gemini".
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Validate checks that an API key and model are set.
func (p *GeminiProvider) Validate() error {
	if p.apiKey == "" {
		return errors.New("GOOGLE_API_KEY is not set")
	}
	if p.model == "" {
		return errors.New("gemini model is not set")
	}
	return nil
}

// Suggest sends the image inline next to the prompt.
func (p *GeminiProvider) Suggest(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Image, req.MIME),
			genai.NewPartFromText(BuildPrompt(req)),
		}, genai.RoleUser),
	}
	resp, err := client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	result := &Result{
		Caption: CleanCaption(resp.Text()),
		Model:   p.model,
	}
	if resp.ModelVersion != "" {
		result.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		result.Usage = TokenUsage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return result, nil
}
