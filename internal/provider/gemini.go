package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient implements Provider using the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini-backed provider.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

// Name implements Provider.
func (c *GeminiClient) Name() string { return "gemini" }

// Generate implements Provider.
func (c *GeminiClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}

	temperature := float32(0) // reproducible translations
	cfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", providerErr(c.Name(), err)
	}

	text := resp.Text()
	if text == "" {
		return "", providerErr(c.Name(), fmt.Errorf("empty completion"))
	}
	return text, nil
}
