package provider

import (
	"context"
	"fmt"
	"time"
)

// Spec names one provider in a configured chain.
type Spec struct {
	Kind    string // "openai", "anthropic", "gemini"
	APIKey  string
	Model   string // optional model override
	BaseURL string // optional endpoint override (OpenAI-compatible servers)
	Timeout time.Duration
}

// BuildChain constructs a provider chain from configuration, in order.
// An unknown kind is a configuration mistake and fails loud.
func BuildChain(ctx context.Context, specs []Spec) (Chain, error) {
	chain := make(Chain, 0, len(specs))
	for _, spec := range specs {
		p, err := build(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", spec.Kind, err)
		}
		chain = append(chain, p)
	}
	return chain, nil
}

func build(ctx context.Context, spec Spec) (Provider, error) {
	switch spec.Kind {
	case "openai":
		cfg := DefaultOpenAIConfig(spec.APIKey)
		if spec.Model != "" {
			cfg.Model = spec.Model
		}
		if spec.BaseURL != "" {
			cfg.BaseURL = spec.BaseURL
		}
		if spec.Timeout > 0 {
			cfg.Timeout = spec.Timeout
		}
		return NewOpenAIClientWithConfig(cfg), nil
	case "anthropic":
		cfg := DefaultAnthropicConfig(spec.APIKey)
		if spec.Model != "" {
			cfg.Model = spec.Model
		}
		if spec.BaseURL != "" {
			cfg.BaseURL = spec.BaseURL
		}
		if spec.Timeout > 0 {
			cfg.Timeout = spec.Timeout
		}
		return NewAnthropicClientWithConfig(cfg), nil
	case "gemini":
		return NewGeminiClient(ctx, spec.APIKey, spec.Model)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", spec.Kind)
	}
}
