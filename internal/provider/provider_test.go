package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenAIClientGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"2 + 2"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClientWithConfig(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})

	got, err := client.Generate(context.Background(), "sys", "translate this")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if got != "2 + 2" {
		t.Fatalf("Generate = %q", got)
	}
}

func TestOpenAIClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClientWithConfig(OpenAIConfig{
		APIKey: "k", BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second,
	})

	_, err := client.Generate(context.Background(), "", "prompt")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}
}

func TestOpenAIClientMissingKey(t *testing.T) {
	client := NewOpenAIClient("")
	_, err := client.Generate(context.Background(), "", "prompt")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}
}

func TestAnthropicClientGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Errorf("missing anthropic-version header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"mean([1, 2, 3])"}]}`))
	}))
	defer srv.Close()

	client := NewAnthropicClientWithConfig(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "claude-sonnet-4-5",
		Timeout: 5 * time.Second,
	})

	got, err := client.Generate(context.Background(), "sys", "translate")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if got != "mean([1, 2, 3])" {
		t.Fatalf("Generate = %q", got)
	}
}

func TestAnthropicClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewAnthropicClientWithConfig(AnthropicConfig{
		APIKey: "k", BaseURL: srv.URL, Model: "m", Timeout: 2 * time.Second,
	})

	_, err := client.Generate(context.Background(), "", "prompt")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}
}

func TestChainNames(t *testing.T) {
	chain := Chain{NewOpenAIClient("a"), NewAnthropicClient("b")}
	names := chain.Names()
	if len(names) != 2 || names[0] != "openai" || names[1] != "anthropic" {
		t.Fatalf("Names = %v", names)
	}
}

func TestBuildChainUnknownKind(t *testing.T) {
	_, err := BuildChain(context.Background(), []Spec{{Kind: "carrier-pigeon"}})
	if err == nil {
		t.Fatalf("expected error for unknown provider kind")
	}
}

func TestBuildChainOrder(t *testing.T) {
	chain, err := BuildChain(context.Background(), []Spec{
		{Kind: "anthropic", APIKey: "x"},
		{Kind: "openai", APIKey: "y"},
	})
	if err != nil {
		t.Fatalf("BuildChain error: %v", err)
	}
	names := chain.Names()
	if names[0] != "anthropic" || names[1] != "openai" {
		t.Fatalf("chain order = %v", names)
	}
}
