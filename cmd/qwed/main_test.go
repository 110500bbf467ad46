package main

import (
	"bytes"
	"testing"
	"time"

	"qwed/internal/config"
)

func TestProviderSpecsMapping(t *testing.T) {
	specs := providerSpecs([]config.ProviderConfig{
		{Kind: "openai", APIKey: "k1", Model: "gpt-4o", Timeout: "30s"},
		{Kind: "anthropic", APIKey: "k2"},
	})
	if len(specs) != 2 {
		t.Fatalf("got %d specs", len(specs))
	}
	if specs[0].Kind != "openai" || specs[0].Timeout != 30*time.Second {
		t.Fatalf("spec 0 = %+v", specs[0])
	}
	if specs[1].Timeout != 60*time.Second {
		t.Fatalf("missing timeout should default, got %v", specs[1].Timeout)
	}
}

func TestClassifyCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"classify", "what is 12 * 12"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}
