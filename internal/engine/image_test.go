package engine

import (
	"context"
	"testing"

	"qwed/internal/types"
)

// 1x1 transparent PNG.
const tinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

func TestImageEngineMatchingClaims(t *testing.T) {
	e := NewImageEngine(DefaultConfig())
	expr := "format=png\nwidth=1\nheight=1\ndata=" + tinyPNG
	got := e.Evaluate(context.Background(), expr)
	if got.Kind != types.OutcomeComputed {
		t.Fatalf("kind = %s, detail = %s", got.Kind, got.Detail)
	}
	if got.Value != "png 1x1" {
		t.Fatalf("value = %q", got.Value)
	}
	if !got.Exact {
		t.Fatalf("header decode is exact")
	}
}

func TestImageEngineMismatchedClaims(t *testing.T) {
	e := NewImageEngine(DefaultConfig())
	expr := "format=jpeg\nwidth=1920\ndata=" + tinyPNG
	got := e.Evaluate(context.Background(), expr)
	if got.Kind != types.OutcomeFindings {
		t.Fatalf("kind = %s", got.Kind)
	}
	if findingRules(got.Findings)["property_mismatch"] != 2 {
		t.Fatalf("findings = %+v, want format and width mismatches", got.Findings)
	}
}

func TestImageEngineSyntaxErrors(t *testing.T) {
	e := NewImageEngine(DefaultConfig())
	ctx := context.Background()

	exprs := []string{
		"",
		"format=png",                       // no data
		"data=" + tinyPNG,                  // no claim
		"width=zero\ndata=" + tinyPNG,      // malformed width
		"format=png\ndata=!!!not-base64",   // bad payload encoding
		"format=png\ndata=aGVsbG8gd29ybGQ=", // not an image
		"nonsense line\ndata=" + tinyPNG,
	}
	for _, expr := range exprs {
		got := e.Evaluate(ctx, expr)
		if got.Kind != types.OutcomeSyntaxError {
			t.Fatalf("Evaluate(%.40q) kind = %s, want syntax_error", expr, got.Kind)
		}
	}
}
