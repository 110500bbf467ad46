package engine

import (
	"context"
	"strconv"
	"testing"

	"qwed/internal/types"
)

func TestMathEngineEvaluate(t *testing.T) {
	e := NewMathEngine(DefaultConfig())
	ctx := context.Background()

	cases := []struct {
		name  string
		expr  string
		want  string
		exact bool
	}{
		{name: "addition", expr: "2 + 2", want: "4", exact: true},
		{name: "precedence", expr: "2 + 3 * 4", want: "14", exact: true},
		{name: "parens", expr: "(2 + 3) * 4", want: "20", exact: true},
		{name: "unary_minus", expr: "-5 + 3", want: "-2", exact: true},
		{name: "decimal", expr: "0.1 + 0.2", want: "0.3", exact: true},
		{name: "division_terminating", expr: "1 / 4", want: "0.25", exact: true},
		{name: "division_repeating", expr: "1 / 3", want: "1/3", exact: true},
		{name: "integer_power", expr: "2 ^ 10", want: "1024", exact: true},
		{name: "power_right_assoc", expr: "2 ^ 3 ^ 2", want: "512", exact: true},
		{name: "compound_interest", expr: "100000 * (1 + 0.05) ^ 10", want: "162889.462677744140625", exact: true},
		{name: "negative_power", expr: "2 ^ -2", want: "0.25", exact: true},
		{name: "sqrt_perfect", expr: "sqrt(144)", want: "12", exact: true},
		{name: "abs", expr: "abs(-3.5)", want: "3.5", exact: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(ctx, tc.expr)
			if got.Kind != types.OutcomeComputed {
				t.Fatalf("kind = %s, detail = %s", got.Kind, got.Detail)
			}
			if got.Value != tc.want {
				t.Fatalf("Evaluate(%q) = %q, want %q", tc.expr, got.Value, tc.want)
			}
			if got.Exact != tc.exact {
				t.Fatalf("Evaluate(%q) exact = %v, want %v", tc.expr, got.Exact, tc.exact)
			}
		})
	}
}

func TestMathEngineInexact(t *testing.T) {
	e := NewMathEngine(DefaultConfig())
	got := e.Evaluate(context.Background(), "sqrt(2)")
	if got.Kind != types.OutcomeComputed {
		t.Fatalf("kind = %s", got.Kind)
	}
	if got.Exact {
		t.Fatalf("sqrt(2) must be inexact")
	}
	f, err := strconv.ParseFloat(got.Value, 64)
	if err != nil {
		t.Fatalf("value %q not a float: %v", got.Value, err)
	}
	if f < 1.414 || f > 1.415 {
		t.Fatalf("sqrt(2) = %v", f)
	}
}

func TestMathEngineSyntaxErrors(t *testing.T) {
	e := NewMathEngine(DefaultConfig())
	ctx := context.Background()

	exprs := []string{
		"",
		"2 +",
		"(2 + 3",
		"2 ** 3 4",
		"hello world",
		"1 / 0",
		"2 + + 3 x",
		"mystery(4)",
	}
	for _, expr := range exprs {
		got := e.Evaluate(ctx, expr)
		if got.Kind != types.OutcomeSyntaxError {
			t.Fatalf("Evaluate(%q) kind = %s, want syntax_error", expr, got.Kind)
		}
		if got.Detail == "" {
			t.Fatalf("Evaluate(%q) missing detail", expr)
		}
	}
}

func TestMathEngineValidate(t *testing.T) {
	e := NewMathEngine(DefaultConfig())
	if err := e.Validate("2 + 2"); err != nil {
		t.Fatalf("Validate valid expr: %v", err)
	}
	if err := e.Validate("2 +"); err == nil {
		t.Fatalf("Validate accepted malformed expr")
	}
}

func TestMathEngineDeterministic(t *testing.T) {
	e := NewMathEngine(DefaultConfig())
	ctx := context.Background()
	first := e.Evaluate(ctx, "3 * (7 - 2) / 4 + sqrt(2)")
	for i := 0; i < 100; i++ {
		got := e.Evaluate(ctx, "3 * (7 - 2) / 4 + sqrt(2)")
		if got.Kind != first.Kind || got.Value != first.Value || got.Exact != first.Exact {
			t.Fatalf("iteration %d: %+v != %+v", i, got, first)
		}
	}
}
