package engine

import (
	"context"
	"strings"
	"testing"

	"qwed/internal/types"
)

const socratesProgram = `mortal(X) :- human(X).
human(/socrates).

?- mortal(/socrates).`

func TestLogicEngineDerivableGoal(t *testing.T) {
	e := NewLogicEngine(DefaultConfig())
	got := e.Evaluate(context.Background(), socratesProgram)
	if got.Kind != types.OutcomeComputed {
		t.Fatalf("kind = %s, detail = %s", got.Kind, got.Detail)
	}
	if got.Value != "true" || !got.Exact {
		t.Fatalf("outcome = %+v", got)
	}
}

func TestLogicEngineUnsatisfiableGoal(t *testing.T) {
	e := NewLogicEngine(DefaultConfig())
	program := `mortal(X) :- human(X).
human(/socrates).

?- mortal(/zeus).`

	got := e.Evaluate(context.Background(), program)
	if got.Kind != types.OutcomeUnsatisfiable {
		t.Fatalf("kind = %s, want unsatisfiable", got.Kind)
	}
}

func TestLogicEngineOpenGoal(t *testing.T) {
	e := NewLogicEngine(DefaultConfig())
	program := `mortal(X) :- human(X).
human(/socrates).
human(/plato).

?- mortal(X).`

	got := e.Evaluate(context.Background(), program)
	if got.Kind != types.OutcomeComputed {
		t.Fatalf("kind = %s, detail = %s", got.Kind, got.Detail)
	}
	if !strings.Contains(got.Value, "socrates") || !strings.Contains(got.Value, "plato") {
		t.Fatalf("open goal value = %q", got.Value)
	}

	// Sorted output: repeated evaluation renders identically.
	again := e.Evaluate(context.Background(), program)
	if again.Value != got.Value {
		t.Fatalf("non-reproducible open goal: %q vs %q", again.Value, got.Value)
	}
}

func TestLogicEngineSyntaxErrors(t *testing.T) {
	e := NewLogicEngine(DefaultConfig())
	ctx := context.Background()

	cases := []struct {
		name string
		expr string
	}{
		{name: "no_goal", expr: "human(/socrates)."},
		{name: "two_goals", expr: "human(/a).\n?- human(/a).\n?- human(/b)."},
		{name: "bad_goal", expr: "human(/a).\n?- not valid at all"},
		{name: "bad_program", expr: "this is not datalog\n?- human(/a)."},
		{name: "empty", expr: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(ctx, tc.expr)
			if got.Kind != types.OutcomeSyntaxError {
				t.Fatalf("kind = %s, want syntax_error (detail=%s)", got.Kind, got.Detail)
			}
		})
	}
}

func TestLogicEngineValidate(t *testing.T) {
	e := NewLogicEngine(DefaultConfig())
	if err := e.Validate(socratesProgram); err != nil {
		t.Fatalf("Validate valid program: %v", err)
	}
	if err := e.Validate("nonsense"); err == nil {
		t.Fatalf("Validate accepted malformed program")
	}
}

func TestLogicEngineRepeatedVariableBinding(t *testing.T) {
	e := NewLogicEngine(DefaultConfig())
	program := `edge(/a, /b).
edge(/b, /b).

?- edge(X, X).`

	got := e.Evaluate(context.Background(), program)
	if got.Kind != types.OutcomeComputed {
		t.Fatalf("kind = %s, detail = %s", got.Kind, got.Detail)
	}
	if strings.Contains(got.Value, "/a") {
		t.Fatalf("edge(X, X) must not match edge(/a, /b): %q", got.Value)
	}
}
