package engine

import (
	"context"
	"testing"

	"qwed/internal/types"
)

func TestSQLEngineCleanQuery(t *testing.T) {
	e := NewSQLEngine(DefaultConfig())
	got := e.Evaluate(context.Background(), "SELECT name, email FROM users WHERE id = 42")
	if got.Kind != types.OutcomeFindings {
		t.Fatalf("kind = %s, detail = %s", got.Kind, got.Detail)
	}
	if len(got.Findings) != 0 {
		t.Fatalf("clean query produced findings: %+v", got.Findings)
	}
}

func TestSQLEngineInjectionPatterns(t *testing.T) {
	e := NewSQLEngine(DefaultConfig())
	ctx := context.Background()

	cases := []struct {
		name string
		stmt string
		rule string
	}{
		{
			name: "numeric_tautology",
			stmt: "SELECT * FROM users WHERE name = 'x' OR 1=1",
			rule: "tautological_condition",
		},
		{
			name: "string_tautology",
			stmt: "SELECT * FROM users WHERE 'a'='a'",
			rule: "tautological_condition",
		},
		{
			name: "or_true",
			stmt: "SELECT * FROM accounts WHERE owner = 'bob' OR TRUE",
			rule: "tautological_condition",
		},
		{
			name: "stacked_statement",
			stmt: "SELECT * FROM users; DROP TABLE users",
			rule: "stacked_statement",
		},
		{
			name: "comment_truncation",
			stmt: "SELECT * FROM users WHERE name = 'admin' -- AND active = 1",
			rule: "comment_truncation",
		},
		{
			name: "string_concat",
			stmt: "SELECT * FROM users WHERE name = '\" + userName + \"'",
			rule: "string_concatenation",
		},
		{
			name: "union_on_update",
			stmt: "UPDATE t SET a = 1 WHERE x UNION SELECT secret FROM vault",
			rule: "union_injection",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(ctx, tc.stmt)
			if got.Kind != types.OutcomeFindings {
				t.Fatalf("kind = %s, detail = %s", got.Kind, got.Detail)
			}
			if findingRules(got.Findings)[tc.rule] == 0 {
				t.Fatalf("missing %s finding for %q: %+v", tc.rule, tc.stmt, got.Findings)
			}
		})
	}
}

func TestSQLEngineNoFalseTautology(t *testing.T) {
	e := NewSQLEngine(DefaultConfig())
	got := e.Evaluate(context.Background(), "SELECT * FROM orders WHERE qty = 2 AND price = 10")
	if findingRules(got.Findings)["tautological_condition"] != 0 {
		t.Fatalf("distinct operands flagged as tautology: %+v", got.Findings)
	}
}

func TestSQLEngineSyntaxErrors(t *testing.T) {
	e := NewSQLEngine(DefaultConfig())
	ctx := context.Background()

	cases := []struct {
		name string
		stmt string
	}{
		{name: "empty", stmt: "   "},
		{name: "not_sql", stmt: "HELLO WORLD"},
		{name: "unterminated_quote", stmt: "SELECT * FROM users WHERE name = 'bob"},
		{name: "unbalanced_parens", stmt: "SELECT * FROM users WHERE id IN (1, 2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(ctx, tc.stmt)
			if got.Kind != types.OutcomeSyntaxError {
				t.Fatalf("kind = %s, want syntax_error", got.Kind)
			}
		})
	}
}

func TestSQLEngineValidate(t *testing.T) {
	e := NewSQLEngine(DefaultConfig())
	if err := e.Validate("SELECT 1"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := e.Validate("DANCE WITH ME"); err == nil {
		t.Fatalf("Validate accepted non-SQL text")
	}
}
