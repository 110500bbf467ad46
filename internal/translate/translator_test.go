package translate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"qwed/internal/provider"
	"qwed/internal/types"
)

type scriptedProvider struct {
	name    string
	replies []string
	errs    []error
	calls   int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(_ context.Context, _, _ string) (string, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", fmt.Errorf("provider %s: %w", p.name, provider.ErrProvider)
	}
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return "", fmt.Errorf("provider %s: script exhausted: %w", p.name, provider.ErrProvider)
}

func acceptAll(string) error { return nil }

func rejectAll(string) error { return errors.New("bad grammar") }

func TestTranslateFirstProviderSucceeds(t *testing.T) {
	p := &scriptedProvider{name: "a", replies: []string{"2 + 2"}}
	tr := New(provider.Chain{p}, nil)

	res, err := tr.Translate(context.Background(), types.Query{Text: "what is 2+2"}, types.DomainMath, acceptAll)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Expression != "2 + 2" || res.Provider != "a" || !res.SyntaxValid || res.Attempts != 1 {
		t.Fatalf("got %+v", res)
	}
}

func TestTranslateFallsBackOnProviderError(t *testing.T) {
	bad := &scriptedProvider{name: "bad", errs: []error{provider.ErrProvider}}
	good := &scriptedProvider{name: "good", replies: []string{"3 * 7"}}
	tr := New(provider.Chain{bad, good}, nil)

	res, err := tr.Translate(context.Background(), types.Query{Text: "q"}, types.DomainMath, acceptAll)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Provider != "good" {
		t.Fatalf("Provider = %q, want good", res.Provider)
	}
	if res.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", res.Attempts)
	}
}

func TestTranslateRepromptOnceThenSucceed(t *testing.T) {
	p := &scriptedProvider{name: "a", replies: []string{"garbage", "5 + 5"}}
	tr := New(provider.Chain{p}, nil)

	validate := func(expr string) error {
		if expr == "garbage" {
			return errors.New("unexpected token")
		}
		return nil
	}
	res, err := tr.Translate(context.Background(), types.Query{Text: "q"}, types.DomainMath, validate)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Expression != "5 + 5" || res.Attempts != 2 {
		t.Fatalf("got %+v", res)
	}
	if p.calls != 2 {
		t.Fatalf("provider called %d times, want 2", p.calls)
	}
}

func TestTranslateUnparseableAfterReprompt(t *testing.T) {
	p := &scriptedProvider{name: "a", replies: []string{"junk one", "junk two"}}
	// A second provider exists but must not be consulted: a provider that
	// answers nonsense twice is a translation failure, not a provider
	// failure.
	spare := &scriptedProvider{name: "spare", replies: []string{"1 + 1"}}
	tr := New(provider.Chain{p, spare}, nil)

	res, err := tr.Translate(context.Background(), types.Query{Text: "q"}, types.DomainMath, rejectAll)
	if !errors.Is(err, types.ErrTranslationUnparseable) {
		t.Fatalf("err = %v, want ErrTranslationUnparseable", err)
	}
	if res.Expression != "junk two" {
		t.Fatalf("last expression not surfaced: %+v", res)
	}
	if spare.calls != 0 {
		t.Fatal("second provider consulted after unparseable output")
	}
}

func TestTranslateExpiredContextIsTimeout(t *testing.T) {
	a := &scriptedProvider{name: "a", replies: []string{"1 + 1"}}
	b := &scriptedProvider{name: "b", replies: []string{"1 + 1"}}
	tr := New(provider.Chain{a, b}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Translate(ctx, types.Query{Text: "q"}, types.DomainMath, acceptAll)
	if !errors.Is(err, types.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if errors.Is(err, types.ErrAllProvidersExhausted) {
		t.Fatal("an expired deadline must not masquerade as an exhausted chain")
	}
	if a.calls != 0 || b.calls != 0 {
		t.Fatalf("providers consulted after deadline expiry: a=%d b=%d", a.calls, b.calls)
	}
}

func TestTranslateAllProvidersExhausted(t *testing.T) {
	a := &scriptedProvider{name: "a", errs: []error{provider.ErrProvider}}
	b := &scriptedProvider{name: "b", errs: []error{provider.ErrProvider}}
	tr := New(provider.Chain{a, b}, nil)

	_, err := tr.Translate(context.Background(), types.Query{Text: "q"}, types.DomainMath, acceptAll)
	if !errors.Is(err, types.ErrAllProvidersExhausted) {
		t.Fatalf("err = %v, want ErrAllProvidersExhausted", err)
	}
}

func TestTranslateNoGrammarForDomain(t *testing.T) {
	tr := New(provider.Chain{&scriptedProvider{name: "a"}}, nil)
	_, err := tr.Translate(context.Background(), types.Query{Text: "q"}, types.DomainUnknown, acceptAll)
	if !errors.Is(err, types.ErrInvalidQuery) {
		t.Fatalf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestCleanExpression(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", " 2 + 2 ", "2 + 2"},
		{"fenced", "```\n2 + 2\n```", "2 + 2"},
		{"fenced with language", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"chatter before fence", "Here you go:\n```\nmean([1, 2])\n```", "mean([1, 2])"},
		{"expression on fence line", "```2 + 2\n```", "2 + 2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanExpression(tc.in); got != tc.want {
				t.Fatalf("CleanExpression(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
