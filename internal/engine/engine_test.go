package engine

import (
	"context"
	"testing"
	"time"

	"qwed/internal/provider"
	"qwed/internal/types"
)

func TestRegistryCoversAllVerifiableDomains(t *testing.T) {
	chain := provider.Chain{
		&scriptedProvider{name: "alpha"},
		&scriptedProvider{name: "beta"},
	}
	r := NewDefaultRegistry(DefaultConfig(), chain)

	for _, domain := range types.AllDomains {
		if domain == types.DomainUnknown {
			if _, ok := r.For(domain); ok {
				t.Fatalf("unknown domain must have no engine")
			}
			continue
		}
		e, ok := r.For(domain)
		if !ok {
			t.Fatalf("no engine registered for %s", domain)
		}
		if e.Domain() != domain {
			t.Fatalf("engine for %s reports domain %s", domain, e.Domain())
		}
		if e.Name() == "" {
			t.Fatalf("engine for %s has empty name", domain)
		}
	}
}

func TestRunWithBudgetTimeout(t *testing.T) {
	outcome := runWithBudget(context.Background(), 10*time.Millisecond, func() types.EngineOutcome {
		time.Sleep(500 * time.Millisecond)
		return types.Computed("too late", true)
	})
	if outcome.Kind != types.OutcomeTimeout {
		t.Fatalf("kind = %s, want timeout", outcome.Kind)
	}
}

func TestRunWithBudgetCallerDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	outcome := runWithBudget(ctx, time.Minute, func() types.EngineOutcome {
		time.Sleep(500 * time.Millisecond)
		return types.Computed("too late", true)
	})
	if outcome.Kind != types.OutcomeTimeout {
		t.Fatalf("kind = %s, want timeout on caller deadline", outcome.Kind)
	}
}

func TestRunWithBudgetPassesResult(t *testing.T) {
	outcome := runWithBudget(context.Background(), time.Second, func() types.EngineOutcome {
		return types.Computed("prompt", true)
	})
	if outcome.Kind != types.OutcomeComputed || outcome.Value != "prompt" {
		t.Fatalf("outcome = %+v", outcome)
	}
}
