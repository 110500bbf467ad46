// Package engine hosts the deterministic domain evaluators. Every engine
// shares the same contract: parse first, fail fast on bad grammar, compute
// with no randomness, no clock reads, no network, and return within a
// bounded budget. Determinism here is the core value proposition of the
// whole router and is treated as a hard invariant.
package engine

import (
	"context"
	"time"

	"qwed/internal/types"
)

// Engine evaluates one domain's DSL.
type Engine interface {
	// Name identifies the evaluation method in verdict evidence.
	Name() string

	// Domain returns the domain this engine serves.
	Domain() types.Domain

	// Validate checks expr against the domain grammar without evaluating.
	// The translator uses this as the syntax gate for untrusted output.
	Validate(expr string) error

	// Evaluate parses and computes expr. Malformed input yields an
	// OutcomeSyntaxError, never a partial evaluation.
	Evaluate(ctx context.Context, expr string) types.EngineOutcome
}

// Config carries the tunable knobs shared by the engines.
type Config struct {
	// Epsilon is the relative tolerance for floating-point equality.
	Epsilon float64
	// EvalTimeout bounds one engine evaluation, independent of the
	// translator's network timeout.
	EvalTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Epsilon:     1e-9,
		EvalTimeout: 5 * time.Second,
	}
}

// Registry maps domains to their engines.
type Registry struct {
	engines map[types.Domain]Engine
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[types.Domain]Engine)}
}

// Register adds an engine for its domain, replacing any previous one.
func (r *Registry) Register(e Engine) {
	r.engines[e.Domain()] = e
}

// For returns the engine for a domain.
func (r *Registry) For(domain types.Domain) (Engine, bool) {
	e, ok := r.engines[domain]
	return e, ok
}

// runWithBudget executes eval on its own goroutine and converts a blown
// budget (engine timeout or caller deadline) into an OutcomeTimeout. The
// evaluation goroutine is not forcibly killed - engines are expected to be
// cheap - but its late result is discarded so a partial answer never leaks.
func runWithBudget(ctx context.Context, budget time.Duration, eval func() types.EngineOutcome) types.EngineOutcome {
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	done := make(chan types.EngineOutcome, 1)
	go func() {
		done <- eval()
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-ctx.Done():
		return types.EngineOutcome{Kind: types.OutcomeTimeout}
	}
}
