package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"qwed/internal/provider"
	"qwed/internal/types"
)

// ConsensusEngine polls every configured provider with the same question
// and requires unanimous agreement. Any disagreement keeps every answer in
// the outcome - never averaged, never majority-voted, because a silent
// majority vote reintroduces the correlated-error risk the poll defends
// against.
//
// This engine is the one deliberate exception to the no-network rule: its
// whole job is cross-provider comparison. The caller's deadline bounds the
// poll.
type ConsensusEngine struct {
	cfg   Config
	chain provider.Chain
}

const consensusSystemPrompt = "Answer the question with the shortest possible factual answer. " +
	"No explanation, no punctuation, no hedging. One line only."

// NewConsensusEngine creates the consensus engine over the given providers.
func NewConsensusEngine(cfg Config, chain provider.Chain) *ConsensusEngine {
	return &ConsensusEngine{cfg: cfg, chain: chain}
}

// Name implements Engine.
func (e *ConsensusEngine) Name() string { return "provider_consensus" }

// Domain implements Engine.
func (e *ConsensusEngine) Domain() types.Domain { return types.DomainConsensus }

// Validate implements Engine. The DSL is the bare question text.
func (e *ConsensusEngine) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("empty question")
	}
	if len(e.chain) < 2 {
		return fmt.Errorf("consensus needs at least 2 providers, have %d", len(e.chain))
	}
	return nil
}

// Evaluate implements Engine.
func (e *ConsensusEngine) Evaluate(ctx context.Context, expr string) types.EngineOutcome {
	if err := e.Validate(expr); err != nil {
		return types.SyntaxFailure(err.Error())
	}

	answers := make([]string, len(e.chain))
	failures := make([]error, len(e.chain))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range e.chain {
		g.Go(func() error {
			answer, err := p.Generate(gctx, consensusSystemPrompt, strings.TrimSpace(expr))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[i] = err
				return nil // one failed provider must not cancel the rest
			}
			answers[i] = answer
			return nil
		})
	}
	g.Wait()

	// The errgroup context is canceled as a side effect of Wait returning,
	// so only the caller's context tells us whether the poll ran out of time.
	if ctx.Err() != nil {
		return types.EngineOutcome{Kind: types.OutcomeTimeout}
	}

	labeled := make([]string, 0, len(e.chain))
	normalized := make(map[string]bool)
	anySuccess := false
	anyFailure := false
	for i, p := range e.chain {
		if failures[i] != nil {
			anyFailure = true
			labeled = append(labeled, fmt.Sprintf("%s: <error: %v>", p.Name(), failures[i]))
			continue
		}
		anySuccess = true
		labeled = append(labeled, fmt.Sprintf("%s: %s", p.Name(), strings.TrimSpace(answers[i])))
		normalized[types.NormalizeText(answers[i])] = true
	}

	if !anySuccess {
		return types.EngineOutcome{Kind: types.OutcomeDisagreement, Answers: labeled}
	}
	// Unanimity means every provider answered and all answers agree. A
	// provider that could not answer counts as disagreement: silence is
	// not agreement.
	if anyFailure || len(normalized) != 1 {
		return types.EngineOutcome{Kind: types.OutcomeDisagreement, Answers: labeled}
	}

	for agreed := range normalized {
		// Generative output is never proof-grade: exact stays false.
		return types.Computed(agreed, false)
	}
	return types.EngineOutcome{Kind: types.OutcomeDisagreement, Answers: labeled}
}
