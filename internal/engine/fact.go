package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"qwed/internal/types"
)

// FactEngine scores a claim against supplied reference text by lexical
// token overlap. Deliberately not embedding similarity: near-opposite
// factual claims can sit millimeters apart in embedding space, which is
// exactly the failure mode this engine exists to avoid.
//
// DSL shape:
//
//	claim: <claim text>
//	---
//	reference: <reference text>
//
// The outcome value is the overlap score in [0, 1] rendered with two
// decimals. The comparator applies the verification threshold.
type FactEngine struct {
	cfg Config
}

// NewFactEngine creates the fact engine.
func NewFactEngine(cfg Config) *FactEngine {
	return &FactEngine{cfg: cfg}
}

// Name implements Engine.
func (e *FactEngine) Name() string { return "lexical_overlap" }

// Domain implements Engine.
func (e *FactEngine) Domain() types.Domain { return types.DomainFact }

var factStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "and": true, "or": true, "that": true, "this": true,
	"it": true, "as": true, "by": true, "for": true, "with": true,
}

func parseFactExpr(expr string) (claim, reference string, err error) {
	parts := strings.SplitN(expr, "\n---\n", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf(`expected "claim: ...\n---\nreference: ..." form`)
	}
	claim = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "claim:"))
	reference = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[1]), "reference:"))
	if claim == "" {
		return "", "", fmt.Errorf("empty claim")
	}
	if reference == "" {
		return "", "", fmt.Errorf("empty reference")
	}
	return claim, reference, nil
}

// Validate implements Engine.
func (e *FactEngine) Validate(expr string) error {
	_, _, err := parseFactExpr(expr)
	return err
}

// Evaluate implements Engine.
func (e *FactEngine) Evaluate(ctx context.Context, expr string) types.EngineOutcome {
	return runWithBudget(ctx, e.cfg.EvalTimeout, func() types.EngineOutcome {
		claim, reference, err := parseFactExpr(expr)
		if err != nil {
			return types.SyntaxFailure(err.Error())
		}

		claimTokens := contentTokens(claim)
		if len(claimTokens) == 0 {
			return types.SyntaxFailure("claim carries no content tokens")
		}
		refTokens := contentTokens(reference)

		refSet := make(map[string]bool, len(refTokens))
		for _, tok := range refTokens {
			refSet[tok] = true
		}

		seen := make(map[string]bool, len(claimTokens))
		covered := 0
		total := 0
		for _, tok := range claimTokens {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			total++
			if refSet[tok] {
				covered++
			}
		}

		score := float64(covered) / float64(total)
		// Lexical overlap is a heuristic, not a proof: Exact stays false so
		// the verdict can never claim 100 confidence from this engine.
		return types.Computed(strconv.FormatFloat(score, 'f', 2, 64), false)
	})
}

// contentTokens lowercases, strips punctuation, and drops stopwords.
func contentTokens(text string) []string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return ' '
		}
	}, strings.ToLower(text))

	var tokens []string
	for _, tok := range strings.Fields(clean) {
		if !factStopwords[tok] {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
