// Package compare turns an engine outcome and an optional candidate answer
// into the final Verdict. Judgement here is purely mechanical - the one
// thing this package must never do is call a model to break a tie.
package compare

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"qwed/internal/types"
)

// Config carries the comparator's tunable knobs.
type Config struct {
	// Epsilon is the relative tolerance for floating-point equality.
	Epsilon float64
	// FactThreshold is the minimum lexical-overlap score for a fact claim
	// to count as supported by its reference.
	FactThreshold float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Epsilon:       1e-9,
		FactThreshold: 0.6,
	}
}

// Comparator assembles verdicts from engine outcomes.
type Comparator struct {
	cfg Config
}

// New creates a comparator.
func New(cfg Config) *Comparator {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultConfig().Epsilon
	}
	if cfg.FactThreshold <= 0 {
		cfg.FactThreshold = DefaultConfig().FactThreshold
	}
	return &Comparator{cfg: cfg}
}

// Compare builds the Verdict for one verification call. The evidence comes
// pre-filled with method, domain, expression and provider; Compare adds
// the outcome payload and the judgement.
//
// Confidence is binary and means "proof-grade": 100 when the deciding step
// was exact and deterministic (exact computation, an unsatisfiability
// proof, or a complete static-analysis pass), 0 for every heuristic or
// failed path. A mismatched candidate against an exact computation still
// carries confidence 100 - the router is certain the candidate is wrong.
func (c *Comparator) Compare(candidate string, outcome types.EngineOutcome, domain types.Domain, ev types.Evidence) types.Verdict {
	switch outcome.Kind {
	case types.OutcomeSyntaxError:
		ev.Findings = []types.Finding{{Rule: "syntax_error", Detail: outcome.Detail}}
		return types.Verdict{
			Verified:   false,
			Confidence: 0,
			Evidence:   ev,
			Error:      types.ErrorName(types.ErrSyntaxError),
		}

	case types.OutcomeTimeout:
		return types.Verdict{
			Verified:   false,
			Confidence: 0,
			Evidence:   ev,
			Error:      types.ErrorName(types.ErrTimeout),
		}

	case types.OutcomeUnsatisfiable:
		return c.compareUnsatisfiable(candidate, ev)

	case types.OutcomeFindings:
		return compareFindings(outcome, ev)

	case types.OutcomeDisagreement:
		ev.Answers = outcome.Answers
		return types.Verdict{
			Verified:   false,
			Confidence: 0,
			Evidence:   ev,
		}

	case types.OutcomeComputed:
		if domain == types.DomainFact {
			return c.compareFactScore(outcome, ev)
		}
		return c.compareComputed(candidate, outcome, ev)

	default:
		return types.Verdict{
			Verified:   false,
			Confidence: 0,
			Evidence:   ev,
			Error:      "internal",
		}
	}
}

func (c *Comparator) compareUnsatisfiable(candidate string, ev types.Evidence) types.Verdict {
	confidence := 100 // a completed proof, whatever the candidate said
	if candidate == "" {
		return types.Verdict{
			Verified:   true,
			Value:      "unsatisfiable",
			Confidence: confidence,
			Evidence:   ev,
		}
	}
	ev.Candidate = types.NormalizeText(candidate)
	return types.Verdict{
		Verified:   falsySynonyms[ev.Candidate],
		Value:      "unsatisfiable",
		Confidence: confidence,
		Evidence:   ev,
	}
}

func compareFindings(outcome types.EngineOutcome, ev types.Evidence) types.Verdict {
	ev.Findings = outcome.Findings
	value := "no findings"
	if n := len(outcome.Findings); n > 0 {
		value = fmt.Sprintf("%d findings", n)
	}
	return types.Verdict{
		Verified:   len(outcome.Findings) == 0,
		Value:      value,
		Confidence: 100, // the analysis ran to completion over the whole tree
		Evidence:   ev,
	}
}

func (c *Comparator) compareFactScore(outcome types.EngineOutcome, ev types.Evidence) types.Verdict {
	score, err := strconv.ParseFloat(outcome.Value, 64)
	if err != nil {
		return types.Verdict{
			Verified:   false,
			Confidence: 0,
			Evidence:   ev,
			Error:      "internal",
		}
	}
	return types.Verdict{
		Verified:   score >= c.cfg.FactThreshold,
		Value:      outcome.Value,
		Confidence: 0, // lexical overlap is a heuristic, never a proof
		Evidence:   ev,
	}
}

func (c *Comparator) compareComputed(candidate string, outcome types.EngineOutcome, ev types.Evidence) types.Verdict {
	confidence := 0
	if outcome.Exact {
		confidence = 100
	}

	if candidate == "" {
		// Nothing to falsify: the computed value is the answer.
		return types.Verdict{
			Verified:   true,
			Value:      outcome.Value,
			Confidence: confidence,
			Evidence:   ev,
		}
	}

	ev.Candidate = types.NormalizeText(candidate)
	return types.Verdict{
		Verified:   c.equal(candidate, outcome.Value),
		Value:      outcome.Value,
		Confidence: confidence,
		Evidence:   ev,
	}
}

var truthySynonyms = map[string]bool{
	"true": true, "yes": true, "valid": true, "satisfiable": true,
}

var falsySynonyms = map[string]bool{
	"false": true, "no": true, "invalid": true, "unsatisfiable": true,
}

// equal applies the domain equality ladder: exact rational equality, then
// relative float tolerance, then boolean synonyms, then folded string
// equality.
func (c *Comparator) equal(candidate, value string) bool {
	candRat, candOK := parseNumeric(candidate)
	valRat, valOK := parseNumeric(value)
	if candOK && valOK {
		if candRat.Cmp(valRat) == 0 {
			return true
		}
		cf, _ := candRat.Float64()
		vf, _ := valRat.Float64()
		return relativeClose(cf, vf, c.cfg.Epsilon)
	}

	candNorm := types.NormalizeText(candidate)
	valNorm := types.NormalizeText(value)
	if truthySynonyms[candNorm] && truthySynonyms[valNorm] {
		return true
	}
	if falsySynonyms[candNorm] && falsySynonyms[valNorm] {
		return true
	}
	return candNorm == valNorm
}

// parseNumeric accepts plain numbers, a/b rationals, and human formatting
// ($ signs, thousands separators, trailing % or units stripped).
func parseNumeric(s string) (*big.Rat, bool) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "$")
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.TrimSuffix(clean, "%")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, false
	}
	return r, true
}

func relativeClose(a, b, epsilon float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return diff < epsilon
	}
	return diff/scale <= epsilon
}
