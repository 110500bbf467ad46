// Package types provides shared type definitions used across qwed packages:
// queries, domains, engine outcomes, and verdicts. This package exists to
// break import cycles between the classifier, engines, and orchestrator.
// Types in this package should be foundational data structures with no
// complex dependencies.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Domain is the closed set of verification categories. It determines which
// engine and which DSL grammar apply to a query.
type Domain string

const (
	DomainMath      Domain = "math"
	DomainLogic     Domain = "logic"
	DomainCode      Domain = "code"
	DomainSQL       Domain = "sql"
	DomainFact      Domain = "fact"
	DomainStats     Domain = "stats"
	DomainImage     Domain = "image"
	DomainConsensus Domain = "consensus"
	DomainUnknown   Domain = "unknown"
)

// AllDomains lists every member of the closed set, in classifier tie-break
// priority order. Math wins ambiguous input: numeric miscarriage is the most
// common and most safety-critical failure the router defends against.
var AllDomains = []Domain{
	DomainMath,
	DomainLogic,
	DomainSQL,
	DomainCode,
	DomainStats,
	DomainFact,
	DomainImage,
	DomainConsensus,
	DomainUnknown,
}

// Valid reports whether d is a member of the closed domain set.
func (d Domain) Valid() bool {
	for _, known := range AllDomains {
		if d == known {
			return true
		}
	}
	return false
}

// Query is the immutable input to one verification call.
type Query struct {
	Text            string // natural-language question, required
	CandidateAnswer string // optional answer to falsify; empty means "compute only"
	DomainHint      Domain // optional; skips classification when set and valid
}

// TranslationResult is the untrusted output of the translator. It lives only
// for the duration of one verification call; the engine consumes it and it
// is never persisted.
type TranslationResult struct {
	Expression  string // candidate DSL text, unvalidated
	Provider    string // name of the provider that produced it
	SyntaxValid bool   // set after the engine's grammar check
	Attempts    int    // provider calls spent, including the grammar-hint re-prompt
}

// OutcomeKind tags the EngineOutcome variant.
type OutcomeKind string

const (
	OutcomeComputed      OutcomeKind = "computed"
	OutcomeUnsatisfiable OutcomeKind = "unsatisfiable"
	OutcomeSyntaxError   OutcomeKind = "syntax_error"
	OutcomeTimeout       OutcomeKind = "timeout"
	OutcomeFindings      OutcomeKind = "findings"
	OutcomeDisagreement  OutcomeKind = "disagreement"
)

// Finding is one flagged construct from a static-analysis engine (Code, SQL).
type Finding struct {
	Rule   string `json:"rule"`   // taxonomy id, e.g. "dynamic_evaluation"
	Detail string `json:"detail"` // human-readable location/context
}

// EngineOutcome is the tagged result of one deterministic engine evaluation.
// Exactly one variant is meaningful per Kind:
//
//	OutcomeComputed      -> Value, Exact
//	OutcomeUnsatisfiable -> no payload; a valid proof result, not an error
//	OutcomeSyntaxError   -> Detail
//	OutcomeTimeout       -> no payload
//	OutcomeFindings      -> Findings
//	OutcomeDisagreement  -> Answers
type EngineOutcome struct {
	Kind     OutcomeKind
	Value    string    // canonical computed value
	Exact    bool      // true when Value is exact (symbolic/rational), not rounded
	Detail   string    // parse failure detail for OutcomeSyntaxError
	Findings []Finding // static-analysis findings for OutcomeFindings
	Answers  []string  // all provider answers for OutcomeDisagreement
}

// Computed builds an OutcomeComputed.
func Computed(value string, exact bool) EngineOutcome {
	return EngineOutcome{Kind: OutcomeComputed, Value: value, Exact: exact}
}

// SyntaxFailure builds an OutcomeSyntaxError.
func SyntaxFailure(detail string) EngineOutcome {
	return EngineOutcome{Kind: OutcomeSyntaxError, Detail: detail}
}

// Evidence explains how a Verdict was reached.
type Evidence struct {
	Method     string    `json:"method"`                // engine that judged, e.g. "mangle_datalog"
	Domain     Domain    `json:"domain"`                // domain the query resolved to
	Expression string    `json:"translated_expression"` // DSL handed to the engine
	Provider   string    `json:"provider,omitempty"`    // translator provider used
	Findings   []Finding `json:"findings,omitempty"`    // static-analysis findings, if any
	Answers    []string  `json:"answers,omitempty"`     // consensus answers, if polled
	Candidate  string    `json:"candidate,omitempty"`   // normalized candidate answer compared
}

// Verdict is the externally visible result of one verification call.
// Confidence is binary: 100 for a deterministic proof, 0 otherwise. Fractional
// confidence would reintroduce the partial-trust illusion the router exists
// to eliminate. Immutable once constructed.
type Verdict struct {
	Verified   bool     `json:"verified"`
	Value      string   `json:"value,omitempty"`
	Confidence int      `json:"confidence"` // 0 or 100, never fractional
	Evidence   Evidence `json:"evidence"`
	Error      string   `json:"error,omitempty"` // taxonomy name when the call failed
}

// CacheEntry pairs a Verdict with its write time for TTL eviction.
type CacheEntry struct {
	Verdict   Verdict
	CreatedAt time.Time
}

// Error taxonomy. Unsatisfiable is deliberately absent: a proven-false
// formula is a meaningful outcome, not a failure.
var (
	ErrInvalidQuery           = errors.New("invalid query")
	ErrAllProvidersExhausted  = errors.New("all providers exhausted")
	ErrTranslationUnparseable = errors.New("translation unparseable")
	ErrSyntaxError            = errors.New("syntax error")
	ErrTimeout                = errors.New("timeout")
	ErrCacheCorruption        = errors.New("cache corruption")
)

// ErrorName maps a taxonomy error to its stable wire name for the Verdict
// Error field. Unknown errors map to "internal".
func ErrorName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuery):
		return "InvalidQuery"
	case errors.Is(err, ErrAllProvidersExhausted):
		return "AllProvidersExhausted"
	case errors.Is(err, ErrTranslationUnparseable):
		return "TranslationUnparseable"
	case errors.Is(err, ErrSyntaxError):
		return "SyntaxError"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrCacheCorruption):
		return "CacheCorruption"
	default:
		return "internal"
	}
}

// NormalizeText canonicalizes query text for cache keying: lowercase,
// collapsed inner whitespace, trimmed. Semantically identical requests must
// hash identically or the reproducibility guarantee breaks.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CacheKey derives the cache key for a (query, domain, candidate) triple.
// Pure function: same inputs, same key, always.
func CacheKey(text string, domain Domain, candidate string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeText(text)))
	h.Write([]byte{0})
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeText(candidate)))
	return hex.EncodeToString(h.Sum(nil))
}

// QueryHash is the audit-safe identifier for a query: the cache key re-used
// so audit events never carry raw (possibly sensitive) text.
func QueryHash(q Query, domain Domain) string {
	return CacheKey(q.Text, domain, q.CandidateAnswer)
}
