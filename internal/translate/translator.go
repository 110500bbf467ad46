// Package translate turns a natural-language question into a formal
// expression for one of the domain engines. The model output is never
// trusted: every expression passes the target engine's validator before
// it is allowed anywhere near evaluation.
package translate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"qwed/internal/provider"
	"qwed/internal/types"
)

// Translator drives the provider chain to produce validated expressions.
type Translator struct {
	chain  provider.Chain
	logger *zap.Logger
}

// New creates a translator over the given provider chain.
func New(chain provider.Chain, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{chain: chain, logger: logger}
}

// Translate produces an expression in the domain's formal language.
//
// Providers are tried in chain order; a provider error moves to the next
// provider. A provider that answers but fails validation gets exactly one
// re-prompt carrying the validator's complaint; if the second attempt also
// fails validation the call returns ErrTranslationUnparseable together
// with the last expression, so callers can surface it as evidence. When
// every provider errors the result is ErrAllProvidersExhausted.
func (t *Translator) Translate(ctx context.Context, q types.Query, domain types.Domain, validate func(string) error) (types.TranslationResult, error) {
	prompt, ok := domainPrompts[domain]
	if !ok {
		return types.TranslationResult{}, fmt.Errorf("no translation grammar for domain %q: %w", domain, types.ErrInvalidQuery)
	}
	if len(t.chain) == 0 {
		return types.TranslationResult{}, fmt.Errorf("empty provider chain: %w", types.ErrAllProvidersExhausted)
	}

	user := userPrompt(q)
	attempts := 0
	var lastErr error

	for _, p := range t.chain {
		// Once the caller's deadline is gone, trying further providers
		// only burns quota; the call is a timeout, not an exhausted chain.
		if ctx.Err() != nil {
			return types.TranslationResult{Attempts: attempts},
				fmt.Errorf("deadline expired before provider %s: %w", p.Name(), types.ErrTimeout)
		}

		attempts++
		raw, err := p.Generate(ctx, prompt, user)
		if err != nil {
			lastErr = err
			t.logger.Warn("provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("domain", string(domain)),
				zap.Error(err))
			continue
		}

		expr := CleanExpression(raw)
		verr := validate(expr)
		if verr == nil {
			return types.TranslationResult{
				Expression:  expr,
				Provider:    p.Name(),
				SyntaxValid: true,
				Attempts:    attempts,
			}, nil
		}

		// One corrective round trip with the validator's complaint.
		if ctx.Err() != nil {
			return types.TranslationResult{Expression: expr, Provider: p.Name(), Attempts: attempts},
				fmt.Errorf("deadline expired before corrective prompt: %w", types.ErrTimeout)
		}
		attempts++
		retry := fmt.Sprintf("%s\n\nYour previous output was rejected: %v\nPrevious output:\n%s\nRespond with only a corrected expression.", user, verr, expr)
		raw, err = p.Generate(ctx, prompt, retry)
		if err != nil {
			lastErr = err
			continue
		}
		expr = CleanExpression(raw)
		if verr = validate(expr); verr == nil {
			return types.TranslationResult{
				Expression:  expr,
				Provider:    p.Name(),
				SyntaxValid: true,
				Attempts:    attempts,
			}, nil
		}

		// The provider answered twice and both outputs were garbage.
		// That is a translation failure, not a provider failure.
		return types.TranslationResult{
				Expression: expr,
				Provider:   p.Name(),
				Attempts:   attempts,
			}, fmt.Errorf("domain %s after %d attempts: %v: %w",
				domain, attempts, verr, types.ErrTranslationUnparseable)
	}

	return types.TranslationResult{Attempts: attempts},
		fmt.Errorf("%d providers tried, last error %v: %w", len(t.chain), lastErr, types.ErrAllProvidersExhausted)
}

func userPrompt(q types.Query) string {
	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(q.Text)
	if q.CandidateAnswer != "" {
		b.WriteString("\n\nCandidate answer (do not evaluate it, only translate the question):\n")
		b.WriteString(q.CandidateAnswer)
	}
	return b.String()
}

// CleanExpression strips markdown code fences and surrounding chatter from
// a model response, keeping only the expression payload.
func CleanExpression(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		// Drop a language tag on the fence line.
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			first := strings.TrimSpace(s[:nl])
			if first != "" && !strings.ContainsAny(first, " (){}[]=+-*/") {
				s = s[nl+1:]
			}
		}
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}

const commonRules = `Respond with ONLY the expression. No explanation, no prose, no code fences.`

var domainPrompts = map[types.Domain]string{
	types.DomainMath: `You translate arithmetic questions into a single infix expression.
Grammar: numbers, + - * / ^ ( ), and the functions sqrt(x), abs(x), round(x), floor(x), ceil(x).
^ is exponentiation. Do not compute the result.
` + commonRules,

	types.DomainLogic: `You translate logic puzzles into a Datalog program.
Write facts and rules, one per line, each ending with a period.
Facts: pred(/a, /b). Rules: head(X) :- body(X), other(X).
Constants start with a slash, variables are capitalized.
The final line is the goal, written as: ?- goal(Args).
` + commonRules,

	types.DomainCode: `You prepare a code snippet for static security analysis.
Output the code verbatim, preceded by a header line "#lang python",
"#lang javascript" or "#lang go" naming its language. Do not fix,
reformat or annotate the code.
` + commonRules,

	types.DomainSQL: `You extract the SQL statement under discussion.
Output the single SQL statement verbatim, including any suspicious
fragments. Do not repair or sanitize it.
` + commonRules,

	types.DomainStats: `You translate statistics questions into one function call.
Grammar: mean([...]), median([...]), sum([...]), min([...]), max([...]),
count([...]), stddev([...]), variance([...]), or percentile(p, [...]).
Lists are comma-separated numbers in square brackets. Do not compute.
` + commonRules,

	types.DomainFact: `You split a factual claim and its reference passage.
Output exactly:
claim: <the claim being checked>
---
reference: <the reference text it is checked against>
` + commonRules,

	types.DomainImage: `You turn claims about an image into key=value lines.
Recognized keys: format, width, height. One claim per line, plus the
mandatory line data=<base64 of the image bytes> from the question.
` + commonRules,
}
