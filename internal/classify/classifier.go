// Package classify assigns a verification domain to a natural-language query.
// Classification is pure keyword/pattern scoring - never an LLM call - so the
// routing decision at the trust boundary stays deterministic.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"qwed/internal/types"
)

// Vocabulary keywords per domain. Each hit scores 1; regex pattern hits
// score 2 because they are stronger signals than bare words.
var domainKeywords = map[types.Domain][]string{
	types.DomainMath: {
		"calculate", "compute", "derivative", "integral", "sum of",
		"interest", "percentage", "square root", "equation", "solve",
		"how much", "how many", "total", "plus", "minus", "times", "divided",
	},
	types.DomainLogic: {
		"if ", "then ", "implies", "forall", "for all", "exists",
		"satisfiable", "valid", "premise", "conclusion", "therefore",
		"entails", "contradiction",
	},
	types.DomainSQL: {
		"select ", "insert ", "update ", "delete ", "where ", "join ",
		"group by", "order by", "sql", "database query", "table",
	},
	types.DomainCode: {
		"eval(", "exec(", "import ", "function", "def ", "code", "script",
		"subprocess", "os.system", "pickle", "deserialize",
	},
	types.DomainStats: {
		"mean", "median", "average", "standard deviation", "stddev",
		"variance", "percentile", "distribution", "dataset",
	},
	types.DomainFact: {
		"is it true", "fact check", "did ", "was ", "claim", "according to",
		"reference", "source says",
	},
	types.DomainImage: {
		"image", "picture", "photo", "png", "jpeg", "pixel", "resolution",
	},
	types.DomainConsensus: {
		"consensus", "do models agree", "cross-check", "second opinion",
		"multiple providers",
	},
}

var domainPatterns = map[types.Domain][]*regexp.Regexp{
	// Arithmetic expressions: digits joined by operators.
	types.DomainMath: {
		regexp.MustCompile(`\d+(\.\d+)?\s*[-+*/^%]\s*\d+`),
		regexp.MustCompile(`\$\s*[\d,]+`),
		regexp.MustCompile(`\d+(\.\d+)?\s*%`),
	},
	types.DomainLogic: {
		regexp.MustCompile(`(?i)\ball\s+\w+\s+are\b`),
		regexp.MustCompile(`(?i)\bif\b.+\bthen\b`),
	},
	types.DomainSQL: {
		regexp.MustCompile(`(?i)\bselect\b.+\bfrom\b`),
		regexp.MustCompile(`(?i)\b(insert\s+into|drop\s+table|union\s+select)\b`),
	},
	types.DomainCode: {
		regexp.MustCompile("```"),
		regexp.MustCompile(`(?i)\b(eval|exec)\s*\(`),
	},
	types.DomainStats: {
		regexp.MustCompile(`(?i)\b(mean|median|stddev|percentile)\b.*\[`),
	},
}

// Classify assigns exactly one domain to the query. Totality is guaranteed:
// every non-empty text resolves to a member of the closed set, Unknown
// included. Empty or whitespace-only text is the caller's fault and returns
// ErrInvalidQuery.
//
// Ties break by the priority order of types.AllDomains (Math first): on
// ambiguous input the numerically-verifiable reading wins, because a wrong
// number is the costliest miss the router exists to catch.
func Classify(q types.Query) (types.Domain, error) {
	if strings.TrimSpace(q.Text) == "" {
		return types.DomainUnknown, fmt.Errorf("empty query text: %w", types.ErrInvalidQuery)
	}

	if q.DomainHint != "" {
		if !q.DomainHint.Valid() {
			return types.DomainUnknown, fmt.Errorf("domain hint %q: %w", q.DomainHint, types.ErrInvalidQuery)
		}
		return q.DomainHint, nil
	}

	text := strings.ToLower(q.Text)

	scores := make(map[types.Domain]int, len(domainKeywords))
	for domain, words := range domainKeywords {
		for _, w := range words {
			if strings.Contains(text, w) {
				scores[domain]++
			}
		}
	}
	for domain, patterns := range domainPatterns {
		for _, re := range patterns {
			if re.MatchString(q.Text) {
				scores[domain] += 2
			}
		}
	}

	best := types.DomainUnknown
	bestScore := 0
	// Iterate in priority order so equal scores resolve deterministically.
	for _, domain := range types.AllDomains {
		if s := scores[domain]; s > bestScore {
			best = domain
			bestScore = s
		}
	}

	return best, nil
}
