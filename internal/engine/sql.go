package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"qwed/internal/types"
)

// SQLEngine validates SQL grammar shape and flags syntactic injection
// patterns. It never connects to a database - the point is to judge the
// statement text itself, deterministically.
//
// Finding taxonomy:
//
//	tautological_condition   predicates true for every row (1=1, 'a'='a', OR TRUE)
//	stacked_statement        a second statement after the terminating semicolon
//	comment_truncation       inline comment cutting off the rest of the statement
//	string_concatenation     string-built predicate markers (quote splicing, %s, ${})
//	union_injection          UNION SELECT grafted onto the query
type SQLEngine struct {
	cfg Config
}

// NewSQLEngine creates the SQL engine.
func NewSQLEngine(cfg Config) *SQLEngine {
	return &SQLEngine{cfg: cfg}
}

// Name implements Engine.
func (e *SQLEngine) Name() string { return "sql_syntax_analysis" }

// Domain implements Engine.
func (e *SQLEngine) Domain() types.Domain { return types.DomainSQL }

var sqlStatementStart = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"CREATE": true, "DROP": true, "ALTER": true, "WITH": true,
	"TRUNCATE": true, "GRANT": true, "REVOKE": true, "EXPLAIN": true,
}

var (
	numericTautologyRe = regexp.MustCompile(`(?i)\b(\d+)\s*=\s*(\d+)\b`)
	stringTautologyRe  = regexp.MustCompile(`(?i)'([^']*)'\s*=\s*'([^']*)'`)
	orTrueRe           = regexp.MustCompile(`(?i)\bor\s+true\b`)
	unionSelectRe      = regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`)
	concatMarkerRe     = regexp.MustCompile(`('\s*\+|\+\s*'|"\s*\+|\+\s*"|'\s*\|\|\s*[A-Za-z_]|%s|%d|\$\{|'\s*\.\s*\$)`)
)

// Validate implements Engine.
func (e *SQLEngine) Validate(expr string) error {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return fmt.Errorf("empty statement")
	}

	first := strings.ToUpper(firstWord(trimmed))
	if !sqlStatementStart[first] {
		return fmt.Errorf("statement must start with a SQL keyword, got %q", firstWord(trimmed))
	}
	if err := checkBalance(trimmed); err != nil {
		return err
	}
	return nil
}

// Evaluate implements Engine.
func (e *SQLEngine) Evaluate(ctx context.Context, expr string) types.EngineOutcome {
	return runWithBudget(ctx, e.cfg.EvalTimeout, func() types.EngineOutcome {
		if err := e.Validate(expr); err != nil {
			return types.SyntaxFailure(err.Error())
		}

		statement := strings.TrimSpace(expr)
		var findings []types.Finding

		for _, m := range numericTautologyRe.FindAllStringSubmatch(statement, -1) {
			if m[1] == m[2] {
				findings = append(findings, types.Finding{
					Rule:   "tautological_condition",
					Detail: fmt.Sprintf("%s = %s is true for every row", m[1], m[2]),
				})
			}
		}
		for _, m := range stringTautologyRe.FindAllStringSubmatch(statement, -1) {
			if m[1] == m[2] {
				findings = append(findings, types.Finding{
					Rule:   "tautological_condition",
					Detail: fmt.Sprintf("'%s' = '%s' is true for every row", m[1], m[2]),
				})
			}
		}
		if orTrueRe.MatchString(statement) {
			findings = append(findings, types.Finding{
				Rule:   "tautological_condition",
				Detail: "OR TRUE disables the predicate",
			})
		}

		if idx := strings.Index(statement, ";"); idx >= 0 && strings.TrimSpace(statement[idx+1:]) != "" {
			findings = append(findings, types.Finding{
				Rule:   "stacked_statement",
				Detail: fmt.Sprintf("content after semicolon: %q", truncate(strings.TrimSpace(statement[idx+1:]), 60)),
			})
		}

		if idx := strings.Index(statement, "--"); idx >= 0 && strings.TrimSpace(statement[idx+2:]) != "" {
			findings = append(findings, types.Finding{
				Rule:   "comment_truncation",
				Detail: "inline comment truncates the statement tail",
			})
		}

		if concatMarkerRe.MatchString(statement) {
			findings = append(findings, types.Finding{
				Rule:   "string_concatenation",
				Detail: "predicate appears to be built by string concatenation",
			})
		}

		if loc := unionSelectRe.FindStringIndex(statement); loc != nil {
			notSelect := strings.ToUpper(firstWord(statement)) != "SELECT"
			quoteGraft := strings.Count(statement[:loc[0]], "'")%2 == 1
			if notSelect || quoteGraft {
				findings = append(findings, types.Finding{
					Rule:   "union_injection",
					Detail: "UNION SELECT grafted onto the statement",
				})
			}
		}

		return types.EngineOutcome{Kind: types.OutcomeFindings, Findings: findings}
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// checkBalance validates quote and parenthesis pairing.
func checkBalance(s string) error {
	depth := 0
	inSingle, inDouble := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
			// quoted content, ignore
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced parenthesis at offset %d", i)
			}
		}
	}
	if inSingle {
		return fmt.Errorf("unterminated single-quoted string")
	}
	if inDouble {
		return fmt.Errorf("unterminated double-quoted identifier")
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced parentheses (depth %d)", depth)
	}
	return nil
}
