package engine

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	_ "github.com/google/mangle/packages"
	"github.com/google/mangle/parse"

	"qwed/internal/types"
)

// LogicEngine evaluates Datalog programs with the Google Mangle engine.
//
// DSL shape: a Mangle program (facts and Horn rules), then exactly one goal
// line of the form
//
//	?- goal_atom.
//
// The program is evaluated to fixpoint and the goal is checked against the
// derived facts. A goal that cannot be derived is Unsatisfiable - a proof
// result, not a failure. Propositional claims arrive encoded as Horn rules
// by the translator (implication becomes a rule, facts become atoms).
type LogicEngine struct {
	cfg Config
}

// NewLogicEngine creates the logic engine.
func NewLogicEngine(cfg Config) *LogicEngine {
	return &LogicEngine{cfg: cfg}
}

// Name implements Engine.
func (e *LogicEngine) Name() string { return "mangle_datalog" }

// Domain implements Engine.
func (e *LogicEngine) Domain() types.Domain { return types.DomainLogic }

// Validate implements Engine.
func (e *LogicEngine) Validate(expr string) error {
	_, _, err := e.parse(expr)
	return err
}

// parse splits the DSL into program and goal and checks both grammars.
func (e *LogicEngine) parse(expr string) (parse.SourceUnit, ast.Atom, error) {
	var programLines []string
	var goalLine string

	for _, line := range strings.Split(expr, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "?-") {
			if goalLine != "" {
				return parse.SourceUnit{}, ast.Atom{}, fmt.Errorf("multiple goal lines")
			}
			goalLine = strings.TrimSpace(strings.TrimPrefix(trimmed, "?-"))
			continue
		}
		programLines = append(programLines, line)
	}

	if goalLine == "" {
		return parse.SourceUnit{}, ast.Atom{}, fmt.Errorf("missing goal line (expected \"?- atom.\")")
	}
	goalLine = strings.TrimSuffix(goalLine, ".")

	goal, err := parse.Atom(goalLine)
	if err != nil {
		return parse.SourceUnit{}, ast.Atom{}, fmt.Errorf("malformed goal %q: %v", goalLine, err)
	}

	unit, err := parse.Unit(bytes.NewReader([]byte(strings.Join(programLines, "\n"))))
	if err != nil {
		return parse.SourceUnit{}, ast.Atom{}, fmt.Errorf("malformed program: %v", err)
	}

	return unit, goal, nil
}

// Evaluate implements Engine.
func (e *LogicEngine) Evaluate(ctx context.Context, expr string) types.EngineOutcome {
	return runWithBudget(ctx, e.cfg.EvalTimeout, func() types.EngineOutcome {
		unit, goal, err := e.parse(expr)
		if err != nil {
			return types.SyntaxFailure(err.Error())
		}

		programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
		if err != nil {
			return types.SyntaxFailure(fmt.Sprintf("program analysis: %v", err))
		}

		store := factstore.NewSimpleInMemoryStore()
		if err := mengine.EvalProgram(programInfo, store); err != nil {
			return types.SyntaxFailure(fmt.Sprintf("evaluation: %v", err))
		}

		matches := collectGoalMatches(store, goal)
		if len(matches) == 0 {
			return types.EngineOutcome{Kind: types.OutcomeUnsatisfiable}
		}

		if goalIsGround(goal) {
			return types.Computed("true", true)
		}
		// Open goal: report every satisfying derivation, sorted for
		// reproducible output.
		sort.Strings(matches)
		return types.Computed(strings.Join(matches, "; "), true)
	})
}

// goalIsGround reports whether the goal contains no variables.
func goalIsGround(goal ast.Atom) bool {
	for _, arg := range goal.Args {
		if _, isVar := arg.(ast.Variable); isVar {
			return false
		}
	}
	return true
}

// collectGoalMatches scans derived facts for atoms unifying with the goal.
// Constants must match exactly; variables match anything (with consistent
// bindings across repeated variables).
func collectGoalMatches(store factstore.FactStore, goal ast.Atom) []string {
	var matches []string
	store.GetFacts(ast.NewQuery(goal.Predicate), func(fact ast.Atom) error {
		if len(fact.Args) != len(goal.Args) {
			return nil
		}
		bindings := make(map[ast.Variable]ast.BaseTerm)
		for i, arg := range goal.Args {
			if v, isVar := arg.(ast.Variable); isVar {
				if v.Symbol == "_" {
					continue
				}
				if bound, ok := bindings[v]; ok {
					if !bound.Equals(fact.Args[i]) {
						return nil
					}
					continue
				}
				bindings[v] = fact.Args[i]
				continue
			}
			if !arg.Equals(fact.Args[i]) {
				return nil
			}
		}
		matches = append(matches, fact.String())
		return nil
	})
	return matches
}
