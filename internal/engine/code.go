package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"qwed/internal/types"
)

// CodeEngine performs static analysis over a fixed taxonomy of dangerous
// constructs. It walks a tree-sitter syntax tree and never executes the
// code under review - the sandbox here is the absence of any interpreter.
//
// DSL shape: an optional "#lang python|javascript|go" header line, then the
// source text. Python is the default language.
//
// Finding taxonomy:
//
//	dynamic_evaluation       eval/exec/compile/Function-constructor calls
//	shell_injection          shell invocation with a non-literal argument
//	insecure_deserialization pickle/marshal/unsafe yaml loads
//	hardcoded_credential     secret-looking assignment or embedded key
type CodeEngine struct {
	cfg Config
}

// NewCodeEngine creates the code engine.
func NewCodeEngine(cfg Config) *CodeEngine {
	return &CodeEngine{cfg: cfg}
}

// Name implements Engine.
func (e *CodeEngine) Name() string { return "ast_static_analysis" }

// Domain implements Engine.
func (e *CodeEngine) Domain() types.Domain { return types.DomainCode }

var (
	credNameRe = regexp.MustCompile(`(?i)(password|passwd|secret|api_?key|token|credential)`)
	awsKeyRe   = regexp.MustCompile(`AKIA[0-9A-Z]{16}`)
)

// langRules captures the per-language node vocabulary the walker needs.
type langRules struct {
	language      *sitter.Language
	callNode      string
	callFuncField string
	argsField     string
	stringNodes   map[string]bool
	dynamicEval   map[string]bool
	shellFuncs    map[string]bool
	deserializers map[string]bool
}

var codeLangs = map[string]langRules{
	"python": {
		language:      python.GetLanguage(),
		callNode:      "call",
		callFuncField: "function",
		argsField:     "arguments",
		stringNodes:   map[string]bool{"string": true},
		dynamicEval:   map[string]bool{"eval": true, "exec": true, "compile": true, "__import__": true},
		shellFuncs: map[string]bool{
			"os.system": true, "os.popen": true,
			"subprocess.call": true, "subprocess.run": true,
			"subprocess.Popen": true, "subprocess.check_output": true,
		},
		deserializers: map[string]bool{
			"pickle.load": true, "pickle.loads": true,
			"marshal.load": true, "marshal.loads": true,
			"yaml.load": true,
		},
	},
	"javascript": {
		language:      javascript.GetLanguage(),
		callNode:      "call_expression",
		callFuncField: "function",
		argsField:     "arguments",
		stringNodes:   map[string]bool{"string": true, "template_string": true},
		dynamicEval:   map[string]bool{"eval": true, "Function": true},
		shellFuncs: map[string]bool{
			"child_process.exec": true, "child_process.execSync": true,
			"child_process.spawn": true, "exec": true, "execSync": true,
		},
		deserializers: map[string]bool{"unserialize": true, "deserialize": true},
	},
	"go": {
		language:      golang.GetLanguage(),
		callNode:      "call_expression",
		callFuncField: "function",
		argsField:     "arguments",
		stringNodes: map[string]bool{
			"interpreted_string_literal": true,
			"raw_string_literal":         true,
		},
		dynamicEval:   map[string]bool{},
		shellFuncs:    map[string]bool{"exec.Command": true, "exec.CommandContext": true, "syscall.Exec": true},
		deserializers: map[string]bool{},
	},
}

// splitLang extracts the language header and source body.
func splitLang(expr string) (string, string, error) {
	lang := "python"
	src := expr
	if strings.HasPrefix(expr, "#lang ") {
		nl := strings.IndexByte(expr, '\n')
		if nl < 0 {
			return "", "", fmt.Errorf("language header with no source body")
		}
		lang = strings.TrimSpace(strings.TrimPrefix(expr[:nl], "#lang "))
		src = expr[nl+1:]
	}
	if _, ok := codeLangs[lang]; !ok {
		return "", "", fmt.Errorf("unsupported language %q", lang)
	}
	if strings.TrimSpace(src) == "" {
		return "", "", fmt.Errorf("empty source body")
	}
	return lang, src, nil
}

// Validate implements Engine.
func (e *CodeEngine) Validate(expr string) error {
	lang, src, err := splitLang(expr)
	if err != nil {
		return err
	}
	tree, err := parseSource(codeLangs[lang], src)
	if err != nil {
		return err
	}
	defer tree.Close()
	if tree.RootNode().HasError() {
		return fmt.Errorf("%s source has syntax errors", lang)
	}
	return nil
}

func parseSource(rules langRules, src string) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(rules.language)
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	if err != nil {
		return nil, fmt.Errorf("parse failed: %v", err)
	}
	return tree, nil
}

// Evaluate implements Engine.
func (e *CodeEngine) Evaluate(ctx context.Context, expr string) types.EngineOutcome {
	return runWithBudget(ctx, e.cfg.EvalTimeout, func() types.EngineOutcome {
		lang, src, err := splitLang(expr)
		if err != nil {
			return types.SyntaxFailure(err.Error())
		}
		rules := codeLangs[lang]

		tree, err := parseSource(rules, src)
		if err != nil {
			return types.SyntaxFailure(err.Error())
		}
		defer tree.Close()

		root := tree.RootNode()
		if root.HasError() {
			return types.SyntaxFailure(fmt.Sprintf("%s source has syntax errors", lang))
		}

		findings := walkForFindings(root, rules, src)
		findings = append(findings, scanEmbeddedKeys(src)...)

		return types.EngineOutcome{Kind: types.OutcomeFindings, Findings: findings}
	})
}

// walkForFindings recursively inspects the tree against the taxonomy.
func walkForFindings(root *sitter.Node, rules langRules, src string) []types.Finding {
	var findings []types.Finding
	content := []byte(src)

	text := func(n *sitter.Node) string {
		return n.Content(content)
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case rules.callNode:
			fn := n.ChildByFieldName(rules.callFuncField)
			if fn != nil {
				name := text(fn)
				line := int(n.StartPoint().Row) + 1
				switch {
				case rules.dynamicEval[name]:
					findings = append(findings, types.Finding{
						Rule:   "dynamic_evaluation",
						Detail: fmt.Sprintf("line %d: call to %s", line, name),
					})
				case rules.shellFuncs[name]:
					if !firstArgIsLiteral(n, rules) {
						findings = append(findings, types.Finding{
							Rule:   "shell_injection",
							Detail: fmt.Sprintf("line %d: %s with non-literal argument", line, name),
						})
					}
				case rules.deserializers[name]:
					findings = append(findings, types.Finding{
						Rule:   "insecure_deserialization",
						Detail: fmt.Sprintf("line %d: call to %s", line, name),
					})
				}
			}
		case "assignment", "variable_declarator", "short_var_declaration", "var_spec", "const_spec":
			if f, ok := credentialAssignment(n, rules, text); ok {
				findings = append(findings, f)
			}
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)

	return findings
}

// firstArgIsLiteral reports whether the call's first argument is a plain
// string literal. Anything else (identifier, concatenation, f-string with
// interpolation) counts as unsanitized input.
func firstArgIsLiteral(call *sitter.Node, rules langRules) bool {
	args := call.ChildByFieldName(rules.argsField)
	if args == nil || args.NamedChildCount() == 0 {
		return true // no arguments, nothing to inject
	}
	first := args.NamedChild(0)
	if !rules.stringNodes[first.Type()] {
		return false
	}
	// Interpolated strings are not literals.
	for i := 0; i < int(first.NamedChildCount()); i++ {
		t := first.NamedChild(i).Type()
		if t == "interpolation" || t == "template_substitution" {
			return false
		}
	}
	return true
}

// credentialAssignment flags name = "literal" where the name looks like a
// secret.
func credentialAssignment(n *sitter.Node, rules langRules, text func(*sitter.Node) string) (types.Finding, bool) {
	var nameNode, valueNode *sitter.Node
	switch n.Type() {
	case "assignment", "short_var_declaration":
		nameNode = n.ChildByFieldName("left")
		valueNode = n.ChildByFieldName("right")
	case "variable_declarator":
		nameNode = n.ChildByFieldName("name")
		valueNode = n.ChildByFieldName("value")
	case "var_spec", "const_spec":
		nameNode = n.ChildByFieldName("name")
		valueNode = n.ChildByFieldName("value")
	}
	if nameNode == nil || valueNode == nil {
		return types.Finding{}, false
	}
	if !credNameRe.MatchString(text(nameNode)) {
		return types.Finding{}, false
	}
	if !rules.stringNodes[valueNode.Type()] && !containsStringChild(valueNode, rules) {
		return types.Finding{}, false
	}
	line := int(n.StartPoint().Row) + 1
	return types.Finding{
		Rule:   "hardcoded_credential",
		Detail: fmt.Sprintf("line %d: %s assigned a literal", line, strings.TrimSpace(text(nameNode))),
	}, true
}

func containsStringChild(n *sitter.Node, rules langRules) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if rules.stringNodes[n.NamedChild(i).Type()] {
			return true
		}
	}
	return false
}

// scanEmbeddedKeys catches credential material regardless of language
// grammar, e.g. AWS access key ids pasted into any string.
func scanEmbeddedKeys(src string) []types.Finding {
	var findings []types.Finding
	for _, m := range awsKeyRe.FindAllString(src, -1) {
		findings = append(findings, types.Finding{
			Rule:   "hardcoded_credential",
			Detail: fmt.Sprintf("embedded access key id %s...", m[:8]),
		})
	}
	return findings
}
