package engine

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"qwed/internal/types"
)

// MathEngine evaluates arithmetic expressions with exact rational arithmetic
// wherever possible. Results stay exact through + - * / and integer powers;
// sqrt and fractional exponents demote the computation to float64 and the
// outcome is marked inexact.
//
// Grammar:
//
//	expr   := term (('+'|'-') term)*
//	term   := factor (('*'|'/') factor)*
//	factor := unary ('^' factor)?          right associative
//	unary  := '-' unary | primary
//	primary:= NUMBER | '(' expr ')' | func '(' expr ')'
//	func   := sqrt | abs | round | floor | ceil
type MathEngine struct {
	cfg Config
}

// NewMathEngine creates the math engine.
func NewMathEngine(cfg Config) *MathEngine {
	return &MathEngine{cfg: cfg}
}

// Name implements Engine.
func (e *MathEngine) Name() string { return "symbolic_math" }

// Domain implements Engine.
func (e *MathEngine) Domain() types.Domain { return types.DomainMath }

// Validate implements Engine.
func (e *MathEngine) Validate(expr string) error {
	p := newMathParser(expr)
	if _, err := p.parseExpr(); err != nil {
		return err
	}
	return p.expectEOF()
}

// Evaluate implements Engine.
func (e *MathEngine) Evaluate(ctx context.Context, expr string) types.EngineOutcome {
	return runWithBudget(ctx, e.cfg.EvalTimeout, func() types.EngineOutcome {
		p := newMathParser(expr)
		v, err := p.parseExpr()
		if err == nil {
			err = p.expectEOF()
		}
		if err != nil {
			return types.SyntaxFailure(err.Error())
		}
		return v.outcome()
	})
}

// mathValue is either an exact rational or an approximate float.
type mathValue struct {
	rat   *big.Rat // nil when approximate
	float float64
}

func exactValue(r *big.Rat) mathValue   { return mathValue{rat: r} }
func approxValue(f float64) mathValue   { return mathValue{float: f} }
func (v mathValue) exact() bool         { return v.rat != nil }
func (v mathValue) asFloat() float64 {
	if v.rat != nil {
		f, _ := v.rat.Float64()
		return f
	}
	return v.float
}

// outcome renders the value canonically. Terminating decimals render as
// decimals, non-terminating rationals keep the a/b form so no precision is
// silently discarded.
func (v mathValue) outcome() types.EngineOutcome {
	if !v.exact() {
		if math.IsNaN(v.float) || math.IsInf(v.float, 0) {
			return types.SyntaxFailure("result is not a finite number")
		}
		return types.Computed(strconv.FormatFloat(v.float, 'g', -1, 64), false)
	}
	return types.Computed(FormatRat(v.rat), true)
}

// FormatRat renders a rational canonically: integers plain, terminating
// decimals as decimals, everything else as num/den.
func FormatRat(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	if digits, ok := terminatingDigits(r); ok {
		s := r.FloatString(digits)
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
		return s
	}
	return r.RatString()
}

// terminatingDigits reports whether r has a finite decimal expansion and,
// if so, how many fraction digits it needs. Denominators of the form
// 2^a * 5^b terminate after max(a, b) digits.
func terminatingDigits(r *big.Rat) (int, bool) {
	den := new(big.Int).Set(r.Denom())
	two := big.NewInt(2)
	five := big.NewInt(5)
	zero := new(big.Int)
	count2, count5 := 0, 0
	for new(big.Int).Mod(den, two).Cmp(zero) == 0 {
		den.Div(den, two)
		count2++
		if count2 > 64 {
			return 0, false
		}
	}
	for new(big.Int).Mod(den, five).Cmp(zero) == 0 {
		den.Div(den, five)
		count5++
		if count5 > 64 {
			return 0, false
		}
	}
	if den.Cmp(big.NewInt(1)) != 0 {
		return 0, false
	}
	if count5 > count2 {
		return count5, true
	}
	return count2, true
}

// mathParser is a plain recursive-descent parser over a byte scanner.
type mathParser struct {
	input string
	pos   int
}

func newMathParser(input string) *mathParser {
	return &mathParser{input: input}
}

func (p *mathParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *mathParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *mathParser) expectEOF() error {
	p.skipSpace()
	if p.pos != len(p.input) {
		return fmt.Errorf("unexpected trailing input at offset %d: %q", p.pos, p.input[p.pos:])
	}
	return nil
}

func (p *mathParser) parseExpr() (mathValue, error) {
	left, err := p.parseTerm()
	if err != nil {
		return mathValue{}, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return mathValue{}, err
			}
			left = addValues(left, right)
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return mathValue{}, err
			}
			left = addValues(left, negate(right))
		default:
			return left, nil
		}
	}
}

func (p *mathParser) parseTerm() (mathValue, error) {
	left, err := p.parseFactor()
	if err != nil {
		return mathValue{}, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return mathValue{}, err
			}
			left = mulValues(left, right)
		case '/':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return mathValue{}, err
			}
			left, err = divValues(left, right)
			if err != nil {
				return mathValue{}, err
			}
		default:
			return left, nil
		}
	}
}

func (p *mathParser) parseFactor() (mathValue, error) {
	base, err := p.parseUnary()
	if err != nil {
		return mathValue{}, err
	}
	if p.peek() == '^' {
		p.pos++
		// Right associative: 2^3^2 == 2^(3^2).
		exp, err := p.parseFactor()
		if err != nil {
			return mathValue{}, err
		}
		return powValues(base, exp)
	}
	return base, nil
}

func (p *mathParser) parseUnary() (mathValue, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return mathValue{}, err
		}
		return negate(v), nil
	}
	return p.parsePrimary()
}

func (p *mathParser) parsePrimary() (mathValue, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return mathValue{}, err
		}
		if p.peek() != ')' {
			return mathValue{}, fmt.Errorf("missing closing parenthesis at offset %d", p.pos)
		}
		p.pos++
		return v, nil
	case c >= '0' && c <= '9' || c == '.':
		return p.parseNumber()
	case c >= 'a' && c <= 'z':
		return p.parseFunc()
	case c == 0:
		return mathValue{}, fmt.Errorf("unexpected end of expression")
	default:
		return mathValue{}, fmt.Errorf("unexpected character %q at offset %d", c, p.pos)
	}
}

func (p *mathParser) parseNumber() (mathValue, error) {
	p.skipSpace()
	start := p.pos
	seenDot := false
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			p.pos++
			continue
		}
		break
	}
	text := p.input[start:p.pos]
	if text == "" || text == "." {
		return mathValue{}, fmt.Errorf("malformed number at offset %d", start)
	}
	r, ok := new(big.Rat).SetString(text)
	if !ok {
		return mathValue{}, fmt.Errorf("malformed number %q at offset %d", text, start)
	}
	return exactValue(r), nil
}

func (p *mathParser) parseFunc() (mathValue, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] >= 'a' && p.input[p.pos] <= 'z' {
		p.pos++
	}
	name := p.input[start:p.pos]
	if p.peek() != '(' {
		return mathValue{}, fmt.Errorf("function %q missing argument list at offset %d", name, p.pos)
	}
	p.pos++
	arg, err := p.parseExpr()
	if err != nil {
		return mathValue{}, err
	}
	if p.peek() != ')' {
		return mathValue{}, fmt.Errorf("function %q missing closing parenthesis at offset %d", name, p.pos)
	}
	p.pos++

	switch name {
	case "sqrt":
		f := arg.asFloat()
		if f < 0 {
			return mathValue{}, fmt.Errorf("sqrt of negative value")
		}
		// Perfect squares of integers stay exact.
		if arg.exact() && arg.rat.IsInt() {
			root := new(big.Int).Sqrt(arg.rat.Num())
			if new(big.Int).Mul(root, root).Cmp(arg.rat.Num()) == 0 {
				return exactValue(new(big.Rat).SetInt(root)), nil
			}
		}
		return approxValue(math.Sqrt(f)), nil
	case "abs":
		if arg.exact() {
			return exactValue(new(big.Rat).Abs(arg.rat)), nil
		}
		return approxValue(math.Abs(arg.float)), nil
	case "round":
		return approxValue(math.Round(arg.asFloat())), nil
	case "floor":
		return approxValue(math.Floor(arg.asFloat())), nil
	case "ceil":
		return approxValue(math.Ceil(arg.asFloat())), nil
	default:
		return mathValue{}, fmt.Errorf("unknown function %q", name)
	}
}

func negate(v mathValue) mathValue {
	if v.exact() {
		return exactValue(new(big.Rat).Neg(v.rat))
	}
	return approxValue(-v.float)
}

func addValues(a, b mathValue) mathValue {
	if a.exact() && b.exact() {
		return exactValue(new(big.Rat).Add(a.rat, b.rat))
	}
	return approxValue(a.asFloat() + b.asFloat())
}

func mulValues(a, b mathValue) mathValue {
	if a.exact() && b.exact() {
		return exactValue(new(big.Rat).Mul(a.rat, b.rat))
	}
	return approxValue(a.asFloat() * b.asFloat())
}

func divValues(a, b mathValue) (mathValue, error) {
	if b.exact() && b.rat.Sign() == 0 {
		return mathValue{}, fmt.Errorf("division by zero")
	}
	if !b.exact() && b.float == 0 {
		return mathValue{}, fmt.Errorf("division by zero")
	}
	if a.exact() && b.exact() {
		return exactValue(new(big.Rat).Quo(a.rat, b.rat)), nil
	}
	return approxValue(a.asFloat() / b.asFloat()), nil
}

func powValues(base, exp mathValue) (mathValue, error) {
	// Integer exponents of exact bases stay exact.
	if base.exact() && exp.exact() && exp.rat.IsInt() {
		n := exp.rat.Num()
		if !n.IsInt64() {
			return mathValue{}, fmt.Errorf("exponent too large")
		}
		e := n.Int64()
		if e > 4096 || e < -4096 {
			return mathValue{}, fmt.Errorf("exponent %d out of bounds", e)
		}
		neg := e < 0
		if neg {
			e = -e
		}
		result := new(big.Rat).SetInt64(1)
		factor := new(big.Rat).Set(base.rat)
		for i := int64(0); i < e; i++ {
			result.Mul(result, factor)
		}
		if neg {
			if result.Sign() == 0 {
				return mathValue{}, fmt.Errorf("zero to a negative power")
			}
			result.Inv(result)
		}
		return exactValue(result), nil
	}

	f := math.Pow(base.asFloat(), exp.asFloat())
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return mathValue{}, fmt.Errorf("power result is not a finite number")
	}
	return approxValue(f), nil
}
