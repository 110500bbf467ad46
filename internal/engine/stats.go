package engine

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"qwed/internal/types"
)

// StatsEngine computes descriptive statistics over an inline dataset.
//
// DSL shape:
//
//	fn([x1, x2, ...])            fn in mean|median|sum|min|max|count|stddev|variance
//	percentile(p, [x1, x2, ...]) 0 <= p <= 100
//
// stddev and variance are population statistics. mean, median, sum, min,
// max and count stay exact through rational arithmetic; stddev demotes to
// float because of the square root.
type StatsEngine struct {
	cfg Config
}

// NewStatsEngine creates the stats engine.
func NewStatsEngine(cfg Config) *StatsEngine {
	return &StatsEngine{cfg: cfg}
}

// Name implements Engine.
func (e *StatsEngine) Name() string { return "descriptive_stats" }

// Domain implements Engine.
func (e *StatsEngine) Domain() types.Domain { return types.DomainStats }

var statsExprRe = regexp.MustCompile(`^\s*([a-z]+)\s*\(\s*(.*?)\s*\)\s*$`)

const maxDatasetSize = 100000

type statsCall struct {
	fn      string
	arg     float64 // percentile rank, when fn == "percentile"
	dataset []*big.Rat
}

func parseStatsExpr(expr string) (statsCall, error) {
	m := statsExprRe.FindStringSubmatch(expr)
	if m == nil {
		return statsCall{}, fmt.Errorf("expected fn([values]) form")
	}
	call := statsCall{fn: m[1]}
	body := m[2]

	switch call.fn {
	case "mean", "median", "sum", "min", "max", "count", "stddev", "variance":
		// body is the dataset literal
	case "percentile":
		comma := strings.Index(body, ",")
		if comma < 0 {
			return statsCall{}, fmt.Errorf("percentile needs a rank and a dataset")
		}
		rank, err := strconv.ParseFloat(strings.TrimSpace(body[:comma]), 64)
		if err != nil {
			return statsCall{}, fmt.Errorf("malformed percentile rank: %v", err)
		}
		if rank < 0 || rank > 100 {
			return statsCall{}, fmt.Errorf("percentile rank %v out of [0, 100]", rank)
		}
		call.arg = rank
		body = strings.TrimSpace(body[comma+1:])
	default:
		return statsCall{}, fmt.Errorf("unknown statistic %q", call.fn)
	}

	dataset, err := parseDataset(body)
	if err != nil {
		return statsCall{}, err
	}
	call.dataset = dataset
	return call, nil
}

func parseDataset(body string) ([]*big.Rat, error) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "[") || !strings.HasSuffix(body, "]") {
		return nil, fmt.Errorf("dataset must be a [..] literal")
	}
	inner := strings.TrimSpace(body[1 : len(body)-1])
	if inner == "" {
		return nil, fmt.Errorf("empty dataset")
	}

	parts := strings.Split(inner, ",")
	if len(parts) > maxDatasetSize {
		return nil, fmt.Errorf("dataset exceeds %d values", maxDatasetSize)
	}
	values := make([]*big.Rat, 0, len(parts))
	for _, part := range parts {
		r, ok := new(big.Rat).SetString(strings.TrimSpace(part))
		if !ok {
			return nil, fmt.Errorf("malformed value %q", strings.TrimSpace(part))
		}
		values = append(values, r)
	}
	return values, nil
}

// Validate implements Engine.
func (e *StatsEngine) Validate(expr string) error {
	_, err := parseStatsExpr(expr)
	return err
}

// Evaluate implements Engine.
func (e *StatsEngine) Evaluate(ctx context.Context, expr string) types.EngineOutcome {
	return runWithBudget(ctx, e.cfg.EvalTimeout, func() types.EngineOutcome {
		call, err := parseStatsExpr(expr)
		if err != nil {
			return types.SyntaxFailure(err.Error())
		}

		sorted := make([]*big.Rat, len(call.dataset))
		copy(sorted, call.dataset)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

		n := int64(len(call.dataset))

		switch call.fn {
		case "count":
			return types.Computed(strconv.FormatInt(n, 10), true)
		case "sum":
			return types.Computed(FormatRat(ratSum(call.dataset)), true)
		case "min":
			return types.Computed(FormatRat(sorted[0]), true)
		case "max":
			return types.Computed(FormatRat(sorted[n-1]), true)
		case "mean":
			mean := new(big.Rat).Quo(ratSum(call.dataset), new(big.Rat).SetInt64(n))
			return types.Computed(FormatRat(mean), true)
		case "median":
			return types.Computed(FormatRat(ratMedian(sorted)), true)
		case "variance":
			return types.Computed(FormatRat(ratVariance(call.dataset)), true)
		case "stddev":
			v, _ := ratVariance(call.dataset).Float64()
			return types.Computed(strconv.FormatFloat(math.Sqrt(v), 'g', -1, 64), false)
		case "percentile":
			return types.Computed(percentileValue(sorted, call.arg), false)
		default:
			return types.SyntaxFailure(fmt.Sprintf("unknown statistic %q", call.fn))
		}
	})
}

func ratSum(values []*big.Rat) *big.Rat {
	sum := new(big.Rat)
	for _, v := range values {
		sum.Add(sum, v)
	}
	return sum
}

func ratMedian(sorted []*big.Rat) *big.Rat {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	mid := new(big.Rat).Add(sorted[n/2-1], sorted[n/2])
	return mid.Quo(mid, big.NewRat(2, 1))
}

// ratVariance is the population variance, kept rational: E[x^2] - E[x]^2.
func ratVariance(values []*big.Rat) *big.Rat {
	n := new(big.Rat).SetInt64(int64(len(values)))
	mean := new(big.Rat).Quo(ratSum(values), n)

	sumSquares := new(big.Rat)
	for _, v := range values {
		sq := new(big.Rat).Mul(v, v)
		sumSquares.Add(sumSquares, sq)
	}
	meanSquares := new(big.Rat).Quo(sumSquares, n)
	meanSq := new(big.Rat).Mul(mean, mean)
	return meanSquares.Sub(meanSquares, meanSq)
}

// percentileValue uses linear interpolation between closest ranks.
func percentileValue(sorted []*big.Rat, rank float64) string {
	n := len(sorted)
	if n == 1 {
		f, _ := sorted[0].Float64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	pos := rank / 100 * float64(n-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	lf, _ := sorted[lower].Float64()
	uf, _ := sorted[upper].Float64()
	frac := pos - float64(lower)
	return strconv.FormatFloat(lf+(uf-lf)*frac, 'g', -1, 64)
}
