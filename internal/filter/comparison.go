package filter

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wonny/watson/internal/marketdata"
)

// Op is a comparison operator
type Op string

const (
	OpGt  Op = ">"
	OpLt  Op = "<"
	OpGte Op = ">="
	OpLte Op = "<="
	OpEq  Op = "="
)

// ParseOp resolves an operator symbol or its short name (gt, lt, gte, lte, eq)
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ">", "gt":
		return OpGt, nil
	case "<", "lt":
		return OpLt, nil
	case ">=", "gte":
		return OpGte, nil
	case "<=", "lte":
		return OpLte, nil
	case "=", "==", "eq":
		return OpEq, nil
	default:
		return "", fmt.Errorf("unknown comparison operator: %q", s)
	}
}

func (op Op) holds(v, threshold float64) bool {
	switch op {
	case OpGt:
		return v > threshold
	case OpLt:
		return v < threshold
	case OpGte:
		return v >= threshold
	case OpLte:
		return v <= threshold
	case OpEq:
		return v == threshold
	}
	return false
}

// Comparison turns an indicator into a boolean column.
// NaN values fail every operator, including equality.
type Comparison struct {
	indicator *Indicator
	op        Op
	threshold float64
	name      string

	initialized bool
}

func newComparison(ind *Indicator, op Op, threshold float64) *Comparison {
	return &Comparison{
		indicator: ind,
		op:        op,
		threshold: threshold,
		name:      ComparisonName(ind.Name(), op, threshold),
	}
}

// ComparisonName derives the column name, e.g. ROC120>0 or RSI14<=30.5
func ComparisonName(indicator string, op Op, threshold float64) string {
	return strings.ToUpper(indicator + string(op) + strconv.FormatFloat(threshold, 'f', -1, 64))
}

// Name returns the column name
func (c *Comparison) Name() string {
	return c.name
}

// Indicator returns the wrapped indicator
func (c *Comparison) Indicator() *Indicator {
	return c.indicator
}

// Initialize delegates to the wrapped indicator
func (c *Comparison) Initialize(ctx context.Context, symbols []string, data marketdata.Data) error {
	if err := c.indicator.Initialize(ctx, symbols, data); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Apply evaluates the predicate per symbol
func (c *Comparison) Apply(ctx context.Context) (Column, error) {
	if !c.initialized {
		return nil, uninitialized(c.name)
	}

	values, err := c.indicator.Apply(ctx)
	if err != nil {
		return nil, err
	}

	result := make(Column, len(values))
	for symbol, v := range values {
		n := v.Float()
		if math.IsNaN(n) {
			c.indicator.logger.WithFields(map[string]interface{}{
				"filter": c.name,
				"symbol": symbol,
			}).Warn("Indicator is NaN")
			result[symbol] = Bool(false)
			continue
		}
		result[symbol] = Bool(c.op.holds(n, c.threshold))
	}

	return result, nil
}
