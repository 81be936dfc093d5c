package filter

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/wonny/watson/internal/marketdata"
	"github.com/wonny/watson/pkg/logger"
)

// calcFunc reduces the bound input series of one symbol to its latest value
type calcFunc func(inputs []marketdata.Series) (float64, error)

// Indicator computes a technical value per symbol from daily bars.
// Each symbol is computed independently; a failure yields NaN for that
// symbol alone.
type Indicator struct {
	name    string
	fields  []marketdata.PriceField
	minBars int
	calc    calcFunc
	invalid error
	logger  *logger.Logger

	initialized bool
	symbols     []string
	inputs      map[string][]marketdata.Series
}

func newIndicator(o options, fields []marketdata.PriceField, minBars int, calc calcFunc) *Indicator {
	return &Indicator{
		name:    o.name,
		fields:  fields,
		minBars: minBars,
		calc:    calc,
		logger:  o.log,
	}
}

// ROC is the rate of change over period bars, in percent
func ROC(period int, opts ...Option) *Indicator {
	o := buildOptions(fmt.Sprintf("ROC%d", period), opts)
	ind := newIndicator(o, []marketdata.PriceField{o.price}, period+1, func(in []marketdata.Series) (float64, error) {
		return last(talib.Roc(in[0], period))
	})
	return ind.requirePeriod(period, 1)
}

// RSI is the relative strength index
func RSI(period int, opts ...Option) *Indicator {
	o := buildOptions(fmt.Sprintf("RSI%d", period), opts)
	ind := newIndicator(o, []marketdata.PriceField{o.price}, period+1, func(in []marketdata.Series) (float64, error) {
		return last(talib.Rsi(in[0], period))
	})
	return ind.requirePeriod(period, 2)
}

// ADX is the average directional index over high/low/close
func ADX(period int, opts ...Option) *Indicator {
	o := buildOptions(fmt.Sprintf("ADX%d", period), opts)
	fields := []marketdata.PriceField{marketdata.High, marketdata.Low, marketdata.Close}
	ind := newIndicator(o, fields, 2*period, func(in []marketdata.Series) (float64, error) {
		if len(in[0]) != len(in[1]) || len(in[1]) != len(in[2]) {
			return math.NaN(), fmt.Errorf("high/low/close length mismatch")
		}
		return last(talib.Adx(in[0], in[1], in[2], period))
	})
	return ind.requirePeriod(period, 2)
}

// SMA is the simple moving average
func SMA(period int, opts ...Option) *Indicator {
	o := buildOptions(fmt.Sprintf("SMA%d", period), opts)
	ind := newIndicator(o, []marketdata.PriceField{o.price}, period, func(in []marketdata.Series) (float64, error) {
		return last(talib.Sma(in[0], period))
	})
	return ind.requirePeriod(period, 2)
}

// EMA is the exponential moving average
func EMA(period int, opts ...Option) *Indicator {
	o := buildOptions(fmt.Sprintf("EMA%d", period), opts)
	ind := newIndicator(o, []marketdata.PriceField{o.price}, period, func(in []marketdata.Series) (float64, error) {
		return last(talib.Ema(in[0], period))
	})
	return ind.requirePeriod(period, 2)
}

// MACD is the MACD line (not signal or histogram)
func MACD(fast, slow, signal int, opts ...Option) *Indicator {
	o := buildOptions(fmt.Sprintf("MACD%d_%d_%d", fast, slow, signal), opts)
	ind := newIndicator(o, []marketdata.PriceField{o.price}, slow+signal-1, func(in []marketdata.Series) (float64, error) {
		line, _, _ := talib.Macd(in[0], fast, slow, signal)
		return last(line)
	})
	if fast < 1 || signal < 1 || fast >= slow {
		ind.invalid = fmt.Errorf("invalid MACD periods %d/%d/%d", fast, slow, signal)
	}
	return ind
}

func (ind *Indicator) requirePeriod(period, minimum int) *Indicator {
	if period < minimum {
		ind.invalid = fmt.Errorf("%s: period must be at least %d, got %d", ind.name, minimum, period)
	}
	return ind
}

// Err reports a construction problem (bad periods); such an indicator
// yields NaN for every symbol.
func (ind *Indicator) Err() error {
	return ind.invalid
}

func last(out []float64) (float64, error) {
	if len(out) == 0 {
		return math.NaN(), fmt.Errorf("empty result")
	}
	return out[len(out)-1], nil
}

// Name returns the column name
func (ind *Indicator) Name() string {
	return ind.name
}

// Initialize binds each symbol to the input series it needs.
// Symbols missing from data are kept and produce NaN on Apply.
func (ind *Indicator) Initialize(ctx context.Context, symbols []string, data marketdata.Data) error {
	ind.symbols = append([]string(nil), symbols...)
	ind.inputs = make(map[string][]marketdata.Series, len(symbols))

	for _, symbol := range symbols {
		inputs := make([]marketdata.Series, 0, len(ind.fields))
		for _, field := range ind.fields {
			s, ok := data.Series(field, symbol)
			if !ok {
				inputs = nil
				break
			}
			inputs = append(inputs, s)
		}
		if inputs != nil {
			ind.inputs[symbol] = inputs
		}
	}

	ind.initialized = true
	return nil
}

// Apply returns the latest indicator value per symbol
func (ind *Indicator) Apply(ctx context.Context) (Column, error) {
	if !ind.initialized {
		return nil, uninitialized(ind.name)
	}

	values := make(Column, len(ind.symbols))
	for _, symbol := range ind.symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		inputs, ok := ind.inputs[symbol]
		if !ok {
			ind.logger.WithFields(map[string]interface{}{
				"indicator": ind.name,
				"symbol":    symbol,
			}).Warn("No market data available")
			values[symbol] = Number(math.NaN())
			continue
		}

		v, err := ind.compute(inputs)
		if err != nil {
			ind.logger.WithError(err).WithFields(map[string]interface{}{
				"indicator": ind.name,
				"symbol":    symbol,
			}).Warn("Indicator calculation failed")
			v = math.NaN()
		}
		values[symbol] = Number(v)
	}

	return values, nil
}

// compute guards the library call: short input is an error, not a zero
func (ind *Indicator) compute(inputs []marketdata.Series) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = math.NaN(), fmt.Errorf("calculation panicked: %v", r)
		}
	}()

	if ind.invalid != nil {
		return math.NaN(), ind.invalid
	}
	for _, s := range inputs {
		if len(s) < ind.minBars {
			return math.NaN(), fmt.Errorf("insufficient history: %d bars, need %d", len(s), ind.minBars)
		}
	}

	return ind.calc(inputs)
}

// Gt wraps the indicator in a value > threshold predicate
func (ind *Indicator) Gt(threshold float64) *Comparison {
	return newComparison(ind, OpGt, threshold)
}

// Lt wraps the indicator in a value < threshold predicate
func (ind *Indicator) Lt(threshold float64) *Comparison {
	return newComparison(ind, OpLt, threshold)
}

// Gte wraps the indicator in a value >= threshold predicate
func (ind *Indicator) Gte(threshold float64) *Comparison {
	return newComparison(ind, OpGte, threshold)
}

// Lte wraps the indicator in a value <= threshold predicate
func (ind *Indicator) Lte(threshold float64) *Comparison {
	return newComparison(ind, OpLte, threshold)
}

// Eq wraps the indicator in a value = threshold predicate
func (ind *Indicator) Eq(threshold float64) *Comparison {
	return newComparison(ind, OpEq, threshold)
}
