package strategyconfig

import (
	"fmt"
	"strings"

	"github.com/wonny/watson/internal/filter"
	"github.com/wonny/watson/internal/marketdata"
	"github.com/wonny/watson/pkg/logger"
)

// Filter types accepted in YAML
const (
	TypeROC      = "ROC"
	TypeRSI      = "RSI"
	TypeADX      = "ADX"
	TypeSMA      = "SMA"
	TypeEMA      = "EMA"
	TypeMACD     = "MACD"
	TypeEarnings = "EARNINGS"
)

// Build creates the screener filter described by f
func (f Filter) Build(earnings filter.EarningsSource, log *logger.Logger) (filter.Filter, error) {
	if strings.ToUpper(f.Type) == TypeEarnings {
		if f.IsComparison() {
			return nil, fmt.Errorf("EARNINGS does not take op/value")
		}
		if f.Lookahead <= 0 {
			return nil, fmt.Errorf("EARNINGS lookahead must be > 0")
		}
		opts := []filter.Option{filter.WithLogger(log)}
		if f.Name != "" {
			opts = append(opts, filter.WithName(f.Name))
		}
		return filter.NewEarnings(f.Lookahead, earnings, opts...), nil
	}

	ind, err := f.Indicator(log)
	if err != nil {
		return nil, err
	}
	if !f.IsComparison() {
		return ind, nil
	}

	op, err := filter.ParseOp(f.Op)
	if err != nil {
		return nil, err
	}
	if f.Value == nil {
		return nil, fmt.Errorf("%s: op %q needs a value", ind.Name(), f.Op)
	}

	switch op {
	case filter.OpGt:
		return ind.Gt(*f.Value), nil
	case filter.OpLt:
		return ind.Lt(*f.Value), nil
	case filter.OpGte:
		return ind.Gte(*f.Value), nil
	case filter.OpLte:
		return ind.Lte(*f.Value), nil
	default:
		return ind.Eq(*f.Value), nil
	}
}

// Indicator builds the technical indicator without its comparison
func (f Filter) Indicator(log *logger.Logger) (*filter.Indicator, error) {
	opts := []filter.Option{filter.WithLogger(log)}
	if f.Name != "" {
		opts = append(opts, filter.WithName(f.Name))
	}
	if f.Price != "" {
		field, err := marketdata.ParsePriceField(f.Price)
		if err != nil {
			return nil, err
		}
		opts = append(opts, filter.WithPrice(field))
	}

	var ind *filter.Indicator
	switch strings.ToUpper(f.Type) {
	case TypeROC:
		ind = filter.ROC(f.Period, opts...)
	case TypeRSI:
		ind = filter.RSI(f.Period, opts...)
	case TypeADX:
		ind = filter.ADX(f.Period, opts...)
	case TypeSMA:
		ind = filter.SMA(f.Period, opts...)
	case TypeEMA:
		ind = filter.EMA(f.Period, opts...)
	case TypeMACD:
		ind = filter.MACD(f.Fast, f.Slow, f.Signal, opts...)
	default:
		return nil, fmt.Errorf("unknown filter type %q", f.Type)
	}

	if err := ind.Err(); err != nil {
		return nil, err
	}
	return ind, nil
}

// ColumnName returns the candidate table column f writes
func (f Filter) ColumnName() (string, error) {
	built, err := f.Build(nil, logger.Nop())
	if err != nil {
		return "", err
	}
	return built.Name(), nil
}
