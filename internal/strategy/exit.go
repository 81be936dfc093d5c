package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/watson/internal/filter"
	"github.com/wonny/watson/internal/marketdata"
	"github.com/wonny/watson/internal/portfolio"
	"github.com/wonny/watson/internal/trade"
	"github.com/wonny/watson/pkg/logger"
)

// RuleExit closes trades held too long or matching any exit rule.
// Rules are boolean indicator columns evaluated over the held symbols only.
type RuleExit struct {
	maxHolding time.Duration
	rules      []filter.MarketDataFilter
	marketData marketdata.Provider
	period     string
	logger     *logger.Logger
	now        func() time.Time
}

// NewRuleExit creates the exit check; maxHoldingDays 0 disables the age limit
func NewRuleExit(maxHoldingDays int, rules []filter.MarketDataFilter, md marketdata.Provider, period string, log *logger.Logger) *RuleExit {
	if period == "" {
		period = marketdata.DefaultPeriod
	}
	return &RuleExit{
		maxHolding: time.Duration(maxHoldingDays) * 24 * time.Hour,
		rules:      rules,
		marketData: md,
		period:     period,
		logger:     log,
		now:        time.Now,
	}
}

// CheckExit returns one exit per trade, age limit first
func (r *RuleExit) CheckExit(ctx context.Context, open []trade.Trade) ([]portfolio.Exit, error) {
	if len(open) == 0 {
		return nil, nil
	}

	signals, err := r.evaluate(ctx, open)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var exits []portfolio.Exit
	for _, t := range open {
		switch {
		case r.maxHolding > 0 && now.Sub(t.FilledAt) >= r.maxHolding:
			exits = append(exits, portfolio.Exit{Trade: t, Reason: trade.ReasonMaxHolding})
		case signals[t.Symbol] != "":
			r.logger.WithFields(map[string]interface{}{
				"symbol": t.Symbol,
				"rule":   signals[t.Symbol],
			}).Info("Exit rule triggered")
			exits = append(exits, portfolio.Exit{Trade: t, Reason: trade.ReasonSignal})
		}
	}
	return exits, nil
}

// evaluate maps each held symbol to the first rule that is true for it
func (r *RuleExit) evaluate(ctx context.Context, open []trade.Trade) (map[string]string, error) {
	signals := make(map[string]string)
	if len(r.rules) == 0 {
		return signals, nil
	}

	seen := make(map[string]bool, len(open))
	var symbols []string
	for _, t := range open {
		if !seen[t.Symbol] {
			seen[t.Symbol] = true
			symbols = append(symbols, t.Symbol)
		}
	}

	data, err := r.marketData.GetMultipleSymbolsData(ctx, symbols, r.period)
	if err != nil {
		return nil, fmt.Errorf("get market data: %w", err)
	}

	for _, rule := range r.rules {
		if err := rule.Initialize(ctx, symbols, data); err != nil {
			return nil, fmt.Errorf("initialize %s: %w", rule.Name(), err)
		}
		col, err := rule.Apply(ctx)
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", rule.Name(), err)
		}
		for symbol, v := range col {
			if v.Truthy() && signals[symbol] == "" {
				signals[symbol] = rule.Name()
			}
		}
	}
	return signals, nil
}
