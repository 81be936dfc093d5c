package strategy

import (
	"context"
	"fmt"

	"github.com/wonny/watson/internal/money"
	"github.com/wonny/watson/internal/portfolio"
	"github.com/wonny/watson/internal/screener"
	"github.com/wonny/watson/internal/trade"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/metrics"
)

// QuantitySizer sizes one entry
type QuantitySizer interface {
	EntryQty(ctx context.Context, symbol string) (float64, error)
	MaxPositions() int
}

// Ranking orders the passing symbols by a screener column
type Ranking struct {
	Column     string
	Descending bool
}

// ScreenerEntry buys the best-ranked symbols that pass the screen and are not
// already held, up to the free position slots.
type ScreenerEntry struct {
	strategyID string
	screener   *screener.Screener
	ranking    Ranking
	sizer      QuantitySizer
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// NewScreenerEntry creates the screener-driven entry check
func NewScreenerEntry(strategyID string, s *screener.Screener, ranking Ranking, sizer QuantitySizer, log *logger.Logger, m *metrics.Metrics) *ScreenerEntry {
	return &ScreenerEntry{
		strategyID: strategyID,
		screener:   s,
		ranking:    ranking,
		sizer:      sizer,
		logger:     log,
		metrics:    m,
	}
}

// CheckEntry screens the universe with fresh market data
func (e *ScreenerEntry) CheckEntry(ctx context.Context, open []trade.Trade) ([]portfolio.Entry, error) {
	passing, err := e.Screen(ctx)
	if err != nil {
		return nil, err
	}

	held := make(map[string]bool, len(open))
	for _, t := range open {
		held[t.Symbol] = true
	}

	slots := len(passing)
	if maxPositions := e.sizer.MaxPositions(); maxPositions > 0 {
		slots = maxPositions - len(open)
	}

	var entries []portfolio.Entry
	for _, symbol := range passing {
		if len(entries) >= slots {
			break
		}
		if held[symbol] {
			continue
		}

		qty, err := e.sizer.EntryQty(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.WithSymbol(symbol).WithError(err).Warn("Failed to size entry, skipping")
			continue
		}
		if qty <= 0 {
			e.logger.WithSymbol(symbol).Warn("Entry quantity is zero, skipping")
			continue
		}
		entries = append(entries, portfolio.Entry{Symbol: symbol, Qty: qty})
	}

	return entries, nil
}

// Screen runs the screener and returns passing symbols in rank order
func (e *ScreenerEntry) Screen(ctx context.Context) ([]string, error) {
	if err := e.screener.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize screener: %w", err)
	}
	if err := e.screener.Run(ctx); err != nil {
		return nil, fmt.Errorf("run screener: %w", err)
	}

	passing, err := e.screener.ApplyFilters()
	if err != nil {
		return nil, err
	}
	e.metrics.SetPassing(e.strategyID, len(passing))

	if e.ranking.Column != "" {
		passing, err = e.screener.Candidates().SortBy(passing, e.ranking.Column, e.ranking.Descending)
		if err != nil {
			return nil, err
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"passing": len(passing),
		"symbols": passing,
	}).Info("Screen completed")
	return passing, nil
}

// Screener exposes the underlying screener (candidate table for display)
func (e *ScreenerEntry) Screener() *screener.Screener {
	return e.screener
}

var _ QuantitySizer = (*money.Manager)(nil)
