// Package strategy runs the trading cycle: reconcile the portfolio, close
// trades with exit signals, then open trades for new entry signals.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/watson/internal/portfolio"
	"github.com/wonny/watson/internal/trade"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/metrics"
)

// EntryChecker picks the trades to open given the trades still open
type EntryChecker interface {
	CheckEntry(ctx context.Context, open []trade.Trade) ([]portfolio.Entry, error)
}

// ExitChecker picks the open trades to close
type ExitChecker interface {
	CheckExit(ctx context.Context, open []trade.Trade) ([]portfolio.Exit, error)
}

// Initializer is a component that must be ready before the first run
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Sizer caps the number of open positions
type Sizer interface {
	Initializer
	MaxPositions() int
}

// Portfolio is the trade orchestration the run loop drives
type Portfolio interface {
	Update(ctx context.Context) ([]trade.Trade, error)
	OpenTrades(ctx context.Context, entries []portfolio.Entry) error
	CloseTrades(ctx context.Context, exits []portfolio.Exit) error
}

// Components are the collaborators of a strategy
type Components struct {
	Broker    Initializer
	Money     Sizer
	Portfolio Portfolio
	Entry     EntryChecker
	Exit      ExitChecker
}

// Strategy is one configured trading strategy
type Strategy struct {
	id        string
	broker    Initializer
	money     Sizer
	portfolio Portfolio
	entry     EntryChecker
	exit      ExitChecker
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// New creates a strategy; every component is required
func New(id string, c Components, log *logger.Logger, m *metrics.Metrics) (*Strategy, error) {
	if c.Broker == nil || c.Money == nil || c.Portfolio == nil {
		return nil, errors.New("broker, money management and portfolio must be set")
	}
	if c.Entry == nil || c.Exit == nil {
		return nil, errors.New("entry and exit checks must be set")
	}
	return &Strategy{
		id:        id,
		broker:    c.Broker,
		money:     c.Money,
		portfolio: c.Portfolio,
		entry:     c.Entry,
		exit:      c.Exit,
		logger:    log.WithStrategy(id),
		metrics:   m,
	}, nil
}

// ID returns the strategy id
func (s *Strategy) ID() string {
	return s.id
}

// Initialize checks the broker account and loads equity
func (s *Strategy) Initialize(ctx context.Context) error {
	if err := s.broker.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize broker: %w", err)
	}
	if err := s.money.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize money management: %w", err)
	}
	return nil
}

// Run executes one cycle. A portfolio error while closing trades ends the
// cycle before any entry is evaluated.
func (s *Strategy) Run(ctx context.Context) error {
	start := time.Now()
	err := s.run(ctx)
	s.metrics.ObserveRun(s.id, start, err)

	if err != nil {
		s.logger.WithError(err).Error("Strategy run failed")
		return err
	}
	s.logger.WithField("duration", time.Since(start)).Info("Strategy run completed")
	return nil
}

func (s *Strategy) run(ctx context.Context) error {
	open, err := s.portfolio.Update(ctx)
	if err != nil {
		return fmt.Errorf("update portfolio: %w", err)
	}

	exits, err := s.exit.CheckExit(ctx, open)
	if err != nil {
		return fmt.Errorf("check exit: %w", err)
	}

	maxPositions := s.money.MaxPositions()
	if len(exits) == 0 && maxPositions > 0 && len(open) >= maxPositions {
		s.logger.WithField("max_positions", maxPositions).Info("Max positions reached, skipping entry")
		s.metrics.SetOpenTrades(s.id, len(open))
		return nil
	}

	if len(exits) > 0 {
		s.logger.WithField("symbols", exitSymbols(exits)).Info("Exit signals found")
		// 청산 실패 시 신규 진입 없이 종료
		if err := s.portfolio.CloseTrades(ctx, exits); err != nil {
			return fmt.Errorf("close trades: %w", err)
		}
		open = withoutExits(open, exits)
	}
	s.metrics.SetOpenTrades(s.id, len(open))

	entries, err := s.entry.CheckEntry(ctx, open)
	if err != nil {
		return fmt.Errorf("check entry: %w", err)
	}
	if len(entries) == 0 {
		s.logger.Info("There are no entry signals")
		return nil
	}

	if err := s.portfolio.OpenTrades(ctx, entries); err != nil {
		return fmt.Errorf("open trades: %w", err)
	}
	s.metrics.SetOpenTrades(s.id, len(open)+len(entries))
	return nil
}

func exitSymbols(exits []portfolio.Exit) []string {
	symbols := make([]string, len(exits))
	for i, x := range exits {
		symbols[i] = x.Trade.Symbol
	}
	return symbols
}

// withoutExits drops the trades being closed
func withoutExits(open []trade.Trade, exits []portfolio.Exit) []trade.Trade {
	closing := make(map[int64]bool, len(exits))
	for _, x := range exits {
		closing[x.Trade.ID] = true
	}
	out := make([]trade.Trade, 0, len(open))
	for _, t := range open {
		if !closing[t.ID] {
			out = append(out, t)
		}
	}
	return out
}
