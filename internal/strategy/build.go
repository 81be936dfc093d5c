package strategy

import (
	"fmt"
	"time"

	"github.com/wonny/watson/internal/broker"
	"github.com/wonny/watson/internal/filter"
	"github.com/wonny/watson/internal/marketdata"
	"github.com/wonny/watson/internal/money"
	"github.com/wonny/watson/internal/portfolio"
	"github.com/wonny/watson/internal/screener"
	"github.com/wonny/watson/internal/strategyconfig"
	"github.com/wonny/watson/internal/universe"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/metrics"
)

// Dependencies are the shared services strategies are built on
type Dependencies struct {
	Broker     broker.Broker
	Store      portfolio.Store
	Universe   universe.Source
	MarketData marketdata.Provider
	Earnings   filter.EarningsSource

	// EquityRefresh applies when the strategy file leaves money.equity_refresh unset
	EquityRefresh time.Duration
}

// BuildScreener creates the screener described by cfg with its Use columns set
func BuildScreener(cfg *strategyconfig.Config, deps Dependencies, log *logger.Logger, m *metrics.Metrics) (*screener.Screener, error) {
	u, err := universe.Parse(cfg.Universe)
	if err != nil {
		return nil, err
	}

	opts := []screener.Option{screener.WithMetrics(m)}
	if cfg.MarketData.Period != "" {
		opts = append(opts, screener.WithPeriod(cfg.MarketData.Period))
	}
	s := screener.New(u, deps.Universe, deps.MarketData, log, opts...)

	for i, f := range cfg.Filters {
		built, err := f.Build(deps.Earnings, log)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		if err := s.AddFilter(built); err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
	}
	s.Use(cfg.Screening.Use...)

	return s, nil
}

// Build wires a strategy from its definition
func Build(cfg *strategyconfig.Config, deps Dependencies, log *logger.Logger, m *metrics.Metrics) (*Strategy, error) {
	clog := log.WithStrategy(cfg.Meta.StrategyID)

	s, err := BuildScreener(cfg, deps, clog, m)
	if err != nil {
		return nil, err
	}

	refresh := cfg.Money.EquityRefresh
	if refresh == 0 {
		refresh = deps.EquityRefresh
	}
	mm := money.New(deps.Broker, money.Config{
		MaxPositions:     cfg.Money.MaxPositions,
		PctPerPosition:   cfg.Money.PctPerPosition,
		PctNetAssetValue: cfg.Money.PctNetAssetValue,
		RefreshInterval:  refresh,
	}, clog, m)

	pm := portfolio.New(deps.Broker, deps.Store, portfolio.Config{
		TakeProfitPct: cfg.Exit.TakeProfitPct,
		StopLossPct:   cfg.Exit.StopLossPct,
	}, clog, m)

	rules := make([]filter.MarketDataFilter, 0, len(cfg.Exit.Rules))
	for i, r := range cfg.Exit.Rules {
		built, err := r.Build(deps.Earnings, clog)
		if err != nil {
			return nil, fmt.Errorf("exit.rules[%d]: %w", i, err)
		}
		mdf, ok := built.(filter.MarketDataFilter)
		if !ok {
			return nil, fmt.Errorf("exit.rules[%d]: %s is not an indicator rule", i, built.Name())
		}
		rules = append(rules, mdf)
	}

	entry := NewScreenerEntry(cfg.Meta.StrategyID, s, Ranking{
		Column:     cfg.Screening.RankBy,
		Descending: cfg.Screening.Descending,
	}, mm, clog, m)
	exit := NewRuleExit(cfg.Exit.MaxHoldingDays, rules, deps.MarketData, cfg.MarketData.Period, clog)

	return New(cfg.Meta.StrategyID, Components{
		Broker:    deps.Broker,
		Money:     mm,
		Portfolio: pm,
		Entry:     entry,
		Exit:      exit,
	}, log, m)
}
