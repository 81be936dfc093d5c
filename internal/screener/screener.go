package screener

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/watson/internal/filter"
	"github.com/wonny/watson/internal/marketdata"
	"github.com/wonny/watson/internal/universe"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/metrics"
)

// registration binds a filter to its initializer, chosen once at AddFilter
type registration struct {
	filter filter.Filter
	init   func(ctx context.Context, symbols []string, data marketdata.Data) error
}

// Screener runs universe → market data → filters into a candidate table
type Screener struct {
	universe   universe.Universe
	source     universe.Source
	marketData marketdata.Provider
	period     string
	logger     *logger.Logger
	metrics    *metrics.Metrics

	filters     []registration
	use         []string
	symbols     *universe.Symbols
	candidates  *Table
	initialized bool
}

// Option customizes a Screener
type Option func(*Screener)

// WithPeriod sets the history fetched for indicators (default 300d)
func WithPeriod(period string) Option {
	return func(s *Screener) { s.period = period }
}

// WithMetrics records filter timings
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Screener) { s.metrics = m }
}

// New creates a screener over u
func New(u universe.Universe, source universe.Source, md marketdata.Provider, log *logger.Logger, opts ...Option) *Screener {
	s := &Screener{
		universe:   u,
		source:     source,
		marketData: md,
		period:     marketdata.DefaultPeriod,
		logger:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddFilter registers f. Filters run in registration order.
func (s *Screener) AddFilter(f filter.Filter) error {
	var init func(context.Context, []string, marketdata.Data) error

	switch v := f.(type) {
	case filter.MarketDataFilter:
		init = v.Initialize
	case filter.SymbolFilter:
		init = func(ctx context.Context, symbols []string, _ marketdata.Data) error {
			return v.Initialize(ctx, symbols)
		}
	default:
		return fmt.Errorf("filter %s has no Initialize method", f.Name())
	}

	s.filters = append(s.filters, registration{filter: f, init: init})
	return nil
}

// Use selects the boolean columns ANDed by ApplyFilters
func (s *Screener) Use(names ...string) {
	s.use = append([]string(nil), names...)
}

// Initialize fetches the universe and market data, then initializes every filter
func (s *Screener) Initialize(ctx context.Context) error {
	s.logger.WithField("universe", s.universe.String()).Info("Initializing screener")

	symbols, err := s.source.GetSymbols(ctx, s.universe)
	if err != nil {
		return fmt.Errorf("get symbols: %w", err)
	}
	list := symbols.List()

	data, err := s.marketData.GetMultipleSymbolsData(ctx, list, s.period)
	if err != nil {
		return fmt.Errorf("get market data: %w", err)
	}

	for _, r := range s.filters {
		if err := r.init(ctx, list, data); err != nil {
			return fmt.Errorf("initialize %s: %w", r.filter.Name(), err)
		}
	}

	s.symbols = symbols
	s.candidates = NewTable(symbols)
	s.initialized = true
	return nil
}

// Run applies every filter in order, one column each. Re-running
// overwrites columns.
func (s *Screener) Run(ctx context.Context) error {
	if !s.initialized {
		return &filter.Error{Filter: "screener", Err: filter.ErrUninitialized}
	}

	for _, r := range s.filters {
		start := time.Now()
		col, err := r.filter.Apply(ctx)
		s.metrics.ObserveFilter(r.filter.Name(), start, err)
		if err != nil {
			return fmt.Errorf("apply %s: %w", r.filter.Name(), err)
		}
		s.candidates.Set(r.filter.Name(), col)

		s.logger.WithFields(map[string]interface{}{
			"filter":   r.filter.Name(),
			"duration": time.Since(start),
		}).Debug("Filter applied")
	}

	return nil
}

// ApplyFilters returns symbols passing every Use column (all symbols if none)
func (s *Screener) ApplyFilters() ([]string, error) {
	if !s.initialized {
		return nil, &filter.Error{Filter: "screener", Err: filter.ErrUninitialized}
	}
	return s.candidates.Mask(s.use...)
}

// Candidates returns the table; nil before Initialize
func (s *Screener) Candidates() *Table {
	return s.candidates
}

// Symbols returns the fetched universe; nil before Initialize
func (s *Screener) Symbols() *universe.Symbols {
	return s.symbols
}

// Filters returns registered filter names in order
func (s *Screener) Filters() []string {
	names := make([]string, len(s.filters))
	for i, r := range s.filters {
		names[i] = r.filter.Name()
	}
	return names
}
