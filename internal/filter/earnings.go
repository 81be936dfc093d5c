package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/watson/pkg/logger"
)

// EarningsSource returns upcoming earnings dates for the given symbols
type EarningsSource interface {
	GetMultipleEarningsDates(ctx context.Context, symbols []string, lookahead int) (map[string][]time.Time, error)
}

// Earnings fails symbols that report within the lookahead window.
// A symbol with no known date passes.
type Earnings struct {
	name      string
	lookahead int
	source    EarningsSource
	logger    *logger.Logger
	now       func() time.Time

	initialized bool
	symbols     []string
	dates       map[string][]time.Time
}

// NewEarnings creates the earnings filter, named "Earnings" by default
func NewEarnings(lookahead int, source EarningsSource, opts ...Option) *Earnings {
	o := buildOptions("Earnings", opts)
	return &Earnings{
		name:      o.name,
		lookahead: lookahead,
		source:    source,
		logger:    o.log,
		now:       time.Now,
	}
}

// Name returns the column name
func (e *Earnings) Name() string {
	return e.name
}

// Lookahead returns the window in days
func (e *Earnings) Lookahead() int {
	return e.lookahead
}

// Initialize fetches the calendar for the universe
func (e *Earnings) Initialize(ctx context.Context, symbols []string) error {
	dates, err := e.source.GetMultipleEarningsDates(ctx, symbols, e.lookahead)
	if err != nil {
		return &Error{Filter: e.name, Err: fmt.Errorf("load earnings calendar: %w", err)}
	}

	e.symbols = append([]string(nil), symbols...)
	e.dates = dates
	e.initialized = true
	return nil
}

// Apply marks each symbol true unless a known date falls inside the window
func (e *Earnings) Apply(ctx context.Context) (Column, error) {
	if !e.initialized {
		return nil, uninitialized(e.name)
	}

	window := time.Duration(e.lookahead) * 24 * time.Hour
	today := e.now()

	result := make(Column, len(e.symbols))
	for _, symbol := range e.symbols {
		pass := true
		for _, d := range e.dates[symbol] {
			if d.Sub(today) <= window {
				pass = false
				break
			}
		}
		if _, known := e.dates[symbol]; !known {
			e.logger.WithFields(map[string]interface{}{
				"symbol":    symbol,
				"lookahead": e.lookahead,
			}).Debug("No earnings date in window")
		}
		result[symbol] = Bool(pass)
	}

	return result, nil
}
