// Package filter implements the named per-symbol predicates and value
// producers that make up screener columns.
package filter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/wonny/watson/internal/marketdata"
	"github.com/wonny/watson/pkg/logger"
)

// ErrUninitialized is returned by Apply before Initialize succeeded
var ErrUninitialized = errors.New("not initialized")

// Error wraps a failure of a single filter
type Error struct {
	Filter string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("filter %s: %v", e.Filter, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func uninitialized(name string) error {
	return &Error{Filter: name, Err: ErrUninitialized}
}

// Filter produces one column of the candidate table.
// Name is the column header; two filters with the same name share a column.
type Filter interface {
	Name() string
	Apply(ctx context.Context) (Column, error)
}

// SymbolFilter is initialized with the universe only
type SymbolFilter interface {
	Filter
	Initialize(ctx context.Context, symbols []string) error
}

// MarketDataFilter is initialized with the universe and the shared bar bundle
type MarketDataFilter interface {
	Filter
	Initialize(ctx context.Context, symbols []string, data marketdata.Data) error
}

// Value is a single cell: either a boolean or a number (possibly NaN)
type Value struct {
	isBool bool
	b      bool
	n      float64
}

// Bool makes a boolean cell
func Bool(b bool) Value {
	return Value{isBool: true, b: b}
}

// Number makes a numeric cell
func Number(n float64) Value {
	return Value{n: n}
}

// IsBool reports whether v holds a boolean
func (v Value) IsBool() bool {
	return v.isBool
}

// Truthy is true only for a boolean true cell
func (v Value) Truthy() bool {
	return v.isBool && v.b
}

// Float returns the numeric value; booleans map to 0/1
func (v Value) Float() float64 {
	if v.isBool {
		if v.b {
			return 1
		}
		return 0
	}
	return v.n
}

// IsNaN reports an undefined numeric cell
func (v Value) IsNaN() bool {
	return !v.isBool && math.IsNaN(v.n)
}

func (v Value) String() string {
	if v.isBool {
		return strconv.FormatBool(v.b)
	}
	if math.IsNaN(v.n) {
		return "NaN"
	}
	return strconv.FormatFloat(v.n, 'f', 2, 64)
}

// Column maps symbol → cell
type Column map[string]Value

// Option customizes a filter at construction
type Option func(*options)

type options struct {
	name  string
	price marketdata.PriceField
	log   *logger.Logger
}

func buildOptions(defaultName string, opts []Option) options {
	o := options{name: defaultName, price: marketdata.Close, log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithName overrides the derived display name
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithPrice selects the input series for single-input indicators
func WithPrice(field marketdata.PriceField) Option {
	return func(o *options) { o.price = field }
}

// WithLogger attaches the logger used for per-symbol warnings
func WithLogger(log *logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}
