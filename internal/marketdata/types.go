package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PriceField names one OHLC component
type PriceField string

const (
	Open  PriceField = "OPEN"
	High  PriceField = "HIGH"
	Low   PriceField = "LOW"
	Close PriceField = "CLOSE"
)

// ParsePriceField resolves a price field name (case-insensitive)
func ParsePriceField(s string) (PriceField, error) {
	switch f := PriceField(strings.ToUpper(strings.TrimSpace(s))); f {
	case Open, High, Low, Close:
		return f, nil
	default:
		return "", fmt.Errorf("unknown price field: %q", s)
	}
}

// Series is a daily price series, oldest first
type Series []float64

// Last returns the most recent value
func (s Series) Last() (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// Data maps price field → symbol → series
type Data map[PriceField]map[string]Series

// Series returns the series for field and symbol
func (d Data) Series(field PriceField, symbol string) (Series, bool) {
	bySymbol, ok := d[field]
	if !ok {
		return nil, false
	}
	s, ok := bySymbol[symbol]
	return s, ok
}

// Symbols returns how many symbols carry close prices
func (d Data) Symbols() int {
	return len(d[Close])
}

// Bar is one daily OHLC bar
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    uint64
}

// FromBars pivots per-symbol bars into a Data bundle
func FromBars(bars map[string][]Bar) Data {
	data := Data{
		Open:  make(map[string]Series, len(bars)),
		High:  make(map[string]Series, len(bars)),
		Low:   make(map[string]Series, len(bars)),
		Close: make(map[string]Series, len(bars)),
	}
	for symbol, bs := range bars {
		o := make(Series, len(bs))
		h := make(Series, len(bs))
		l := make(Series, len(bs))
		c := make(Series, len(bs))
		for i, b := range bs {
			o[i], h[i], l[i], c[i] = b.Open, b.High, b.Low, b.Close
		}
		data[Open][symbol] = o
		data[High][symbol] = h
		data[Low][symbol] = l
		data[Close][symbol] = c
	}
	return data
}

// Provider fetches daily bars for many symbols at once
type Provider interface {
	GetMultipleSymbolsData(ctx context.Context, symbols []string, period string) (Data, error)
}

// DefaultPeriod is the history requested when none is configured
const DefaultPeriod = "300d"

// ParsePeriod converts "300d" style lookbacks to a duration
func ParsePeriod(period string) (time.Duration, error) {
	period = strings.TrimSpace(strings.ToLower(period))
	if !strings.HasSuffix(period, "d") {
		return 0, fmt.Errorf("invalid period %q: expected <days>d", period)
	}
	days, err := strconv.Atoi(strings.TrimSuffix(period, "d"))
	if err != nil || days <= 0 {
		return 0, fmt.Errorf("invalid period %q: expected <days>d", period)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}
