package universe

import (
	"fmt"
	"strings"
)

// Universe names a supported index constituent list
type Universe string

const (
	NASDAQ100 Universe = "nasdaq100"
	SP500     Universe = "sp500"
)

// Parse resolves a universe name (case-insensitive)
func Parse(s string) (Universe, error) {
	switch Universe(strings.ToLower(strings.TrimSpace(s))) {
	case NASDAQ100:
		return NASDAQ100, nil
	case SP500:
		return SP500, nil
	default:
		return "", fmt.Errorf("unsupported universe: %q", s)
	}
}

func (u Universe) String() string {
	return string(u)
}

// Symbols is an ordered symbol → company mapping, immutable once fetched
type Symbols struct {
	order     []string
	companies map[string]string
}

// NewSymbols builds a Symbols set; duplicates keep their first position
func NewSymbols(pairs ...[2]string) *Symbols {
	s := &Symbols{companies: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		if _, ok := s.companies[p[0]]; ok {
			continue
		}
		s.order = append(s.order, p[0])
		s.companies[p[0]] = p[1]
	}
	return s
}

// List returns symbols in source order (copy)
func (s *Symbols) List() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Company returns the company name for symbol
func (s *Symbols) Company(symbol string) string {
	return s.companies[symbol]
}

// Contains reports whether symbol is part of the set
func (s *Symbols) Contains(symbol string) bool {
	_, ok := s.companies[symbol]
	return ok
}

// Pairs returns (symbol, company) in source order
func (s *Symbols) Pairs() [][2]string {
	out := make([][2]string, len(s.order))
	for i, sym := range s.order {
		out[i] = [2]string{sym, s.companies[sym]}
	}
	return out
}

// Len returns the number of symbols
func (s *Symbols) Len() int {
	return len(s.order)
}
