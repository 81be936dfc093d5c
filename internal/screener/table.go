package screener

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/watson/internal/filter"
	"github.com/wonny/watson/internal/universe"
)

// Table is the candidate table: one row per symbol, one column per filter.
// Rows are never dropped; callers select with Mask.
type Table struct {
	symbols   []string
	companies map[string]string
	columns   []string
	cells     map[string]filter.Column
}

// NewTable snapshots the universe into an empty table
func NewTable(symbols *universe.Symbols) *Table {
	list := symbols.List()
	companies := make(map[string]string, len(list))
	for _, s := range list {
		companies[s] = symbols.Company(s)
	}
	return &Table{
		symbols:   list,
		companies: companies,
		cells:     make(map[string]filter.Column),
	}
}

// Symbols returns every row key in universe order
func (t *Table) Symbols() []string {
	return append([]string(nil), t.symbols...)
}

// Company returns the company name for a row
func (t *Table) Company(symbol string) string {
	return t.companies[symbol]
}

// Columns returns column names in first-write order
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Set writes a column, replacing any column of the same name in place
func (t *Table) Set(name string, col filter.Column) {
	if _, ok := t.cells[name]; !ok {
		t.columns = append(t.columns, name)
	}
	t.cells[name] = col
}

// Column returns a column by name
func (t *Table) Column(name string) (filter.Column, bool) {
	col, ok := t.cells[name]
	return col, ok
}

// Get returns one cell
func (t *Table) Get(symbol, column string) (filter.Value, bool) {
	col, ok := t.cells[column]
	if !ok {
		return filter.Value{}, false
	}
	v, ok := col[symbol]
	return v, ok
}

// Mask returns symbols whose cells are true in every named column.
// With no columns every symbol is returned.
func (t *Table) Mask(columns ...string) ([]string, error) {
	for _, name := range columns {
		if _, ok := t.cells[name]; !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
	}

	var out []string
	for _, symbol := range t.symbols {
		keep := true
		for _, name := range columns {
			if !t.cells[name][symbol].Truthy() {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, symbol)
		}
	}
	return out, nil
}

// SortBy orders symbols by a numeric column; NaN and missing cells sort last
func (t *Table) SortBy(symbols []string, column string, desc bool) ([]string, error) {
	col, ok := t.cells[column]
	if !ok {
		return nil, fmt.Errorf("column %q not found", column)
	}

	key := func(s string) float64 {
		v, ok := col[s]
		if !ok {
			return math.NaN()
		}
		return v.Float()
	}

	out := append([]string(nil), symbols...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := key(out[i]), key(out[j])
		switch {
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		case desc:
			return a > b
		default:
			return a < b
		}
	})
	return out, nil
}

// Rows renders symbols as string rows: Symbol, Company, then each column
func (t *Table) Rows(symbols []string) (header []string, rows [][]string) {
	header = append([]string{"Symbol", "Company"}, t.columns...)
	for _, s := range symbols {
		row := []string{s, t.companies[s]}
		for _, name := range t.columns {
			if v, ok := t.cells[name][s]; ok {
				row = append(row, v.String())
			} else {
				row = append(row, "-")
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}
