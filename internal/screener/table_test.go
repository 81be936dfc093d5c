package screener

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/watson/internal/filter"
	"github.com/wonny/watson/internal/universe"
)

func sampleTable() *Table {
	t := NewTable(universe.NewSymbols(
		[2]string{"AAPL", "Apple Inc."},
		[2]string{"MSFT", "Microsoft Corp"},
		[2]string{"NVDA", "NVIDIA Corp"},
	))
	t.Set("ROC20", filter.Column{
		"AAPL": filter.Number(3.5),
		"MSFT": filter.Number(math.NaN()),
		"NVDA": filter.Number(9.1),
	})
	t.Set("ROC20>0", filter.Column{
		"AAPL": filter.Bool(true),
		"MSFT": filter.Bool(false),
		"NVDA": filter.Bool(true),
	})
	return t
}

func TestTableMask(t *testing.T) {
	table := sampleTable()

	got, err := table.Mask("ROC20>0")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "NVDA"}, got)

	// numeric cells are never truthy
	got, err = table.Mask("ROC20")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = table.Mask("missing")
	assert.Error(t, err)
}

func TestTableSortBy(t *testing.T) {
	table := sampleTable()

	desc, err := table.SortBy(table.Symbols(), "ROC20", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA", "AAPL", "MSFT"}, desc)

	asc, err := table.SortBy(table.Symbols(), "ROC20", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "NVDA", "MSFT"}, asc)

	_, err = table.SortBy(table.Symbols(), "nope", true)
	assert.Error(t, err)
}

func TestTableRows(t *testing.T) {
	table := sampleTable()

	header, rows := table.Rows([]string{"MSFT"})
	assert.Equal(t, []string{"Symbol", "Company", "ROC20", "ROC20>0"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"MSFT", "Microsoft Corp", "NaN", "false"}, rows[0])
}

func TestTableSetReplacesInPlace(t *testing.T) {
	table := sampleTable()
	table.Set("ROC20", filter.Column{"AAPL": filter.Number(1)})

	assert.Equal(t, []string{"ROC20", "ROC20>0"}, table.Columns())
	v, ok := table.Get("AAPL", "ROC20")
	require.True(t, ok)
	assert.Equal(t, 1.0, v.Float())

	_, ok = table.Get("MSFT", "ROC20")
	assert.False(t, ok)
}
