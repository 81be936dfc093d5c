package filter

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/watson/internal/marketdata"
)

// ramp returns n closes start, start+step, ...
func ramp(n int, start, step float64) marketdata.Series {
	s := make(marketdata.Series, n)
	for i := range s {
		s[i] = start + float64(i)*step
	}
	return s
}

func flat(n int, v float64) marketdata.Series {
	return ramp(n, v, 0)
}

func bundle(closes map[string]marketdata.Series) marketdata.Data {
	data := marketdata.Data{
		marketdata.Open:  map[string]marketdata.Series{},
		marketdata.High:  map[string]marketdata.Series{},
		marketdata.Low:   map[string]marketdata.Series{},
		marketdata.Close: map[string]marketdata.Series{},
	}
	for symbol, c := range closes {
		h := make(marketdata.Series, len(c))
		l := make(marketdata.Series, len(c))
		for i, v := range c {
			// 고가/저가는 종가 기준 ±(1 + i%3)
			spread := 1 + float64(i%3)
			h[i] = v + spread
			l[i] = v - spread
		}
		data[marketdata.Open][symbol] = c
		data[marketdata.High][symbol] = h
		data[marketdata.Low][symbol] = l
		data[marketdata.Close][symbol] = c
	}
	return data
}

type fakeEarnings struct {
	dates map[string][]time.Time
	err   error
}

func (f *fakeEarnings) GetMultipleEarningsDates(ctx context.Context, symbols []string, lookahead int) (map[string][]time.Time, error) {
	return f.dates, f.err
}

func TestApplyBeforeInitialize(t *testing.T) {
	filters := []Filter{
		ROC(20),
		RSI(14),
		ADX(14),
		SMA(20),
		EMA(20),
		MACD(12, 26, 9),
		ROC(120).Gt(0),
		RSI(14).Lt(30),
		NewEarnings(11, &fakeEarnings{}),
	}

	for _, f := range filters {
		t.Run(f.Name(), func(t *testing.T) {
			_, err := f.Apply(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUninitialized))

			var fe *Error
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, f.Name(), fe.Filter)
		})
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		f    Filter
		want string
	}{
		{ROC(20), "ROC20"},
		{RSI(14), "RSI14"},
		{ADX(14), "ADX14"},
		{SMA(20), "SMA20"},
		{EMA(50), "EMA50"},
		{MACD(12, 26, 9), "MACD12_26_9"},
		{ROC(120).Gt(0), "ROC120>0"},
		{ADX(24).Gt(20), "ADX24>20"},
		{RSI(14).Lt(10), "RSI14<10"},
		{RSI(14).Gte(30.5), "RSI14>=30.5"},
		{SMA(20).Lte(-1), "SMA20<=-1"},
		{EMA(20).Eq(0), "EMA20=0"},
		{ROC(5, WithName("momentum")).Gt(1), "MOMENTUM>1"},
		{NewEarnings(11, &fakeEarnings{}), "Earnings"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Name())
		})
	}
}

func TestIndicatorValues(t *testing.T) {
	ctx := context.Background()
	data := bundle(map[string]marketdata.Series{
		"UP":   ramp(200, 1, 1),
		"FLAT": flat(200, 5),
	})
	symbols := []string{"UP", "FLAT"}

	t.Run("ROC", func(t *testing.T) {
		ind := ROC(120)
		require.NoError(t, ind.Initialize(ctx, symbols, data))
		col, err := ind.Apply(ctx)
		require.NoError(t, err)
		// 200 / 80 - 1
		assert.InDelta(t, 150.0, col["UP"].Float(), 1e-9)
		assert.InDelta(t, 0.0, col["FLAT"].Float(), 1e-9)
	})

	t.Run("SMA", func(t *testing.T) {
		ind := SMA(5)
		require.NoError(t, ind.Initialize(ctx, symbols, data))
		col, err := ind.Apply(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 198.0, col["UP"].Float(), 1e-9)
		assert.InDelta(t, 5.0, col["FLAT"].Float(), 1e-9)
	})

	t.Run("EMA", func(t *testing.T) {
		ind := EMA(10)
		require.NoError(t, ind.Initialize(ctx, symbols, data))
		col, err := ind.Apply(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, col["FLAT"].Float(), 1e-9)
		assert.Less(t, col["UP"].Float(), 200.0)
	})

	t.Run("RSI", func(t *testing.T) {
		ind := RSI(14)
		require.NoError(t, ind.Initialize(ctx, symbols, data))
		col, err := ind.Apply(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, col["UP"].Float(), 1e-6)
	})

	t.Run("MACD", func(t *testing.T) {
		ind := MACD(12, 26, 9)
		require.NoError(t, ind.Initialize(ctx, symbols, data))
		col, err := ind.Apply(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, col["FLAT"].Float(), 1e-9)
		assert.Greater(t, col["UP"].Float(), 0.0)
	})

	t.Run("ADX", func(t *testing.T) {
		ind := ADX(14)
		require.NoError(t, ind.Initialize(ctx, symbols, data))
		col, err := ind.Apply(ctx)
		require.NoError(t, err)
		v := col["UP"].Float()
		assert.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	})
}

func TestIndicatorPerSymbolFailureIsNaN(t *testing.T) {
	ctx := context.Background()
	data := bundle(map[string]marketdata.Series{
		"LONG":  ramp(200, 1, 1),
		"SHORT": ramp(50, 1, 1),
	})

	ind := ROC(120)
	require.NoError(t, ind.Initialize(ctx, []string{"LONG", "SHORT", "MISSING"}, data))

	col, err := ind.Apply(ctx)
	require.NoError(t, err)

	require.Len(t, col, 3)
	assert.False(t, col["LONG"].IsNaN())
	assert.True(t, col["SHORT"].IsNaN())
	assert.True(t, col["MISSING"].IsNaN())
}

func TestIndicatorInvalidPeriod(t *testing.T) {
	ctx := context.Background()
	data := bundle(map[string]marketdata.Series{"UP": ramp(200, 1, 1)})

	for _, ind := range []*Indicator{RSI(1), ADX(0), SMA(-3), ROC(0), MACD(26, 12, 9)} {
		t.Run(ind.Name(), func(t *testing.T) {
			assert.Error(t, ind.Err())
			require.NoError(t, ind.Initialize(ctx, []string{"UP"}, data))
			col, err := ind.Apply(ctx)
			require.NoError(t, err)
			assert.True(t, col["UP"].IsNaN())
		})
	}
}

func TestComparisonNaNIsFalse(t *testing.T) {
	ctx := context.Background()
	data := bundle(map[string]marketdata.Series{"SHORT": ramp(10, 1, 1)})

	comparisons := []*Comparison{
		ROC(120).Gt(0),
		ROC(120).Lt(0),
		ROC(120).Gte(0),
		ROC(120).Lte(0),
		ROC(120).Eq(0),
		ROC(120).Eq(math.NaN()),
	}

	for _, c := range comparisons {
		t.Run(c.Name(), func(t *testing.T) {
			require.NoError(t, c.Initialize(ctx, []string{"SHORT", "MISSING"}, data))
			col, err := c.Apply(ctx)
			require.NoError(t, err)

			for _, symbol := range []string{"SHORT", "MISSING"} {
				require.True(t, col[symbol].IsBool())
				assert.False(t, col[symbol].Truthy(), symbol)
			}
		})
	}
}

func TestComparisonOperators(t *testing.T) {
	tests := []struct {
		op        Op
		v         float64
		threshold float64
		want      bool
	}{
		{OpGt, 1, 0, true},
		{OpGt, 0, 0, false},
		{OpLt, -1, 0, true},
		{OpLt, 0, 0, false},
		{OpGte, 0, 0, true},
		{OpGte, -0.1, 0, false},
		{OpLte, 0, 0, true},
		{OpLte, 0.1, 0, false},
		{OpEq, 5, 5, true},
		{OpEq, 5, 5.1, false},
	}

	for _, tt := range tests {
		name := ComparisonName("X", tt.op, tt.threshold)
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.holds(tt.v, tt.threshold))
		})
	}
}

func TestComparisonEndToEnd(t *testing.T) {
	ctx := context.Background()
	data := bundle(map[string]marketdata.Series{
		"AAPL": ramp(300, 100, 0.5),
		"MSFT": ramp(300, 400, -0.5),
	})

	f := ROC(120).Gt(0)
	require.NoError(t, f.Initialize(ctx, []string{"AAPL", "MSFT"}, data))

	col, err := f.Apply(ctx)
	require.NoError(t, err)

	assert.Equal(t, "ROC120>0", f.Name())
	assert.True(t, col["AAPL"].Truthy())
	assert.False(t, col["MSFT"].Truthy())
}

func TestParseOp(t *testing.T) {
	for in, want := range map[string]Op{">": OpGt, "gt": OpGt, "LT": OpLt, ">=": OpGte, "lte": OpLte, "==": OpEq, "eq": OpEq} {
		got, err := ParseOp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOp("!=")
	assert.Error(t, err)
}

func TestEarnings(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	day := func(n int) time.Time {
		return time.Date(2024, 1, 15+n, 0, 0, 0, 0, time.UTC)
	}

	src := &fakeEarnings{dates: map[string][]time.Time{
		"AAPL": {day(5)},
		"TSLA": {day(20)},
		"NVDA": {day(20), day(11)},
		"AMZN": {day(0)},
	}}

	f := NewEarnings(11, src)
	f.now = func() time.Time { return now }
	require.NoError(t, f.Initialize(ctx, []string{"AAPL", "MSFT", "TSLA", "NVDA", "AMZN"}))

	col, err := f.Apply(ctx)
	require.NoError(t, err)

	assert.False(t, col["AAPL"].Truthy(), "reports in 5 days")
	assert.True(t, col["MSFT"].Truthy(), "no known date")
	assert.True(t, col["TSLA"].Truthy(), "outside window")
	assert.False(t, col["NVDA"].Truthy(), "any date inside window fails")
	assert.False(t, col["AMZN"].Truthy(), "reports today")
	assert.Len(t, col, 5)
}

func TestEarningsInitializeError(t *testing.T) {
	f := NewEarnings(11, &fakeEarnings{err: errors.New("finnhub down")})

	err := f.Initialize(context.Background(), []string{"AAPL"})
	require.Error(t, err)

	var fe *Error
	assert.True(t, errors.As(err, &fe))

	_, err = f.Apply(context.Background())
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestValue(t *testing.T) {
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "NaN", Number(math.NaN()).String())
	assert.Equal(t, "1.50", Number(1.5).String())
	assert.Equal(t, 1.0, Bool(true).Float())
	assert.False(t, Number(1).Truthy())
	assert.False(t, Bool(false).IsNaN())
}
