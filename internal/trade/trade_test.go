package trade

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/watson/pkg/logger"
)

func ptr[T any](v T) *T {
	return &v
}

func TestFields_Columns(t *testing.T) {
	cols, err := Fields{"stop_loss": 1.0, "status": StatusClosed, "exit_price": 2.0}.columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"exit_price", "status", "stop_loss"}, cols)

	_, err = Fields{"symbol": "AAPL", "filled_qty": 1.0, "status": StatusOpen}.columns()
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Contains(t, err.Error(), "filled_qty, symbol")
}

func TestTrade_PnL(t *testing.T) {
	tests := []struct {
		name   string
		trade  Trade
		want   float64
		wantOK bool
	}{
		{"long win", Trade{Side: "buy", FilledQty: 10, FilledPrice: 100, ExitPrice: ptr(110.0)}, 100, true},
		{"long loss", Trade{Side: "buy", FilledQty: 10, FilledPrice: 100, ExitPrice: ptr(95.0)}, -50, true},
		{"short win", Trade{Side: "sell", FilledQty: 10, FilledPrice: 100, ExitPrice: ptr(90.0)}, 100, true},
		{"no exit", Trade{Side: "buy", FilledQty: 10, FilledPrice: 100}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.trade.PnL()
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSummarize(t *testing.T) {
	stats := &Statistics{Total: 4, Open: 1, Closed: 3}
	summarize(stats, []Trade{
		{Side: "buy", FilledQty: 1, FilledPrice: 100, ExitPrice: ptr(110.0)},
		{Side: "buy", FilledQty: 1, FilledPrice: 100, ExitPrice: ptr(100.0)},
		{Side: "sell", FilledQty: 2, FilledPrice: 50, ExitPrice: ptr(45.0)},
	})

	assert.InDelta(t, 20.0, stats.TotalPnL, 1e-9)
	assert.Equal(t, 2, stats.Winning)
	assert.Equal(t, 1, stats.Losing)
	assert.InDelta(t, 66.666, stats.WinRate, 0.01)
}

func TestProtectiveOrderIDs(t *testing.T) {
	tr := Trade{TakeProfitOrderID: ptr("tp-1"), StopLossOrderID: ptr("")}
	assert.Equal(t, []string{"tp-1"}, tr.ProtectiveOrderIDs())
	assert.Empty(t, (&Trade{}).ProtectiveOrderIDs())
}

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"symbol,filled_at,filled_qty,filled_price,side,entry_order_id,take_profit,exit_at,note",
		"AAPL,2024-03-01 15:30:00,10,180.5,buy,ord-1,184.11,,hello",
		"MSFT,2024-03-02,5,400,BUY,ord-2,abc,2024-03-05,",
		",2024-03-02,5,400,buy,ord-3,,,",
		"NVDA,yesterday,5,400,buy,ord-4,,,",
	}, "\n")

	trades, err := ReadCSV(strings.NewReader(input), logger.Nop())
	require.NoError(t, err)
	require.Len(t, trades, 2)

	aapl := trades[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, StatusOpen, aapl.Status)
	assert.Equal(t, 10.0, aapl.FilledQty)
	assert.Equal(t, time.Date(2024, 3, 1, 15, 30, 0, 0, time.Local), aapl.FilledAt)
	require.NotNil(t, aapl.TakeProfit)
	assert.Equal(t, 184.11, *aapl.TakeProfit)
	assert.Nil(t, aapl.ExitAt)

	msft := trades[1]
	assert.Equal(t, "buy", msft.Side)
	assert.Nil(t, msft.TakeProfit)
	require.NotNil(t, msft.ExitAt)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), logger.Nop())
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("symbol,filled_qty\nAAPL,1\n"), logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filled_at")
}
