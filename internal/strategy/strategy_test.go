package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/watson/internal/broker"
	"github.com/wonny/watson/internal/portfolio"
	"github.com/wonny/watson/internal/trade"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/metrics"
)

type fakeInit struct {
	err   error
	calls *[]string
	name  string
}

func (f *fakeInit) Initialize(ctx context.Context) error {
	*f.calls = append(*f.calls, f.name)
	return f.err
}

type fakeSizer struct {
	fakeInit
	max int
}

func (f *fakeSizer) MaxPositions() int { return f.max }

type fakePortfolio struct {
	open      []trade.Trade
	updateErr error
	closeErr  error
	openErr   error
	closed    []portfolio.Exit
	opened    []portfolio.Entry
}

func (f *fakePortfolio) Update(ctx context.Context) ([]trade.Trade, error) {
	return f.open, f.updateErr
}

func (f *fakePortfolio) OpenTrades(ctx context.Context, entries []portfolio.Entry) error {
	f.opened = append(f.opened, entries...)
	return f.openErr
}

func (f *fakePortfolio) CloseTrades(ctx context.Context, exits []portfolio.Exit) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = append(f.closed, exits...)
	return nil
}

type recordingEntry struct {
	called  bool
	seen    []trade.Trade
	entries []portfolio.Entry
}

func (r *recordingEntry) CheckEntry(ctx context.Context, open []trade.Trade) ([]portfolio.Entry, error) {
	r.called = true
	r.seen = open
	return r.entries, nil
}

type fixedExit struct {
	exits []portfolio.Exit
	err   error
}

func (f *fixedExit) CheckExit(ctx context.Context, open []trade.Trade) ([]portfolio.Exit, error) {
	return f.exits, f.err
}

func openTrades(symbols ...string) []trade.Trade {
	out := make([]trade.Trade, len(symbols))
	for i, s := range symbols {
		out[i] = trade.Trade{ID: int64(i + 1), Symbol: s, Status: trade.StatusOpen, FilledQty: 10}
	}
	return out
}

type harness struct {
	strategy  *Strategy
	portfolio *fakePortfolio
	entry     *recordingEntry
	exit      *fixedExit
	calls     []string
}

func newHarness(t *testing.T, maxPositions int, open []trade.Trade) *harness {
	t.Helper()
	h := &harness{
		portfolio: &fakePortfolio{open: open},
		entry:     &recordingEntry{},
		exit:      &fixedExit{},
	}
	s, err := New("test", Components{
		Broker:    &fakeInit{calls: &h.calls, name: "broker"},
		Money:     &fakeSizer{fakeInit: fakeInit{calls: &h.calls, name: "money"}, max: maxPositions},
		Portfolio: h.portfolio,
		Entry:     h.entry,
		Exit:      h.exit,
	}, logger.Nop(), metrics.New())
	require.NoError(t, err)
	h.strategy = s
	return h
}

func TestRunSkipsEntryAtMaxPositions(t *testing.T) {
	h := newHarness(t, 2, openTrades("AAPL", "MSFT"))

	require.NoError(t, h.strategy.Run(context.Background()))

	assert.False(t, h.entry.called, "entry must not be evaluated when full and nothing exits")
	assert.Empty(t, h.portfolio.closed)
	assert.Empty(t, h.portfolio.opened)
}

func TestRunExitFailureAbortsEntry(t *testing.T) {
	open := openTrades("AAPL", "MSFT")
	h := newHarness(t, 2, open)
	h.exit.exits = []portfolio.Exit{{Trade: open[0], Reason: trade.ReasonSignal}}
	h.portfolio.closeErr = &portfolio.Error{Op: "close trade", Symbol: "AAPL", Err: errors.New("rejected")}

	err := h.strategy.Run(context.Background())
	require.Error(t, err)

	var pe *portfolio.Error
	assert.True(t, errors.As(err, &pe))
	assert.False(t, h.entry.called)
	assert.Empty(t, h.portfolio.opened)
}

func TestRunClosesThenOpens(t *testing.T) {
	open := openTrades("AAPL", "MSFT")
	h := newHarness(t, 2, open)
	h.exit.exits = []portfolio.Exit{{Trade: open[0], Reason: trade.ReasonSignal}}
	h.entry.entries = []portfolio.Entry{{Symbol: "NVDA", Qty: 5}}

	require.NoError(t, h.strategy.Run(context.Background()))

	require.Len(t, h.portfolio.closed, 1)
	assert.Equal(t, "AAPL", h.portfolio.closed[0].Trade.Symbol)

	// 청산된 종목은 진입 판단에서 제외
	require.True(t, h.entry.called)
	require.Len(t, h.entry.seen, 1)
	assert.Equal(t, "MSFT", h.entry.seen[0].Symbol)

	assert.Equal(t, []portfolio.Entry{{Symbol: "NVDA", Qty: 5}}, h.portfolio.opened)
}

func TestRunUnlimitedPositions(t *testing.T) {
	h := newHarness(t, 0, openTrades("AAPL", "MSFT", "NVDA"))

	require.NoError(t, h.strategy.Run(context.Background()))
	assert.True(t, h.entry.called)
	assert.Empty(t, h.portfolio.opened)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"update", func(h *harness) { h.portfolio.updateErr = errors.New("db down") }},
		{"exit check", func(h *harness) { h.exit.err = errors.New("no data") }},
		{"open", func(h *harness) {
			h.entry.entries = []portfolio.Entry{{Symbol: "NVDA", Qty: 1}}
			h.portfolio.openErr = &portfolio.Error{Op: "open trade", Symbol: "NVDA", Err: errors.New("rejected")}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 5, nil)
			tt.setup(h)
			assert.Error(t, h.strategy.Run(context.Background()))
		})
	}
}

func TestInitialize(t *testing.T) {
	h := newHarness(t, 1, nil)
	require.NoError(t, h.strategy.Initialize(context.Background()))
	assert.Equal(t, []string{"broker", "money"}, h.calls)

	var calls []string
	s, err := New("blocked", Components{
		Broker:    &fakeInit{calls: &calls, name: "broker", err: errors.New("account blocked")},
		Money:     &fakeSizer{fakeInit: fakeInit{calls: &calls, name: "money"}},
		Portfolio: &fakePortfolio{},
		Entry:     &recordingEntry{},
		Exit:      &fixedExit{},
	}, logger.Nop(), nil)
	require.NoError(t, err)

	assert.Error(t, s.Initialize(context.Background()))
	assert.Equal(t, []string{"broker"}, calls, "money must not initialize after a broker failure")
}

func TestNewRequiresComponents(t *testing.T) {
	_, err := New("x", Components{Broker: broker.NewMockBroker()}, logger.Nop(), nil)
	assert.Error(t, err)
}
