package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/watson/pkg/logger"
)

type fakeProvider struct {
	calls int
	err   error
}

func (f *fakeProvider) GetMultipleSymbolsData(ctx context.Context, symbols []string, period string) (Data, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	bars := make(map[string][]Bar, len(symbols))
	for _, s := range symbols {
		bars[s] = []Bar{{Open: 1, High: 2, Low: 0.5, Close: 1.5}}
	}
	return FromBars(bars), nil
}

func TestManagerCachesWithinTTL(t *testing.T) {
	p := &fakeProvider{}
	m := NewManager(p, time.Hour, logger.Nop())
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := m.GetMultipleSymbolsData(ctx, []string{"AAPL", "MSFT"}, "")
	require.NoError(t, err)

	// same set, different order: still a hit
	_, err = m.GetMultipleSymbolsData(ctx, []string{"MSFT", "AAPL"}, DefaultPeriod)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)

	info := m.CacheInfo()
	assert.Equal(t, 2, info.CachedSymbols)
	assert.False(t, info.Expired)

	now = now.Add(time.Hour)
	_, err = m.GetMultipleSymbolsData(ctx, []string{"AAPL", "MSFT"}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestManagerRefetchesOnDifferentSymbols(t *testing.T) {
	p := &fakeProvider{}
	m := NewManager(p, time.Hour, logger.Nop())
	ctx := context.Background()

	_, _ = m.GetMultipleSymbolsData(ctx, []string{"AAPL"}, "")
	data, err := m.GetMultipleSymbolsData(ctx, []string{"AAPL", "NVDA"}, "")
	require.NoError(t, err)

	assert.Equal(t, 2, p.calls)
	_, ok := data.Series(Close, "NVDA")
	assert.True(t, ok)
}

func TestManagerKeepsSnapshotPerSymbolSet(t *testing.T) {
	p := &fakeProvider{}
	m := NewManager(p, time.Hour, logger.Nop())
	ctx := context.Background()
	universe := []string{"AAPL", "MSFT", "NVDA", "TSLA"}
	held := []string{"NVDA"}

	// 스크리너와 청산 검사가 번갈아 조회
	for i := 0; i < 3; i++ {
		_, err := m.GetMultipleSymbolsData(ctx, universe, "")
		require.NoError(t, err)
		_, err = m.GetMultipleSymbolsData(ctx, held, "")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, p.calls)

	info := m.CacheInfo()
	assert.Equal(t, 2, info.Snapshots)
	assert.Equal(t, 5, info.CachedSymbols)
}

func TestManagerPrunesExpiredSnapshots(t *testing.T) {
	p := &fakeProvider{}
	m := NewManager(p, time.Hour, logger.Nop())
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = m.GetMultipleSymbolsData(ctx, []string{"AAPL"}, "")
	_, _ = m.GetMultipleSymbolsData(ctx, []string{"MSFT"}, "")

	now = now.Add(2 * time.Hour)
	assert.True(t, m.CacheInfo().Expired)

	_, _ = m.GetMultipleSymbolsData(ctx, []string{"NVDA"}, "")
	assert.Len(t, m.snapshots, 1)
	assert.Equal(t, 1, m.CacheInfo().Snapshots)
}

func TestManagerErrorKeepsNoSnapshot(t *testing.T) {
	p := &fakeProvider{err: errors.New("rate limited")}
	m := NewManager(p, time.Hour, logger.Nop())

	_, err := m.GetMultipleSymbolsData(context.Background(), []string{"AAPL"}, "")
	require.Error(t, err)
	assert.True(t, m.CacheInfo().Expired)
}

func TestManagerClearCache(t *testing.T) {
	p := &fakeProvider{}
	m := NewManager(p, time.Hour, logger.Nop())
	ctx := context.Background()

	_, _ = m.GetMultipleSymbolsData(ctx, []string{"AAPL"}, "")
	_, _ = m.GetMultipleSymbolsData(ctx, []string{"MSFT"}, "")
	m.ClearCache()
	assert.True(t, m.CacheInfo().Expired)

	_, _ = m.GetMultipleSymbolsData(ctx, []string{"AAPL"}, "")
	assert.Equal(t, 3, p.calls)
}
