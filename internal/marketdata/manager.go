package marketdata

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wonny/watson/pkg/logger"
)

// Manager caches provider results as whole snapshots with a fixed TTL, one
// per symbol set and period. A snapshot is replaced wholesale on expiry,
// never partially.
type Manager struct {
	provider Provider
	logger   *logger.Logger
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	snapshots map[string]snapshot
}

type snapshot struct {
	data    Data
	expires time.Time
}

// CacheInfo summarizes the cache state
type CacheInfo struct {
	Snapshots     int           `json:"snapshots"`
	CachedSymbols int           `json:"cached_symbols"`
	TTL           time.Duration `json:"ttl"`
	Expired       bool          `json:"expired"`
}

// NewManager wraps provider with a snapshot cache
func NewManager(provider Provider, ttl time.Duration, log *logger.Logger) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		provider: provider,
		logger:   log,
		ttl:      ttl,
		now:      time.Now,

		snapshots: make(map[string]snapshot),
	}
}

// GetMultipleSymbolsData returns cached data for the same symbol set and period
// until the TTL lapses, then refetches everything.
func (m *Manager) GetMultipleSymbolsData(ctx context.Context, symbols []string, period string) (Data, error) {
	if period == "" {
		period = DefaultPeriod
	}
	key := cacheKey(symbols, period)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if snap, ok := m.snapshots[key]; ok && now.Before(snap.expires) {
		m.logger.WithField("symbols", len(symbols)).Debug("Market data cache hit")
		return snap.data, nil
	}

	data, err := m.provider.GetMultipleSymbolsData(ctx, symbols, period)
	if err != nil {
		return nil, err
	}

	// 만료된 스냅샷 정리 (보유 종목 구성은 매일 바뀜)
	for k, snap := range m.snapshots {
		if !now.Before(snap.expires) {
			delete(m.snapshots, k)
		}
	}
	m.snapshots[key] = snapshot{data: data, expires: now.Add(m.ttl)}

	return data, nil
}

// ClearCache drops every snapshot
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.snapshots)
	m.snapshots = make(map[string]snapshot)
	m.logger.WithField("snapshots", n).Info("Market data cache cleared")
}

// CacheInfo reports the live snapshots; Expired means none is left
func (m *Manager) CacheInfo() CacheInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := CacheInfo{TTL: m.ttl}
	now := m.now()
	for _, snap := range m.snapshots {
		if now.Before(snap.expires) {
			info.Snapshots++
			info.CachedSymbols += snap.data.Symbols()
		}
	}
	info.Expired = info.Snapshots == 0
	return info
}

func cacheKey(symbols []string, period string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	return period + "|" + strings.Join(sorted, ",")
}
