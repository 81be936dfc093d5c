// Package money sizes entry orders from account equity.
package money

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/wonny/watson/internal/broker"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/metrics"
)

// ErrInvalidPrice is returned for a zero or negative reference price
var ErrInvalidPrice = errors.New("price must be positive")

// Defaults applied when a strategy leaves sizing unset
const (
	DefaultPctPerPosition   = 0.1
	DefaultPctNetAssetValue = 0.5
	DefaultRefreshInterval  = 24 * time.Hour
)

// Account is the part of the broker sizing needs
type Account interface {
	GetAccountInfo(ctx context.Context) (*broker.Account, error)
	GetLatestClose(ctx context.Context, symbol string) (float64, error)
}

// Config holds sizing parameters
type Config struct {
	MaxPositions     int // 0 = 제한 없음
	PctPerPosition   float64
	PctNetAssetValue float64
	RefreshInterval  time.Duration
}

// Manager computes entry quantities. Equity is cached and refreshed once
// RefreshInterval has passed since the last fetch.
type Manager struct {
	account Account
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	equity      float64
	refreshedAt time.Time
	now         func() time.Time
}

// New creates a money manager; zero config values take the defaults
func New(account Account, cfg Config, log *logger.Logger, m *metrics.Metrics) *Manager {
	if cfg.PctPerPosition <= 0 {
		cfg.PctPerPosition = DefaultPctPerPosition
	}
	if cfg.PctNetAssetValue <= 0 {
		cfg.PctNetAssetValue = DefaultPctNetAssetValue
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	return &Manager{
		account: account,
		cfg:     cfg,
		logger:  log,
		metrics: m,
		now:     time.Now,
	}
}

// MaxPositions returns the position cap, 0 when unlimited
func (m *Manager) MaxPositions() int {
	return m.cfg.MaxPositions
}

// Initialize fetches equity
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh(ctx)
}

// Equity returns cached equity, refreshing it when stale
func (m *Manager) Equity(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshedAt.IsZero() || m.now().Sub(m.refreshedAt) >= m.cfg.RefreshInterval {
		if err := m.refresh(ctx); err != nil {
			return 0, err
		}
	}
	return m.equity, nil
}

// refresh reloads equity; caller holds mu
func (m *Manager) refresh(ctx context.Context) error {
	account, err := m.account.GetAccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh equity: %w", err)
	}
	m.equity = account.Equity
	m.refreshedAt = m.now()
	m.metrics.SetEquity(m.equity)

	m.logger.WithField("equity", m.equity).Info("Equity refreshed")
	return nil
}

// EntryQty returns the whole-share quantity to buy for symbol at its latest close
func (m *Manager) EntryQty(ctx context.Context, symbol string) (float64, error) {
	equity, err := m.Equity(ctx)
	if err != nil {
		return 0, err
	}

	price, err := m.account.GetLatestClose(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}

	qty, err := Quantity(equity, m.cfg.PctNetAssetValue, m.cfg.PctPerPosition, price)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", symbol, err)
	}
	return qty, nil
}

// Quantity is floor(equity × pctNAV × pctPerPosition / price), never negative
func Quantity(equity, pctNAV, pctPerPosition, price float64) (float64, error) {
	if price <= 0 || math.IsNaN(price) {
		return 0, ErrInvalidPrice
	}
	qty := math.Floor(equity * pctNAV * pctPerPosition / price)
	if qty < 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0, nil
	}
	return qty, nil
}
