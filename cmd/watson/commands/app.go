package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/watson/internal/broker"
	"github.com/wonny/watson/internal/earnings"
	"github.com/wonny/watson/internal/marketdata"
	"github.com/wonny/watson/internal/strategy"
	"github.com/wonny/watson/internal/trade"
	"github.com/wonny/watson/internal/universe"
	"github.com/wonny/watson/pkg/config"
	"github.com/wonny/watson/pkg/database"
	"github.com/wonny/watson/pkg/httputil"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/metrics"
	"github.com/wonny/watson/pkg/redis"
)

// app holds the shared runtime every command builds on
// ⭐ SSOT: 외부 의존성 조립은 여기서만
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	db      *database.DB
	trades  *trade.Repository
	redis   *redis.Client

	broker     *broker.Alpaca
	marketData *marketdata.Manager
}

// newApp loads config and logging, then connects the trade database
// unless skipDB is set (screen only needs market data).
func newApp(ctx context.Context, skipDB bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	a := &app{cfg: cfg, log: log, metrics: m}
	if skipDB {
		return a, nil
	}

	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"env":   cfg.Env,
		"paper": cfg.Alpaca.Paper,
	}).Info("Connected to database")

	a.db = db
	a.trades = trade.NewRepository(db.Pool, log)
	return a, nil
}

// dependencies connects the broker and every data source a strategy uses
func (a *app) dependencies() (strategy.Dependencies, error) {
	rc, err := redis.New(a.cfg)
	if err != nil {
		return strategy.Dependencies{}, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rc

	limiter := redis.NewRateLimiter(rc, "watson")

	constituents := httputil.New(a.cfg, a.log).
		WithUserAgent(httputil.BrowserUserAgent).
		WithCircuitBreaker("slickcharts", 5, time.Minute).
		WithRateLimiter(limiter, redis.SlickchartsRateLimit)

	calendarClient := httputil.New(a.cfg, a.log).
		WithHeader("X-Finnhub-Token", a.cfg.Finnhub.APIKey).
		WithCircuitBreaker("finnhub", 5, time.Minute).
		WithRateLimiter(limiter, redis.FinnhubRateLimit)

	var cache *redis.Cache
	if rc.Enabled() {
		cache = redis.NewCache(rc, "watson")
	}
	fetcher := universe.NewFetcher(constituents, a.cfg.Slickcharts.BaseURL, a.log)
	if cache != nil {
		// 지수 구성 종목은 하루 단위로 공유
		fetcher.WithCache(cache, 24*time.Hour)
	}

	a.broker = broker.NewAlpaca(a.cfg, a.log)
	a.marketData = marketdata.NewManager(
		marketdata.NewAlpacaProvider(a.cfg.Alpaca.APIKey, a.cfg.Alpaca.SecretKey, a.log),
		a.cfg.Trading.MarketDataTTL,
		a.log,
	)

	deps := strategy.Dependencies{
		Broker:        a.broker,
		Universe:      fetcher,
		MarketData:    a.marketData,
		Earnings:      earnings.NewCalendar(calendarClient, a.cfg.Finnhub.BaseURL, a.cfg.Trading.EarningsTTL, cache, a.log),
		EquityRefresh: a.cfg.Trading.EquityRefreshInterval,
	}
	// nil 인터페이스 방지
	if a.trades != nil {
		deps.Store = a.trades
	}
	return deps, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
