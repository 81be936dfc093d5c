package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/watson/pkg/config"
)

// connectTimeout bounds the startup ping
const connectTimeout = 5 * time.Second

// DB owns the trade store connection pool
// ⭐ SSOT: DB 연결은 이 패키지에서만 생성
type DB struct {
	Pool *pgxpool.Pool
}

// New opens the pool described by DATABASE_URL and the DB_* pool settings
func New(cfg *config.Config) (*DB, error) {
	return Open(cfg.Database.URL, func(pc *pgxpool.Config) {
		d := cfg.Database
		if d.MaxConns > 0 {
			pc.MaxConns = int32(d.MaxConns)
		}
		if d.MinConns > 0 {
			pc.MinConns = int32(d.MinConns)
		}
		if d.MaxConnLifetime > 0 {
			pc.MaxConnLifetime = d.MaxConnLifetime
		}
		if d.MaxConnIdleTime > 0 {
			pc.MaxConnIdleTime = d.MaxConnIdleTime
		}
	})
}

// NewFromURL opens a pool with pgx defaults (tests, one-off tools)
func NewFromURL(url string) (*DB, error) {
	return Open(url)
}

// Open parses url, applies tune functions and verifies the connection
// ⭐ SSOT: 유일하게 pgxpool.NewWithConfig()를 호출하는 함수
func Open(url string, tune ...func(*pgxpool.Config)) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	for _, fn := range tune {
		fn(poolConfig)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the pool; safe to call twice
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// WithTx runs fn inside a single transaction scope.
// fn 성공 시 commit, 실패 시 rollback, 어느 경우든 커넥션은 반환됨
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// HealthStatus is the /health and `watson db` report
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	Timestamp    time.Time     `json:"timestamp"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
	Migrations   []string      `json:"migrations,omitempty"`
}

// PoolStats is a snapshot of pgxpool.Stat
type PoolStats struct {
	AcquireCount    int64         `json:"acquire_count"`
	AcquireDuration time.Duration `json:"acquire_duration"`
	AcquiredConns   int32         `json:"acquired_conns"`
	IdleConns       int32         `json:"idle_conns"`
	MaxConns        int32         `json:"max_conns"`
	TotalConns      int32         `json:"total_conns"`
}

// HealthCheck pings, then reports pool statistics and applied migrations
func (db *DB) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Timestamp: time.Now()}

	start := time.Now()
	if err := db.Pool.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.ResponseTime = time.Since(start)
	status.Stats = db.Stats()

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.Migrations = applied
	status.Healthy = true

	return status, nil
}

// Stats returns the current pool statistics
func (db *DB) Stats() PoolStats {
	s := db.Pool.Stat()
	return PoolStats{
		AcquireCount:    s.AcquireCount(),
		AcquireDuration: s.AcquireDuration(),
		AcquiredConns:   s.AcquiredConns(),
		IdleConns:       s.IdleConns(),
		MaxConns:        s.MaxConns(),
		TotalConns:      s.TotalConns(),
	}
}
