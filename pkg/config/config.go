package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	Database    DatabaseConfig
	Redis       RedisConfig
	Alpaca      AlpacaConfig
	Finnhub     FinnhubConfig
	Slickcharts SlickchartsConfig
	Trading     TradingConfig

	// Strategies directory scanned by the CLI
	StrategiesPath string

	LogLevel  string
	LogFormat string // console, json
	LogFile   string

	APIPort        string
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds the optional cache and rate limit backend
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds the trade store connection
type DatabaseConfig struct {
	URL string

	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// AlpacaConfig holds brokerage API configuration
type AlpacaConfig struct {
	APIKey    string
	SecretKey string
	Paper     bool // 모의투자 여부
	DevMode   bool // 장 마감 중에도 실행 허용
}

// FinnhubConfig holds earnings calendar API configuration
type FinnhubConfig struct {
	APIKey  string
	BaseURL string
}

// SlickchartsConfig holds index constituent source configuration
type SlickchartsConfig struct {
	BaseURL string
}

// TradingConfig holds order handling and cache policies
type TradingConfig struct {
	OrderPollInterval     time.Duration
	OrderPollTimeout      time.Duration
	MarketDataTTL         time.Duration
	EarningsTTL           time.Duration
	EquityRefreshInterval time.Duration
}

// Load reads configuration from the environment, after an optional .env.
// Malformed values are errors rather than silent defaults.
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	var e env
	cfg := &Config{
		Env: e.str("ENV", "development"),

		Database: DatabaseConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxConns:        e.int("DB_MAX_CONNS", 10),
			MinConns:        e.int("DB_MIN_CONNS", 1),
			MaxConnLifetime: e.duration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: e.duration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},

		Redis: RedisConfig{
			Host:     e.str("REDIS_HOST", "localhost"),
			Port:     e.str("REDIS_PORT", "6379"),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.int("REDIS_DB", 0),
			Enabled:  e.bool("REDIS_ENABLED", false),
		},

		Alpaca: AlpacaConfig{
			APIKey:    e.str("ALPACA_API_KEY", ""),
			SecretKey: e.str("ALPACA_SECRET_KEY", ""),
			Paper:     e.bool("ALPACA_PAPER", true),
			DevMode:   e.bool("ALPACA_DEV_MODE", true),
		},

		Finnhub: FinnhubConfig{
			APIKey:  e.str("FINNHUB_API_KEY", ""),
			BaseURL: e.str("FINNHUB_BASE_URL", "https://finnhub.io/api/v1"),
		},

		Slickcharts: SlickchartsConfig{
			BaseURL: e.str("SLICKCHARTS_BASE_URL", "https://www.slickcharts.com"),
		},

		Trading: TradingConfig{
			OrderPollInterval:     e.duration("ORDER_POLL_INTERVAL", 100*time.Millisecond),
			OrderPollTimeout:      e.duration("ORDER_POLL_TIMEOUT", 2*time.Minute),
			MarketDataTTL:         e.duration("MARKET_DATA_TTL", time.Hour),
			EarningsTTL:           e.duration("EARNINGS_TTL", 24*time.Hour),
			EquityRefreshInterval: e.duration("EQUITY_REFRESH_INTERVAL", 24*time.Hour),
		},

		StrategiesPath: e.str("STRATEGIES_PATH", "./strategies"),

		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", "console"),
		LogFile:   e.str("LOG_FILE", "logs/watson.log"),

		APIPort:        e.str("API_PORT", "8089"),
		MetricsEnabled: e.bool("METRICS_ENABLED", false),
		MetricsPort:    e.str("METRICS_PORT", "9090"),
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.LogFormat {
	case "console", "pretty", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json")
	}

	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}

	t := c.Trading
	if t.OrderPollInterval <= 0 {
		return fmt.Errorf("ORDER_POLL_INTERVAL must be positive")
	}
	// 무한 대기 방지: 주문 상태 폴링은 반드시 상한이 있어야 함
	if t.OrderPollTimeout < t.OrderPollInterval {
		return fmt.Errorf("ORDER_POLL_TIMEOUT must not be shorter than ORDER_POLL_INTERVAL")
	}
	if t.EquityRefreshInterval <= 0 {
		return fmt.Errorf("EQUITY_REFRESH_INTERVAL must be positive")
	}
	return nil
}

// RequireDatabase fails when no trade database is configured.
// Only commands that read or write trades call it.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// IsProduction reports whether the bot trades against a live account
func (c *Config) IsProduction() bool {
	return c.Env == "production" && !c.Alpaca.Paper
}

// loadEnvFile loads the first .env found in the working directory or
// next to the binary. Variables already set win.
func loadEnvFile() {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(dir, ".env"), filepath.Join(dir, "..", ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// env reads typed variables and collects parse errors
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: not an integer", key, v))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: not a boolean", key, v))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: not a duration", key, v))
		return def
	}
	return d
}
