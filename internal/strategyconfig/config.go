package strategyconfig

import "time"

// Config는 한 전략의 전체 설정 (strategies/*.yaml 한 파일)
type Config struct {
	Meta       Meta       `yaml:"meta" json:"meta"`
	Universe   string     `yaml:"universe" json:"universe"` // NASDAQ100 | SP500
	MarketData MarketData `yaml:"market_data" json:"market_data"`
	Filters    []Filter   `yaml:"filters" json:"filters"`
	Screening  Screening  `yaml:"screening" json:"screening"`
	Money      Money      `yaml:"money" json:"money"`
	Exit       Exit       `yaml:"exit" json:"exit"`
	Schedule   Schedule   `yaml:"schedule" json:"schedule"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
	Timezone   string `yaml:"timezone" json:"timezone"` // 스케줄 기준 시간대
	Enabled    *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled defaults to true when unset
func (m Meta) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// MarketData 가격 이력 설정
type MarketData struct {
	Period string `yaml:"period" json:"period"` // e.g. 300d
}

// Filter describes one screener column.
// Type is one of ROC, RSI, ADX, SMA, EMA, MACD, EARNINGS.
type Filter struct {
	Type      string   `yaml:"type" json:"type"`
	Name      string   `yaml:"name,omitempty" json:"name,omitempty"`
	Period    int      `yaml:"period,omitempty" json:"period,omitempty"`
	Price     string   `yaml:"price,omitempty" json:"price,omitempty"`
	Fast      int      `yaml:"fast,omitempty" json:"fast,omitempty"`
	Slow      int      `yaml:"slow,omitempty" json:"slow,omitempty"`
	Signal    int      `yaml:"signal,omitempty" json:"signal,omitempty"`
	Op        string   `yaml:"op,omitempty" json:"op,omitempty"`
	Value     *float64 `yaml:"value,omitempty" json:"value,omitempty"`
	Lookahead int      `yaml:"lookahead,omitempty" json:"lookahead,omitempty"` // EARNINGS 전용 (일)
}

// IsComparison reports whether the filter produces booleans
func (f Filter) IsComparison() bool {
	return f.Op != ""
}

// Screening 후보 선정
type Screening struct {
	Use        []string `yaml:"use" json:"use"`         // AND 조건 컬럼
	RankBy     string   `yaml:"rank_by" json:"rank_by"` // 정렬 컬럼 (선택)
	Descending bool     `yaml:"descending" json:"descending"`
}

// Money 포지션 사이징
type Money struct {
	MaxPositions     int           `yaml:"max_positions" json:"max_positions"`
	PctPerPosition   float64       `yaml:"pct_per_position" json:"pct_per_position"`
	PctNetAssetValue float64       `yaml:"pct_net_asset_value" json:"pct_net_asset_value"`
	EquityRefresh    time.Duration `yaml:"equity_refresh" json:"equity_refresh"`
}

// Exit 청산 규칙
type Exit struct {
	TakeProfitPct  float64  `yaml:"take_profit_pct" json:"take_profit_pct"`
	StopLossPct    float64  `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	MaxHoldingDays int      `yaml:"max_holding_days" json:"max_holding_days"`
	Rules          []Filter `yaml:"rules" json:"rules"` // 하나라도 true면 청산
}

// Schedule 실행 주기 (없으면 1회 실행)
type Schedule struct {
	Triggers []Trigger `yaml:"triggers" json:"triggers"`
}

// Trigger sets exactly one of its fields
type Trigger struct {
	Weekdays string        `yaml:"weekdays,omitempty" json:"weekdays,omitempty"` // HH:MM[:SS], 월-금
	Daily    string        `yaml:"daily,omitempty" json:"daily,omitempty"`       // HH:MM[:SS]
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	Cron     string        `yaml:"cron,omitempty" json:"cron,omitempty"`
}

// Snapshot records which definition a run used
type Snapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	StrategyID string    `json:"strategy_id"`
	Path       string    `json:"path"`
	CreatedAt  time.Time `json:"created_at"`
}
