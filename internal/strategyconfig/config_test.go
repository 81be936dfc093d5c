package strategyconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, yamlData, err := Load("testdata/momentum.yaml")
	require.NoError(t, err)

	assert.Equal(t, "nasdaq_momentum", cfg.Meta.StrategyID)
	assert.True(t, cfg.Meta.IsEnabled())
	assert.Equal(t, "NASDAQ100", cfg.Universe)
	assert.Len(t, cfg.Filters, 5)
	assert.Equal(t, 10, cfg.Money.MaxPositions)
	assert.Equal(t, 24*time.Hour, cfg.Money.EquityRefresh)
	require.Len(t, cfg.Schedule.Triggers, 1)
	assert.Equal(t, "15:45", cfg.Schedule.Triggers[0].Weekdays)

	// 해시 생성
	hash, err := Hash(cfg)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	// 동일 설정 → 동일 해시
	hash2, _ := Hash(cfg)
	assert.Equal(t, hash, hash2)

	snap, err := NewSnapshot(cfg, yamlData, "testdata/momentum.yaml")
	require.NoError(t, err)
	assert.Equal(t, hash, snap.ConfigHash)
	assert.Equal(t, "nasdaq_momentum", snap.StrategyID)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte(`
meta:
  strategy_id: x
universe: SP500
filtres: []
`))
	assert.Error(t, err)
}

func TestColumnName(t *testing.T) {
	v := func(f float64) *float64 { return &f }

	tests := []struct {
		filter Filter
		want   string
	}{
		{Filter{Type: "ROC", Period: 120, Op: ">", Value: v(0)}, "ROC120>0"},
		{Filter{Type: "adx", Period: 24, Op: "gt", Value: v(20)}, "ADX24>20"},
		{Filter{Type: "RSI", Period: 14, Op: "<=", Value: v(30.5)}, "RSI14<=30.5"},
		{Filter{Type: "ROC", Period: 60}, "ROC60"},
		{Filter{Type: "MACD", Fast: 12, Slow: 26, Signal: 9}, "MACD12_26_9"},
		{Filter{Type: "SMA", Period: 20, Price: "HIGH", Name: "sma_high"}, "sma_high"},
		{Filter{Type: "EARNINGS", Lookahead: 5}, "Earnings"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := tt.filter.ColumnName()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func validConfig() *Config {
	zero := 0.0
	return &Config{
		Meta:     Meta{StrategyID: "test"},
		Universe: "SP500",
		Filters: []Filter{
			{Type: "ROC", Period: 20, Op: ">", Value: &zero},
		},
		Screening: Screening{Use: []string{"ROC20>0"}},
		Money:     Money{MaxPositions: 5, PctPerPosition: 0.1, PctNetAssetValue: 0.5},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing id", func(c *Config) { c.Meta.StrategyID = "" }, "meta.strategy_id"},
		{"bad id", func(c *Config) { c.Meta.StrategyID = "Bad Id" }, "meta.strategy_id"},
		{"bad timezone", func(c *Config) { c.Meta.Timezone = "Mars/Base" }, "meta.timezone"},
		{"bad universe", func(c *Config) { c.Universe = "DOW30" }, "universe"},
		{"bad period", func(c *Config) { c.MarketData.Period = "1y" }, "market_data.period"},
		{"unknown type", func(c *Config) { c.Filters[0].Type = "VWAP" }, "filters[0]"},
		{"bad op", func(c *Config) { c.Filters[0].Op = "!=" }, "filters[0]"},
		{"op without value", func(c *Config) { c.Filters[0].Value = nil }, "filters[0]"},
		{"zero period", func(c *Config) { c.Filters[0].Period = 0 }, "filters[0]"},
		{"bad macd", func(c *Config) {
			c.Filters = append(c.Filters, Filter{Type: "MACD", Fast: 26, Slow: 12, Signal: 9})
		}, "filters[1]"},
		{"earnings without lookahead", func(c *Config) {
			c.Filters = append(c.Filters, Filter{Type: "EARNINGS"})
		}, "filters[1]"},
		{"use unknown column", func(c *Config) { c.Screening.Use = []string{"ROC20>1"} }, "screening.use[0]"},
		{"rank by unknown column", func(c *Config) { c.Screening.RankBy = "ROC60" }, "screening.rank_by"},
		{"negative max", func(c *Config) { c.Money.MaxPositions = -1 }, "money.max_positions"},
		{"pct above one", func(c *Config) { c.Money.PctPerPosition = 1.5 }, "money.pct_per_position"},
		{"exit rule without op", func(c *Config) {
			c.Exit.Rules = []Filter{{Type: "RSI", Period: 14}}
		}, "exit.rules[0]"},
		{"two trigger kinds", func(c *Config) {
			c.Schedule.Triggers = []Trigger{{Daily: "09:30", Interval: time.Minute}}
		}, "schedule.triggers[0]"},
		{"bad clock", func(c *Config) {
			c.Schedule.Triggers = []Trigger{{Weekdays: "9:30"}}
		}, "schedule.triggers[0]"},
		{"bad cron", func(c *Config) {
			c.Schedule.Triggers = []Trigger{{Cron: "every day"}}
		}, "schedule.triggers[0]"},
		{"empty trigger", func(c *Config) {
			c.Schedule.Triggers = []Trigger{{}}
		}, "schedule.triggers[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestWarn(t *testing.T) {
	cfg := validConfig()
	cfg.Money.MaxPositions = 0
	cfg.Filters = append(cfg.Filters, cfg.Filters[0])

	codes := make([]string, 0)
	for _, w := range Warn(cfg) {
		codes = append(codes, w.Code)
	}
	assert.ElementsMatch(t, []string{"DUPLICATE_COLUMN", "NO_POSITION_CAP"}, codes)
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("15:45")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 15, Minute: 45}, c)

	c, err = ParseClock("09:30:15")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 9, Minute: 30, Second: 15}, c)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}
