package strategyconfig

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/watson/internal/marketdata"
	"github.com/wonny/watson/internal/universe"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

var strategyIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if !strategyIDPattern.MatchString(cfg.Meta.StrategyID) {
		return ValidationError{"meta.strategy_id", "must be lowercase letters, digits, '_' or '-'"}
	}
	if cfg.Meta.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Meta.Timezone); err != nil {
			return ValidationError{"meta.timezone", err.Error()}
		}
	}

	// === Universe ===
	if _, err := universe.Parse(cfg.Universe); err != nil {
		return ValidationError{"universe", err.Error()}
	}
	if cfg.MarketData.Period != "" {
		if _, err := marketdata.ParsePeriod(cfg.MarketData.Period); err != nil {
			return ValidationError{"market_data.period", err.Error()}
		}
	}

	// === Filters ===
	columns := make(map[string]bool, len(cfg.Filters))
	for i, f := range cfg.Filters {
		name, err := f.ColumnName()
		if err != nil {
			return ValidationError{fmt.Sprintf("filters[%d]", i), err.Error()}
		}
		columns[name] = true
	}

	// === Screening ===
	for i, name := range cfg.Screening.Use {
		if !columns[name] {
			return ValidationError{fmt.Sprintf("screening.use[%d]", i), fmt.Sprintf("no filter produces column %q", name)}
		}
	}
	if cfg.Screening.RankBy != "" && !columns[cfg.Screening.RankBy] {
		return ValidationError{"screening.rank_by", fmt.Sprintf("no filter produces column %q", cfg.Screening.RankBy)}
	}

	// === Money ===
	if cfg.Money.MaxPositions < 0 {
		return ValidationError{"money.max_positions", "must be >= 0"}
	}
	if err := validatePctRange(cfg.Money.PctPerPosition, "money.pct_per_position"); err != nil {
		return err
	}
	if err := validatePctRange(cfg.Money.PctNetAssetValue, "money.pct_net_asset_value"); err != nil {
		return err
	}
	if cfg.Money.EquityRefresh < 0 {
		return ValidationError{"money.equity_refresh", "must be >= 0"}
	}

	// === Exit ===
	if err := validatePctRange(cfg.Exit.TakeProfitPct, "exit.take_profit_pct"); err != nil {
		return err
	}
	if err := validatePctRange(cfg.Exit.StopLossPct, "exit.stop_loss_pct"); err != nil {
		return err
	}
	if cfg.Exit.MaxHoldingDays < 0 {
		return ValidationError{"exit.max_holding_days", "must be >= 0"}
	}
	for i, r := range cfg.Exit.Rules {
		field := fmt.Sprintf("exit.rules[%d]", i)
		if !r.IsComparison() {
			return ValidationError{field, "exit rules need op and value"}
		}
		if _, err := r.ColumnName(); err != nil {
			return ValidationError{field, err.Error()}
		}
	}

	// === Schedule ===
	for i, t := range cfg.Schedule.Triggers {
		if err := validateTrigger(t); err != nil {
			return ValidationError{fmt.Sprintf("schedule.triggers[%d]", i), err.Error()}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 같은 이름의 컬럼은 뒤 필터가 덮어씀
	seen := make(map[string]bool)
	for _, f := range cfg.Filters {
		name, err := f.ColumnName()
		if err != nil {
			continue
		}
		if seen[name] {
			warnings = append(warnings, Warning{
				Code:    "DUPLICATE_COLUMN",
				Message: fmt.Sprintf("column %s is written by more than one filter", name),
			})
		}
		seen[name] = true
	}

	if cfg.Money.MaxPositions == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_POSITION_CAP",
			Message: "money.max_positions is 0: entries are not capped",
		})
	}

	if len(cfg.Screening.Use) == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_SCREEN",
			Message: "screening.use is empty: every universe symbol is an entry candidate",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateTrigger(t Trigger) error {
	set := 0
	if t.Weekdays != "" {
		set++
		if _, err := ParseClock(t.Weekdays); err != nil {
			return err
		}
	}
	if t.Daily != "" {
		set++
		if _, err := ParseClock(t.Daily); err != nil {
			return err
		}
	}
	if t.Interval != 0 {
		set++
		if t.Interval < time.Second {
			return errors.New("interval must be at least 1s")
		}
	}
	if t.Cron != "" {
		set++
		if _, err := cron.ParseStandard(t.Cron); err != nil {
			return fmt.Errorf("invalid cron %q: %w", t.Cron, err)
		}
	}
	if set != 1 {
		return errors.New("set exactly one of weekdays, daily, interval, cron")
	}
	return nil
}

// Clock is a time of day
type Clock struct {
	Hour, Minute, Second int
}

var clockPattern = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)

// ParseClock parses HH:MM or HH:MM:SS
func ParseClock(s string) (Clock, error) {
	if !clockPattern.MatchString(s) {
		return Clock{}, errors.New("must be HH:MM or HH:MM:SS format")
	}
	layout := "15:04"
	if len(s) == len("15:04:05") {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Clock{}, err
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// validatePctRange는 퍼센트 값이 0~1 범위인지 검증
func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct > 1 {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}
