package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/watson/internal/strategyconfig"
)

// Spec converts a strategy trigger to a cron spec with a seconds field.
//
//	weekdays: "15:45"  → "0 45 15 * * 1-5"
//	daily:    "09:30"  → "0 30 9 * * *"
//	interval: 90s      → "@every 1m30s"
//	cron:     "0 16 * * *" → "0 0 16 * * *"
func Spec(t strategyconfig.Trigger) (string, error) {
	switch {
	case t.Weekdays != "":
		c, err := strategyconfig.ParseClock(t.Weekdays)
		if err != nil {
			return "", fmt.Errorf("weekdays: %w", err)
		}
		return fmt.Sprintf("%d %d %d * * 1-5", c.Second, c.Minute, c.Hour), nil

	case t.Daily != "":
		c, err := strategyconfig.ParseClock(t.Daily)
		if err != nil {
			return "", fmt.Errorf("daily: %w", err)
		}
		return fmt.Sprintf("%d %d %d * * *", c.Second, c.Minute, c.Hour), nil

	case t.Interval > 0:
		return "@every " + t.Interval.String(), nil

	case t.Cron != "":
		expr := strings.TrimSpace(t.Cron)
		if strings.HasPrefix(expr, "@") {
			return expr, nil
		}
		// 5-field 표준 표현식 앞에 초 필드 추가
		return "0 " + expr, nil
	}
	return "", errors.New("empty trigger")
}
