package trade

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/watson/pkg/logger"
)

var requiredColumns = []string{"symbol", "filled_at", "filled_qty", "filled_price", "side", "entry_order_id"}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ReadCSV parses trades from a CSV export with a header row. Unknown
// columns are ignored; rows with a bad required value are skipped, bad
// optional values are left empty.
func ReadCSV(r io.Reader, log *logger.Logger) ([]Trade, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty CSV")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	var ignored []string
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if !knownColumn(name) {
			ignored = append(ignored, name)
			continue
		}
		index[name] = i
	}
	if len(ignored) > 0 {
		log.WithField("columns", ignored).Warn("Ignoring unknown CSV columns")
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	trades := make([]Trade, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		t, err := parseRow(record, index, log)
		if err != nil {
			log.WithFields(map[string]interface{}{
				"line":  line,
				"error": err.Error(),
			}).Warn("Skipping CSV row")
			continue
		}
		trades = append(trades, t)
	}

	return trades, nil
}

func parseRow(record []string, index map[string]int, log *logger.Logger) (Trade, error) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	t := Trade{
		Symbol:       get("symbol"),
		Side:         strings.ToLower(get("side")),
		EntryOrderID: get("entry_order_id"),
		Status:       Status(get("status")),
	}
	if t.Symbol == "" {
		return t, fmt.Errorf("missing symbol")
	}
	if t.Side == "" || t.EntryOrderID == "" {
		return t, fmt.Errorf("missing side or entry_order_id")
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}

	var err error
	if t.FilledAt, err = parseTime(get("filled_at")); err != nil {
		return t, fmt.Errorf("filled_at: %w", err)
	}
	if t.FilledQty, err = strconv.ParseFloat(get("filled_qty"), 64); err != nil {
		return t, fmt.Errorf("filled_qty: %w", err)
	}
	if t.FilledPrice, err = strconv.ParseFloat(get("filled_price"), 64); err != nil {
		return t, fmt.Errorf("filled_price: %w", err)
	}

	optFloat := func(col string) *float64 {
		s := get(col)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			log.WithFields(map[string]interface{}{"field": col, "value": s}).Warn("Invalid float value")
			return nil
		}
		return &v
	}
	optString := func(col string) *string {
		s := get(col)
		if s == "" {
			return nil
		}
		return &s
	}

	t.TakeProfit = optFloat("take_profit")
	t.StopLoss = optFloat("stop_loss")
	t.ExitQty = optFloat("exit_qty")
	t.ExitPrice = optFloat("exit_price")
	t.TakeProfitOrderID = optString("take_profit_order_id")
	t.StopLossOrderID = optString("stop_loss_order_id")
	t.ExitReason = optString("exit_reason")
	t.ExitOrderID = optString("exit_order_id")

	if s := get("exit_at"); s != "" {
		if at, err := parseTime(s); err == nil {
			t.ExitAt = &at
		} else {
			log.WithFields(map[string]interface{}{"field": "exit_at", "value": s}).Warn("Invalid datetime value")
		}
	}

	return t, nil
}

func knownColumn(name string) bool {
	for _, col := range requiredColumns {
		if col == name {
			return true
		}
	}
	return mutableFields[name]
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
