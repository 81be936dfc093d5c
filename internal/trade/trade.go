package trade

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the trade lifecycle state
type Status string

const (
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// Exit reasons recorded on close
const (
	ReasonTakeProfit = "take_profit"
	ReasonStopLoss   = "stop_loss"
	ReasonSignal     = "signal"
	ReasonMaxHolding = "max_holding"
	ReasonManual     = "manual"
)

var (
	// ErrNotFound is returned when no trade matches
	ErrNotFound = errors.New("trade not found")
	// ErrUnknownField is returned by Update for fields outside the allow-list
	ErrUnknownField = errors.New("unknown trade field")
)

// Trade is one position from entry fill to exit fill
type Trade struct {
	ID                int64      `json:"id"`
	Symbol            string     `json:"symbol"`
	Status            Status     `json:"status"`
	FilledAt          time.Time  `json:"filled_at"`
	FilledQty         float64    `json:"filled_qty"`
	FilledPrice       float64    `json:"filled_price"`
	Side              string     `json:"side"`
	EntryOrderID      string     `json:"entry_order_id"`
	TakeProfit        *float64   `json:"take_profit,omitempty"`
	StopLoss          *float64   `json:"stop_loss,omitempty"`
	TakeProfitOrderID *string    `json:"take_profit_order_id,omitempty"`
	StopLossOrderID   *string    `json:"stop_loss_order_id,omitempty"`
	ExitAt            *time.Time `json:"exit_at,omitempty"`
	ExitQty           *float64   `json:"exit_qty,omitempty"`
	ExitPrice         *float64   `json:"exit_price,omitempty"`
	ExitReason        *string    `json:"exit_reason,omitempty"`
	ExitOrderID       *string    `json:"exit_order_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ProtectiveOrderIDs returns the non-empty take-profit and stop-loss order ids
func (t *Trade) ProtectiveOrderIDs() []string {
	var ids []string
	if t.TakeProfitOrderID != nil && *t.TakeProfitOrderID != "" {
		ids = append(ids, *t.TakeProfitOrderID)
	}
	if t.StopLossOrderID != nil && *t.StopLossOrderID != "" {
		ids = append(ids, *t.StopLossOrderID)
	}
	return ids
}

// PnL returns realized profit, negated for short trades. ok is false until
// the trade has an exit price.
func (t *Trade) PnL() (pnl float64, ok bool) {
	if t.ExitPrice == nil || t.FilledPrice == 0 {
		return 0, false
	}
	pnl = (*t.ExitPrice - t.FilledPrice) * t.FilledQty
	if t.Side == "sell" {
		pnl = -pnl
	}
	return pnl, true
}

// Exit carries the fields written when a trade closes
type Exit struct {
	At      time.Time
	Qty     float64
	Price   float64
	Reason  string
	OrderID string
}

// Fields is a partial update keyed by column name
type Fields map[string]interface{}

// mutableFields is the Update allow-list
var mutableFields = map[string]bool{
	"status":               true,
	"take_profit":          true,
	"stop_loss":            true,
	"take_profit_order_id": true,
	"stop_loss_order_id":   true,
	"exit_at":              true,
	"exit_qty":             true,
	"exit_price":           true,
	"exit_reason":          true,
	"exit_order_id":        true,
}

// columns returns the field names sorted, or ErrUnknownField naming every
// rejected key
func (f Fields) columns() ([]string, error) {
	cols := make([]string, 0, len(f))
	var unknown []string
	for k := range f {
		if !mutableFields[k] {
			unknown = append(unknown, k)
			continue
		}
		cols = append(cols, k)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, strings.Join(unknown, ", "))
	}
	sort.Strings(cols)
	return cols, nil
}

// Statistics summarizes the trade history
type Statistics struct {
	Total    int     `json:"total_trades"`
	Open     int     `json:"open_trades"`
	Closed   int     `json:"closed_trades"`
	TotalPnL float64 `json:"total_pnl"`
	Winning  int     `json:"winning_trades"`
	Losing   int     `json:"losing_trades"`
	WinRate  float64 `json:"win_rate"` // percent of closed trades
}

// summarize folds closed trades into stats; break-even counts as losing
func summarize(stats *Statistics, closed []Trade) {
	for i := range closed {
		pnl, ok := closed[i].PnL()
		if !ok {
			continue
		}
		stats.TotalPnL += pnl
		if pnl > 0 {
			stats.Winning++
		} else {
			stats.Losing++
		}
	}
	if stats.Closed > 0 {
		stats.WinRate = float64(stats.Winning) / float64(stats.Closed) * 100
	}
}
