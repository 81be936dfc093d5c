package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Broker defines the brokerage operations the trading loop needs
// ⭐ SSOT: 증권사 연동 인터페이스는 여기서만 정의
type Broker interface {
	// Initialize fails when trading is blocked or the market is closed outside dev mode
	Initialize(ctx context.Context) error

	// GetAccountInfo returns equity, buying power and block flags
	GetAccountInfo(ctx context.Context) (*Account, error)

	// GetAllPositions returns every open position
	GetAllPositions(ctx context.Context) ([]Position, error)

	// GetOrderByID retrieves one order
	GetOrderByID(ctx context.Context, id string) (*Order, error)

	// GetLatestClose returns the close of the most recent bar
	GetLatestClose(ctx context.Context, symbol string) (float64, error)

	// MarketOrder submits and waits for the fill. An order still working at
	// the poll timeout is cancelled: a nil order without error means nothing
	// filled, a canceled order with FilledQty > 0 is a partial fill.
	MarketOrder(ctx context.Context, symbol string, qty float64, side Side) (*Order, error)

	// CloseOrder cancels the given protective orders that are still working,
	// then closes qty of the position and waits for the fill. The close order
	// settles like MarketOrder; one whose cancel is never confirmed comes back
	// as *Error wrapping ErrOrderPending with its OrderID.
	CloseOrder(ctx context.Context, symbol string, qty float64, protectiveOrderIDs ...string) (*Order, error)

	// SetTakeProfit places a GTC limit order pct above (below for shorts) the fill
	SetTakeProfit(ctx context.Context, entry *Order, pct float64) (*Order, error)

	// SetStopLoss places a GTC stop order pct below (above for shorts) the fill
	SetStopLoss(ctx context.Context, entry *Order, pct float64) (*Order, error)
}

// Side is the order direction
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the closing side
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus mirrors the broker's order lifecycle states
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusAccepted        OrderStatus = "accepted"
	StatusPendingNew      OrderStatus = "pending_new"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusPendingCancel   OrderStatus = "pending_cancel"
	StatusFilled          OrderStatus = "filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusExpired         OrderStatus = "expired"
	StatusRejected        OrderStatus = "rejected"
)

// Terminal reports states an order never leaves
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// Order is the broker-neutral view of an order
type Order struct {
	ID             string
	Symbol         string
	Side           Side
	Type           string
	Qty            float64
	FilledQty      float64
	FilledAvgPrice float64
	FilledAt       *time.Time
	LimitPrice     float64
	StopPrice      float64
	Status         OrderStatus
	SubmittedAt    time.Time
}

// Account summarizes the trading account
type Account struct {
	Equity         float64 `json:"equity"`
	BuyingPower    float64 `json:"buying_power"`
	Cash           float64 `json:"cash"`
	TradingBlocked bool    `json:"trading_blocked"`
	AccountBlocked bool    `json:"account_blocked"`
	Status         string  `json:"status"`
}

// Position is one open position
type Position struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
}

// ErrOrderPending marks an order left working at the broker in an unknown
// state, usually because its cancel was never confirmed
var ErrOrderPending = errors.New("order left working at the broker")

// Error is returned for submission, cancellation and closing failures.
// OrderID is set when a placed order is left in an unknown state.
type Error struct {
	Op      string
	Symbol  string
	OrderID string
	Err     error
}

func (e *Error) Error() string {
	target := e.Op
	if e.Symbol != "" {
		target += " " + e.Symbol
	}
	if e.OrderID != "" {
		target += " order " + e.OrderID
	}
	return fmt.Sprintf("broker %s: %v", target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PendingOrderID returns the order err left working at the broker
func PendingOrderID(err error) (string, bool) {
	var be *Error
	if errors.Is(err, ErrOrderPending) && errors.As(err, &be) && be.OrderID != "" {
		return be.OrderID, true
	}
	return "", false
}

// DefaultTakeProfitPct is the take-profit distance from the entry fill
const DefaultTakeProfitPct = 0.02

// takeProfitPrice rounds to cents
func takeProfitPrice(entry *Order, pct float64) float64 {
	if entry.Side == Sell {
		return roundCents(entry.FilledAvgPrice * (1 - pct))
	}
	return roundCents(entry.FilledAvgPrice * (1 + pct))
}

func stopLossPrice(entry *Order, pct float64) float64 {
	if entry.Side == Sell {
		return roundCents(entry.FilledAvgPrice * (1 + pct))
	}
	return roundCents(entry.FilledAvgPrice * (1 - pct))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
