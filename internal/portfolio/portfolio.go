// Package portfolio reconciles trade records with broker orders and opens or
// closes trades.
package portfolio

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/watson/internal/broker"
	"github.com/wonny/watson/internal/trade"
	"github.com/wonny/watson/pkg/logger"
	"github.com/wonny/watson/pkg/metrics"
)

var (
	// ErrNotPersisted marks a broker action whose trade record could not be written
	ErrNotPersisted = errors.New("trade record not persisted")
)

// Store is the trade persistence the portfolio needs
type Store interface {
	Add(ctx context.Context, t *trade.Trade) (int64, error)
	Update(ctx context.Context, id int64, fields trade.Fields) error
	UpdateExit(ctx context.Context, id int64, exit trade.Exit) error
	GetOpen(ctx context.Context) ([]trade.Trade, error)
	Statistics(ctx context.Context) (*trade.Statistics, error)
}

// Error wraps a broker failure during trade orchestration
type Error struct {
	Op     string
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("portfolio %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Entry asks the portfolio to buy Qty shares of Symbol
type Entry struct {
	Symbol string
	Qty    float64
}

// Exit asks the portfolio to close an open trade
type Exit struct {
	Trade  trade.Trade
	Reason string
}

// Config holds protective order distances; zero disables stop loss
type Config struct {
	TakeProfitPct float64
	StopLossPct   float64
}

// Manager opens, closes and reconciles trades
// ⭐ SSOT: 거래 기록과 브로커 주문의 정합성은 여기서만 관리
type Manager struct {
	broker  broker.Broker
	store   Store
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// New creates a portfolio manager; TakeProfitPct defaults to 2%
func New(b broker.Broker, store Store, cfg Config, log *logger.Logger, m *metrics.Metrics) *Manager {
	if cfg.TakeProfitPct <= 0 {
		cfg.TakeProfitPct = broker.DefaultTakeProfitPct
	}
	return &Manager{
		broker:  b,
		store:   store,
		cfg:     cfg,
		logger:  log,
		metrics: m,
	}
}

// Info fetches and logs the account summary
func (m *Manager) Info(ctx context.Context) (*broker.Account, error) {
	account, err := m.broker.GetAccountInfo(ctx)
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"status":          account.Status,
		"equity":          account.Equity,
		"buying_power":    account.BuyingPower,
		"cash":            account.Cash,
		"trading_blocked": account.TradingBlocked,
		"account_blocked": account.AccountBlocked,
	}).Info("Account info")
	return account, nil
}

// Update closes trades whose take-profit, stop-loss or pending exit order has
// filled and returns the trades still open. Per-trade failures are logged and
// skipped.
func (m *Manager) Update(ctx context.Context) ([]trade.Trade, error) {
	if _, err := m.Info(ctx); err != nil {
		return nil, err
	}

	m.logger.Info("Updating portfolio")
	open, err := m.store.GetOpen(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to load open trades")
		return nil, fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}

	remaining := make([]trade.Trade, 0, len(open))
	for _, t := range open {
		closed, err := m.reconcile(ctx, &t)
		if err != nil {
			m.logger.WithFields(map[string]interface{}{
				"trade_id": t.ID,
				"symbol":   t.Symbol,
			}).WithError(err).Error("Failed to reconcile trade")
		}
		if !closed {
			remaining = append(remaining, t)
		}
	}
	return remaining, nil
}

// reconcile settles a pending exit order, then checks the trade's protective
// orders; a filled one closes the trade
func (m *Manager) reconcile(ctx context.Context, t *trade.Trade) (bool, error) {
	if pendingExit(t) {
		return m.reconcileExit(ctx, t)
	}

	checks := []struct {
		id     *string
		reason string
	}{
		{t.TakeProfitOrderID, trade.ReasonTakeProfit},
		{t.StopLossOrderID, trade.ReasonStopLoss},
	}

	for _, c := range checks {
		if c.id == nil || *c.id == "" {
			continue
		}
		order, err := m.broker.GetOrderByID(ctx, *c.id)
		if err != nil {
			return false, err
		}
		if order.Status != broker.StatusFilled {
			continue
		}

		m.logger.WithFields(map[string]interface{}{
			"order_id": order.ID,
			"symbol":   t.Symbol,
			"reason":   c.reason,
		}).Info("Protective order filled")

		if err := m.store.UpdateExit(ctx, t.ID, exitFromOrder(order, c.reason)); err != nil {
			return false, fmt.Errorf("%w: %v", ErrNotPersisted, err)
		}
		return true, nil
	}
	return false, nil
}

// reconcileExit follows an exit order whose cancel was never confirmed
func (m *Manager) reconcileExit(ctx context.Context, t *trade.Trade) (bool, error) {
	order, err := m.broker.GetOrderByID(ctx, *t.ExitOrderID)
	if err != nil {
		return false, err
	}
	log := m.logger.WithFields(map[string]interface{}{
		"trade_id": t.ID,
		"symbol":   t.Symbol,
		"order_id": order.ID,
		"status":   string(order.Status),
	})

	switch {
	case !order.Status.Terminal():
		log.Info("Exit order still working")
		return false, nil
	case order.FilledQty > 0:
		log.Info("Pending exit order settled")
		reason := trade.ReasonSignal
		if t.ExitReason != nil {
			reason = *t.ExitReason
		}
		return m.settleExit(ctx, t, order, reason)
	}

	// 체결 없이 종료: 보유 포지션을 다시 보호
	log.Warn("Pending exit order ended unfilled")
	if !m.record(ctx, t.ID, trade.Fields{"exit_order_id": nil, "exit_reason": nil}) {
		return false, fmt.Errorf("%w: clear exit order", ErrNotPersisted)
	}
	return false, m.protect(ctx, t.ID, entryOrder(t))
}

// settleExit records the exit of order against t. A short fill closes t for
// the filled quantity and carries the rest as a new protected trade.
func (m *Manager) settleExit(ctx context.Context, t *trade.Trade, order *broker.Order, reason string) (bool, error) {
	if err := m.store.UpdateExit(ctx, t.ID, exitFromOrder(order, reason)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}

	rest := t.FilledQty - order.FilledQty
	if rest <= 0 {
		return true, nil
	}

	m.logger.WithFields(map[string]interface{}{
		"trade_id":  t.ID,
		"symbol":    t.Symbol,
		"exit_qty":  order.FilledQty,
		"remaining": rest,
	}).Warn("Exit partially filled, carrying the remainder")

	remainder := &trade.Trade{
		Symbol:       t.Symbol,
		Status:       trade.StatusOpen,
		FilledQty:    rest,
		FilledPrice:  t.FilledPrice,
		FilledAt:     t.FilledAt,
		Side:         t.Side,
		EntryOrderID: t.EntryOrderID,
	}
	id, err := m.store.Add(ctx, remainder)
	if err != nil {
		m.logger.WithSymbol(t.Symbol).WithError(err).Error("Failed to record remaining trade")
	}
	return true, m.protect(ctx, id, entryOrder(remainder))
}

// OpenTrades buys each entry, records the trade and places its protective
// orders. A broker failure stops the batch and is returned as *Error.
func (m *Manager) OpenTrades(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		order, err := m.broker.MarketOrder(ctx, e.Symbol, e.Qty, broker.Buy)
		m.metrics.ObserveOrder(string(broker.Buy), "market", "market_order", err)
		if err != nil {
			return &Error{Op: "open trade", Symbol: e.Symbol, Err: err}
		}
		if order == nil {
			m.logger.WithField("symbol", e.Symbol).Warn("Entry order not filled, skipping")
			continue
		}

		m.logger.WithFields(map[string]interface{}{
			"symbol": order.Symbol,
			"qty":    order.FilledQty,
			"price":  order.FilledAvgPrice,
		}).Info("Bought")

		t := &trade.Trade{
			Symbol:       e.Symbol,
			Status:       trade.StatusOpen,
			FilledQty:    order.FilledQty,
			FilledPrice:  order.FilledAvgPrice,
			Side:         string(order.Side),
			EntryOrderID: order.ID,
		}
		if order.FilledAt != nil {
			t.FilledAt = *order.FilledAt
		} else {
			t.FilledAt = order.SubmittedAt
		}

		tradeID, err := m.store.Add(ctx, t)
		if err != nil {
			// 포지션은 이미 체결됨: 보호 주문은 계속 설정
			m.logger.WithField("symbol", e.Symbol).WithError(err).Error("Failed to record trade")
		}

		if err := m.protect(ctx, tradeID, order); err != nil {
			return err
		}
	}
	return nil
}

// protect places take-profit and, when configured, stop-loss orders
func (m *Manager) protect(ctx context.Context, tradeID int64, entry *broker.Order) error {
	tp, err := m.broker.SetTakeProfit(ctx, entry, m.cfg.TakeProfitPct)
	m.metrics.ObserveOrder(string(entry.Side.Opposite()), "limit", "take_profit", err)
	if err != nil {
		return &Error{Op: "set take profit", Symbol: entry.Symbol, Err: err}
	}
	if tp != nil {
		m.logger.WithFields(map[string]interface{}{
			"symbol": entry.Symbol,
			"limit":  tp.LimitPrice,
		}).Info("Take profit set")
		m.record(ctx, tradeID, trade.Fields{
			"take_profit":          tp.LimitPrice,
			"take_profit_order_id": tp.ID,
		})
	}

	if m.cfg.StopLossPct <= 0 {
		return nil
	}

	sl, err := m.broker.SetStopLoss(ctx, entry, m.cfg.StopLossPct)
	m.metrics.ObserveOrder(string(entry.Side.Opposite()), "stop", "stop_loss", err)
	if err != nil {
		return &Error{Op: "set stop loss", Symbol: entry.Symbol, Err: err}
	}
	if sl != nil {
		m.logger.WithFields(map[string]interface{}{
			"symbol": entry.Symbol,
			"stop":   sl.StopPrice,
		}).Info("Stop loss set")
		m.record(ctx, tradeID, trade.Fields{
			"stop_loss":          sl.StopPrice,
			"stop_loss_order_id": sl.ID,
		})
	}
	return nil
}

// record writes fields when the trade was persisted, logging failures
func (m *Manager) record(ctx context.Context, tradeID int64, fields trade.Fields) bool {
	if tradeID == 0 {
		return false
	}
	if err := m.store.Update(ctx, tradeID, fields); err != nil {
		m.logger.WithField("trade_id", tradeID).WithError(err).Error("Failed to update trade")
		return false
	}
	return true
}

// CloseTrades cancels each trade's protective orders, sells the position and
// records the exit. A broker failure stops the batch and is returned as *Error.
// An exit that does not fill re-protects the trade; a partial one carries the
// remainder as a new trade.
func (m *Manager) CloseTrades(ctx context.Context, exits []Exit) error {
	for _, x := range exits {
		t := x.Trade
		if pendingExit(&t) {
			m.logger.WithFields(map[string]interface{}{
				"trade_id": t.ID,
				"order_id": *t.ExitOrderID,
			}).Warn("Exit order still working, skipping")
			continue
		}

		order, err := m.broker.CloseOrder(ctx, t.Symbol, t.FilledQty, t.ProtectiveOrderIDs()...)
		m.metrics.ObserveOrder(string(broker.Side(t.Side).Opposite()), "market", "close_order", err)
		if err != nil {
			if id, ok := broker.PendingOrderID(err); ok {
				// 다음 Update에서 체결 여부를 확인
				m.record(ctx, t.ID, trade.Fields{"exit_order_id": id, "exit_reason": x.Reason})
			}
			return &Error{Op: "close trade", Symbol: t.Symbol, Err: err}
		}
		if order == nil {
			m.logger.WithSymbol(t.Symbol).Warn("Exit order not filled, trade stays open")
			// 보호 주문은 이미 취소됨
			if err := m.protect(ctx, t.ID, entryOrder(&t)); err != nil {
				return err
			}
			continue
		}

		m.logger.WithFields(map[string]interface{}{
			"symbol": order.Symbol,
			"qty":    order.FilledQty,
			"price":  order.FilledAvgPrice,
			"reason": x.Reason,
		}).Info("Sold")

		if _, err := m.settleExit(ctx, &t, order, x.Reason); err != nil {
			if errors.Is(err, ErrNotPersisted) {
				m.logger.WithField("trade_id", t.ID).WithError(err).Error("Failed to record trade exit")
				continue
			}
			return err
		}
	}
	return nil
}

// Position is one open trade in the summary
type Position struct {
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	EntryDate  string  `json:"entry_date"`
}

// Summary combines trade statistics with the open positions
type Summary struct {
	Statistics    *trade.Statistics `json:"trade_statistics"`
	OpenPositions []Position        `json:"open_positions"`
}

// Summary reports statistics and open trades
func (m *Manager) Summary(ctx context.Context) (*Summary, error) {
	stats, err := m.store.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	open, err := m.store.GetOpen(ctx)
	if err != nil {
		return nil, err
	}

	s := &Summary{Statistics: stats, OpenPositions: make([]Position, 0, len(open))}
	for _, t := range open {
		s.OpenPositions = append(s.OpenPositions, Position{
			Symbol:     t.Symbol,
			Quantity:   t.FilledQty,
			EntryPrice: t.FilledPrice,
			EntryDate:  t.FilledAt.Format("2006-01-02 15:04:05"),
		})
	}
	return s, nil
}

// pendingExit reports an exit order placed but not yet settled
func pendingExit(t *trade.Trade) bool {
	return t.ExitOrderID != nil && *t.ExitOrderID != "" && t.ExitAt == nil
}

// entryOrder rebuilds the filled entry of t for placing protective orders
func entryOrder(t *trade.Trade) *broker.Order {
	return &broker.Order{
		ID:             t.EntryOrderID,
		Symbol:         t.Symbol,
		Side:           broker.Side(t.Side),
		Qty:            t.FilledQty,
		FilledQty:      t.FilledQty,
		FilledAvgPrice: t.FilledPrice,
		FilledAt:       &t.FilledAt,
		Status:         broker.StatusFilled,
	}
}

func exitFromOrder(o *broker.Order, reason string) trade.Exit {
	exit := trade.Exit{
		At:      o.SubmittedAt,
		Qty:     o.FilledQty,
		Price:   o.FilledAvgPrice,
		Reason:  reason,
		OrderID: o.ID,
	}
	if o.FilledAt != nil {
		exit.At = *o.FilledAt
	}
	return exit
}
