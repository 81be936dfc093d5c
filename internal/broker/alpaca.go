package broker

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/wonny/watson/pkg/config"
	"github.com/wonny/watson/pkg/logger"
)

const (
	paperURL = "https://paper-api.alpaca.markets"
	liveURL  = "https://api.alpaca.markets"
)

// Alpaca implements Broker on the Alpaca trading API
// ⭐ 실제 운영 브로커 (모의투자는 ALPACA_PAPER=true)
type Alpaca struct {
	client  *alpaca.Client
	data    *alpacamd.Client
	poller  *Poller
	devMode bool
	logger  *logger.Logger
}

// NewAlpaca creates the Alpaca broker from config
func NewAlpaca(cfg *config.Config, log *logger.Logger) *Alpaca {
	baseURL := liveURL
	if cfg.Alpaca.Paper {
		baseURL = paperURL
	}

	return &Alpaca{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.SecretKey,
			BaseURL:   baseURL,
		}),
		data: alpacamd.NewClient(alpacamd.ClientOpts{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.SecretKey,
		}),
		poller:  NewPoller(cfg.Trading.OrderPollInterval, cfg.Trading.OrderPollTimeout, log),
		devMode: cfg.Alpaca.DevMode,
		logger:  log,
	}
}

// Initialize checks the account can trade now
func (a *Alpaca) Initialize(ctx context.Context) error {
	account, err := a.GetAccountInfo(ctx)
	if err != nil {
		return err
	}
	if account.TradingBlocked || account.AccountBlocked {
		return &Error{Op: "initialize", Err: fmt.Errorf("trading is blocked")}
	}

	clock, err := a.client.GetClock()
	if err != nil {
		return &Error{Op: "get clock", Err: err}
	}
	if !clock.IsOpen && !a.devMode {
		return &Error{Op: "initialize", Err: fmt.Errorf("market is closed")}
	}

	a.logger.WithFields(map[string]interface{}{
		"equity":      account.Equity,
		"market_open": clock.IsOpen,
		"dev_mode":    a.devMode,
	}).Info("Broker initialized")
	return nil
}

// GetAccountInfo returns the account summary
func (a *Alpaca) GetAccountInfo(ctx context.Context) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct, err := a.client.GetAccount()
	if err != nil {
		return nil, &Error{Op: "get account", Err: err}
	}
	return &Account{
		Equity:         acct.Equity.InexactFloat64(),
		BuyingPower:    acct.BuyingPower.InexactFloat64(),
		Cash:           acct.Cash.InexactFloat64(),
		TradingBlocked: acct.TradingBlocked,
		AccountBlocked: acct.AccountBlocked,
		Status:         acct.Status,
	}, nil
}

// GetAllPositions returns open positions
func (a *Alpaca) GetAllPositions(ctx context.Context) ([]Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := a.client.GetPositions()
	if err != nil {
		return nil, &Error{Op: "get positions", Err: err}
	}

	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty.InexactFloat64(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
			CurrentPrice:  decimalPtr(p.CurrentPrice),
			MarketValue:   decimalPtr(p.MarketValue),
			UnrealizedPL:  decimalPtr(p.UnrealizedPL),
		})
	}
	return positions, nil
}

// GetOrderByID retrieves an order
func (a *Alpaca) GetOrderByID(ctx context.Context, id string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, err := a.client.GetOrder(id)
	if err != nil {
		return nil, &Error{Op: "get order", Err: fmt.Errorf("%s: %w", id, err)}
	}
	return fromAlpaca(o), nil
}

// GetLatestClose returns the latest bar close
func (a *Alpaca) GetLatestClose(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	bar, err := a.data.GetLatestBar(symbol, alpacamd.GetLatestBarRequest{})
	if err != nil {
		return 0, &Error{Op: "get latest bar", Symbol: symbol, Err: err}
	}
	if bar == nil {
		return 0, &Error{Op: "get latest bar", Symbol: symbol, Err: fmt.Errorf("no bar")}
	}
	return bar.Close, nil
}

// MarketOrder submits a day market order and waits for the fill. An order
// still working at the timeout is cancelled.
func (a *Alpaca) MarketOrder(ctx context.Context, symbol string, qty float64, side Side) (*Order, error) {
	q := decimal.NewFromFloat(qty)
	o, err := a.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &q,
		Side:        alpacaSide(side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		return nil, &Error{Op: "submit market order", Symbol: symbol, Err: err}
	}

	filled, err := a.poller.Settle(ctx, fromAlpaca(o), a.GetOrderByID, a.cancel, StatusFilled)
	if err != nil {
		return nil, err
	}
	a.logFill("Market order", symbol, o.ID, qty, filled)
	return filled, nil
}

// CloseOrder cancels the protective orders still working, then closes qty of
// the position
func (a *Alpaca) CloseOrder(ctx context.Context, symbol string, qty float64, protectiveOrderIDs ...string) (*Order, error) {
	for _, id := range protectiveOrderIDs {
		if id == "" {
			continue
		}
		if err := a.cancelProtective(ctx, symbol, id); err != nil {
			return nil, err
		}
	}

	o, err := a.client.ClosePosition(symbol, alpaca.ClosePositionRequest{
		Qty: decimal.NewFromFloat(qty),
	})
	if err != nil {
		return nil, &Error{Op: "close position", Symbol: symbol, Err: err}
	}

	filled, err := a.poller.Settle(ctx, fromAlpaca(o), a.GetOrderByID, a.cancel, StatusFilled)
	if err != nil {
		return nil, err
	}
	a.logFill("Close order", symbol, o.ID, qty, filled)
	return filled, nil
}

// cancelProtective cancels a resting protective order and waits until the
// broker confirms it. Orders already in a terminal state are left alone.
func (a *Alpaca) cancelProtective(ctx context.Context, symbol, id string) error {
	o, err := a.GetOrderByID(ctx, id)
	if err != nil {
		return err
	}
	if o.Status.Terminal() {
		a.logger.WithFields(map[string]interface{}{
			"symbol":   symbol,
			"order_id": id,
			"status":   string(o.Status),
		}).Debug("Protective order already closed")
		return nil
	}

	if err := a.cancel(ctx, id); err != nil {
		// 취소 요청 사이에 체결/만료되었을 수 있음
		current, ferr := a.GetOrderByID(ctx, id)
		if ferr != nil || !current.Status.Terminal() {
			return &Error{Op: "cancel protective order", Symbol: symbol, OrderID: id, Err: err}
		}
		return nil
	}

	// 보유 수량이 주문에 묶여 있으면 청산이 거부됨
	done, err := a.poller.Wait(ctx, o, a.GetOrderByID, terminal...)
	if err != nil {
		return err
	}
	if done == nil {
		return &Error{Op: "cancel protective order", Symbol: symbol, OrderID: id, Err: ErrOrderPending}
	}
	return nil
}

func (a *Alpaca) cancel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.client.CancelOrder(id)
}

func (a *Alpaca) logFill(kind, symbol, orderID string, qty float64, o *Order) {
	log := a.logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"order_id": orderID,
	})
	switch {
	case o == nil:
		log.Error(kind + " not filled")
	case o.FilledQty < qty:
		log.WithFields(map[string]interface{}{
			"qty":        qty,
			"filled_qty": o.FilledQty,
		}).Warn(kind + " partially filled")
	}
}

// SetTakeProfit places a GTC limit order for the filled quantity
func (a *Alpaca) SetTakeProfit(ctx context.Context, entry *Order, pct float64) (*Order, error) {
	limit := decimal.NewFromFloat(takeProfitPrice(entry, pct))
	return a.protective(ctx, entry, "take profit", alpaca.PlaceOrderRequest{
		Type:       alpaca.Limit,
		LimitPrice: &limit,
	})
}

// SetStopLoss places a GTC stop order for the filled quantity
func (a *Alpaca) SetStopLoss(ctx context.Context, entry *Order, pct float64) (*Order, error) {
	stop := decimal.NewFromFloat(stopLossPrice(entry, pct))
	return a.protective(ctx, entry, "stop loss", alpaca.PlaceOrderRequest{
		Type:      alpaca.Stop,
		StopPrice: &stop,
	})
}

func (a *Alpaca) protective(ctx context.Context, entry *Order, kind string, req alpaca.PlaceOrderRequest) (*Order, error) {
	qty := decimal.NewFromFloat(entry.FilledQty)
	req.Symbol = entry.Symbol
	req.Qty = &qty
	req.Side = alpacaSide(entry.Side.Opposite())
	req.TimeInForce = alpaca.GTC

	o, err := a.client.PlaceOrder(req)
	if err != nil {
		return nil, &Error{Op: "submit " + kind, Symbol: entry.Symbol, Err: err}
	}

	// 장 마감 중에는 accepted 상태로 대기
	placed, err := a.poller.Settle(ctx, fromAlpaca(o), a.GetOrderByID, a.cancel,
		StatusNew, StatusAccepted, StatusPartiallyFilled)
	if err != nil {
		return nil, err
	}
	if placed == nil {
		a.logger.WithFields(map[string]interface{}{
			"symbol":   entry.Symbol,
			"order_id": o.ID,
		}).Error("Failed to set " + kind)
	}
	return placed, nil
}

func alpacaSide(s Side) alpaca.Side {
	if s == Sell {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func fromAlpaca(o *alpaca.Order) *Order {
	order := &Order{
		ID:          o.ID,
		Symbol:      o.Symbol,
		Side:        Side(o.Side),
		Type:        string(o.Type),
		Qty:         decimalPtr(o.Qty),
		FilledQty:   o.FilledQty.InexactFloat64(),
		FilledAt:    o.FilledAt,
		Status:      OrderStatus(o.Status),
		SubmittedAt: o.SubmittedAt,
	}
	order.FilledAvgPrice = decimalPtr(o.FilledAvgPrice)
	order.LimitPrice = decimalPtr(o.LimitPrice)
	order.StopPrice = decimalPtr(o.StopPrice)
	return order
}

func decimalPtr(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
