package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockBroker implements Broker in memory for tests.
// Market orders fill immediately at the configured price unless NextOutcome
// scripts otherwise; protective orders rest as "new" until FillOrder is called.
type MockBroker struct {
	mu        sync.Mutex
	prices    map[string]float64
	positions map[string]Position
	orders    map[string]*Order
	account   Account
	failures  map[string]error
	outcomes  map[string]Outcome
	marketOn  bool
	devMode   bool
	nextID    int
	now       func() time.Time
}

// Mock operation names accepted by Fail
const (
	OpMarketOrder = "market_order"
	OpCloseOrder  = "close_order"
	OpTakeProfit  = "take_profit"
	OpStopLoss    = "stop_loss"
	OpGetOrder    = "get_order"
	OpAccount     = "account"
)

// NewMockBroker creates a mock broker with 100k equity and an open market
func NewMockBroker() *MockBroker {
	return &MockBroker{
		prices:    make(map[string]float64),
		positions: make(map[string]Position),
		orders:    make(map[string]*Order),
		failures:  make(map[string]error),
		outcomes:  make(map[string]Outcome),
		account: Account{
			Equity:      100_000,
			BuyingPower: 100_000,
			Cash:        100_000,
			Status:      "ACTIVE",
		},
		marketOn: true,
		now:      time.Now,
	}
}

// SetPrice sets the latest close for symbol
func (b *MockBroker) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

// SetAccount replaces the account snapshot
func (b *MockBroker) SetAccount(a Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.account = a
}

// SetMarketOpen toggles the market clock
func (b *MockBroker) SetMarketOpen(open, devMode bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marketOn, b.devMode = open, devMode
}

// Fail makes every call of op return err until cleared with a nil err
func (b *MockBroker) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, op)
		return
	}
	b.failures[op] = err
}

// Outcome scripts how the next market or close order settles when it does
// not fill within the poll timeout
type Outcome struct {
	// FilledQty is filled before the cancel lands; zero means nothing fills
	FilledQty float64
	// Working leaves the order pending_cancel, as if the cancel never confirmed
	Working bool
}

// NextOutcome applies o to the next OpMarketOrder or OpCloseOrder call only
func (b *MockBroker) NextOutcome(op string, o Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes[op] = o
}

// FillOrder fills the rest of a resting or working order at price
func (b *MockBroker) FillOrder(id string, price float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	rest := o.Qty - o.FilledQty
	now := b.now()
	o.Status = StatusFilled
	o.FilledQty = o.Qty
	o.FilledAvgPrice = price
	o.FilledAt = &now
	b.applyFill(o, rest)
	return nil
}

// CancelOrder cancels a working order, keeping whatever already filled
func (b *MockBroker) CancelOrder(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	if o.Status.Terminal() {
		return fmt.Errorf("order %s is %s", id, o.Status)
	}
	o.Status = StatusCanceled
	return nil
}

// Orders returns a snapshot of every order placed
func (b *MockBroker) Orders() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Order, 0, len(b.orders))
	for i := 1; i <= b.nextID; i++ {
		if o, ok := b.orders[mockID(i)]; ok {
			out = append(out, *o)
		}
	}
	return out
}

func (b *MockBroker) Initialize(ctx context.Context) error {
	account, err := b.GetAccountInfo(ctx)
	if err != nil {
		return err
	}
	if account.TradingBlocked || account.AccountBlocked {
		return &Error{Op: "initialize", Err: fmt.Errorf("trading is blocked")}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.marketOn && !b.devMode {
		return &Error{Op: "initialize", Err: fmt.Errorf("market is closed")}
	}
	return nil
}

func (b *MockBroker) GetAccountInfo(ctx context.Context) (*Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failures[OpAccount]; err != nil {
		return nil, &Error{Op: "get account", Err: err}
	}
	a := b.account
	return &a, nil
}

func (b *MockBroker) GetAllPositions(ctx context.Context) ([]Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

func (b *MockBroker) GetOrderByID(ctx context.Context, id string) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failures[OpGetOrder]; err != nil {
		return nil, &Error{Op: "get order", Err: err}
	}
	o, ok := b.orders[id]
	if !ok {
		return nil, &Error{Op: "get order", Err: fmt.Errorf("order %s not found", id)}
	}
	cp := *o
	return &cp, nil
}

func (b *MockBroker) GetLatestClose(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.prices[symbol]
	if !ok {
		return 0, &Error{Op: "get latest bar", Symbol: symbol, Err: fmt.Errorf("no price")}
	}
	return p, nil
}

func (b *MockBroker) MarketOrder(ctx context.Context, symbol string, qty float64, side Side) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failures[OpMarketOrder]; err != nil {
		return nil, &Error{Op: "submit market order", Symbol: symbol, Err: err}
	}
	price, ok := b.prices[symbol]
	if !ok {
		return nil, &Error{Op: "submit market order", Symbol: symbol, Err: fmt.Errorf("no price")}
	}

	return b.execute(OpMarketOrder, Order{
		Symbol: symbol,
		Side:   side,
		Type:   "market",
		Qty:    qty,
	}, price)
}

func (b *MockBroker) CloseOrder(ctx context.Context, symbol string, qty float64, protectiveOrderIDs ...string) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failures[OpCloseOrder]; err != nil {
		return nil, &Error{Op: "close position", Symbol: symbol, Err: err}
	}
	for _, id := range protectiveOrderIDs {
		if o, ok := b.orders[id]; ok && !o.Status.Terminal() {
			o.Status = StatusCanceled
		}
	}

	pos, ok := b.positions[symbol]
	if !ok {
		return nil, &Error{Op: "close position", Symbol: symbol, Err: fmt.Errorf("no position")}
	}
	side := Sell
	if pos.Qty < 0 {
		side = Buy
	}

	return b.execute(OpCloseOrder, Order{
		Symbol: symbol,
		Side:   side,
		Type:   "market",
		Qty:    qty,
	}, b.prices[symbol])
}

func (b *MockBroker) SetTakeProfit(ctx context.Context, entry *Order, pct float64) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failures[OpTakeProfit]; err != nil {
		return nil, &Error{Op: "submit take profit", Symbol: entry.Symbol, Err: err}
	}
	o := b.place(Order{
		Symbol:     entry.Symbol,
		Side:       entry.Side.Opposite(),
		Type:       "limit",
		Qty:        entry.FilledQty,
		LimitPrice: takeProfitPrice(entry, pct),
		Status:     StatusNew,
	})
	cp := *o
	return &cp, nil
}

func (b *MockBroker) SetStopLoss(ctx context.Context, entry *Order, pct float64) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failures[OpStopLoss]; err != nil {
		return nil, &Error{Op: "submit stop loss", Symbol: entry.Symbol, Err: err}
	}
	o := b.place(Order{
		Symbol:    entry.Symbol,
		Side:      entry.Side.Opposite(),
		Type:      "stop",
		Qty:       entry.FilledQty,
		StopPrice: stopLossPrice(entry, pct),
		Status:    StatusNew,
	})
	cp := *o
	return &cp, nil
}

// place stores o under a fresh id; caller holds mu
func (b *MockBroker) place(o Order) *Order {
	b.nextID++
	o.ID = mockID(b.nextID)
	o.SubmittedAt = b.now()
	stored := o
	b.orders[o.ID] = &stored
	return &stored
}

// execute places o and fills it at price, unless an Outcome is scripted for
// op; caller holds mu
func (b *MockBroker) execute(op string, o Order, price float64) (*Order, error) {
	out, scripted := b.outcomes[op]
	delete(b.outcomes, op)

	placed := b.place(o)
	fill := placed.Qty
	if scripted {
		fill = out.FilledQty
	}
	if fill > 0 {
		now := b.now()
		placed.FilledQty = fill
		placed.FilledAvgPrice = price
		placed.FilledAt = &now
		b.applyFill(placed, fill)
	}

	switch {
	case !scripted:
		placed.Status = StatusFilled
	case out.Working:
		placed.Status = StatusPendingCancel
		return nil, &Error{Op: "cancel order", Symbol: o.Symbol, OrderID: placed.ID, Err: ErrOrderPending}
	default:
		placed.Status = StatusCanceled
		if fill <= 0 {
			return nil, nil
		}
	}
	cp := *placed
	return &cp, nil
}

// applyFill moves the position by qty of o; caller holds mu
func (b *MockBroker) applyFill(o *Order, qty float64) {
	delta := qty
	if o.Side == Sell {
		delta = -delta
	}
	pos := b.positions[o.Symbol]
	pos.Symbol = o.Symbol
	if pos.Qty+delta != 0 && delta*pos.Qty >= 0 {
		pos.AvgEntryPrice = (pos.AvgEntryPrice*abs(pos.Qty) + o.FilledAvgPrice*abs(delta)) / (abs(pos.Qty) + abs(delta))
	}
	pos.Qty += delta
	pos.CurrentPrice = o.FilledAvgPrice
	pos.MarketValue = pos.Qty * pos.CurrentPrice
	if pos.Qty == 0 {
		delete(b.positions, o.Symbol)
		return
	}
	b.positions[o.Symbol] = pos
}

func mockID(n int) string {
	return fmt.Sprintf("MOCK-%06d", n)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
