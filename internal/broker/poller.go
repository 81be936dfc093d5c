package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/watson/pkg/logger"
)

// Poller waits for an order to reach a status, paced by a rate limiter and
// bounded by a timeout. It never waits forever.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration
	logger   *logger.Logger
}

// NewPoller creates a poller; zero values fall back to 100ms / 2m
func NewPoller(interval, timeout time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Poller{Interval: interval, Timeout: timeout, logger: log}
}

type fetchOrder func(ctx context.Context, id string) (*Order, error)

type cancelOrder func(ctx context.Context, id string) error

var terminal = []OrderStatus{StatusFilled, StatusCanceled, StatusExpired, StatusRejected}

// Wait polls until order reaches one of targets. It returns (nil, nil) when
// the timeout lapses or the order ends in another terminal state.
func (p *Poller) Wait(ctx context.Context, order *Order, fetch fetchOrder, targets ...OrderStatus) (*Order, error) {
	if hasStatus(order, targets) {
		return order, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(p.Interval), 1)
	// 첫 조회도 Interval 만큼 대기
	limiter.Reserve()

	id := order.ID
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.WithFields(map[string]interface{}{
				"order_id": id,
				"status":   string(order.Status),
				"timeout":  p.Timeout,
			}).Warn("Order status wait timed out")
			return nil, nil
		}

		current, err := fetch(waitCtx, id)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				continue
			}
			return nil, err
		}
		order = current

		if hasStatus(order, targets) {
			p.logger.WithFields(map[string]interface{}{
				"order_id": id,
				"status":   string(order.Status),
			}).Info("Order reached status")
			return order, nil
		}

		if order.Status.Terminal() {
			p.logger.WithFields(map[string]interface{}{
				"order_id": id,
				"status":   string(order.Status),
			}).Warn("Order ended before reaching status")
			return nil, nil
		}

		p.logger.WithFields(map[string]interface{}{
			"order_id": id,
			"status":   string(order.Status),
		}).Debug("Waiting for order status")
	}
}

// Settle waits like Wait, then cancels an order still working when the wait
// lapses so nothing is left live at the broker. The settled order is returned
// when it reached a target or filled in part before the cancel took; (nil, nil)
// means nothing filled. An order whose final state is never observed is
// reported as *Error wrapping ErrOrderPending.
func (p *Poller) Settle(ctx context.Context, order *Order, fetch fetchOrder, cancel cancelOrder, targets ...OrderStatus) (*Order, error) {
	got, err := p.Wait(ctx, order, fetch, targets...)
	if err != nil || got != nil {
		return got, err
	}

	current, err := fetch(ctx, order.ID)
	if err != nil {
		return nil, &Error{Op: "get order", Symbol: order.Symbol, OrderID: order.ID, Err: fmt.Errorf("%w: %w", ErrOrderPending, err)}
	}

	log := p.logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"symbol":   order.Symbol,
	})

	if !current.Status.Terminal() {
		// 취소 실패는 이미 체결된 경우일 수 있음: 최종 상태로 판단
		if err := cancel(ctx, order.ID); err != nil {
			log.WithError(err).Warn("Failed to cancel order")
		}
		settled, err := p.Wait(ctx, current, fetch, terminal...)
		if err != nil {
			return nil, &Error{Op: "cancel order", Symbol: order.Symbol, OrderID: order.ID, Err: fmt.Errorf("%w: %w", ErrOrderPending, err)}
		}
		if settled == nil {
			return nil, &Error{Op: "cancel order", Symbol: order.Symbol, OrderID: order.ID, Err: ErrOrderPending}
		}
		current = settled
	}

	if hasStatus(current, targets) || current.FilledQty > 0 {
		log.WithFields(map[string]interface{}{
			"status":     string(current.Status),
			"filled_qty": current.FilledQty,
		}).Warn("Order settled after cancel")
		return current, nil
	}
	log.WithField("status", string(current.Status)).Info("Order cancelled")
	return nil, nil
}

func hasStatus(o *Order, targets []OrderStatus) bool {
	for _, t := range targets {
		if o.Status == t {
			return true
		}
	}
	return false
}
