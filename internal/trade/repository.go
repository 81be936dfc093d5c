package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/watson/pkg/database"
	"github.com/wonny/watson/pkg/logger"
)

const selectColumns = `
	id, symbol, status, filled_at, filled_qty, filled_price, side, entry_order_id,
	take_profit, stop_loss, take_profit_order_id, stop_loss_order_id,
	exit_at, exit_qty, exit_price, exit_reason, exit_order_id,
	created_at, updated_at`

// Repository persists trades
// ⭐ SSOT: trades 테이블 읽기/쓰기는 여기서만
type Repository struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewRepository creates a trade repository
func NewRepository(pool *pgxpool.Pool, log *logger.Logger) *Repository {
	return &Repository{pool: pool, logger: log}
}

// Add inserts a trade and returns its id
func (r *Repository) Add(ctx context.Context, t *Trade) (int64, error) {
	if t.Status == "" {
		t.Status = StatusOpen
	}

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return insert(ctx, tx, t)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add trade: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"trade_id": t.ID,
		"symbol":   t.Symbol,
		"qty":      t.FilledQty,
		"price":    t.FilledPrice,
	}).Info("Trade added")
	return t.ID, nil
}

func insert(ctx context.Context, tx pgx.Tx, t *Trade) error {
	query := `
		INSERT INTO trades (
			symbol, status, filled_at, filled_qty, filled_price, side, entry_order_id,
			take_profit, stop_loss, take_profit_order_id, stop_loss_order_id,
			exit_at, exit_qty, exit_price, exit_reason, exit_order_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`
	return tx.QueryRow(ctx, query,
		t.Symbol, string(t.Status), t.FilledAt, t.FilledQty, t.FilledPrice, t.Side, t.EntryOrderID,
		t.TakeProfit, t.StopLoss, t.TakeProfitOrderID, t.StopLossOrderID,
		t.ExitAt, t.ExitQty, t.ExitPrice, t.ExitReason, t.ExitOrderID,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// UpdateExit closes a trade with its exit fill
func (r *Repository) UpdateExit(ctx context.Context, id int64, exit Exit) error {
	return r.Update(ctx, id, Fields{
		"status":        StatusClosed,
		"exit_at":       exit.At,
		"exit_qty":      exit.Qty,
		"exit_price":    exit.Price,
		"exit_reason":   exit.Reason,
		"exit_order_id": exit.OrderID,
	})
}

// UpdateStatus sets the trade status
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	return r.Update(ctx, id, Fields{"status": status})
}

// Update writes a subset of the mutable fields
func (r *Repository) Update(ctx context.Context, id int64, fields Fields) error {
	cols, err := fields.columns()
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]interface{}, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
		v := fields[col]
		if s, ok := v.(Status); ok {
			v = string(s)
		}
		args = append(args, v)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE trades SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update trade %d: %w", id, err)
	}

	r.logger.WithFields(map[string]interface{}{
		"trade_id": id,
		"fields":   cols,
	}).Debug("Trade updated")
	return nil
}

// GetByID returns one trade
func (r *Repository) GetByID(ctx context.Context, id int64) (*Trade, error) {
	return r.getOne(ctx, "WHERE id = $1", id)
}

// GetByOrderID finds the trade whose entry or exit order has the given id
func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*Trade, error) {
	return r.getOne(ctx, "WHERE entry_order_id = $1 OR exit_order_id = $1 ORDER BY id LIMIT 1", orderID)
}

// GetOpen returns open trades, oldest first
func (r *Repository) GetOpen(ctx context.Context) ([]Trade, error) {
	return r.list(ctx, "WHERE status = 'open' ORDER BY filled_at ASC, id ASC")
}

// GetClosed returns the most recently exited trades
func (r *Repository) GetClosed(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, "WHERE status = 'closed' ORDER BY exit_at DESC NULLS LAST, id DESC LIMIT $1", limit)
}

// GetBySymbol returns every trade for symbol, newest fill first
func (r *Repository) GetBySymbol(ctx context.Context, symbol string) ([]Trade, error) {
	return r.list(ctx, "WHERE symbol = $1 ORDER BY filled_at DESC, id DESC", symbol)
}

// Delete removes a trade permanently
func (r *Repository) Delete(ctx context.Context, id int64) error {
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM trades WHERE id = $1", id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete trade %d: %w", id, err)
	}

	r.logger.WithField("trade_id", id).Info("Trade deleted")
	return nil
}

// Statistics computes counts, realized PnL and win rate
func (r *Repository) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}
	var closed []Trade

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*),
			       COUNT(*) FILTER (WHERE status = 'open'),
			       COUNT(*) FILTER (WHERE status = 'closed')
			FROM trades
		`).Scan(&stats.Total, &stats.Open, &stats.Closed)
		if err != nil {
			return err
		}

		closed, err = queryTrades(ctx, tx, "WHERE status = 'closed'")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute trade statistics: %w", err)
	}

	summarize(stats, closed)
	return stats, nil
}

// AddBatch inserts trades in one transaction. A row that fails is rolled
// back to its savepoint and skipped; the ids of inserted rows are returned.
func (r *Repository) AddBatch(ctx context.Context, trades []Trade) ([]int64, error) {
	ids := make([]int64, 0, len(trades))

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for i := range trades {
			t := &trades[i]
			if t.Status == "" {
				t.Status = StatusOpen
			}

			// pgx 중첩 트랜잭션 = SAVEPOINT
			sp, err := tx.Begin(ctx)
			if err != nil {
				return err
			}
			if err := insert(ctx, sp, t); err != nil {
				_ = sp.Rollback(ctx)
				r.logger.WithFields(map[string]interface{}{
					"row":    i + 1,
					"symbol": t.Symbol,
					"error":  err.Error(),
				}).Warn("Skipping trade row")
				continue
			}
			if err := sp.Commit(ctx); err != nil {
				return err
			}
			ids = append(ids, t.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add trades: %w", err)
	}

	r.logger.WithField("count", len(ids)).Info("Trades imported")
	return ids, nil
}

func (r *Repository) getOne(ctx context.Context, where string, args ...interface{}) (*Trade, error) {
	var t Trade
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, "SELECT "+selectColumns+" FROM trades "+where, args...)
		return scanTrade(row, &t)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return &t, nil
}

func (r *Repository) list(ctx context.Context, where string, args ...interface{}) ([]Trade, error) {
	var trades []Trade
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		trades, err = queryTrades(ctx, tx, where, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

func queryTrades(ctx context.Context, tx pgx.Tx, where string, args ...interface{}) ([]Trade, error) {
	rows, err := tx.Query(ctx, "SELECT "+selectColumns+" FROM trades "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]Trade, 0)
	for rows.Next() {
		var t Trade
		if err := scanTrade(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func scanTrade(row pgx.Row, t *Trade) error {
	var status string
	err := row.Scan(
		&t.ID, &t.Symbol, &status, &t.FilledAt, &t.FilledQty, &t.FilledPrice, &t.Side, &t.EntryOrderID,
		&t.TakeProfit, &t.StopLoss, &t.TakeProfitOrderID, &t.StopLossOrderID,
		&t.ExitAt, &t.ExitQty, &t.ExitPrice, &t.ExitReason, &t.ExitOrderID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	t.Status = Status(status)
	return err
}
