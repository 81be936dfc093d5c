package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/watson/internal/portfolio"
	"github.com/wonny/watson/internal/trade"
	"github.com/wonny/watson/pkg/logger"
)

// TradeReader is the read side of the trade repository
type TradeReader interface {
	GetByID(ctx context.Context, id int64) (*trade.Trade, error)
	GetOpen(ctx context.Context) ([]trade.Trade, error)
	GetClosed(ctx context.Context, limit int) ([]trade.Trade, error)
	GetBySymbol(ctx context.Context, symbol string) ([]trade.Trade, error)
	Statistics(ctx context.Context) (*trade.Statistics, error)
}

// Summarizer reports statistics with the open positions
type Summarizer interface {
	Summary(ctx context.Context) (*portfolio.Summary, error)
}

// TradeHandler serves the trade history (read-only)
// ⭐ SSOT: 거래 조회 API 핸들러는 이 구조체에서만
type TradeHandler struct {
	trades    TradeReader
	portfolio Summarizer
	logger    *logger.Logger
}

// NewTradeHandler creates a new trade handler
func NewTradeHandler(trades TradeReader, summarizer Summarizer, log *logger.Logger) *TradeHandler {
	return &TradeHandler{
		trades:    trades,
		portfolio: summarizer,
		logger:    log,
	}
}

// ListTrades returns trades filtered by status or symbol
// GET /api/trades?status=open|closed&limit=100&symbol=AAPL
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, ok := queryInt(r, "limit", 100)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	var (
		trades []trade.Trade
		err    error
	)
	switch {
	case q.Get("symbol") != "":
		trades, err = h.trades.GetBySymbol(ctx, strings.ToUpper(q.Get("symbol")))
	case q.Get("status") == "" || q.Get("status") == string(trade.StatusOpen):
		trades, err = h.trades.GetOpen(ctx)
	case q.Get("status") == string(trade.StatusClosed):
		trades, err = h.trades.GetClosed(ctx, limit)
	default:
		respondError(w, http.StatusBadRequest, "status must be open or closed")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to list trades")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve trades")
		return
	}

	if trades == nil {
		trades = []trade.Trade{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(trades),
		"trades": trades,
	})
}

// GetTrade returns one trade
// GET /api/trades/{id}
func (h *TradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid trade id")
		return
	}

	t, err := h.trades.GetByID(r.Context(), id)
	if errors.Is(err, trade.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Trade not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("trade_id", id).Error("Failed to get trade")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve trade")
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// GetStatistics returns aggregate trade statistics
// GET /api/trades/stats
func (h *TradeHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.trades.Statistics(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get trade statistics")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve statistics")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// GetSummary returns statistics with the open positions
// GET /api/portfolio/summary
func (h *TradeHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.portfolio.Summary(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get portfolio summary")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve portfolio summary")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
