package handlers

import (
	"context"
	"net/http"

	"github.com/wonny/watson/internal/broker"
	"github.com/wonny/watson/pkg/logger"
)

// AccountReader is the read side of the broker
type AccountReader interface {
	GetAccountInfo(ctx context.Context) (*broker.Account, error)
	GetAllPositions(ctx context.Context) ([]broker.Position, error)
}

// AccountHandler serves broker account state
type AccountHandler struct {
	broker AccountReader
	logger *logger.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(b AccountReader, log *logger.Logger) *AccountHandler {
	return &AccountHandler{broker: b, logger: log}
}

// GetAccount returns equity, buying power and block flags
// GET /api/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.broker.GetAccountInfo(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get account")
		respondError(w, http.StatusBadGateway, "Failed to retrieve account")
		return
	}

	respondJSON(w, http.StatusOK, account)
}

// GetPositions returns the broker's open positions
// GET /api/positions
func (h *AccountHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.broker.GetAllPositions(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get positions")
		respondError(w, http.StatusBadGateway, "Failed to retrieve positions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(positions),
		"positions": positions,
	})
}
