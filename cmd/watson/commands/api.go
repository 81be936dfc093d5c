package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/watson/internal/api"
	"github.com/wonny/watson/internal/api/handlers"
	"github.com/wonny/watson/internal/broker"
	"github.com/wonny/watson/internal/portfolio"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "읽기 전용 API 서버 시작",
	Long: `Start the read-only REST API over the trade store and the broker
account. It never places orders.

Endpoints:
  GET  /health                 - Health check
  GET  /metrics                - Prometheus metrics (METRICS_ENABLED)
  GET  /api/trades             - Trades (?status=open|closed&limit=&symbol=)
  GET  /api/trades/stats       - Win rate and realized PnL
  GET  /api/trades/{id}        - One trade
  GET  /api/portfolio/summary  - Statistics plus open positions
  GET  /api/account            - Broker account
  GET  /api/positions          - Broker positions

Example:
  go run ./cmd/watson api
  go run ./cmd/watson api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default API_PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== watson API Server ===")

	// 1. Config, logger, database
	a, err := newApp(context.Background(), false)
	if err != nil {
		return err
	}
	defer a.close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.APIPort = apiPort
	}

	// 2. Broker (account endpoints only)
	b := broker.NewAlpaca(a.cfg, a.log)

	// 3. Handlers
	summary := portfolio.New(b, a.trades, portfolio.Config{}, a.log, a.metrics)
	h := api.Handlers{
		Trades:  handlers.NewTradeHandler(a.trades, summary, a.log),
		Account: handlers.NewAccountHandler(b, a.log),
		DB:      a.db,
	}
	if a.metrics != nil {
		h.Metrics = a.metrics.Handler()
	}

	// 4. Router and server
	server := api.New(a.cfg, a.log, api.NewRouter(h, a.log))

	// 5. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	a.log.Info("API server started successfully")
	PrintSuccess(fmt.Sprintf("Server running on http://localhost:%s", a.cfg.APIPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
