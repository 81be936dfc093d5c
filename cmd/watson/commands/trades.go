package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/watson/internal/trade"
)

// tradesCmd groups trade store maintenance
var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "매매 기록 조회 및 관리",
	Long: `Inspect and maintain the trades table.

Example:
  go run ./cmd/watson trades list --status open
  go run ./cmd/watson trades list --symbol AAPL
  go run ./cmd/watson trades stats
  go run ./cmd/watson trades import trades.csv
  go run ./cmd/watson trades delete 42`,
}

var tradesListCmd = &cobra.Command{
	Use:   "list",
	Short: "매매 기록 목록",
	Args:  cobra.NoArgs,
	RunE:  runTradesList,
}

var tradesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "매매 통계 (승률, 실현 손익)",
	Args:  cobra.NoArgs,
	RunE:  runTradesStats,
}

var tradesImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "CSV 매매 기록 일괄 입력",
	Args:  cobra.ExactArgs(1),
	RunE:  runTradesImport,
}

var tradesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "매매 기록 삭제",
	Args:  cobra.ExactArgs(1),
	RunE:  runTradesDelete,
}

var (
	tradesStatus string
	tradesSymbol string
	tradesLimit  int
)

func init() {
	rootCmd.AddCommand(tradesCmd)
	tradesCmd.AddCommand(tradesListCmd, tradesStatsCmd, tradesImportCmd, tradesDeleteCmd)

	tradesListCmd.Flags().StringVar(&tradesStatus, "status", "open", "open | closed")
	tradesListCmd.Flags().StringVar(&tradesSymbol, "symbol", "", "filter by symbol (ignores --status)")
	tradesListCmd.Flags().IntVar(&tradesLimit, "limit", 50, "max closed trades")
}

func runTradesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	var trades []trade.Trade
	switch {
	case tradesSymbol != "":
		trades, err = a.trades.GetBySymbol(ctx, tradesSymbol)
	case tradesStatus == string(trade.StatusOpen):
		trades, err = a.trades.GetOpen(ctx)
	case tradesStatus == string(trade.StatusClosed):
		trades, err = a.trades.GetClosed(ctx, tradesLimit)
	default:
		return fmt.Errorf("unknown status %q (open|closed)", tradesStatus)
	}
	if err != nil {
		return err
	}

	if len(trades) == 0 {
		PrintInfo("No trades")
		return nil
	}
	header, rows := tradeRows(trades)
	PrintTable(header, rows)
	return nil
}

func runTradesStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.trades.Statistics(ctx)
	if err != nil {
		return err
	}

	PrintHeader("Trade statistics")
	printStatistics(stats)
	PrintSeparator()
	return nil
}

func runTradesImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	trades, err := trade.ReadCSV(f, a.log)
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	ids, err := a.trades.AddBatch(ctx, trades)
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Imported %d of %d trades", len(ids), len(trades)))
	if skipped := len(trades) - len(ids); skipped > 0 {
		PrintWarning(fmt.Sprintf("%d rows were rejected by the database (see log)", skipped))
	}
	return nil
}

func runTradesDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid trade id %q", args[0])
	}

	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.trades.Delete(ctx, id); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Trade #%d deleted", id))
	return nil
}

// tradeRows renders trades for PrintTable
func tradeRows(trades []trade.Trade) (header []string, rows [][]string) {
	header = []string{"ID", "Symbol", "Status", "Side", "Qty", "Entry", "Filled", "TP", "SL", "Exit", "Reason", "PnL"}
	for i := range trades {
		t := &trades[i]
		pnl := "-"
		if v, ok := t.PnL(); ok {
			pnl = fmt.Sprintf("%+.2f", v)
		}
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Symbol,
			string(t.Status),
			t.Side,
			strconv.FormatFloat(t.FilledQty, 'f', -1, 64),
			fmt.Sprintf("%.2f", t.FilledPrice),
			t.FilledAt.Format(time.DateOnly),
			optFloat(t.TakeProfit),
			optFloat(t.StopLoss),
			optFloat(t.ExitPrice),
			optString(t.ExitReason),
			pnl,
		})
	}
	return header, rows
}

func printStatistics(s *trade.Statistics) {
	PrintKeyValue("Total", strconv.Itoa(s.Total), 10)
	PrintKeyValue("Open", strconv.Itoa(s.Open), 10)
	PrintKeyValue("Closed", strconv.Itoa(s.Closed), 10)
	PrintKeyValue("Winning", strconv.Itoa(s.Winning), 10)
	PrintKeyValue("Losing", strconv.Itoa(s.Losing), 10)
	PrintKeyValue("Win rate", fmt.Sprintf("%.1f%%", s.WinRate), 10)
	PrintKeyValue("PnL", fmt.Sprintf("%+.2f", s.TotalPnL), 10)
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func optString(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}
