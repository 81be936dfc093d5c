package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/watson/internal/loader"
	"github.com/wonny/watson/internal/screener"
	"github.com/wonny/watson/internal/strategy"
)

// screenCmd runs one strategy's screener without trading
var screenCmd = &cobra.Command{
	Use:   "screen <strategy.yaml>",
	Short: "스크리너만 실행하고 후보 테이블 출력",
	Long: `Fetch the universe and market data for a strategy, compute every
filter column and print the symbols that pass screening.use, ranked
by screening.rank_by. No orders are placed and no database is needed.

Example:
  go run ./cmd/watson screen strategies/nasdaq_momentum.yaml
  go run ./cmd/watson screen strategies/nasdaq_momentum.yaml --all`,
	Args: cobra.ExactArgs(1),
	RunE: runScreen,
}

var screenAll bool

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().BoolVar(&screenAll, "all", false, "print every symbol, not only passing ones")
}

func runScreen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	def, err := loader.LoadFile(args[0], a.log)
	if err != nil {
		return err
	}

	deps, err := a.dependencies()
	if err != nil {
		return err
	}

	s, err := strategy.BuildScreener(def.Config, deps, a.log, a.metrics)
	if err != nil {
		return err
	}

	rank := strategy.Ranking{
		Column:     def.Config.Screening.RankBy,
		Descending: def.Config.Screening.Descending,
	}
	// sizer 없이 스크리닝만 수행
	passing, err := strategy.NewScreenerEntry(def.Config.Meta.StrategyID, s, rank, nil, a.log, a.metrics).Screen(ctx)
	if err != nil {
		return err
	}

	symbols := passing
	if screenAll {
		symbols = s.Symbols().List()
	}

	PrintHeader(fmt.Sprintf("%s (%s)", def.Config.Meta.StrategyID, def.Config.Universe))
	PrintKeyValue("Filters", strings.Join(s.Filters(), ", "), 10)
	PrintKeyValue("Use", strings.Join(def.Config.Screening.Use, ", "), 10)
	PrintKeyValue("Passing", fmt.Sprintf("%d / %d", len(passing), s.Symbols().Len()), 10)
	PrintSeparator()

	printCandidates(s.Candidates(), symbols)
	return nil
}

func printCandidates(t *screener.Table, symbols []string) {
	if len(symbols) == 0 {
		PrintInfo("No symbols passed screening")
		return
	}
	header, rows := t.Rows(symbols)
	PrintTable(header, rows)
}
