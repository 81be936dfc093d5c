package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategiesPath string
	verbose        bool
)

// rootCmd runs the strategy directory when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "watson",
	Short: "watson - 스크리너 기반 미국 주식 자동매매 봇",
	Long: `watson runs every strategy defined under the strategies directory.

Strategies without a schedule run one cycle and exit. Scheduled
strategies run on their triggers until SIGINT/SIGTERM.

Usage:
  go run ./cmd/watson [command]

Examples:
  go run ./cmd/watson
  go run ./cmd/watson --strategies ./strategies --once
  go run ./cmd/watson screen strategies/nasdaq_momentum.yaml
  go run ./cmd/watson trades list --status open
  go run ./cmd/watson api`,
	SilenceUsage: true,
	RunE:         runStrategies,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&strategiesPath, "strategies", "", "strategies directory (default STRATEGIES_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.Flags().BoolVar(&runOnce, "once", false, "run every strategy once and exit, ignoring schedules")
}
