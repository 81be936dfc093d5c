package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// dbCmd checks the trade database
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "PostgreSQL 연결 테스트 및 스키마 적용",
	Long: `데이터베이스 연결을 테스트하고 풀 통계를 표시합니다.

이 명령어는:
- config에서 DATABASE_URL 로드
- 데이터베이스 연결 및 마이그레이션 적용
- Health Check 실행
- Connection Pool 통계 표시

Example:
  go run ./cmd/watson db`,
	Args: cobra.NoArgs,
	RunE: runDBCheck,
}

func init() {
	rootCmd.AddCommand(dbCmd)
}

func runDBCheck(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(out, "=== watson Database Check ===")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// newApp 이 연결과 마이그레이션까지 수행
	a, err := newApp(ctx, false)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	defer a.close()

	PrintSuccess(fmt.Sprintf("Config loaded (ENV: %s)", a.cfg.Env))
	PrintKeyValue("Database URL", maskPassword(a.cfg.Database.URL), 12)
	PrintSuccess("Connected, schema up to date")

	status, err := a.db.HealthCheck(ctx)
	if err != nil {
		PrintError(fmt.Sprintf("Health check failed: %v", err))
		return err
	}

	PrintHeader("Health Check Results")
	PrintKeyValue("Healthy", fmt.Sprintf("%v", status.Healthy), 20)
	PrintKeyValue("Response Time", status.ResponseTime.String(), 20)
	PrintKeyValue("Timestamp", status.Timestamp.Format(time.RFC3339), 20)
	PrintKeyValue("Migrations", strings.Join(status.Migrations, ", "), 20)

	PrintHeader("📊 Connection Pool Statistics")
	PrintKeyValue("Max Connections", fmt.Sprintf("%d", status.Stats.MaxConns), 20)
	PrintKeyValue("Total Connections", fmt.Sprintf("%d", status.Stats.TotalConns), 20)
	PrintKeyValue("Acquired", fmt.Sprintf("%d", status.Stats.AcquiredConns), 20)
	PrintKeyValue("Idle", fmt.Sprintf("%d", status.Stats.IdleConns), 20)
	PrintKeyValue("Acquire Count", fmt.Sprintf("%d", status.Stats.AcquireCount), 20)
	PrintKeyValue("Acquire Duration", status.Stats.AcquireDuration.String(), 20)
	PrintSeparator()
	return nil
}
