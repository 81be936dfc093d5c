package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/watson/pkg/logger"
)

const validYAML = `
meta:
  strategy_id: %s
universe: SP500
filters:
  - type: ROC
    period: 20
    op: ">"
    value: 0
screening:
  use: ["ROC20>0"]
money:
  max_positions: 3
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func strategyYAML(id string) string {
	return fmt.Sprintf(validYAML, id)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_second.yml", strategyYAML("second"))
	writeFile(t, dir, "a_first.yaml", strategyYAML("first"))
	writeFile(t, dir, "notes.txt", "not a strategy")
	writeFile(t, dir, ".hidden.yaml", "garbage: [")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.yaml"), 0o755))

	defs, err := LoadDir(dir, logger.Nop())
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "first", defs[0].Config.Meta.StrategyID)
	assert.Equal(t, filepath.Join(dir, "a_first.yaml"), defs[0].Path)
	assert.Equal(t, "second", defs[1].Config.Meta.StrategyID)
	assert.Len(t, defs[0].Snapshot.ConfigHash, 64)
}

func TestLoadDirSkipsDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "active.yaml", strategyYAML("active"))
	writeFile(t, dir, "paused.yaml", "meta:\n  strategy_id: paused\n  enabled: false\nuniverse: SP500\n")

	defs, err := LoadDir(dir, logger.Nop())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "active", defs[0].Config.Meta.StrategyID)
}

func TestLoadDirErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"invalid yaml", map[string]string{"bad.yaml": "meta: ["}},
		{"unknown field", map[string]string{"bad.yaml": strategyYAML("x") + "extra: 1\n"}},
		{"duplicate id", map[string]string{
			"a.yaml": strategyYAML("same"),
			"b.yaml": strategyYAML("same"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			_, err := LoadDir(dir, logger.Nop())
			assert.Error(t, err)
		})
	}

	_, err := LoadDir(filepath.Join(t.TempDir(), "missing"), logger.Nop())
	assert.Error(t, err)
}

func TestIsStrategyFile(t *testing.T) {
	assert.True(t, IsStrategyFile("momentum.yaml"))
	assert.True(t, IsStrategyFile("MOMENTUM.YML"))
	assert.False(t, IsStrategyFile("momentum.py"))
	assert.False(t, IsStrategyFile("README"))
}

func TestBundledStrategies(t *testing.T) {
	defs, err := LoadDir(filepath.Join("..", "..", "strategies"), logger.Nop())
	require.NoError(t, err)

	// sp500_trend ships disabled
	require.Len(t, defs, 1)
	assert.Equal(t, "nasdaq_momentum", defs[0].Config.Meta.StrategyID)

	def, err := LoadFile(filepath.Join("..", "..", "strategies", "sp500_trend.yaml"), logger.Nop())
	require.NoError(t, err)
	assert.False(t, def.Config.Meta.IsEnabled())
	assert.Len(t, def.Config.Schedule.Triggers, 2)
}
