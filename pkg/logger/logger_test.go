package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/watson/pkg/config"
)

// lines decodes one JSON object per written line
func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewTagsAccountMode(t *testing.T) {
	tests := []struct {
		name  string
		paper bool
		want  string
	}{
		{"paper", true, "paper"},
		{"live", false, "live"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "logs", "watson.log")
			cfg := &config.Config{
				Env:       "production",
				LogLevel:  "warn",
				LogFormat: "json",
				LogFile:   path,
				Alpaca:    config.AlpacaConfig{Paper: tt.paper},
			}

			log := New(cfg)
			assert.Equal(t, zerolog.WarnLevel, log.Level())

			log.Info("below level")
			log.Warn("order rejected")

			data, err := os.ReadFile(path)
			require.NoError(t, err)

			got := lines(t, bytes.NewBuffer(data))
			require.Len(t, got, 1)
			assert.Equal(t, "order rejected", got[0]["message"])
			assert.Equal(t, "production", got[0]["env"])
			assert.Equal(t, tt.want, got[0]["account"])
		})
	}
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	log.Debug("d")
	log.Info("i")
	log.Warn("w")
	log.Error("e")

	got := lines(t, &buf)
	require.Len(t, got, 4)
	for i, level := range []string{"debug", "info", "warn", "error"} {
		assert.Equal(t, level, got[i]["level"])
		assert.Contains(t, got[i], "time")
	}
}

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf)

	base.WithStrategy("nasdaq_momentum").
		WithSymbol("AAPL").
		WithFields(map[string]interface{}{"qty": 10, "side": "buy"}).
		WithError(errors.New("insufficient buying power")).
		Error("Entry order failed")

	// 파생 로거는 원본에 영향 없음
	base.Info("plain")

	got := lines(t, &buf)
	require.Len(t, got, 2)

	assert.Equal(t, "nasdaq_momentum", got[0]["strategy"])
	assert.Equal(t, "AAPL", got[0]["symbol"])
	assert.Equal(t, float64(10), got[0]["qty"])
	assert.Equal(t, "buy", got[0]["side"])
	assert.Equal(t, "insufficient buying power", got[0]["error"])

	assert.NotContains(t, got[1], "strategy")
	assert.NotContains(t, got[1], "symbol")
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf).WithField("trade_id", int64(42)).Info("Trade closed")

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, float64(42), got[0]["trade_id"])
}

func TestConsoleFormat(t *testing.T) {
	// console 출력은 stdout 으로만 가므로 파일 쪽 JSON 으로 확인
	path := filepath.Join(t.TempDir(), "watson.log")
	cfg := &config.Config{Env: "development", LogLevel: "debug", LogFormat: "console", LogFile: path}

	New(cfg).Debug("visible at debug")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "visible at debug")
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().WithStrategy("s").WithField("k", "v").Info("discarded")
	})
}
