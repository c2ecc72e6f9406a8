package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace":     LevelTrace,
		"debug":     slog.LevelDebug,
		"":          slog.LevelInfo,
		"INFO":      slog.LevelInfo,
		"warn":      slog.LevelWarn,
		" Warning ": slog.LevelWarn,
		"error":     slog.LevelError,
		"bogus":     slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestColorHandlerPlain(t *testing.T) {
	var buf bytes.Buffer
	h := &colorHandler{w: &buf, level: slog.LevelDebug}
	logger := slog.New(h).With("stick", "left").WithGroup("cal")
	logger.Info("Using factory calibration data", "deadzone", 174)

	out := buf.String()
	assert.NotContains(t, out, "\033[")
	assert.Contains(t, out, " INFO Using factory calibration data")
	assert.Contains(t, out, " stick=left")
	assert.Contains(t, out, "cal.deadzone=174")
}

func TestColorHandlerTraceName(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&colorHandler{w: &buf, level: LevelTrace})
	logger.Log(context.Background(), LevelTrace, "report")
	assert.Contains(t, buf.String(), "TRACE report")
}

func TestLevelFilterAndMulti(t *testing.T) {
	var low, high bytes.Buffer
	h := NewMultiHandler(
		NewLevelFilter(func(l slog.Level) bool { return l < slog.LevelError }, &colorHandler{w: &low, level: slog.LevelInfo}),
		NewLevelFilter(func(l slog.Level) bool { return l >= slog.LevelError }, &colorHandler{w: &high, level: slog.LevelError}),
	)
	logger := slog.New(h)
	logger.Debug("hidden")
	logger.Info("attached")
	logger.Error("read failed")

	assert.NotContains(t, low.String(), "hidden")
	assert.Contains(t, low.String(), "attached")
	assert.NotContains(t, low.String(), "read failed")
	assert.Contains(t, high.String(), "read failed")
	assert.NotContains(t, high.String(), "attached")
}

func TestRawLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &rawLogger{w: &buf, now: func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }}
	l.Log("out", []byte{0x80, 0x01})
	assert.Equal(t, "12:00:00.000000 out [ 2] 80 01\n", buf.String())

	// disabled logger must not panic
	NewRaw(nil).Log("in", []byte{0x30})
}

func TestSetupLoggerFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "proxi.log")
	logger, closers, err := SetupLogger("trace", path)
	require.NoError(t, err)
	require.Len(t, closers, 1)

	logger.Log(context.Background(), LevelTrace, "raw report", "id", "0x30")
	logger.Debug("second record")
	require.NoError(t, closers[0].Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "TRACE", rec["level"])
	assert.Equal(t, "raw report", rec["msg"])
	assert.Equal(t, "0x30", rec["id"])
}

func TestSetupLoggerBadFile(t *testing.T) {
	_, _, err := SetupLogger("info", filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	assert.Error(t, err)
}
