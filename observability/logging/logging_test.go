package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEmitsRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New("treekv", "test", Options{Output: &buf})
	logger.Info("call finished", slog.String("method", "insert_flat_string"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "call finished", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "treekv", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
	require.NotContains(t, line, "msg")
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New("treekv", "", Options{Output: &buf, Level: slog.LevelWarn})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)

	level, err = ParseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("args", `{"value":"secret"}`).Value.String())
	require.Equal(t, "alice", MaskField("caller", "alice").Value.String())
	require.Equal(t, "", MaskField("args", "").Value.String())
	require.Equal(t, "c-1", MaskField("Call_ID", "c-1").Value.String())
}
