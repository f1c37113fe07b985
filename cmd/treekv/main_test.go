package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"treekv/core/runtime"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "treekv.toml")
	contents := "DataDir = \"" + filepath.ToSlash(filepath.Join(dir, "data")) + "\"\nBackend = \"leveldb\"\nLogLevel = \"error\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func invoke(t *testing.T, args ...string) (int, runtime.Outcome) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
	var out runtime.Outcome
	if stdout.Len() > 0 {
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &out), stdout.String())
	}
	return code, out
}

func TestCallsPersistAcrossInvocations(t *testing.T) {
	cfg := writeConfig(t)

	code, out := invoke(t, "-config", cfg, "-caller", "alice", "init")
	require.Equal(t, 0, code)
	require.Equal(t, runtime.StatusOK, out.Status)

	code, _ = invoke(t, "-config", cfg, "-caller", "alice", "call", "insert_owned_numeric", `{"key":"7","value":"seven"}`)
	require.Equal(t, 0, code)

	code, out = invoke(t, "-config", cfg, "-caller", "alice", "call", "get_owned_numeric", `{"key":"7"}`)
	require.Equal(t, 0, code)
	require.JSONEq(t, `"seven"`, string(out.Result))
}

func TestFailedCallExitsNonZero(t *testing.T) {
	cfg := writeConfig(t)
	_, _ = invoke(t, "-config", cfg, "-caller", "alice", "init")

	code, out := invoke(t, "-config", cfg, "-caller", "alice", "call", "remove_owner_entries")
	require.Equal(t, 1, code)
	require.Equal(t, runtime.StatusNotFound, out.Status)
}

func TestUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 2, run(context.Background(), nil, strings.NewReader(""), &stdout, &stderr))
	require.Contains(t, stderr.String(), "Usage:")

	stderr.Reset()
	require.Equal(t, 2, run(context.Background(), []string{"-config", writeConfig(t), "bogus"}, strings.NewReader(""), &stdout, &stderr))
}

func TestMethodsListsCallSurface(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"methods"}, strings.NewReader(""), &stdout, &stderr))
	require.Contains(t, stdout.String(), "remove_owner_entries\n")
}

func TestServeStreamsOutcomes(t *testing.T) {
	cfg := writeConfig(t)
	input := strings.Join([]string{
		`{"caller":"alice","method":"new"}`,
		`{"caller":"alice","method":"insert_flat_string","args":{"key":"a","value":"1"}}`,
		`not json`,
		``,
		`{"caller":"bob","method":"remove_flat_string","args":{"key":"a"}}`,
		`{"caller":"bob","method":"get_flat_string","args":{"key":"a"}}`,
	}, "\n")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfg, "serve"}, strings.NewReader(input), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var statuses []runtime.Status
	var last runtime.Outcome
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		var out runtime.Outcome
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &out))
		statuses = append(statuses, out.Status)
		last = out
	}
	require.Equal(t, []runtime.Status{
		runtime.StatusOK, runtime.StatusOK, runtime.StatusInvalid, runtime.StatusOK, runtime.StatusOK,
	}, statuses)
	require.JSONEq(t, `null`, string(last.Result))
}

func TestCallLimiter(t *testing.T) {
	var unlimited *callLimiter
	require.NoError(t, unlimited.wait(context.Background()))
	require.Nil(t, newCallLimiter(0))

	limiter := newCallLimiter(1)
	require.NoError(t, limiter.wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, limiter.wait(ctx), "an exhausted limiter must not block past cancellation")
}

func TestLogFileReceivesCallLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "treekv.log")
	cfg := filepath.Join(dir, "treekv.toml")
	contents := "Backend = \"memory\"\nLogFile = \"" + filepath.ToSlash(logPath) + "\"\n"
	require.NoError(t, os.WriteFile(cfg, []byte(contents), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfg, "serve"}, strings.NewReader(`{"caller":"alice","method":"new"}`), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	var out runtime.Outcome
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Equal(t, runtime.StatusOK, out.Status)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), out.CallID)
}

func TestMemoryBackendRequiresServe(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "treekv.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("backend: memory\n"), 0o644))

	for _, args := range [][]string{
		{"-config", cfg, "-caller", "alice", "init"},
		{"-config", cfg, "-caller", "alice", "call", "list_owners"},
	} {
		var stdout, stderr bytes.Buffer
		require.Equal(t, 1, run(context.Background(), args, strings.NewReader(""), &stdout, &stderr))
		require.Contains(t, stderr.String(), "use serve")
		require.Zero(t, stdout.Len())
	}
}
