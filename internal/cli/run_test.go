package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trigsync/internal/store"
)

func TestRunMissingDatabaseFlag(t *testing.T) {
	dir := t.TempDir()
	feed := writeFile(t, dir, "feed.yaml", alignedFeed)

	_, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), feed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestRunMissingFeed(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(newTestRunCommand("text", "run-1"),
		"--db", filepath.Join(dir, "events.db"), filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load feed")
}

func TestRunInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	feed := writeFile(t, dir, "feed.yaml", alignedFeed)
	cfg := writeFile(t, dir, "config.yaml", "pool_depth: 0\n")

	_, _, err := execute(newTestRunCommand("text", "run-1"),
		"--db", filepath.Join(dir, "events.db"), "--config", cfg, feed)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRunUnknownConfigField(t *testing.T) {
	dir := t.TempDir()
	feed := writeFile(t, dir, "feed.yaml", alignedFeed)
	cfg := writeFile(t, dir, "config.yaml", "pool_dept: 10\n")

	_, _, err := execute(newTestRunCommand("text", "run-1"),
		"--db", filepath.Join(dir, "events.db"), "--config", cfg, feed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool_dept")
}

func TestRunToCompletion(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.db")
	feed := writeFile(t, dir, "feed.yaml", alignedFeed)
	cfg := writeFile(t, dir, "config.yaml", smallConfig)

	out, _, err := execute(newTestRunCommand("text", "run-1"),
		"--db", dbPath, "--config", cfg, feed)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-1 (run number 7) completed")
	assert.Contains(t, out, "Emitted: 3")
	assert.Contains(t, out, "Ditched: 0")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	run, err := st.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 7, run.RunNumber)
	assert.Contains(t, run.Settings, `"calibration_window":2`)

	events, err := st.ReadEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.Equal(t, i+1, ev.EventNumber)
		assert.Equal(t, 3, ev.PacketCount)
	}
	assert.Equal(t, uint64(100), events[0].ClockBase)

	aggs, err := st.ReadAggregates(ctx, events[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, aggs)
}

func TestRunJSONOutput(t *testing.T) {
	dir := t.TempDir()
	feed := writeFile(t, dir, "feed.yaml", alignedFeed)
	cfg := writeFile(t, dir, "config.yaml", smallConfig)

	out, _, err := execute(newTestRunCommand("json", "run-json"),
		"--db", filepath.Join(dir, "events.db"), "--config", cfg, feed)
	require.NoError(t, err)

	var resp struct {
		Status   string     `json:"status"`
		Data     RunSummary `json:"data"`
		RunToken string     `json:"run_token"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-json", resp.RunToken)
	assert.Equal(t, 3, resp.Data.Stats.Emitted)
	assert.Equal(t, 3, resp.Data.Stats.LastEmitted)
	assert.False(t, resp.Data.Interrupted)
	assert.Empty(t, resp.Data.Dropped)
}

func TestRunNoReferenceIsFatal(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "events.db")
	feed := writeFile(t, dir, "feed.yaml", `
sources:
  - name: seb00
    category: calo
    packets:
      - {event: 1, clock: 100, id: 6001}
`)

	out, _, err := execute(newTestRunCommand("text", "run-fatal"), "--db", dbPath, feed)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "NO_REFERENCE")
	assert.Contains(t, out, "Error [E006]")

	// The run header is written before the driver starts.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.ReadRun(context.Background(), "run-fatal")
	require.NoError(t, err)
}

func TestRunContextCancellation(t *testing.T) {
	dir := t.TempDir()
	feed := writeFile(t, dir, "feed.yaml", `
sources:
  - name: gl1
    category: gl1
    reference: true
    open: true
    runs:
      - {from: 1, to: 3, clock: 100, step: 10, id: 14001}
`)
	cfg := writeFile(t, dir, "config.yaml", smallConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	cmd := newTestRunCommand("text", "run-open")
	cmd.SetArgs([]string{"--db", filepath.Join(dir, "events.db"), "--config", cfg, feed})
	errCh := make(chan error, 1)
	go func() { errCh <- cmd.ExecuteContext(ctx) }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
}
