package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paramlens/internal/config"
	"paramlens/internal/store"
)

func TestRunInitWritesConfig(t *testing.T) {
	logger = zap.NewNop()
	cfgPath = filepath.Join(t.TempDir(), "config.yaml")
	initForce = false

	output := captureOutput(t, func() {
		require.NoError(t, runInit(&cobra.Command{}, nil))
	})
	require.Contains(t, output, "wrote "+cfgPath)

	loaded, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, config.DefaultConfig().API.BaseURL, loaded.API.BaseURL)
}

func TestRunInitRefusesOverwrite(t *testing.T) {
	logger = zap.NewNop()
	cfgPath = filepath.Join(t.TempDir(), "config.yaml")
	initForce = false

	require.NoError(t, os.WriteFile(cfgPath, []byte("datasheet:\n  id: dstX\n"), 0600))

	err := runInit(&cobra.Command{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")

	initForce = true
	captureOutput(t, func() {
		require.NoError(t, runInit(&cobra.Command{}, nil))
	})
}

func TestRunHistoryEmpty(t *testing.T) {
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	historyLimit = 20

	output := captureOutput(t, func() {
		require.NoError(t, runHistory(&cobra.Command{}, nil))
	})
	require.Contains(t, output, "no runs recorded yet")
}

func TestRunHistoryListsRuns(t *testing.T) {
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	historyLimit = 20

	seedRun(t, cfg.History.Path, "dstABC")

	output := captureOutput(t, func() {
		require.NoError(t, runHistory(&cobra.Command{}, nil))
	})
	require.Contains(t, output, "dstABC")
	require.Contains(t, output, "Check history")
}

func TestRunReportLatest(t *testing.T) {
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	reportRunID = ""
	reportRaw = true

	seedRun(t, cfg.History.Path, "dstABC")

	output := captureOutput(t, func() {
		require.NoError(t, runReport(&cobra.Command{}, nil))
	})
	require.Contains(t, output, "# Parameter check · dstABC")
	require.Contains(t, output, "{0} {1}")
	require.Contains(t, output, "Welcome mail")
}

func TestRunReportUnknownRun(t *testing.T) {
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	reportRunID = "nope"
	reportRaw = true

	seedRun(t, cfg.History.Path, "dstABC")

	err := runReport(&cobra.Command{}, nil)
	require.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestBuildCheckerWithoutHistory(t *testing.T) {
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.History.Enabled = false

	c, cleanup := buildChecker(nil)
	defer cleanup()
	require.NotNil(t, c)
}

func TestBuildCheckerBrokenHistoryPath(t *testing.T) {
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	// A file where the store expects a directory makes Open fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))
	cfg.History.Path = filepath.Join(blocker, "history.db")

	c, cleanup := buildChecker(nil)
	defer cleanup()
	require.NotNil(t, c, "an unavailable history store must not block checking")
}

func TestBuildReportCleanRun(t *testing.T) {
	run := &store.Run{
		ID:             "run-1",
		Datasheet:      "dstABC",
		StartedAt:      time.Now(),
		FinishedAt:     time.Now(),
		RecordsChecked: 12,
	}
	md := buildReport(run)
	require.Contains(t, md, "All records carry consistent parameter tokens.")
	require.NotContains(t, md, "## Findings")
}

func seedRun(t *testing.T, path, datasheet string) {
	t.Helper()
	history, err := store.Open(path)
	require.NoError(t, err)
	defer history.Close()

	require.NoError(t, history.SaveRun(&store.Run{
		Datasheet:      datasheet,
		StartedAt:      time.Now().Add(-time.Minute),
		FinishedAt:     time.Now(),
		RecordsChecked: 3,
		Flagged:        1,
		Findings: []store.Finding{
			{RecordID: "rec1", RecordName: "Welcome mail", FieldName: "German", Parameters: []int{0, 1}},
			{RecordID: "rec1", RecordName: "Welcome mail", FieldName: "English", Parameters: []int{0}},
		},
	}))
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, rOut)
	_, _ = io.Copy(&buf, rErr)
	return buf.String()
}
