package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallofeliz/hen-backup/internal/config"
	"github.com/gallofeliz/hen-backup/internal/engine"
	hberrors "github.com/gallofeliz/hen-backup/internal/errors"
	"github.com/gallofeliz/hen-backup/internal/task"
	"github.com/gallofeliz/hen-backup/internal/tracenode"
)

// writeFakeEngine writes an executable shell script standing in for the
// snapshot engine binary: it appends its arguments to a log file (so tests
// can assert on what was invoked) and prints stdout/exits with code.
func writeFakeEngine(t *testing.T, logPath, stdout string, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-engine.sh")
	body := fmt.Sprintf("#!/bin/sh\necho \"$*\" >> %q\nprintf '%%b' %q\nexit %d\n", logPath, stdout, exitCode)
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

func testConfig() *config.Config {
	return &config.Config{
		Host: config.Host{Hostname: "test-host"},
		Repositories: map[string]config.Repository{
			"main": {Name: "main", Repository: "/data/repo", Password: "secret"},
		},
		Backups: map[string]config.Backup{
			"photos": {
				Name:         "photos",
				Paths:        []string{"/home/photos"},
				Repositories: []string{"main"},
				Priority:     "normal",
			},
		},
	}
}

func newTestDaemon(t *testing.T, binary string) *Daemon {
	t.Helper()
	registry := engine.NewProcessRegistry()
	invoker := engine.NewInvoker(binary, registry, nil)
	d, err := New(testConfig(), nil, invoker, registry)
	require.NoError(t, err)
	d.tasks.Run()
	t.Cleanup(d.tasks.Stop)
	return d
}

func TestGetConfigSummary(t *testing.T) {
	d := newTestDaemon(t, "true")
	summary := d.GetConfigSummary()
	assert.Equal(t, "test-host", summary.Hostname)
	_, ok := summary.Repositories["main"]
	assert.True(t, ok)
	assert.Equal(t, []string{"main"}, summary.Backups["photos"].Repositories)
}

func TestInitRepositorySwallowsFailureAtInfoLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "calls.log")
	d := newTestDaemon(t, writeFakeEngine(t, logPath, "", 1))

	d.InitRepository("main", task.PriorityNext)

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(logPath)
		return err == nil && len(b) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestInitRepositoryUnknownRepositoryLogsAndReturns(t *testing.T) {
	d := newTestDaemon(t, "true")
	d.InitRepository("ghost", task.PriorityNext)
	// no panic, no task submitted: nothing further to assert beyond survival
}

func TestCheckRepositoryRunsAndSucceeds(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "calls.log")
	d := newTestDaemon(t, writeFakeEngine(t, logPath, "", 0))

	d.CheckRepository("main", "")

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(logPath)
		return err == nil && len(b) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestBackupSucceedsWhenAllRepositoriesSucceed(t *testing.T) {
	d := newTestDaemon(t, "true")

	result, err := d.Backup("photos", task.PriorityNormal, true, tracenode.Root("test"))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestBackupReturnsPartialFailureWhenARepositoryFails(t *testing.T) {
	d := newTestDaemon(t, "false")

	_, err := d.Backup("photos", task.PriorityNormal, true, tracenode.Root("test"))
	require.Error(t, err)
	ce, ok := hberrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, hberrors.CategoryPartialFailure, ce.Category())
}

func TestBackupUnknownNameIsConfigError(t *testing.T) {
	d := newTestDaemon(t, "true")

	_, err := d.Backup("ghost", task.PriorityNormal, true, nil)
	require.Error(t, err)
	ce, ok := hberrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, hberrors.CategoryConfig, ce.Category())
}

func TestPruneRejectsUnknownRetentionKeyBeforeSubmitting(t *testing.T) {
	d := newTestDaemon(t, "true")
	d.cfg.Backups["photos"] = config.Backup{
		Name:         "photos",
		Paths:        []string{"/home/photos"},
		Repositories: []string{"main"},
		Prune: &config.PruneSpec{
			RetentionPolicy: map[string]any{"nbOfCenturies": 1},
		},
	}

	_, err := d.Prune("photos", task.PriorityNormal, true)
	require.Error(t, err)
	assert.True(t, hberrors.IsClassified(err))
}

func TestPruneSucceedsAcrossRepositories(t *testing.T) {
	d := newTestDaemon(t, "true")
	d.cfg.Backups["photos"] = config.Backup{
		Name:         "photos",
		Paths:        []string{"/home/photos"},
		Repositories: []string{"main"},
		Prune: &config.PruneSpec{
			RetentionPolicy: map[string]any{"nbOfDaily": 7},
		},
	}

	result, err := d.Prune("photos", task.PriorityNormal, true)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestListSnapshotsUnknownRepositoryIsConfigError(t *testing.T) {
	d := newTestDaemon(t, "true")
	_, err := d.ListSnapshots(context.Background(), "ghost", "", "", false)
	require.Error(t, err)
	assert.True(t, hberrors.IsClassified(err))
}

func TestListSnapshotsMergesAcrossRepositories(t *testing.T) {
	binary := writeFakeEngine(t, filepath.Join(t.TempDir(), "calls.log"),
		`[{"time":"2024-01-01T00:00:00Z","hostname":"h","id":"abc","tags":["backup-photos"]}]`, 0)
	d := newTestDaemon(t, binary)

	snaps, err := d.ListSnapshots(context.Background(), "", "", "", false)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "abc", snaps[0].ID)
	assert.Equal(t, "photos", snaps[0].Backup)
}

func TestExplainSnapshotSplitsMetadataFromEntries(t *testing.T) {
	binary := writeFakeEngine(t, filepath.Join(t.TempDir(), "calls.log"),
		"{\"tags\":[\"backup-photos\"]}\n{\"path\":\"/home/photos/a.txt\"}\n", 0)
	d := newTestDaemon(t, binary)

	explanation, err := d.ExplainSnapshot(context.Background(), "main", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "photos", explanation.Backup)
	assert.Len(t, explanation.Objects, 1)
}

func TestExplainSnapshotUnknownRepositoryIsConfigError(t *testing.T) {
	d := newTestDaemon(t, "true")
	_, err := d.ExplainSnapshot(context.Background(), "ghost", "abc")
	require.Error(t, err)
	assert.True(t, hberrors.IsClassified(err))
}

func TestRestoreSnapshotUnknownRepositoryLogsAndReturns(t *testing.T) {
	d := newTestDaemon(t, "true")
	d.RestoreSnapshot("ghost", "abc", "", task.PriorityNormal)
}

func TestStopIsIdempotentBeforeStart(t *testing.T) {
	d := newTestDaemon(t, "true")
	require.NoError(t, d.Stop(context.Background()))
	require.NoError(t, d.Stop(context.Background()))
}

func TestStartAndStopLifecycle(t *testing.T) {
	registry := engine.NewProcessRegistry()
	invoker := engine.NewInvoker("true", registry, nil)
	d, err := New(testConfig(), nil, invoker, registry)
	require.NoError(t, err)

	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Stop(context.Background()))
}
