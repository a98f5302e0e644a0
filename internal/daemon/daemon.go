// Package daemon implements the Daemon/Orchestrator (C7): it owns the
// configuration, wires the Schedule Source and FS Watch Coalescer into the
// Task Manager, and implements every task kind (init, check, backup,
// prune, restore, list, explain) on top of the Engine Invoker.
//
// Grounded on original_source/daemon.py's Daemon class.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/gallofeliz/hen-backup/internal/config"
	"github.com/gallofeliz/hen-backup/internal/engine"
	hberrors "github.com/gallofeliz/hen-backup/internal/errors"
	"github.com/gallofeliz/hen-backup/internal/fswatch"
	"github.com/gallofeliz/hen-backup/internal/logfields"
	"github.com/gallofeliz/hen-backup/internal/metrics"
	"github.com/gallofeliz/hen-backup/internal/pathmatch"
	"github.com/gallofeliz/hen-backup/internal/schedule"
	"github.com/gallofeliz/hen-backup/internal/task"
	"github.com/gallofeliz/hen-backup/internal/tracenode"
)

// apiCloser is satisfied by the control API server. Defined here rather
// than imported so this package stays the one the API package depends on,
// not the other way around.
type apiCloser interface {
	Close(ctx context.Context) error
}

// Daemon owns one Task Manager instance and exposes the task-kind methods
// consumed by the Control API and triggered by the Schedule Source and FS
// Watch Coalescer.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	invoker *engine.Invoker
	registry *engine.ProcessRegistry
	tasks   *task.Manager

	mu        sync.Mutex
	started   bool
	stopChan  chan struct{}
	schedules *schedule.Source
	handles   []*schedule.Handle
	watchers  []*fswatch.Coalescer
	api       apiCloser

	// workers guards schedule/watch-triggered entry points (Backup/
	// CheckRepository/Prune fired from a gocron or fswatch goroutine) so
	// Stop can be sure none is still mid-dispatch into the task manager
	// before it tears the manager down.
	workers WorkerGroup
}

// New builds a Daemon around cfg. invoker and registry are injected by the
// Lifecycle component (C9) so the process-wide live-process registry has a
// single owner.
func New(cfg *config.Config, logger *slog.Logger, invoker *engine.Invoker, registry *engine.ProcessRegistry) (*Daemon, error) {
	if cfg == nil {
		return nil, hberrors.ConfigError("configuration is required").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	src, err := schedule.New(logger)
	if err != nil {
		return nil, hberrors.Wrap(err, hberrors.CategoryInternal, "failed to create schedule source").Build()
	}

	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		invoker:   invoker,
		registry:  registry,
		tasks:     task.NewManager(logger),
		stopChan:  make(chan struct{}),
		schedules: src,
	}, nil
}

// SetAPI registers the control API server so Stop can close it. Safe to
// call before Start.
func (d *Daemon) SetAPI(a apiCloser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.api = a
}

// SetRecorder injects a metrics recorder, forwarding it to the task
// manager and engine invoker it owns (optional; each defaults to a
// no-op).
func (d *Daemon) SetRecorder(r metrics.Recorder) {
	d.tasks.SetRecorder(r)
	d.invoker.SetRecorder(r)
}

// Start enqueues one init per repository, subscribes schedules and
// watchers, and starts the task manager's worker.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.mu.Unlock()

	d.logger.Info("starting daemon", logfields.Component("daemon"), logfields.Action("start"), logfields.Status("starting"))

	d.tasks.Run()

	for name := range d.cfg.Repositories {
		d.InitRepository(name, task.PriorityNext)

		repo := d.cfg.Repositories[name]
		if repo.Check != nil && len(repo.Check.Schedules) > 0 {
			repoName := name
			for _, expr := range repo.Check.Schedules {
				handle, err := d.schedules.Add(fmt.Sprintf("check_%s", repoName), expr, true, func() {
					d.workers.Go(func() { d.CheckRepository(repoName, "") })
				})
				if err != nil {
					return hberrors.ConfigError(fmt.Sprintf("repository %q check schedule: %v", repoName, err)).Build()
				}
				d.handles = append(d.handles, handle)
			}
		}
	}

	for name := range d.cfg.Backups {
		backupName := name
		backup := d.cfg.Backups[name]

		for _, expr := range backup.Schedules {
			handle, err := d.schedules.Add(fmt.Sprintf("backup_%s", backupName), expr, true, func() {
				d.workers.Go(func() { d.Backup(backupName, "", false, tracenode.Root("schedule")) })
			})
			if err != nil {
				return hberrors.ConfigError(fmt.Sprintf("backup %q schedule: %v", backupName, err)).Build()
			}
			d.handles = append(d.handles, handle)
		}

		if backup.Watch != nil && backup.Watch.Enabled {
			matcher := pathmatch.New(backup.Ignore)
			watcher, err := fswatch.New(backup.Paths,
				func() { d.workers.Go(func() { d.Backup(backupName, "", false, tracenode.Root("watch")) }) },
				fswatch.WithIgnore(matcher),
				fswatch.WithWaitMin(backup.Watch.Wait.Min),
				fswatch.WithWaitMax(backup.Watch.Wait.Max),
				fswatch.WithLogger(d.logger),
				fswatch.WithOnError(func(err error) {
					d.logger.Error("fswatch callback failed", logfields.Component("fswatch"), logfields.Backup(backupName), logfields.Error(err))
				}),
			)
			if err != nil {
				return hberrors.Wrap(err, hberrors.CategoryInternal, fmt.Sprintf("backup %q: failed to start watcher", backupName)).Build()
			}
			if err := watcher.Start(ctx); err != nil {
				return hberrors.Wrap(err, hberrors.CategoryInternal, fmt.Sprintf("backup %q: failed to start watcher", backupName)).Build()
			}
			d.watchers = append(d.watchers, watcher)
		}

		if backup.Prune != nil && len(backup.Prune.Schedules) > 0 {
			for _, expr := range backup.Prune.Schedules {
				handle, err := d.schedules.Add(fmt.Sprintf("prune_%s", backupName), expr, false, func() {
					d.workers.Go(func() { d.Prune(backupName, "", false) })
				})
				if err != nil {
					return hberrors.ConfigError(fmt.Sprintf("backup %q prune schedule: %v", backupName, err)).Build()
				}
				d.handles = append(d.handles, handle)
			}
		}
	}

	d.logger.Info("daemon started", logfields.Component("daemon"), logfields.Action("start"), logfields.Status("success"))
	return nil
}

// Stop unsubscribes every schedule, stops every fs-watcher, stops the task
// manager (aborting in-flight tasks), sends SIGINT to every live
// snapshot-engine subprocess, and closes the Control API. Safe to invoke
// more than once.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	handles := d.handles
	d.handles = nil
	watchers := d.watchers
	d.watchers = nil
	api := d.api
	d.mu.Unlock()

	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}

	for _, h := range handles {
		if err := h.Unsubscribe(); err != nil {
			d.logger.Warn("failed to unsubscribe schedule", logfields.Component("daemon"), logfields.Error(err))
		}
	}

	for _, w := range watchers {
		w.Stop()
	}

	if err := d.schedules.Stop(ctx); err != nil {
		d.logger.Warn("failed to stop schedule source", logfields.Component("daemon"), logfields.Error(err))
	}

	if err := d.workers.StopAndWait(ctx); err != nil {
		d.logger.Warn("timed out waiting for in-flight schedule/watch dispatches", logfields.Component("daemon"), logfields.Error(err))
	}

	d.tasks.Stop()

	if d.registry != nil {
		d.registry.InterruptAll()
	}

	if api != nil {
		if err := api.Close(ctx); err != nil {
			d.logger.Warn("failed to close control API", logfields.Component("daemon"), logfields.Error(err))
		}
	}

	d.logger.Info("daemon stopped", logfields.Component("daemon"), logfields.Action("stop"), logfields.Status("success"))
	return nil
}

// ConfigSummary is the shape returned by GetConfigSummary (spec §4.8).
type ConfigSummary struct {
	Hostname     string                        `json:"hostname"`
	Repositories map[string]struct{}           `json:"repositories"`
	Backups      map[string]BackupSummary      `json:"backups"`
}

// BackupSummary is a backup's entry within ConfigSummary.
type BackupSummary struct {
	Repositories []string `json:"repositories"`
}

// GetConfigSummary returns the read-only configuration overview exposed by
// the Control API's get_config_summary method.
func (d *Daemon) GetConfigSummary() ConfigSummary {
	summary := ConfigSummary{
		Hostname:     d.cfg.Host.Hostname,
		Repositories: make(map[string]struct{}, len(d.cfg.Repositories)),
		Backups:      make(map[string]BackupSummary, len(d.cfg.Backups)),
	}
	for name := range d.cfg.Repositories {
		summary.Repositories[name] = struct{}{}
	}
	for name, backup := range d.cfg.Backups {
		summary.Backups[name] = BackupSummary{Repositories: backup.Repositories}
	}
	return summary
}

func (d *Daemon) globalOpts(uploadOverrideKiB, downloadOverrideKiB int) []string {
	upload := d.cfg.Host.UploadLimitKiB
	if uploadOverrideKiB > 0 {
		upload = uploadOverrideKiB
	}
	download := d.cfg.Host.DownloadLimitKiB
	if downloadOverrideKiB > 0 {
		download = downloadOverrideKiB
	}

	var opts []string
	if upload > 0 {
		opts = append(opts, "--limit-upload", fmt.Sprintf("%d", upload))
	}
	if download > 0 {
		opts = append(opts, "--limit-download", fmt.Sprintf("%d", download))
	}
	return opts
}

func (d *Daemon) unlock(ctx context.Context, repo config.Repository, node *tracenode.Node) {
	_, _ = d.invoker.Invoke(ctx, "unlock", d.globalOpts(0, 0), config.RepositoryEnv(repo), false, node)
}

// InitRepository is idempotent: a non-zero exit is logged as INFO, not
// ERROR, because "already initialized" is indistinguishable without
// probing. Afterward, unlock is run best-effort to clear stale locks.
func (d *Daemon) InitRepository(name string, priority task.Priority) {
	repo, ok := d.cfg.Repositories[name]
	if !ok {
		d.logger.Error("init_repository: unknown repository", logfields.Repository(name))
		return
	}

	t := task.New("init_repo_"+name, func(ctx context.Context) (any, error) {
		node := tracenode.Root("init_repository")
		_, err := d.invoker.Invoke(ctx, "init", d.globalOpts(0, 0), config.RepositoryEnv(repo), false, node)
		if err != nil {
			d.logger.Info("init_repository: probably already initialized",
				logfields.Component("daemon"), logfields.Action("init_repository"),
				logfields.Repository(name), logfields.Status("failure"), logfields.Error(err))
			d.unlock(ctx, repo, node)
			return nil, nil
		}
		d.logger.Info("init_repository succeeded",
			logfields.Component("daemon"), logfields.Action("init_repository"), logfields.Repository(name), logfields.Status("success"))
		return nil, nil
	})

	d.tasks.Submit(t, priority, true, false)
}

// CheckRepository runs engine check after an unlock. priority defaults to
// repository.check.priority, then "normal".
func (d *Daemon) CheckRepository(name string, priority task.Priority) {
	repo, ok := d.cfg.Repositories[name]
	if !ok {
		d.logger.Error("check_repository: unknown repository", logfields.Repository(name))
		return
	}
	if priority == "" {
		priority = task.PriorityNormal
		if repo.Check != nil && repo.Check.Priority != "" {
			priority = task.Priority(repo.Check.Priority)
		}
	}

	t := task.New("check_repo_"+name, func(ctx context.Context) (any, error) {
		node := tracenode.Root("check_repository")
		d.unlock(ctx, repo, node)
		_, err := d.invoker.Invoke(ctx, "check", d.globalOpts(0, 0), config.RepositoryEnv(repo), false, node)
		status := "success"
		if err != nil {
			status = "failure"
		}
		d.logger.Info("check_repository ended",
			logfields.Component("daemon"), logfields.Action("check_repository"),
			logfields.Repository(name), logfields.Status(status), logfields.Error(err))
		return nil, err
	})

	d.tasks.Submit(t, priority, true, false)
}

// Snapshot is the projection of an engine snapshot record exposed over the
// Control API (spec §4.7 list_snapshots).
type Snapshot struct {
	Date       string `json:"Date"`
	Hostname   string `json:"Hostname"`
	Backup     string `json:"Backup"`
	Repository string `json:"Repository"`
	ID         string `json:"Id"`
}

// ListSnapshots computes the repo set, invokes engine snapshots --json
// against each, and returns the merged, sorted projection. Runs as an
// immediate-priority task and blocks for the result.
func (d *Daemon) ListSnapshots(ctx context.Context, repository, backup, sortBy string, reverse bool) ([]Snapshot, error) {
	if sortBy == "" {
		sortBy = "Date"
	}

	repoNames, err := d.snapshotRepoSet(repository, backup)
	if err != nil {
		return nil, err
	}

	t := task.New("", func(taskCtx context.Context) (any, error) {
		node := tracenode.Root("list_snapshots")
		var all []Snapshot
		for _, repoName := range repoNames {
			repo := d.cfg.Repositories[repoName]
			d.unlock(taskCtx, repo, node)

			args := d.globalOpts(0, 0)
			if backup != "" {
				args = append(args, "--tag", "backup-"+backup)
			}
			args = append(args, "--host", d.cfg.Host.Hostname)

			result, invokeErr := d.invoker.Invoke(taskCtx, "snapshots", args, config.RepositoryEnv(repo), true, node)
			if invokeErr != nil {
				return nil, invokeErr
			}

			raw, ok := result.JSON.([]any)
			if !ok {
				continue
			}
			for _, entry := range raw {
				all = append(all, projectSnapshot(entry, repoName))
			}
		}

		sortSnapshots(all, sortBy, reverse)
		return all, nil
	})

	result, err := d.tasks.Submit(t, task.PriorityImmediate, false, true)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([]Snapshot), nil
}

func (d *Daemon) snapshotRepoSet(repository, backup string) ([]string, error) {
	switch {
	case repository != "":
		if _, ok := d.cfg.Repositories[repository]; !ok {
			return nil, hberrors.ConfigError(fmt.Sprintf("unknown repository %q", repository)).Build()
		}
		return []string{repository}, nil
	case backup != "":
		b, ok := d.cfg.Backups[backup]
		if !ok {
			return nil, hberrors.ConfigError(fmt.Sprintf("unknown backup %q", backup)).Build()
		}
		return b.Repositories, nil
	default:
		names := make([]string, 0, len(d.cfg.Repositories))
		for name := range d.cfg.Repositories {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}
}

func projectSnapshot(raw any, repoName string) Snapshot {
	m, _ := raw.(map[string]any)
	snap := Snapshot{Repository: repoName}
	if v, ok := m["time"].(string); ok {
		snap.Date = v
	}
	if v, ok := m["hostname"].(string); ok {
		snap.Hostname = v
	}
	if v, ok := m["id"].(string); ok {
		snap.ID = v
	}
	if tags, ok := m["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok && strings.HasPrefix(s, "backup-") {
				snap.Backup = strings.TrimPrefix(s, "backup-")
			}
		}
	}
	return snap
}

func sortSnapshots(snaps []Snapshot, column string, reverse bool) {
	less := func(i, j int) bool {
		a, b := fieldValue(snaps[i], column), fieldValue(snaps[j], column)
		if reverse {
			return a > b
		}
		return a < b
	}
	sort.SliceStable(snaps, less)
}

func fieldValue(s Snapshot, column string) string {
	switch column {
	case "Hostname":
		return s.Hostname
	case "Backup":
		return s.Backup
	case "Repository":
		return s.Repository
	case "Id":
		return s.ID
	default:
		return s.Date
	}
}

// Explanation is the shape returned by ExplainSnapshot.
type Explanation struct {
	Repository string `json:"repository_name"`
	Backup     string `json:"backup_name"`
	SnapshotID string `json:"snapshot_id"`
	Objects    []any  `json:"objects"`
}

// ExplainSnapshot runs `ls --long <snapshot> --json` synchronously: the
// first record carries metadata (tags -> backup name), the rest are
// filesystem entries.
func (d *Daemon) ExplainSnapshot(ctx context.Context, repository, snapshotID string) (*Explanation, error) {
	repo, ok := d.cfg.Repositories[repository]
	if !ok {
		return nil, hberrors.ConfigError(fmt.Sprintf("unknown repository %q", repository)).Build()
	}

	explainCtx, cancel := d.stopAwareContext(ctx)
	defer cancel()

	node := tracenode.Root("explain_snapshot")
	result, err := d.invoker.Invoke(explainCtx, "ls", []string{"--long", snapshotID}, config.RepositoryEnv(repo), true, node)
	if err != nil {
		return nil, err
	}

	records, ok := result.JSON.([]any)
	if !ok || len(records) == 0 {
		return nil, hberrors.EngineError("ls returned no records").Build()
	}

	backupName := ""
	if meta, ok := records[0].(map[string]any); ok {
		if tags, ok := meta["tags"].([]any); ok {
			for _, tag := range tags {
				if s, ok := tag.(string); ok && strings.HasPrefix(s, "backup-") {
					backupName = strings.TrimPrefix(s, "backup-")
				}
			}
		}
	}

	return &Explanation{
		Repository: repository,
		Backup:     backupName,
		SnapshotID: snapshotID,
		Objects:    records[1:],
	}, nil
}

// RestoreSnapshot unlocks then runs engine restore. Fire-and-forget by
// default.
func (d *Daemon) RestoreSnapshot(repository, snapshot, target string, priority task.Priority) {
	repo, ok := d.cfg.Repositories[repository]
	if !ok {
		d.logger.Error("restore_snapshot: unknown repository", logfields.Repository(repository))
		return
	}
	if target == "" {
		target = "/"
	}

	t := task.New(fmt.Sprintf("restore_snap_%s_%s", repository, snapshot), func(ctx context.Context) (any, error) {
		node := tracenode.Root("restore_snapshot")
		d.unlock(ctx, repo, node)
		args := append([]string{snapshot, "--target", target}, d.globalOpts(0, 0)...)
		_, err := d.invoker.Invoke(ctx, "restore", args, config.RepositoryEnv(repo), false, node)
		status := "success"
		if err != nil {
			status = "failure"
		}
		d.logger.Info("restore_snapshot ended",
			logfields.Component("daemon"), logfields.Action("restore_snapshot"),
			logfields.Repository(repository), logfields.Status(status), logfields.Error(err))
		return nil, err
	})

	d.tasks.Submit(t, priority, true, false)
}

// Prune forgets snapshots per retention policy across every targeted
// repository; per-repository failures are aggregated, overall status is
// success iff every repository succeeded.
func (d *Daemon) Prune(backupName string, priority task.Priority, waitResult bool) (any, error) {
	backup, ok := d.cfg.Backups[backupName]
	if !ok || backup.Prune == nil {
		return nil, hberrors.ConfigError(fmt.Sprintf("unknown backup or missing prune spec %q", backupName)).Build()
	}
	if priority == "" {
		priority = task.PriorityNormal
		if backup.Prune.Priority != "" {
			priority = task.Priority(backup.Prune.Priority)
		}
	}

	keepArgs, err := retentionArgs(backup.Prune.RetentionPolicy)
	if err != nil {
		return nil, err
	}

	t := task.New("prune_"+backupName, func(ctx context.Context) (any, error) {
		node := tracenode.Root("prune")
		allOK := true
		for _, repoName := range backup.Repositories {
			repo := d.cfg.Repositories[repoName]
			repoNode := node.Extend("repository_" + repoName)
			d.unlock(ctx, repo, repoNode)

			options := append([]string{"--prune", "--tag", "backup-" + backupName, "--host", d.cfg.Host.Hostname},
				d.globalOpts(backupUploadLimit(backup), backupDownloadLimit(backup))...)
			options = append(options, keepArgs...)

			if _, err := d.invoker.Invoke(ctx, "forget", options, config.RepositoryEnv(repo), false, repoNode); err != nil {
				d.logger.Error("prune on repository failed",
					logfields.Component("daemon"), logfields.Action("prune"), logfields.Subaction("prune_repository"),
					logfields.Backup(backupName), logfields.Repository(repoName), logfields.Error(err))
				allOK = false
				continue
			}
			d.logger.Info("prune on repository ended",
				logfields.Component("daemon"), logfields.Action("prune"), logfields.Subaction("prune_repository"),
				logfields.Backup(backupName), logfields.Repository(repoName), logfields.Status("success"))
		}

		if !allOK {
			return nil, hberrors.PartialFailureError(fmt.Sprintf("prune %q: one or more repositories failed", backupName)).Build()
		}
		return nil, nil
	})

	return d.tasks.Submit(t, priority, true, waitResult)
}

func retentionArgs(policy map[string]any) ([]string, error) {
	var args []string
	for key, value := range policy {
		flag, ok := config.RetentionFlag(key)
		if !ok {
			return nil, hberrors.ConfigError(fmt.Sprintf("unknown retention policy key %q", key)).Build()
		}
		args = append(args, "--keep-"+flag, fmt.Sprintf("%v", value))
	}
	return args, nil
}

func backupUploadLimit(b config.Backup) int {
	if b.Bandwidth != nil {
		return b.Bandwidth.UploadLimitKiB
	}
	return 0
}

func backupDownloadLimit(b config.Backup) int {
	if b.Bandwidth != nil {
		return b.Bandwidth.DownloadLimitKiB
	}
	return 0
}

// Backup runs the fan-out pipeline: optional before-hook, then engine
// backup against every targeted repository in declaration order. A
// per-repo failure does not short-circuit the others.
func (d *Daemon) Backup(backupName string, priority task.Priority, waitResult bool, caller *tracenode.Node) (any, error) {
	backup, ok := d.cfg.Backups[backupName]
	if !ok {
		return nil, hberrors.ConfigError(fmt.Sprintf("unknown backup %q", backupName)).Build()
	}
	if priority == "" {
		priority = task.PriorityNormal
		if backup.Priority != "" {
			priority = task.Priority(backup.Priority)
		}
	}
	if caller == nil {
		caller = tracenode.Root("backup")
	}
	node := caller.Extend("backup_" + backupName)

	t := task.New("backup_"+backupName, func(ctx context.Context) (any, error) {
		d.logger.Info("starting backup",
			logfields.Component("daemon"), logfields.Action("backup"), logfields.Backup(backupName),
			logfields.Status("starting"), logfields.Node(node.String()))

		hookOK := true
		if backup.Hooks != nil && backup.Hooks.Before != nil {
			hookNode := node.Extend("hook")
			if err := d.runHook(ctx, backup.Hooks.Before, hookNode); err != nil {
				d.logger.Error("backup before hook failed",
					logfields.Component("daemon"), logfields.Action("backup"), logfields.Subaction("run_hook"),
					logfields.Backup(backupName), logfields.Hook("before"), logfields.Error(err), logfields.Node(hookNode.String()))

				switch backup.Hooks.Before.OnFailure {
				case "stop":
					return nil, hberrors.HookError(fmt.Sprintf("backup %q: before hook failed", backupName)).Build()
				case "ignore":
					// treated as success
				default: // "continue"
					hookOK = false
				}
			}
		}

		allRepoOK := true
		for _, repoName := range backup.Repositories {
			repo := d.cfg.Repositories[repoName]
			repoNode := node.Extend("repository_" + repoName)
			d.unlock(ctx, repo, repoNode)

			options := append([]string{"--tag", "backup-" + backupName, "--host", d.cfg.Host.Hostname},
				d.globalOpts(backupUploadLimit(backup), backupDownloadLimit(backup))...)
			args := append([]string{}, backup.Paths...)
			for _, pattern := range backup.Ignore {
				args = append(args, "--exclude="+pattern)
			}

			if _, err := d.invoker.Invoke(ctx, "backup", append(options, args...), config.RepositoryEnv(repo), false, repoNode); err != nil {
				d.logger.Error("backup on repository failed",
					logfields.Component("daemon"), logfields.Action("backup"), logfields.Subaction("backup_repository"),
					logfields.Backup(backupName), logfields.Repository(repoName), logfields.Error(err), logfields.Node(repoNode.String()))
				allRepoOK = false
				continue
			}
			d.logger.Info("backup on repository ended",
				logfields.Component("daemon"), logfields.Action("backup"), logfields.Subaction("backup_repository"),
				logfields.Backup(backupName), logfields.Repository(repoName), logfields.Status("success"), logfields.Node(repoNode.String()))
		}

		if allRepoOK && hookOK {
			d.logger.Info("backup ended",
				logfields.Component("daemon"), logfields.Action("backup"), logfields.Backup(backupName),
				logfields.Status("success"), logfields.Node(node.String()))
			return nil, nil
		}

		err := hberrors.PartialFailureError(fmt.Sprintf("backup %q: hook or one or more repositories failed", backupName)).Build()
		d.logger.Error("backup failed",
			logfields.Component("daemon"), logfields.Action("backup"), logfields.Backup(backupName),
			logfields.Status("failure"), logfields.Node(node.String()))
		return nil, err
	})

	return d.tasks.Submit(t, priority, true, waitResult)
}

// runHook executes a single HTTP hook with exponential-backoff retry
// (multiplier 1s, cap 10s) for up to hook.Retries attempts.
func (d *Daemon) runHook(ctx context.Context, hook *config.Hook, node *tracenode.Node) error {
	if hook.Type != "http" {
		return hberrors.HookError(fmt.Sprintf("unsupported hook type %q", hook.Type)).Build()
	}
	return callHookWithRetry(ctx, hook, d.logger, node)
}
