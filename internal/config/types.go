// Package config loads and validates the repository/backup/host
// configuration schema consumed by the daemon.
//
// Grounded on the teacher's internal/config/config.go YAML+env loading
// pattern, restructured around spec §3's Repository/Backup/HostConfig
// data model.
package config

import "time"

// Repository is a snapshot-engine target: a unique (lowercase) name, a
// connection location, a secret passphrase, a provider envelope (the flat
// upper-snake-case env vars exported to the engine), and an optional
// check policy. Immutable once loaded.
type Repository struct {
	Name       string         `yaml:"name"`
	Repository string         `yaml:"repository"`
	Password   string         `yaml:"password"`
	Provider   map[string]any `yaml:"-"` // raw provider envelope, flattened by ProviderEnv
	Check      *CheckSpec     `yaml:"check,omitempty"`
}

// CheckSpec configures the periodic `check` task for a repository.
type CheckSpec struct {
	Schedules []string `yaml:"schedules,omitempty"`
	Priority  string   `yaml:"priority,omitempty"`
}

// Backup describes one set of source paths to snapshot into one or more
// repositories.
type Backup struct {
	Name         string      `yaml:"name"`
	Paths        []string    `yaml:"paths"`
	Ignore       []string    `yaml:"ignore,omitempty"`
	Repositories []string    `yaml:"repositories"`
	Schedules    []string    `yaml:"schedules,omitempty"`
	Watch        *WatchSpec  `yaml:"watch,omitempty"`
	Prune        *PruneSpec  `yaml:"prune,omitempty"`
	Hooks        *Hooks      `yaml:"hooks,omitempty"`
	Bandwidth    *Bandwidth  `yaml:"bandwidth,omitempty"`
	Priority     string      `yaml:"priority,omitempty"`
}

// WatchSpec enables filesystem-triggered backups. In YAML this may be a
// bare boolean (`watch: true`) or an object with wait bounds; see
// decodeWatchSpec.
type WatchSpec struct {
	Enabled bool
	Wait    WaitSpec
}

// WaitSpec bounds the FS Watch Coalescer's debounce window.
type WaitSpec struct {
	Min time.Duration
	Max time.Duration
}

// PruneSpec configures the periodic `forget --prune` task for a backup.
type PruneSpec struct {
	Schedules       []string       `yaml:"schedules,omitempty"`
	Priority        string         `yaml:"priority,omitempty"`
	RetentionPolicy map[string]any `yaml:"retentionPolicy"`
}

// Hooks holds lifecycle hooks for a backup. Only `before` is run by the
// backup pipeline. `after` is accepted and receives the same defaults, but
// no code path invokes it.
type Hooks struct {
	Before *Hook `yaml:"before,omitempty"`
	After  *Hook `yaml:"after,omitempty"`
}

// Hook is an HTTP callback invoked around a backup run.
type Hook struct {
	Type      string `yaml:"type"`
	URL       string `yaml:"url"`
	Method    string `yaml:"method,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
	Retries   int    `yaml:"retries,omitempty"`
	OnFailure string `yaml:"onfailure,omitempty"` // stop|continue|ignore
}

// Bandwidth overrides the host-level transfer limits for a single backup.
type Bandwidth struct {
	UploadLimitKiB   int `yaml:"-"`
	DownloadLimitKiB int `yaml:"-"`
}

// API configures the control API listener.
type API struct {
	Port        int    `yaml:"port"`
	Credentials *Basic `yaml:"credentials,omitempty"`
}

// Basic is an HTTP Basic auth credential pair.
type Basic struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Log configures structured logging.
type Log struct {
	Level string `yaml:"level,omitempty"`
}

// Host holds process-wide, non-repository/backup settings.
type Host struct {
	Hostname         string `yaml:"hostname"`
	UploadLimitKiB   int    `yaml:"-"`
	DownloadLimitKiB int    `yaml:"-"`
	Log              Log    `yaml:"log,omitempty"`
	API              *API   `yaml:"api,omitempty"`
}

// Config is the fully loaded, validated configuration.
type Config struct {
	Host         Host                  `yaml:"host"`
	Repositories map[string]Repository `yaml:"-"`
	Backups      map[string]Backup     `yaml:"-"`
}
