package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	hberrors "github.com/gallofeliz/hen-backup/internal/errors"
)

// providerKeys are the recognized nested provider envelopes flattened
// into engine environment variables (spec §6 "Provider environment
// construction").
var providerKeys = map[string]bool{
	"os": true, "aws": true, "st": true, "b2": true, "azure": true,
	"google": true, "rclone": true,
}

type rawDocument struct {
	Host         map[string]any            `yaml:"host"`
	Repositories map[string]map[string]any `yaml:"repositories"`
	Backups      map[string]map[string]any `yaml:"backups"`
}

// Load reads and validates a configuration file. Any `.env`/`.env.local`
// file in the working directory is loaded first (without overriding
// already-set process environment), then `${VAR}` references in the YAML
// document are expanded against the process environment, matching the
// teacher's config.go env-then-YAML pipeline but sourced through
// godotenv instead of a hand-rolled scanner.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")       // optional; absence is not an error
	_ = godotenv.Load(".env.local") // loaded on its own so a missing .env does not skip it

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, hberrors.ConfigError(fmt.Sprintf("reading config file: %v", err)).Build()
	}

	expanded := os.ExpandEnv(string(data))

	var doc rawDocument
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, hberrors.ConfigError(fmt.Sprintf("parsing config file: %v", err)).Build()
	}

	cfg := &Config{
		Repositories: make(map[string]Repository),
		Backups:      make(map[string]Backup),
	}

	if err := decodeHost(doc.Host, &cfg.Host); err != nil {
		return nil, err
	}

	for name, raw := range doc.Repositories {
		repo, err := decodeRepository(name, raw)
		if err != nil {
			return nil, err
		}
		cfg.Repositories[repo.Name] = repo
	}

	for name, raw := range doc.Backups {
		backup, err := decodeBackup(name, raw)
		if err != nil {
			return nil, err
		}
		cfg.Backups[backup.Name] = backup
	}

	ApplyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func remarshal(raw any, target any) error {
	b, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, target)
}

func decodeHost(raw map[string]any, host *Host) error {
	type hostYAML struct {
		Hostname         string `yaml:"hostname"`
		UploadLimit      string `yaml:"uploadLimit"`
		DownloadLimit    string `yaml:"downloadLimit"`
		Log              Log    `yaml:"log"`
		API              *API   `yaml:"api"`
	}
	var h hostYAML
	if err := remarshal(raw, &h); err != nil {
		return hberrors.ConfigError(fmt.Sprintf("invalid host config: %v", err)).Build()
	}

	host.Hostname = strings.ToLower(strings.TrimSpace(h.Hostname))
	if host.Hostname == "" {
		return hberrors.ConfigError("host.hostname is required").Build()
	}
	host.Log = h.Log
	host.API = h.API

	if h.UploadLimit != "" {
		limit, err := ParseSizeKiB(h.UploadLimit)
		if err != nil {
			return hberrors.ConfigError(fmt.Sprintf("host.uploadLimit: %v", err)).Build()
		}
		host.UploadLimitKiB = limit
	}
	if h.DownloadLimit != "" {
		limit, err := ParseSizeKiB(h.DownloadLimit)
		if err != nil {
			return hberrors.ConfigError(fmt.Sprintf("host.downloadLimit: %v", err)).Build()
		}
		host.DownloadLimitKiB = limit
	}
	return nil
}

func decodeRepository(name string, raw map[string]any) (Repository, error) {
	type repoYAML struct {
		Repository string     `yaml:"repository"`
		Password   string     `yaml:"password"`
		Check      *CheckSpec `yaml:"check"`
	}
	var r repoYAML
	if err := remarshal(raw, &r); err != nil {
		return Repository{}, hberrors.ConfigError(fmt.Sprintf("repository %q: %v", name, err)).Build()
	}

	repo := Repository{
		Name:       strings.ToLower(strings.TrimSpace(name)),
		Repository: r.Repository,
		Password:   r.Password,
		Check:      r.Check,
		Provider:   make(map[string]any),
	}
	if repo.Repository == "" {
		return Repository{}, hberrors.ConfigError(fmt.Sprintf("repository %q: missing repository location", name)).Build()
	}

	for key, val := range raw {
		if providerKeys[key] {
			if m, ok := val.(map[string]any); ok {
				repo.Provider[key] = m
			}
		}
	}

	return repo, nil
}

func decodeBackup(name string, raw map[string]any) (Backup, error) {
	type bandwidthYAML struct {
		UploadLimit   string `yaml:"uploadLimit"`
		DownloadLimit string `yaml:"downloadLimit"`
	}
	type backupYAML struct {
		Paths        []string       `yaml:"paths"`
		Ignore       []string       `yaml:"ignore"`
		Repositories []string       `yaml:"repositories"`
		Schedules    []string       `yaml:"schedules"`
		Watch        any            `yaml:"watch"`
		Prune        *PruneSpec     `yaml:"prune"`
		Hooks        *Hooks         `yaml:"hooks"`
		Bandwidth    *bandwidthYAML `yaml:"bandwidth"`
		Priority     string         `yaml:"priority"`
	}
	var b backupYAML
	if err := remarshal(raw, &b); err != nil {
		return Backup{}, hberrors.ConfigError(fmt.Sprintf("backup %q: %v", name, err)).Build()
	}

	backup := Backup{
		Name:         strings.ToLower(strings.TrimSpace(name)),
		Paths:        b.Paths,
		Ignore:       b.Ignore,
		Repositories: lowerAll(b.Repositories),
		Schedules:    b.Schedules,
		Prune:        b.Prune,
		Hooks:        b.Hooks,
		Priority:     b.Priority,
	}

	if len(backup.Paths) == 0 {
		return Backup{}, hberrors.ConfigError(fmt.Sprintf("backup %q: at least one path is required", name)).Build()
	}
	if len(backup.Repositories) == 0 {
		return Backup{}, hberrors.ConfigError(fmt.Sprintf("backup %q: at least one repository is required", name)).Build()
	}

	watch, err := decodeWatchSpec(b.Watch)
	if err != nil {
		return Backup{}, hberrors.ConfigError(fmt.Sprintf("backup %q: %v", name, err)).Build()
	}
	backup.Watch = watch

	if b.Bandwidth != nil {
		bw := &Bandwidth{}
		if b.Bandwidth.UploadLimit != "" {
			if bw.UploadLimitKiB, err = ParseSizeKiB(b.Bandwidth.UploadLimit); err != nil {
				return Backup{}, hberrors.ConfigError(fmt.Sprintf("backup %q bandwidth.uploadLimit: %v", name, err)).Build()
			}
		}
		if b.Bandwidth.DownloadLimit != "" {
			if bw.DownloadLimitKiB, err = ParseSizeKiB(b.Bandwidth.DownloadLimit); err != nil {
				return Backup{}, hberrors.ConfigError(fmt.Sprintf("backup %q bandwidth.downloadLimit: %v", name, err)).Build()
			}
		}
		backup.Bandwidth = bw
	}

	return backup, nil
}

// decodeWatchSpec accepts either a bare boolean or an object with a
// `wait: {min, max}` sub-object (spec §3 Backup.watch).
func decodeWatchSpec(raw any) (*WatchSpec, error) {
	if raw == nil {
		return nil, nil
	}
	if enabled, ok := raw.(bool); ok {
		if !enabled {
			return nil, nil
		}
		return &WatchSpec{Enabled: true, Wait: WaitSpec{Min: defaultWaitMin, Max: defaultWaitMax}}, nil
	}

	type waitYAML struct {
		Wait struct {
			Min string `yaml:"min"`
			Max string `yaml:"max"`
		} `yaml:"wait"`
	}
	var w waitYAML
	if err := remarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("invalid watch spec: %w", err)
	}

	spec := &WatchSpec{Enabled: true, Wait: WaitSpec{Min: defaultWaitMin, Max: defaultWaitMax}}
	if w.Wait.Min != "" {
		d, err := ParseDuration(w.Wait.Min)
		if err != nil {
			return nil, fmt.Errorf("watch.wait.min: %w", err)
		}
		spec.Wait.Min = d
	}
	if w.Wait.Max != "" {
		d, err := ParseDuration(w.Wait.Max)
		if err != nil {
			return nil, fmt.Errorf("watch.wait.max: %w", err)
		}
		spec.Wait.Max = d
	}
	return spec, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

// validate checks cross-entity invariants: every backup must reference
// only repositories that exist (spec §3 Backup invariant).
func validate(cfg *Config) error {
	names := make([]string, 0, len(cfg.Backups))
	for name := range cfg.Backups {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic error ordering

	for _, name := range names {
		backup := cfg.Backups[name]
		for _, repoName := range backup.Repositories {
			if _, ok := cfg.Repositories[repoName]; !ok {
				return hberrors.ConfigError(fmt.Sprintf("backup %q references unknown repository %q", name, repoName)).Build()
			}
		}
		if backup.Prune != nil {
			if err := ValidateRetentionPolicy(backup.Prune.RetentionPolicy); err != nil {
				return hberrors.ConfigError(fmt.Sprintf("backup %q prune: %v", name, err)).Build()
			}
		}
	}
	return nil
}
