package config

// ApplyDefaults fills in zero-value fields with their spec-mandated
// defaults, following the teacher's per-domain DefaultApplier idiom
// (internal/config/defaults.go) but collapsed to the handful of optional
// fields this data model actually has: `backup.priority`/`check.priority`/
// `prune.priority` default to `normal`, and hook method/retries/onfailure
// get conservative defaults. WatchSpec's `wait` bounds are resolved in
// decodeWatchSpec at load time, since they must be settled before
// validation runs.
func ApplyDefaults(cfg *Config) {
	for name, backup := range cfg.Backups {
		if backup.Priority == "" {
			backup.Priority = "normal"
		}
		if backup.Prune != nil && backup.Prune.Priority == "" {
			backup.Prune.Priority = "normal"
		}
		if backup.Hooks != nil {
			applyHookDefaults(backup.Hooks.Before)
			applyHookDefaults(backup.Hooks.After)
		}
		cfg.Backups[name] = backup
	}

	for name, repo := range cfg.Repositories {
		if repo.Check != nil && repo.Check.Priority == "" {
			repo.Check.Priority = "normal"
		}
		cfg.Repositories[name] = repo
	}
}

func applyHookDefaults(h *Hook) {
	if h == nil {
		return
	}
	if h.Method == "" {
		h.Method = "post"
	}
	if h.Retries <= 0 {
		h.Retries = 1
	}
	if h.OnFailure == "" {
		h.OnFailure = "stop"
	}
}
