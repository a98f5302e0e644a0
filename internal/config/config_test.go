package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hberrors "github.com/gallofeliz/hen-backup/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
host:
  hostname: Box-One
  uploadLimit: 1m
log:
  level: info
repositories:
  Main:
    repository: /data/repo
    password: secret
    aws:
      access_key_id: AKIA
      secret:
        nested: value
backups:
  Photos:
    paths: [/home/photos]
    repositories: [Main]
    watch: true
    prune:
      retentionPolicy:
        nbOfDaily: 7
        minTime: 30d
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "box-one", cfg.Host.Hostname)
	assert.Equal(t, 1024, cfg.Host.UploadLimitKiB)

	repo, ok := cfg.Repositories["main"]
	require.True(t, ok)
	assert.Equal(t, "/data/repo", repo.Repository)
	assert.Contains(t, repo.Provider, "aws")

	backup, ok := cfg.Backups["photos"]
	require.True(t, ok)
	assert.Equal(t, "normal", backup.Priority)
	require.NotNil(t, backup.Watch)
	assert.True(t, backup.Watch.Enabled)
	assert.Equal(t, defaultWaitMin, backup.Watch.Wait.Min)
	assert.Equal(t, defaultWaitMax, backup.Watch.Wait.Max)
}

func TestLoadRejectsUnknownRepositoryReference(t *testing.T) {
	path := writeConfig(t, `
host:
  hostname: box
repositories:
  main:
    repository: /data/repo
    password: secret
backups:
  photos:
    paths: [/home/photos]
    repositories: [ghost]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, hberrors.IsClassified(err))
	classified, _ := hberrors.AsClassified(err)
	assert.Equal(t, hberrors.CategoryConfig, classified.Category())
}

func TestLoadRejectsUnknownRetentionPolicyKey(t *testing.T) {
	path := writeConfig(t, `
host:
  hostname: box
repositories:
  main:
    repository: /data/repo
    password: secret
backups:
  photos:
    paths: [/home/photos]
    repositories: [main]
    prune:
      retentionPolicy:
        nbOfCenturies: 1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, hberrors.IsClassified(err))
}

func TestLoadWatchAsObjectWithCustomBounds(t *testing.T) {
	path := writeConfig(t, `
host:
  hostname: box
repositories:
  main:
    repository: /data/repo
    password: secret
backups:
  photos:
    paths: [/home/photos]
    repositories: [main]
    watch:
      wait:
        min: 5s
        max: 2m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	backup := cfg.Backups["photos"]
	require.NotNil(t, backup.Watch)
	assert.Equal(t, 5*1e9, float64(backup.Watch.Wait.Min))
	assert.Equal(t, 2*60*1e9, float64(backup.Watch.Wait.Max))
}

func TestLoadMissingPathsRejected(t *testing.T) {
	path := writeConfig(t, `
host:
  hostname: box
repositories:
  main:
    repository: /data/repo
    password: secret
backups:
  photos:
    repositories: [main]
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	cases := map[string]int64{
		"30s": 30, "5m": 300, "2h": 7200, "1d": 86400, "1w": 604800,
	}
	for raw, wantSeconds := range cases {
		d, err := ParseDuration(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, wantSeconds, int64(d.Seconds()), raw)
	}

	_, err := ParseDuration("10x")
	assert.Error(t, err)
	_, err = ParseDuration("")
	assert.Error(t, err)
}

func TestParseSizeKiB(t *testing.T) {
	cases := map[string]int{
		"512k": 512, "2m": 2048, "1g": 1048576,
	}
	for raw, want := range cases {
		got, err := ParseSizeKiB(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseSizeKiB("10z")
	assert.Error(t, err)
}

func TestRetentionFlagAcceptsTypoCaseInsensitively(t *testing.T) {
	flag, ok := RetentionFlag("nbOfDaily")
	require.True(t, ok)
	assert.Equal(t, "daily", flag)

	flag, ok = RetentionFlag("nbOfdaily")
	require.True(t, ok)
	assert.Equal(t, "daily", flag)

	_, ok = RetentionFlag("nbOfCenturies")
	assert.False(t, ok)
}

func TestProviderEnvFlattensNestedKeys(t *testing.T) {
	repo := Repository{
		Name:       "main",
		Repository: "/data/repo",
		Password:   "secret",
		Provider: map[string]any{
			"aws": map[string]any{
				"access_key_id": "AKIA",
				"secret": map[string]any{
					"nested": "value",
				},
			},
		},
	}

	env := ProviderEnv(repo)
	assert.Contains(t, env, "AWS_ACCESS_KEY_ID=AKIA")
	assert.Contains(t, env, "AWS_SECRET_NESTED=value")

	full := RepositoryEnv(repo)
	assert.Contains(t, full, "RESTIC_REPOSITORY=/data/repo")
	assert.Contains(t, full, "RESTIC_PASSWORD=secret")
}
