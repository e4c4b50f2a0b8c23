package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesTemplateWhenMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "terms")
	loader := NewLoader(dir)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.True(t, loader.Created())

	info, err := os.Stat(loader.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(configFileMode), info.Mode().Perm())

	data, err := os.ReadFile(loader.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "client_id")
	assert.Contains(t, string(data), "# Application (client) id")

	assert.Equal(t, "common", cfg.TenantID)
	assert.Equal(t, "https://login.microsoftonline.com", cfg.Authority)
	assert.Equal(t, "https://graph.microsoft.com/v1.0", cfg.GraphURL)
	assert.Equal(t, 15*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Sync.RecentWindow)
	assert.Equal(t, 60*time.Second, cfg.Auth.RefreshMargin)
	assert.Equal(t, 5*time.Minute, cfg.Auth.Timeout)
	assert.Equal(t, "keyring", cfg.Secrets.Backend)
	assert.Equal(t, filepath.Join(dir, "secrets"), cfg.Secrets.FileDir)
	assert.False(t, cfg.Cache.Enabled)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingClientID)
}

func TestLoadReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
client_id = "client-123"
tenant_id = "contoso"

[sync]
interval = "30s"
concurrency = 8

[secrets]
backend = "pass"

[cache]
enabled = true
`), 0o600))

	loader := NewLoader(dir)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.False(t, loader.Created())

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "client-123", cfg.ClientID)
	assert.Equal(t, "contoso", cfg.TenantID)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, "pass", cfg.Secrets.Backend)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, filepath.Join(dir, "cache"), cfg.Cache.Path)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("client_id = \"file\"\n[sync]\ninterval = \"30s\"\n"), 0o600))
	t.Setenv("TERMS_CLIENT_ID", "env")
	t.Setenv("TERMS_SYNC_INTERVAL", "45s")

	cfg, err := NewLoader(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.ClientID)
	assert.Equal(t, 45*time.Second, cfg.Sync.Interval)
}

func TestDotEnvFileIsLoaded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TERMS_LOG_LEVEL=debug\n"), 0o600))
	_, alreadySet := os.LookupEnv("TERMS_LOG_LEVEL")
	require.False(t, alreadySet)
	t.Cleanup(func() { _ = os.Unsetenv("TERMS_LOG_LEVEL") })

	cfg, err := NewLoader(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Config{ClientID: "x", Secrets: SecretsConfig{Backend: "vault"}, Sync: SyncConfig{Interval: time.Second}}
	assert.ErrorContains(t, cfg.Validate(), "vault")
}

func TestWatchReportsIntervalChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("client_id = \"c\"\n[sync]\ninterval = \"15s\"\n"), 0o600))

	loader := NewLoader(dir)
	_, err := loader.Load()
	require.NoError(t, err)

	changes := make(chan Config, 4)
	loader.Watch(func(cfg Config) { changes <- cfg })

	require.NoError(t, os.WriteFile(path, []byte("client_id = \"c\"\n[sync]\ninterval = \"5s\"\n"), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Sync.Interval == 5*time.Second {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
