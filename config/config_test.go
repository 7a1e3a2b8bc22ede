// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, YAML files, env overrides and validation
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate moves the test into an empty directory so no stray config.yaml
// or .env is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	xdg.Reload()
	unsetenv(t, "DEV_CUSTOMER_ID")
	return dir
}

// unsetenv removes a variable for the duration of the test. godotenv never
// overrides a variable that is present, even when empty.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	prev, ok := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if ok {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultDatabasePath(), cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 50*time.Second, cfg.Server.SyncTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 15*time.Second, cfg.Sync.ConnectorTimeout)
	assert.Equal(t, 4, cfg.Sync.PushConcurrency)
	assert.Equal(t, []string{"hubspot", "pipedrive"}, cfg.Sync.Systems)
	assert.Empty(t, cfg.Sync.Tenants)
	assert.Equal(t, 2*time.Minute, cfg.Redis.LeaseTTL)
	assert.False(t, cfg.Google.Enabled())
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "crmsync.yaml")
	content := `
database:
  driver: badger
  path: /tmp/crmsync-kv
sync:
  interval: 30s
  systems: [hubspot]
  tenants: [acme, globex]
tenant:
  default: acme
google:
  client_id: id
  client_secret: secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Database.Driver)
	assert.Equal(t, "/tmp/crmsync-kv", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, []string{"hubspot"}, cfg.Sync.Systems)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Sync.Tenants)
	assert.Equal(t, "acme", cfg.Tenant.Default)
	assert.True(t, cfg.Google.Enabled())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CRMSYNC_SERVER_ADDR", ":9999")
	t.Setenv("CRMSYNC_SYNC_SYSTEMS", "hubspot,salesforce")
	t.Setenv("CRMSYNC_REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, []string{"hubspot", "salesforce"}, cfg.Sync.Systems)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DEV_CUSTOMER_ID=dev-tenant\n"), 0600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dev-tenant", cfg.Tenant.Default)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite"},
			Server:   ServerConfig{SyncTimeout: time.Second},
			Sync:     SyncConfig{Interval: time.Minute, Systems: []string{"hubspot"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.Sync.Interval = 0 }, wantErr: true},
		{name: "zero sync timeout", mutate: func(c *Config) { c.Server.SyncTimeout = 0 }, wantErr: true},
		{name: "reserved system", mutate: func(c *Config) { c.Sync.Systems = []string{"local"} }, wantErr: true},
		{name: "duplicate system", mutate: func(c *Config) { c.Sync.Systems = []string{"hubspot", "hubspot"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
