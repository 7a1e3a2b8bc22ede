// ABOUTME: Application configuration loaded with viper
// ABOUTME: XDG config file, optional .env file, and CRMSYNC_* environment overrides
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/harperreed/crmsync/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const AppName = "crmsync"

// Config holds all application configuration.
type Config struct {
	Database       DatabaseConfig
	Log            logging.Config
	Server         ServerConfig
	Sync           SyncConfig
	Tenant         TenantConfig
	IntegrationApp IntegrationAppConfig
	Google         GoogleConfig
	Redis          RedisConfig
}

type DatabaseConfig struct {
	Path   string
	Driver string // sqlite or badger
}

type ServerConfig struct {
	Addr        string
	SyncTimeout time.Duration
}

type SyncConfig struct {
	Interval         time.Duration
	ConnectorTimeout time.Duration
	PushConcurrency  int
	Systems          []string
	Tenants          []string
}

type TenantConfig struct {
	// Default is used when a request carries no tenant header.
	Default string
}

type IntegrationAppConfig struct {
	BaseURL         string
	WorkspaceKey    string
	WorkspaceSecret string
	TokenTTL        time.Duration
	Timeout         time.Duration
	RateLimit       float64
	Burst           int
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenPath    string
}

// Enabled reports whether Google credentials were configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LeaseTTL time.Duration
}

// DefaultDatabasePath is the XDG data location of the SQLite database.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, AppName, AppName+".db")
}

// DefaultConfigDir is where config.yaml is looked up.
func DefaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("database.driver", "sqlite")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.time_format", "2006-01-02T15:04:05.000Z07:00")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.sync_timeout", 50*time.Second)

	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.connector_timeout", 15*time.Second)
	v.SetDefault("sync.push_concurrency", 4)
	v.SetDefault("sync.systems", []string{"hubspot", "pipedrive"})
	v.SetDefault("sync.tenants", []string{})

	v.SetDefault("tenant.default", "")

	v.SetDefault("integration_app.base_url", "https://api.integration.app")
	v.SetDefault("integration_app.token_ttl", time.Hour)
	v.SetDefault("integration_app.timeout", 30*time.Second)
	v.SetDefault("integration_app.rate_limit", 5.0)
	v.SetDefault("integration_app.burst", 10)

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "http://localhost:8080/oauth/callback")
	v.SetDefault("google.token_path", "")

	v.SetDefault("integration_app.workspace_key", "")
	v.SetDefault("integration_app.workspace_secret", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lease_ttl", 2*time.Minute)
}

// Load reads configuration. An explicit path must exist; otherwise
// config.yaml is optional in the current directory and the XDG config dir.
// A .env file in the working directory is applied first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("CRMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Database: DatabaseConfig{
			Path:   v.GetString("database.path"),
			Driver: strings.ToLower(v.GetString("database.driver")),
		},
		Log: logging.Config{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			TimeFormat: v.GetString("log.time_format"),
		},
		Server: ServerConfig{
			Addr:        v.GetString("server.addr"),
			SyncTimeout: v.GetDuration("server.sync_timeout"),
		},
		Sync: SyncConfig{
			Interval:         v.GetDuration("sync.interval"),
			ConnectorTimeout: v.GetDuration("sync.connector_timeout"),
			PushConcurrency:  v.GetInt("sync.push_concurrency"),
			Systems:          splitList(v.GetStringSlice("sync.systems")),
			Tenants:          splitList(v.GetStringSlice("sync.tenants")),
		},
		Tenant: TenantConfig{
			Default: v.GetString("tenant.default"),
		},
		IntegrationApp: IntegrationAppConfig{
			BaseURL:         v.GetString("integration_app.base_url"),
			WorkspaceKey:    v.GetString("integration_app.workspace_key"),
			WorkspaceSecret: v.GetString("integration_app.workspace_secret"),
			TokenTTL:        v.GetDuration("integration_app.token_ttl"),
			Timeout:         v.GetDuration("integration_app.timeout"),
			RateLimit:       v.GetFloat64("integration_app.rate_limit"),
			Burst:           v.GetInt("integration_app.burst"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("google.client_id"),
			ClientSecret: v.GetString("google.client_secret"),
			RedirectURL:  v.GetString("google.redirect_url"),
			TokenPath:    v.GetString("google.token_path"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LeaseTTL: v.GetDuration("redis.lease_ttl"),
		},
	}

	// DEV_CUSTOMER_ID is honoured for local development setups.
	if cfg.Tenant.Default == "" {
		cfg.Tenant.Default = os.Getenv("DEV_CUSTOMER_ID")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "badger":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Server.SyncTimeout <= 0 {
		return fmt.Errorf("server.sync_timeout must be positive")
	}
	seen := make(map[string]bool)
	for _, system := range c.Sync.Systems {
		if system == "local" {
			return fmt.Errorf("sync.systems: %q is reserved", system)
		}
		if seen[system] {
			return fmt.Errorf("sync.systems: %q listed twice", system)
		}
		seen[system] = true
	}
	return nil
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
