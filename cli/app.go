// ABOUTME: Wires configuration into store, connectors, lease, metrics and engine
// ABOUTME: Shared by every command that touches contacts or runs cycles
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/connector"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/kv"
	"github.com/harperreed/crmsync/metrics"
	"github.com/harperreed/crmsync/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired runtime for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	engine   *sync.Engine
	service  *sync.ContactService
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}

	connectors, err := newConnectorRegistry(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	leaser, err := a.newLeaser(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.engine = sync.NewEngine(store, connectors, logger,
		sync.WithLeaser(leaser),
		sync.WithMetrics(metrics.NewCollector(a.registry)),
		sync.WithConfig(sync.Config{
			ConnectorTimeout: cfg.Sync.ConnectorTimeout,
			PushConcurrency:  cfg.Sync.PushConcurrency,
		}),
	)
	a.service = sync.NewContactService(a.engine)

	return a, nil
}

func (a *app) openStore() (sync.Store, error) {
	switch a.cfg.Database.Driver {
	case "badger":
		store, err := kv.Open(a.cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		database, err := db.OpenDatabase(a.cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		return db.NewStore(database), nil
	}
}

func (a *app) newLeaser(ctx context.Context) (sync.Leaser, error) {
	if a.cfg.Redis.Addr == "" {
		return sync.NewLocalLeaser(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Redis.Addr, err)
	}
	a.closers = append(a.closers, client.Close)

	a.logger.Info("Using Redis tenant lease", zap.String("addr", a.cfg.Redis.Addr))
	return sync.NewRedisLeaser(client, a.cfg.Redis.LeaseTTL, a.logger), nil
}

// newConnectorRegistry registers one factory per configured system, in order.
// "google" is served by the People API, every other name by integration.app.
func newConnectorRegistry(cfg *config.Config, logger *zap.Logger) (*connector.Registry, error) {
	registry := connector.NewRegistry()

	for _, system := range cfg.Sync.Systems {
		var factory connector.Factory
		if system == connector.SystemGoogle {
			factory = connector.GoogleFactory(googleConfig(cfg), logger)
		} else {
			factory = connector.IntegrationAppFactory(integrationAppConfig(cfg), system, logger)
		}
		if err := registry.Register(system, factory); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func googleConfig(cfg *config.Config) connector.GoogleConfig {
	return connector.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		TokenPath:    cfg.Google.TokenPath,
	}
}

func integrationAppConfig(cfg *config.Config) connector.IntegrationAppConfig {
	return connector.IntegrationAppConfig{
		BaseURL:         cfg.IntegrationApp.BaseURL,
		WorkspaceKey:    cfg.IntegrationApp.WorkspaceKey,
		WorkspaceSecret: cfg.IntegrationApp.WorkspaceSecret,
		TokenTTL:        cfg.IntegrationApp.TokenTTL,
		Timeout:         cfg.IntegrationApp.Timeout,
		RateLimit:       cfg.IntegrationApp.RateLimit,
		Burst:           cfg.IntegrationApp.Burst,
	}
}

// Close waits for background cycles, then releases resources in reverse order.
func (a *app) Close() error {
	if a.engine != nil {
		a.engine.Wait()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// open wires the app for a command.
func (c *CLI) open(ctx context.Context) (*app, error) {
	return newApp(ctx, c.cfg, c.logger)
}
