// ABOUTME: Periodic sync trigger over the configured tenants
// ABOUTME: Ticker loop with a semaphore bounding concurrent tenant cycles
package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CycleRunner runs one cycle for a tenant.
type CycleRunner interface {
	RunCycle(ctx context.Context, tenantID string) (*Summary, error)
}

// Scheduler runs a cycle for every tenant on each tick. Tenants run in
// parallel up to maxConcurrency; the tenant lease keeps each one exclusive.
type Scheduler struct {
	runner         CycleRunner
	tenants        []string
	logger         *zap.Logger
	maxConcurrency int
}

func NewScheduler(runner CycleRunner, tenants []string, logger *zap.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		runner:         runner,
		tenants:        tenants,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start runs immediately, then on every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Sync scheduler started",
		zap.Duration("interval", interval),
		zap.Int("tenants", len(s.tenants)),
	)

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sync scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs one cycle per tenant and waits for all of them.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, tenant := range s.tenants {
		wg.Add(1)
		sem <- struct{}{}

		go func(tenantID string) {
			defer wg.Done()
			defer func() { <-sem }()

			summary, err := s.runner.RunCycle(ctx, tenantID)
			switch {
			case errors.Is(err, ErrCycleInProgress):
				s.logger.Info("Skipping tenant, cycle already running", zap.String("tenant", tenantID))
			case err != nil:
				s.logger.Error("Scheduled sync failed", zap.String("tenant", tenantID), zap.Error(err))
			default:
				s.logger.Debug("Scheduled sync finished",
					zap.String("tenant", tenantID),
					zap.Int("errors", summary.Errors()),
				)
			}
		}(tenant)
	}

	wg.Wait()

	s.logger.Info("Scheduled sync round complete",
		zap.Int("tenants", len(s.tenants)),
		zap.Duration("duration", time.Since(start)),
	)
}
