// Package jobs runs periodic maintenance for the auth server.
package jobs

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/dealerdesk/internal/logging"
	"github.com/dmitrijs2005/dealerdesk/internal/server/metrics"
	"github.com/robfig/cron/v3"
)

// Purger removes reset tokens that can no longer be redeemed.
type Purger interface {
	PurgeStale(ctx context.Context) (int64, error)
}

// Janitor purges stale password reset tokens on a cron schedule.
type Janitor struct {
	cron    *cron.Cron
	purger  Purger
	metrics *metrics.Metrics
	logger  logging.Logger
}

// NewJanitor parses schedule (standard five-field cron or descriptors such
// as "@hourly") and returns a janitor that has not been started yet.
func NewJanitor(schedule string, p Purger, m *metrics.Metrics, l logging.Logger) (*Janitor, error) {
	j := &Janitor{
		cron:    cron.New(),
		purger:  p,
		metrics: m,
		logger:  l.With("module", "janitor"),
	}

	if _, err := j.cron.AddFunc(schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce performs a single purge and returns the number of rows removed.
// Failures are logged; the next scheduled run retries.
func (j *Janitor) RunOnce(ctx context.Context) int64 {
	n, err := j.purger.PurgeStale(ctx)
	if err != nil {
		j.logger.Error(ctx, "purging reset tokens", "error", err)
		return 0
	}
	j.metrics.Purged(n)
	if n > 0 {
		j.logger.Info(ctx, "purged reset tokens", "count", n)
	}
	return n
}

// Run starts the scheduler and blocks until ctx is cancelled and any
// running purge has finished.
func (j *Janitor) Run(ctx context.Context) error {
	j.logger.Info(ctx, "Starting janitor")
	j.cron.Start()

	<-ctx.Done()

	j.logger.Info(ctx, "Stopping janitor...")
	<-j.cron.Stop().Done()
	return nil
}
