package maintenance

import (
	"context"
	"time"
)

const (
	PurgePendingJob   = "purge-pending-results"
	LimiterCleanupJob = "limiter-cleanup"
)

// Purger removes expired pending results.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// IdleCleaner drops entries unused for longer than idle.
type IdleCleaner interface {
	Cleanup(idle time.Duration) int
}

// PurgePending removes expired pending results every hour.
func PurgePending(p Purger) Job {
	return Job{
		Name:     PurgePendingJob,
		Schedule: "@hourly",
		Run: func(ctx context.Context) error {
			_, err := p.PurgeExpired(ctx)
			return err
		},
	}
}

// CleanupLimiters drops rate limiter buckets idle for more than idle, every
// ten minutes.
func CleanupLimiters(c IdleCleaner, idle time.Duration) Job {
	return Job{
		Name:     LimiterCleanupJob,
		Schedule: "@every 10m",
		Run: func(context.Context) error {
			c.Cleanup(idle)
			return nil
		},
	}
}
