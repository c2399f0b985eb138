// Package maintenance runs periodic housekeeping jobs.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clicklone/clicklone/internal/app/system"
	"github.com/clicklone/clicklone/internal/logging"
)

var _ system.Service = (*Janitor)(nil)

const defaultJobTimeout = time.Minute

// Job is a scheduled task. Schedule uses the five-field cron syntax or a
// descriptor such as "@every 10m".
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Janitor runs jobs on a cron schedule for the lifetime of the server.
type Janitor struct {
	jobs    []Job
	log     *logging.Logger
	timeout time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewJanitor creates a scheduler for jobs.
func NewJanitor(log *logging.Logger, jobs ...Job) *Janitor {
	if log == nil {
		log = logging.NewDefault("maintenance")
	}
	return &Janitor{jobs: jobs, log: log, timeout: defaultJobTimeout}
}

func (j *Janitor) Name() string { return "maintenance" }

func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}

	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(cron.Recover(cron.PrintfLogger(j.log)), cron.SkipIfStillRunning(cron.PrintfLogger(j.log))),
	)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	for _, job := range j.jobs {
		job := job
		if _, err := c.AddFunc(job.Schedule, func() { j.run(runCtx, job) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	c.Start()

	j.cron = c
	j.cancel = cancel
	j.running = true
	j.log.WithField("jobs", len(j.jobs)).Info("maintenance scheduler started")
	return nil
}

func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	c, cancel := j.cron, j.cancel
	j.running = false
	j.cron = nil
	j.cancel = nil
	j.mu.Unlock()

	done := c.Stop()
	cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	j.log.Info("maintenance scheduler stopped")
	return nil
}

// RunNow executes the named job synchronously.
func (j *Janitor) RunNow(ctx context.Context, name string) error {
	for _, job := range j.jobs {
		if job.Name == name {
			return j.run(ctx, job)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (j *Janitor) run(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	entry := j.log.WithField("job", job.Name).WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		entry.WithError(err).Warn("maintenance job failed")
		return err
	}
	entry.Debug("maintenance job finished")
	return nil
}
