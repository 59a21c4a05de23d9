package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/farxc/rcs-reporting/internal/logger"
)

// Cron runs a job on a standard five-field schedule.
type Cron struct {
	c *cron.Cron
}

func NewCron(spec string, timeout time.Duration, job func(ctx context.Context) error, log *logger.Logger) (*Cron, error) {
	if log == nil {
		log = logger.Discard()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := job(ctx); err != nil {
			log.Error(component, "Scheduled job failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Cron{c: c}, nil
}

func (c *Cron) Start() { c.c.Start() }

// Stop halts scheduling and waits for a running job or ctx, whichever ends
// first.
func (c *Cron) Stop(ctx context.Context) {
	done := c.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Next is the next activation time, zero before Start.
func (c *Cron) Next() time.Time {
	entries := c.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
