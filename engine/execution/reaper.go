package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/robfig/cron/v3"
)

const reapTimeout = 30 * time.Second

// Reaper fails running records that no process is going to finish, such as
// executions orphaned by a crash.
type Reaper struct {
	records    Repository
	staleAfter time.Duration
	schedule   cron.Schedule
	cron       *cron.Cron
	now        func() time.Time
}

func NewReaper(records Repository, cfg *config.ReaperConfig) (*Reaper, error) {
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.StaleAfter <= 0 {
		return nil, fmt.Errorf("reaper stale_after must be positive, got %s", cfg.StaleAfter)
	}
	return &Reaper{
		records:    records,
		staleAfter: cfg.StaleAfter,
		schedule:   schedule,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start runs the reaper on its schedule until Stop.
func (r *Reaper) Start(ctx context.Context) {
	r.cron = cron.New()
	r.cron.Schedule(r.schedule, cron.FuncJob(func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reapTimeout)
		defer cancel()
		if _, err := r.Reap(runCtx); err != nil {
			logger.FromContext(runCtx).Warn("Failed to reap stale executions", "error", err)
		}
	}))
	r.cron.Start()
}

// Stop halts scheduling and waits for a running pass to finish.
func (r *Reaper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// Reap fails every running record started more than staleAfter ago.
func (r *Reaper) Reap(ctx context.Context) (int64, error) {
	now := r.now()
	failure := fail(router.ErrExecutionFailedCode, "execution abandoned")
	n, err := r.records.FailStale(ctx, now.Add(-r.staleAfter), &Terminal{
		Level:   LevelError,
		EndedAt: now,
		Response: &ResponseSnapshot{
			Error:  failure,
			Timing: Timing{CompletedAt: now},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failing stale executions: %w", err)
	}
	if n > 0 {
		logger.FromContext(ctx).Info("Reaped stale executions", "count", n)
	}
	recordReaped(ctx, n)
	return n, nil
}
