// Package retention runs the data-retention job of §4.7 on a calendar
// schedule via robfig/cron, rather than a fixed ticker: batched deletes
// only need to run once a day, and a cron expression in the process
// config lets an operator move the run off peak hours without a
// redeploy.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	gmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/robfig/cron/v3"

	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/ledger"
)

// batchSize bounds each DELETE so a single run never holds a long-lived
// lock over the whole table (§4.7).
const batchSize = 5000

var (
	activityDeleted   = gmetrics.NewRegisteredCounter("retention/activity_deleted", nil)
	withdrawalDeleted = gmetrics.NewRegisteredCounter("retention/withdrawal_deleted", nil)
	runFailures       = gmetrics.NewRegisteredCounter("retention/run_failures", nil)
)

// Runner deletes expired activity rows and old completed withdrawals
// past their retention window.
type Runner struct {
	ls  ledger.Port
	cp  config.Port
	log log.Logger
	now func() time.Time

	cron *cron.Cron
}

func New(ls ledger.Port, cp config.Port) *Runner {
	return &Runner{
		ls:  ls,
		cp:  cp,
		log: log.New("component", "retention"),
		now: time.Now,
	}
}

// completedWithdrawalRetention is how long a completed withdrawal is kept
// after its completed_at.
const completedWithdrawalRetention = 90 * 24 * time.Hour

// RunOnce deletes every activity row whose expires_at (set at insert from
// retention_days) has passed and every withdrawal completed more than 90
// days ago, in bounded batches, looping each delete to completion before
// moving to the next table.
func (r *Runner) RunOnce(ctx context.Context) error {
	now := r.now().UTC()
	withdrawalCutoff := now.Add(-completedWithdrawalRetention)

	for {
		n, err := r.ls.DeleteExpiredActivity(ctx, now, batchSize)
		if err != nil {
			return fmt.Errorf("retention: delete expired activity: %w", err)
		}
		activityDeleted.Inc(n)
		if n < batchSize {
			break
		}
	}

	for {
		n, err := r.ls.DeleteOldCompletedWithdrawals(ctx, withdrawalCutoff, batchSize)
		if err != nil {
			return fmt.Errorf("retention: delete old withdrawals: %w", err)
		}
		withdrawalDeleted.Inc(n)
		if n < batchSize {
			break
		}
	}

	return nil
}

// Start schedules RunOnce on schedule (a standard five-field cron
// expression, e.g. "0 3 * * *" for 03:00 daily) and returns immediately.
// Call Stop to drain any in-flight run on shutdown.
func (r *Runner) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := r.RunOnce(ctx); err != nil {
			runFailures.Inc(1)
			r.log.Error("retention run failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("retention: bad schedule %q: %w", schedule, err)
	}
	r.cron = c
	c.Start()
	return nil
}

// Stop blocks until any in-flight run finishes.
func (r *Runner) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
