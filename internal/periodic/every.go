// Package periodic provides the every(interval) scheduler helper used
// to drive the Liveness Sweeper, the Reward Engine, and the withdrawal
// settlement worker on a fixed tick with clean shutdown (§9's design
// note). Retention cleanup runs on its own cron schedule instead.
package periodic

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Run calls fn every interval until ctx is cancelled, logging (not
// propagating) errors so one bad tick doesn't stop the loop. The first
// call happens after the first tick, not immediately, matching a plain
// time.Ticker.
func Run(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	logger := log.New("task", name)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logger.Error("periodic task failed", "err", err)
			}
		}
	}
}

// Group wires a set of periodic tasks under one errgroup so a single
// Start/Wait pair governs the whole fleet's shutdown (cmd/poolcored
// wiring).
type Group struct {
	g   *errgroup.Group
	ctx context.Context
}

func NewGroup(ctx context.Context) (*Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &Group{g: g, ctx: gctx}, gctx
}

// Go starts fn every interval as a goroutine in the group. fn errors are
// only logged inside Run; Go itself never returns an error, so Wait()
// only unblocks on ctx cancellation.
func (gr *Group) Go(interval time.Duration, name string, fn func(context.Context) error) {
	gr.g.Go(func() error {
		Run(gr.ctx, interval, name, fn)
		return nil
	})
}

func (gr *Group) Wait() error { return gr.g.Wait() }
