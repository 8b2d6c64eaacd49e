// Package sweeper implements the Liveness Sweeper (LSW, §4.2): on an
// interval tied to offline_threshold_seconds, mark every stale user
// offline in one statement. No per-user work, no interleaving.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/ledger"
)

type Sweeper struct {
	ls  ledger.Port
	cp  config.Port
	log log.Logger
	now func() time.Time
}

func New(ls ledger.Port, cp config.Port) *Sweeper {
	return &Sweeper{ls: ls, cp: cp, log: log.New("component", "sweeper"), now: time.Now}
}

// Sweep reads offline_threshold_seconds fresh on each invocation (it's
// the only value this task needs, so CP's single-snapshot-per-operation
// rule is trivially satisfied) and marks every user whose last_signal_at
// predates the cutoff as offline.
func (s *Sweeper) Sweep(ctx context.Context) error {
	snap, err := s.cp.Get(ctx)
	if err != nil {
		return fmt.Errorf("sweeper: config snapshot: %w", err)
	}
	cutoff := s.now().Add(-time.Duration(snap.OfflineThresholdSeconds) * time.Second)

	n, err := s.ls.MarkOfflineStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweeper: mark offline: %w", err)
	}
	if n > 0 {
		s.log.Info("marked users offline", "count", n, "cutoff", cutoff)
	}
	return nil
}

// Interval returns how often Sweep should run: a fraction of the
// threshold so no user can stay falsely online for much longer than the
// threshold itself, floored at one second.
func Interval(offlineThresholdSeconds int) time.Duration {
	d := time.Duration(offlineThresholdSeconds) * time.Second / 3
	if d < time.Second {
		return time.Second
	}
	return d
}
