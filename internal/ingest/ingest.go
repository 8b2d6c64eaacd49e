// Package ingest implements Activity Ingest (AI, §4.1): validates each
// liveness signal, enforces the per-worker rate limit, marks the worker
// online, and writes at most one activity record per (worker, minute).
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	gmetrics "github.com/ethereum/go-ethereum/metrics"

	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/ephemeral"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/poolerr"
)

// maxSignalsPerMinute is the per-worker rate cap (§4.1).
const maxSignalsPerMinute = 15

const (
	rateWindow = 60 * time.Second
	dedupTTL   = 120 * time.Second
)

var (
	signalsAccepted = gmetrics.NewRegisteredCounter("ingest/signal/accepted", nil)
	signalsLimited  = gmetrics.NewRegisteredCounter("ingest/signal/ratelimited", nil)
	signalsDeduped  = gmetrics.NewRegisteredCounter("ingest/signal/deduped", nil)
)

// Ingest holds the LS/ES seams and a clock, injectable for tests.
type Ingest struct {
	ls  ledger.Port
	es  ephemeral.Port
	cp  config.Port
	log log.Logger
	now func() time.Time
}

func New(ls ledger.Port, es ephemeral.Port, cp config.Port) *Ingest {
	return &Ingest{ls: ls, es: es, cp: cp, log: log.New("component", "ingest"), now: time.Now}
}

// RecordSignal implements record_signal(user_id, source_address?) (§4.1).
// source_address is accepted for symmetry with the boundary HTTP layer's
// request-signature verification (§6); this core does not interpret it
// beyond that.
func (ig *Ingest) RecordSignal(ctx context.Context, userID int64, sourceAddress string) error {
	user, err := ig.ls.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	now := ig.now()
	bucket := now.Truncate(time.Minute)
	rateKey := fmt.Sprintf("ai:rate:%d:%d", userID, bucket.Unix())

	n, err := ig.es.Incr(ctx, rateKey, rateWindow)
	if err != nil {
		return fmt.Errorf("ingest: rate incr: %w", err)
	}
	if n > maxSignalsPerMinute {
		signalsLimited.Inc(1)
		return fmt.Errorf("ingest: user %d exceeded %d signals/min: %w", userID, maxSignalsPerMinute, poolerr.ErrRateLimited)
	}

	if err := ig.ls.RecordSignal(ctx, userID, now); err != nil {
		return fmt.Errorf("ingest: record signal: %w", err)
	}

	dedupKey := fmt.Sprintf("ai:dedup:%d:%d", userID, bucket.Unix())
	claimed, err := ig.es.SetNX(ctx, dedupKey, dedupTTL)
	if err != nil {
		return fmt.Errorf("ingest: dedup claim: %w", err)
	}
	if !claimed {
		signalsDeduped.Inc(1)
		signalsAccepted.Inc(1)
		return nil
	}

	snap, err := ig.cp.Get(ctx)
	if err != nil {
		return fmt.Errorf("ingest: config snapshot: %w", err)
	}
	expiresAt := now.Add(time.Duration(snap.RetentionDays) * 24 * time.Hour)

	stakeSnapshot := int64(0)
	if _, err := ig.ls.InsertActivity(ctx, userID, bucket, user.ReportedRate, stakeSnapshot, expiresAt); err != nil {
		return fmt.Errorf("ingest: insert activity: %w", err)
	}

	signalsAccepted.Inc(1)
	return nil
}
