// Package withdrawal implements the Withdrawal Pipeline (§4.4): the
// request path that debits and enqueues a withdrawal, and the
// background settlement worker that drives it to completion via the
// Chain Gateway.
package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	gmetrics "github.com/ethereum/go-ethereum/metrics"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/chain"
	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/poolerr"
)

// staleLease is how long a `processing` row may sit before another
// worker is allowed to reclaim it (§4.4.2).
const staleLease = 5 * time.Minute

var (
	settled    = gmetrics.NewRegisteredCounter("withdrawal/settled", nil)
	failed     = gmetrics.NewRegisteredCounter("withdrawal/failed", nil)
	noJob      = gmetrics.NewRegisteredCounter("withdrawal/worker/idle", nil)
)

// Pipeline wires the request path and the settlement worker over the
// same LS/CP/CG seams.
type Pipeline struct {
	ls  ledger.Port
	cp  config.Port
	cg  chain.Port
	log log.Logger
	now func() time.Time
}

func New(ls ledger.Port, cp config.Port, cg chain.Port) *Pipeline {
	return &Pipeline{ls: ls, cp: cp, cg: cg, log: log.New("component", "withdrawal"), now: time.Now}
}

// Request implements request_withdrawal(user_id, amount, idempotency_key?)
// (§4.4.1). min_withdrawal and daily_withdrawal_cap are both read once,
// at the start of this call.
func (p *Pipeline) Request(ctx context.Context, userID int64, amt amount.Amount, destWallet string, idempotencyKey *string) (int64, error) {
	snap, err := p.cp.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("withdrawal: config snapshot: %w", err)
	}
	if amt.LessThan(snap.MinWithdrawal) {
		return 0, fmt.Errorf("withdrawal: amount %s below minimum %s: %w", amt, snap.MinWithdrawal, poolerr.ErrBelowMinimum)
	}

	id, _, err := p.ls.RequestWithdrawal(ctx, userID, amt, destWallet, idempotencyKey, snap.DailyWithdrawalCap)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RunSettlementTick implements one iteration of §4.4.2's ~2s scheduler:
// pick one job, transition it to processing, call out to the chain
// outside that transaction, then settle the DB state.
func (p *Pipeline) RunSettlementTick(ctx context.Context) error {
	job, err := p.ls.PickSettlementJob(ctx, staleLease)
	if err != nil {
		return fmt.Errorf("withdrawal: pick job: %w", err)
	}
	if job == nil {
		noJob.Inc(1)
		return nil
	}

	txID, err := p.cg.Submit(ctx, job.DestinationWallet, job.Amount)
	if err != nil {
		p.log.Warn("settlement submit failed", "withdrawal_id", job.ID, "err", err)
		if failErr := p.ls.FailWithdrawal(ctx, job.ID, err.Error()); failErr != nil {
			return fmt.Errorf("withdrawal: fail after submit error: %w", failErr)
		}
		failed.Inc(1)
		return nil
	}

	if err := p.ls.CompleteWithdrawal(ctx, job.ID, txID, p.now()); err != nil {
		return fmt.Errorf("withdrawal: complete: %w", err)
	}
	settled.Inc(1)
	return nil
}

// SettlementInterval is the scheduler tick period named in §4.4.2.
const SettlementInterval = 2 * time.Second
