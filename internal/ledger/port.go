package ledger

import (
	"context"
	"time"

	"github.com/contribpool/poolcore/internal/amount"
)

// Port is the narrow seam every component depends on instead of a
// concrete database handle (§9's "explicit interface seams" note).
// Implementations: postgres (production), memledger (tests).
type Port interface {
	// GetUser returns ErrUserNotFound (via the error, checked with
	// errors.Is against poolerr.ErrUserNotFound by callers) when absent.
	GetUser(ctx context.Context, userID int64) (*User, error)
	GetUserByWallet(ctx context.Context, wallet string) (*User, error)

	// RecordSignal updates last_signal_at/status=online for userID.
	RecordSignal(ctx context.Context, userID int64, now time.Time) error

	// InsertActivity inserts one activity row, creating the monthly
	// partition and retrying once if it is missing (§4.1, §4.7).
	// inserted is false if a row for (userID, minuteStart) already exists.
	InsertActivity(ctx context.Context, userID int64, minuteStart time.Time, rateSnapshot int64, stakeSnapshot int64, expiresAt time.Time) (inserted bool, err error)

	// MarkOfflineStale sets status=offline for every user whose
	// last_signal_at is older than cutoff, in one statement (§4.2).
	MarkOfflineStale(ctx context.Context, cutoff time.Time) (affected int64, err error)

	// EligibleActivity returns every activity row with reward_credited=0
	// and minute_start in [from, to), for the reward engine's window.
	EligibleActivity(ctx context.Context, from, to time.Time) ([]Activity, error)

	// ApplyReward credits a user's balance and marks their rows in the
	// window, all inside one transaction, guarded by WHERE
	// reward_credited = 0 for idempotency (§4.3). perRow is floor-rounded
	// by the caller before this is invoked.
	ApplyReward(ctx context.Context, userID int64, totalReward amount.Amount, perRow amount.Amount, from, to time.Time) error

	// RequestWithdrawal performs the full §4.4.1 sequence: conditional
	// debit, daily-cap check, idempotency-key resolution. Returns the
	// withdrawal id (new or pre-existing) and whether it pre-existed.
	RequestWithdrawal(ctx context.Context, userID int64, amt amount.Amount, dest string, idempotencyKey *string, dailyCap *amount.Amount) (id int64, existing bool, err error)

	// PickSettlementJob selects and transitions one row to `processing`
	// under FOR UPDATE SKIP LOCKED, preferring oldest pending, falling
	// back to stale processing rows (§4.4.2). Returns nil, nil if none
	// available.
	PickSettlementJob(ctx context.Context, staleLease time.Duration) (*Withdrawal, error)

	// CompleteWithdrawal marks a processing row completed with tx_id.
	CompleteWithdrawal(ctx context.Context, id int64, txID string, now time.Time) error

	// FailWithdrawal marks a processing row failed and credits the
	// amount back, guarded by WHERE status='processing' against a
	// racing completion (§4.4.2).
	FailWithdrawal(ctx context.Context, id int64, errText string) error

	// RetryAdmin re-debits a failed withdrawal and returns it to pending
	// with a fresh requested_at (§4.4.3).
	RetryAdmin(ctx context.Context, id int64, now time.Time) error

	// ForceFailAdmin credits back and fails any non-failed row, or just
	// updates error_text on an already-failed row (§4.4.3).
	ForceFailAdmin(ctx context.Context, id int64, reason string) error

	GetWithdrawal(ctx context.Context, id int64) (*Withdrawal, error)

	// GetAllConfig returns every config row for CP's snapshot (§4.5).
	GetAllConfig(ctx context.Context) (map[ConfigKey]ConfigEntry, error)
	SetConfig(ctx context.Context, key ConfigKey, value *amount.Amount, now time.Time) error

	// DeleteExpiredActivity and DeleteOldCompletedWithdrawals implement
	// the retention job (§4.7), deleting in bounded batches.
	DeleteExpiredActivity(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	DeleteOldCompletedWithdrawals(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}
