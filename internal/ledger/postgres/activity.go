package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/ledger"
)

// partitionName derives the monthly partition suffix for minuteStart,
// e.g. 2026-07 -> "activities_2026_07".
func partitionName(minuteStart time.Time) (name string, from, to time.Time) {
	monthStart := time.Date(minuteStart.Year(), minuteStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	return fmt.Sprintf("activities_%04d_%02d", monthStart.Year(), monthStart.Month()), monthStart, monthEnd
}

// ensurePartition creates the monthly partition for minuteStart if it
// does not already exist. Idempotent: CREATE TABLE IF NOT EXISTS (§4.7).
func (s *Store) ensurePartition(ctx context.Context, minuteStart time.Time) error {
	name, from, to := partitionName(minuteStart)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s PARTITION OF activities
		FOR VALUES FROM ($1) TO ($2)`, pqIdent(name)), from, to)
	if err != nil {
		return fmt.Errorf("%w: ensure partition %s: %v", errTransient, name, err)
	}
	return nil
}

// pqIdent quotes an identifier we generated ourselves (never user input)
// for safe interpolation into DDL, which lib/pq cannot parameterize.
func pqIdent(name string) string { return `"` + name + `"` }

func (s *Store) InsertActivity(ctx context.Context, userID int64, minuteStart time.Time, rateSnapshot, stakeSnapshot int64, expiresAt time.Time) (bool, error) {
	inserted, err := s.insertActivityOnce(ctx, userID, minuteStart, rateSnapshot, stakeSnapshot, expiresAt)
	if err != nil && isMissingPartition(err) {
		if pErr := s.ensurePartition(ctx, minuteStart); pErr != nil {
			return false, pErr
		}
		return s.insertActivityOnce(ctx, userID, minuteStart, rateSnapshot, stakeSnapshot, expiresAt)
	}
	return inserted, err
}

func (s *Store) insertActivityOnce(ctx context.Context, userID int64, minuteStart time.Time, rateSnapshot, stakeSnapshot int64, expiresAt time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (user_id, minute_start, rate_snapshot, stake_snapshot, reward_credited, expires_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (user_id, minute_start) DO NOTHING`,
		userID, minuteStart, rateSnapshot, stakeSnapshot, expiresAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: insert activity rows affected: %v", errTransient, err)
	}
	return n == 1, nil
}

type activityRow struct {
	UserID         int64        `db:"user_id"`
	MinuteStart    time.Time    `db:"minute_start"`
	RateSnapshot   int64        `db:"rate_snapshot"`
	StakeSnapshot  int64        `db:"stake_snapshot"`
	RewardCredited ledgerAmount `db:"reward_credited"`
	ExpiresAt      time.Time    `db:"expires_at"`
}

func (s *Store) EligibleActivity(ctx context.Context, from, to time.Time) ([]ledger.Activity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []activityRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, minute_start, rate_snapshot, stake_snapshot, reward_credited, expires_at
		FROM activities
		WHERE reward_credited = 0 AND minute_start >= $1 AND minute_start < $2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: eligible activity: %v", errTransient, err)
	}
	out := make([]ledger.Activity, 0, len(rows))
	for _, r := range rows {
		out = append(out, ledger.Activity{
			UserID:         r.UserID,
			MinuteStart:    r.MinuteStart,
			RateSnapshot:   r.RateSnapshot,
			StakeSnapshot:  r.StakeSnapshot,
			RewardCredited: r.RewardCredited.Amount,
			ExpiresAt:      r.ExpiresAt,
		})
	}
	return out, nil
}

// ApplyReward is the per-user transaction of §4.3: credit the balance,
// append a balance_ledger entry, and mark every still-zero row in the
// window, guarded by WHERE reward_credited = 0 for idempotency.
func (s *Store) ApplyReward(ctx context.Context, userID int64, total, perRow amount.Amount, from, to time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET available_balance = available_balance + $2,
			                 lifetime_earned = lifetime_earned + $2
			WHERE user_id = $1`, userID, total); err != nil {
			return fmt.Errorf("%w: credit reward: %v", errTransient, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balance_ledger (user_id, delta, reason, ref_id)
			VALUES ($1, $2, 'reward_credit', $3)`,
			userID, total, fmt.Sprintf("%s..%s", from.Format(time.RFC3339), to.Format(time.RFC3339))); err != nil {
			return fmt.Errorf("%w: append reward ledger entry: %v", errTransient, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE activities SET reward_credited = $4
			WHERE user_id = $1 AND minute_start >= $2 AND minute_start < $3 AND reward_credited = 0`,
			userID, from, to, perRow); err != nil {
			return fmt.Errorf("%w: mark activity rows credited: %v", errTransient, err)
		}
		return nil
	})
}
