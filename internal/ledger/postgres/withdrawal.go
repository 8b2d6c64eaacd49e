package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/poolerr"
)

// RequestWithdrawal implements §4.4.1. It resolves idempotency *before*
// debiting: if (user_id, idempotency_key) already has a row, no second
// debit ever happens and no compensating credit is needed, which the
// spec's note (§4.4.1) allows as one of the two acceptable orderings.
func (s *Store) RequestWithdrawal(ctx context.Context, userID int64, amt amount.Amount, dest string, idempotencyKey *string, dailyCap *amount.Amount) (int64, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var id int64
	var existing bool

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var locked struct {
			Balance ledgerAmount `db:"available_balance"`
		}
		if err := tx.GetContext(ctx, &locked, `
			SELECT available_balance FROM users WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
			if noRows(err) {
				return poolerr.ErrUserNotFound
			}
			return fmt.Errorf("%w: lock user: %v", errTransient, err)
		}

		if idempotencyKey != nil {
			var existingID int64
			err := tx.GetContext(ctx, &existingID, `
				SELECT id FROM withdrawals WHERE user_id = $1 AND idempotency_key = $2`,
				userID, *idempotencyKey)
			if err == nil {
				id, existing = existingID, true
				return nil
			}
			if !noRows(err) {
				return fmt.Errorf("%w: idempotency lookup: %v", errTransient, err)
			}
		}

		if dailyCap != nil {
			dayStart := time.Now().UTC().Truncate(24 * time.Hour)
			var sum ledgerAmount
			if err := tx.GetContext(ctx, &sum, `
				SELECT COALESCE(SUM(amount), 0) FROM withdrawals
				WHERE user_id = $1 AND requested_at >= $2
				  AND status IN ('pending', 'processing', 'completed')`, userID, dayStart); err != nil {
				return fmt.Errorf("%w: daily cap sum: %v", errTransient, err)
			}
			if sum.Amount.Add(amt).GreaterThan(*dailyCap) {
				return poolerr.ErrDailyLimitExceeded
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE users SET available_balance = available_balance - $2
			WHERE user_id = $1 AND available_balance >= $2`, userID, amt)
		if err != nil {
			return fmt.Errorf("%w: conditional debit: %v", errTransient, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: debit rows affected: %v", errTransient, err)
		}
		if n == 0 {
			return poolerr.ErrInsufficientBalance
		}

		var newID int64
		if err := tx.GetContext(ctx, &newID, `
			INSERT INTO withdrawals (user_id, amount, destination_wallet, status, idempotency_key)
			VALUES ($1, $2, $3, 'pending', $4) RETURNING id`,
			userID, amt, dest, idempotencyKey); err != nil {
			return fmt.Errorf("%w: insert withdrawal: %v", errTransient, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balance_ledger (user_id, delta, reason, ref_id)
			VALUES ($1, $2, 'withdrawal_debit', $3)`, userID, amt.Mul(amount.NewFromInt(-1)), fmt.Sprint(newID)); err != nil {
			return fmt.Errorf("%w: append debit ledger entry: %v", errTransient, err)
		}

		id, existing = newID, false
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return id, existing, nil
}

type withdrawalRow struct {
	ID                int64          `db:"id"`
	UserID            int64          `db:"user_id"`
	Amount            ledgerAmount   `db:"amount"`
	DestinationWallet string         `db:"destination_wallet"`
	Status            string         `db:"status"`
	TxID              *string        `db:"tx_id"`
	RequestedAt       time.Time      `db:"requested_at"`
	CompletedAt       nullableTime   `db:"completed_at"`
	ErrorText         string         `db:"error_text"`
	IdempotencyKey    *string        `db:"idempotency_key"`
}

func (r withdrawalRow) toDomain() *ledger.Withdrawal {
	w := &ledger.Withdrawal{
		ID:                r.ID,
		UserID:            r.UserID,
		Amount:            r.Amount.Amount,
		DestinationWallet: r.DestinationWallet,
		Status:            ledger.WithdrawalStatus(r.Status),
		TxID:              r.TxID,
		RequestedAt:       r.RequestedAt,
		ErrorText:         r.ErrorText,
		IdempotencyKey:    r.IdempotencyKey,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		w.CompletedAt = &t
	}
	return w
}

func (s *Store) GetWithdrawal(ctx context.Context, id int64) (*ledger.Withdrawal, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row withdrawalRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, amount, destination_wallet, status, tx_id,
		       requested_at, completed_at, error_text, idempotency_key
		FROM withdrawals WHERE id = $1`, id)
	if err != nil {
		if noRows(err) {
			return nil, fmt.Errorf("withdrawal %d: %w", id, poolerr.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: get withdrawal: %v", errTransient, err)
	}
	return row.toDomain(), nil
}

// PickSettlementJob implements the two-stage job selection of §4.4.2:
// prefer the oldest pending row, falling back to a stale-leased
// processing row, both under FOR UPDATE SKIP LOCKED so concurrent
// workers never double-pick the same row.
func (s *Store) PickSettlementJob(ctx context.Context, staleLease time.Duration) (*ledger.Withdrawal, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out *ledger.Withdrawal
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row withdrawalRow
		err := tx.GetContext(ctx, &row, `
			SELECT id, user_id, amount, destination_wallet, status, tx_id,
			       requested_at, completed_at, error_text, idempotency_key
			FROM withdrawals
			WHERE status = 'pending'
			ORDER BY requested_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1`)
		if err != nil && !noRows(err) {
			return fmt.Errorf("%w: pick pending job: %v", errTransient, err)
		}
		if err != nil {
			staleCutoff := time.Now().UTC().Add(-staleLease)
			err = tx.GetContext(ctx, &row, `
				SELECT id, user_id, amount, destination_wallet, status, tx_id,
				       requested_at, completed_at, error_text, idempotency_key
				FROM withdrawals
				WHERE status = 'processing' AND requested_at < $1
				ORDER BY requested_at
				FOR UPDATE SKIP LOCKED
				LIMIT 1`, staleCutoff)
			if err != nil {
				if noRows(err) {
					return nil
				}
				return fmt.Errorf("%w: pick stale job: %v", errTransient, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE withdrawals SET status = 'processing' WHERE id = $1`, row.ID); err != nil {
			return fmt.Errorf("%w: mark processing: %v", errTransient, err)
		}
		row.Status = string(ledger.WithdrawalProcessing)
		out = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CompleteWithdrawal(ctx context.Context, id int64, txID string, now time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE withdrawals SET status = 'completed', tx_id = $2, completed_at = $3
		WHERE id = $1 AND status = 'processing'`, id, txID, now)
	if err != nil {
		return fmt.Errorf("%w: complete withdrawal: %v", errTransient, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: complete withdrawal rows affected: %v", errTransient, err)
	}
	if n == 0 {
		s.log.Warn("complete withdrawal raced with another transition", "id", id)
	}
	return nil
}

// FailWithdrawal implements §4.4.2's failure branch: a single transaction
// sets status=failed and credits the amount back, guarded by WHERE
// status='processing' so a racing completion can never be compensated
// twice.
func (s *Store) FailWithdrawal(ctx context.Context, id int64, errText string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row withdrawalRow
		if err := tx.GetContext(ctx, &row, `
			SELECT id, user_id, amount, destination_wallet, status, tx_id,
			       requested_at, completed_at, error_text, idempotency_key
			FROM withdrawals WHERE id = $1 FOR UPDATE`, id); err != nil {
			if noRows(err) {
				return fmt.Errorf("withdrawal %d: %w", id, poolerr.ErrInvalidInput)
			}
			return fmt.Errorf("%w: lock withdrawal: %v", errTransient, err)
		}
		if row.Status != string(ledger.WithdrawalProcessing) {
			s.log.Warn("fail withdrawal raced: no longer processing", "id", id, "status", row.Status)
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE withdrawals SET status = 'failed', error_text = $2
			WHERE id = $1 AND status = 'processing'`, id, truncateErrText(errText)); err != nil {
			return fmt.Errorf("%w: mark failed: %v", errTransient, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET available_balance = available_balance + $2 WHERE user_id = $1`,
			row.UserID, row.Amount.Amount); err != nil {
			return fmt.Errorf("%w: compensate credit: %v", errTransient, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balance_ledger (user_id, delta, reason, ref_id)
			VALUES ($1, $2, 'withdrawal_compensate', $3)`, row.UserID, row.Amount.Amount, fmt.Sprint(id)); err != nil {
			return fmt.Errorf("%w: append compensate ledger entry: %v", errTransient, err)
		}
		return nil
	})
}

const maxErrTextLen = 512

func truncateErrText(s string) string {
	if len(s) <= maxErrTextLen {
		return s
	}
	return s[:maxErrTextLen]
}

// RetryAdmin implements §4.4.3: re-debit a failed withdrawal and return
// it to pending with a fresh requested_at.
func (s *Store) RetryAdmin(ctx context.Context, id int64, now time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row withdrawalRow
		if err := tx.GetContext(ctx, &row, `
			SELECT id, user_id, amount, destination_wallet, status, tx_id,
			       requested_at, completed_at, error_text, idempotency_key
			FROM withdrawals WHERE id = $1 FOR UPDATE`, id); err != nil {
			if noRows(err) {
				return fmt.Errorf("withdrawal %d: %w", id, poolerr.ErrInvalidInput)
			}
			return fmt.Errorf("%w: lock withdrawal: %v", errTransient, err)
		}
		if row.Status != string(ledger.WithdrawalFailed) {
			return fmt.Errorf("withdrawal %d not failed (status=%s): %w", id, row.Status, poolerr.ErrInvalidInput)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE users SET available_balance = available_balance - $2
			WHERE user_id = $1 AND available_balance >= $2`, row.UserID, row.Amount.Amount)
		if err != nil {
			return fmt.Errorf("%w: re-debit: %v", errTransient, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: re-debit rows affected: %v", errTransient, err)
		}
		if n == 0 {
			return poolerr.ErrInsufficientBalance
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE withdrawals SET status = 'pending', tx_id = NULL, error_text = '', requested_at = $2
			WHERE id = $1`, id, now); err != nil {
			return fmt.Errorf("%w: reset to pending: %v", errTransient, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balance_ledger (user_id, delta, reason, ref_id)
			VALUES ($1, $2, 'admin_retry_debit', $3)`, row.UserID, row.Amount.Amount.Mul(amount.NewFromInt(-1)), fmt.Sprint(id)); err != nil {
			return fmt.Errorf("%w: append retry ledger entry: %v", errTransient, err)
		}
		return nil
	})
}

// ForceFailAdmin implements §4.4.3: credit back and fail any non-failed
// row, or only update error_text on an already-failed row.
func (s *Store) ForceFailAdmin(ctx context.Context, id int64, reason string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	reason = truncateErrText(reason)
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row withdrawalRow
		if err := tx.GetContext(ctx, &row, `
			SELECT id, user_id, amount, destination_wallet, status, tx_id,
			       requested_at, completed_at, error_text, idempotency_key
			FROM withdrawals WHERE id = $1 FOR UPDATE`, id); err != nil {
			if noRows(err) {
				return fmt.Errorf("withdrawal %d: %w", id, poolerr.ErrInvalidInput)
			}
			return fmt.Errorf("%w: lock withdrawal: %v", errTransient, err)
		}

		if row.Status == string(ledger.WithdrawalFailed) {
			_, err := tx.ExecContext(ctx, `UPDATE withdrawals SET error_text = $2 WHERE id = $1`, id, reason)
			if err != nil {
				return fmt.Errorf("%w: update error text: %v", errTransient, err)
			}
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE withdrawals SET status = 'failed', error_text = $2 WHERE id = $1`, id, reason); err != nil {
			return fmt.Errorf("%w: force fail: %v", errTransient, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET available_balance = available_balance + $2 WHERE user_id = $1`,
			row.UserID, row.Amount.Amount); err != nil {
			return fmt.Errorf("%w: force fail credit back: %v", errTransient, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balance_ledger (user_id, delta, reason, ref_id)
			VALUES ($1, $2, 'withdrawal_compensate', $3)`, row.UserID, row.Amount.Amount, fmt.Sprint(id)); err != nil {
			return fmt.Errorf("%w: append force-fail ledger entry: %v", errTransient, err)
		}
		return nil
	})
}
