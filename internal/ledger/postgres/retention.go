package postgres

import (
	"context"
	"fmt"
	"time"
)

// DeleteExpiredActivity and DeleteOldCompletedWithdrawals implement the
// retention job of §4.7, deleting in bounded batches via ctid subqueries
// so a single run never holds a long-lived lock over the whole table.
func (s *Store) DeleteExpiredActivity(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM activities WHERE ctid IN (
			SELECT ctid FROM activities WHERE expires_at < $1 LIMIT $2
		)`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired activity: %v", errTransient, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired activity rows affected: %v", errTransient, err)
	}
	return n, nil
}

func (s *Store) DeleteOldCompletedWithdrawals(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM withdrawals WHERE id IN (
			SELECT id FROM withdrawals
			WHERE status = 'completed' AND completed_at < $1
			LIMIT $2
		)`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("%w: delete old withdrawals: %v", errTransient, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete old withdrawals rows affected: %v", errTransient, err)
	}
	return n, nil
}
