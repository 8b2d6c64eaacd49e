package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/poolerr"
)

type userRow struct {
	UserID           int64          `db:"user_id"`
	WalletAddress    string         `db:"wallet_address"`
	DeviceType       string         `db:"device_type"`
	ReportedRate     int64          `db:"reported_rate"`
	AvailableBalance ledgerAmount   `db:"available_balance"`
	LifetimeEarned   ledgerAmount   `db:"lifetime_earned"`
	LastSignalAt     nullableTime   `db:"last_signal_at"`
	Status           string         `db:"status"`
}

func (r userRow) toDomain() *ledger.User {
	u := &ledger.User{
		ID:               r.UserID,
		WalletAddress:    r.WalletAddress,
		DeviceTag:        r.DeviceType,
		ReportedRate:     r.ReportedRate,
		AvailableBalance: r.AvailableBalance.Amount,
		LifetimeEarned:   r.LifetimeEarned.Amount,
		Status:           ledger.Status(r.Status),
	}
	if r.LastSignalAt.Valid {
		t := r.LastSignalAt.Time
		u.LastSignalAt = &t
	}
	return u
}

func (s *Store) GetUser(ctx context.Context, userID int64) (*ledger.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, wallet_address, device_type, reported_rate,
		       available_balance, lifetime_earned, last_signal_at, status
		FROM users WHERE user_id = $1`, userID)
	if err != nil {
		if noRows(err) {
			return nil, poolerr.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: get user: %v", errTransient, err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetUserByWallet(ctx context.Context, wallet string) (*ledger.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, wallet_address, device_type, reported_rate,
		       available_balance, lifetime_earned, last_signal_at, status
		FROM users WHERE LOWER(wallet_address) = LOWER($1)`, wallet)
	if err != nil {
		if noRows(err) {
			return nil, poolerr.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: get user by wallet: %v", errTransient, err)
	}
	return row.toDomain(), nil
}

func (s *Store) RecordSignal(ctx context.Context, userID int64, now time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_signal_at = $2, status = 'online' WHERE user_id = $1`,
		userID, now)
	if err != nil {
		return fmt.Errorf("%w: record signal: %v", errTransient, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: record signal rows affected: %v", errTransient, err)
	}
	if n == 0 {
		return poolerr.ErrUserNotFound
	}
	return nil
}

func (s *Store) MarkOfflineStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET status = 'offline'
		WHERE status = 'online' AND last_signal_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: mark offline: %v", errTransient, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: mark offline rows affected: %v", errTransient, err)
	}
	return n, nil
}
