package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/ledger"
)

type configRow struct {
	Key       string         `db:"key"`
	Value     nullableAmount `db:"value"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (s *Store) GetAllConfig(ctx context.Context) (map[ledger.ConfigKey]ledger.ConfigEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []configRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value, updated_at FROM config`); err != nil {
		return nil, fmt.Errorf("%w: get all config: %v", errTransient, err)
	}
	out := make(map[ledger.ConfigKey]ledger.ConfigEntry, len(rows))
	for _, r := range rows {
		entry := ledger.ConfigEntry{Key: ledger.ConfigKey(r.Key), UpdatedAt: r.UpdatedAt}
		if r.Value.Valid {
			v := r.Value.Val
			entry.Value = &v
		}
		out[entry.Key] = entry
	}
	return out, nil
}

// SetConfig upserts one tunable (§4.5). value == nil is only meaningful
// for daily_withdrawal_cap; callers validate bounds before calling this.
func (s *Store) SetConfig(ctx context.Context, key ledger.ConfigKey, value *amount.Amount, now time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var dbValue interface{}
	if value != nil {
		dbValue = *value
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		string(key), dbValue, now)
	if err != nil {
		return fmt.Errorf("%w: set config: %v", errTransient, err)
	}
	return nil
}
