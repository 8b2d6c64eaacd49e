// Package config implements the Config Plane (CP, §4.5): a 30-second TTL
// cache over the LS-backed tunables, invalidated on admin write.
package config

import (
	"fmt"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/poolerr"
)

// bound describes the validated range for one tunable (§6's table).
type bound struct {
	min, max amount.Amount
	nullable bool
}

var bounds = map[ledger.ConfigKey]bound{
	ledger.KeyMinWithdrawal:           {min: amount.NewFromInt(1), max: amount.MustNew("1000000")},
	ledger.KeyRewardIntervalMinutes:   {min: amount.NewFromInt(1), max: amount.NewFromInt(60)},
	ledger.KeyRetentionDays:           {min: amount.NewFromInt(1), max: amount.NewFromInt(365)},
	ledger.KeyOfflineThresholdSeconds: {min: amount.NewFromInt(30), max: amount.NewFromInt(600)},
	ledger.KeyDailyWithdrawalCap:      {min: amount.Zero, max: amount.MustNew("5000000"), nullable: true},
	ledger.KeyBlockReward:             {min: amount.MustNew("0.000000000000000001"), max: amount.MustNew("1000000")},
	ledger.KeyBlockTimeSeconds:        {min: amount.NewFromInt(1), max: amount.NewFromInt(60)},
}

// Validate enforces §6's closed key set and per-key [min, max] bounds,
// rejecting unknown keys at the boundary (§9's design note).
func Validate(key ledger.ConfigKey, value *amount.Amount) error {
	b, ok := bounds[key]
	if !ok {
		return fmt.Errorf("unknown config key %q: %w", key, poolerr.ErrInvalidInput)
	}
	if value == nil {
		if !b.nullable {
			return fmt.Errorf("config key %q is not nullable: %w", key, poolerr.ErrInvalidInput)
		}
		return nil
	}
	if value.LessThan(b.min) || value.GreaterThan(b.max) {
		return fmt.Errorf("config key %q value %s out of range [%s, %s]: %w",
			key, value, b.min, b.max, poolerr.ErrInvalidInput)
	}
	return nil
}
