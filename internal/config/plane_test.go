package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/ledger/memledger"
)

func seedDefaults(t *testing.T, ls *memledger.Store) {
	t.Helper()
	ls.SeedConfig(ledger.KeyMinWithdrawal, ptr(amount.MustNew("10")))
	ls.SeedConfig(ledger.KeyRewardIntervalMinutes, ptr(amount.NewFromInt(5)))
	ls.SeedConfig(ledger.KeyRetentionDays, ptr(amount.NewFromInt(30)))
	ls.SeedConfig(ledger.KeyOfflineThresholdSeconds, ptr(amount.NewFromInt(120)))
	ls.SeedConfig(ledger.KeyDailyWithdrawalCap, nil)
	ls.SeedConfig(ledger.KeyBlockReward, ptr(amount.MustNew("2.5")))
	ls.SeedConfig(ledger.KeyBlockTimeSeconds, ptr(amount.NewFromInt(12)))
}

func ptr(a amount.Amount) *amount.Amount { return &a }

func TestPlaneGetReturnsSeededSnapshot(t *testing.T) {
	ls := memledger.New()
	seedDefaults(t, ls)
	p := config.New(ls)

	snap, err := p.Get(context.Background())
	require.NoError(t, err)
	require.True(t, snap.MinWithdrawal.Equal(amount.MustNew("10")))
	require.Equal(t, 5, snap.RewardIntervalMinutes)
	require.Equal(t, 30, snap.RetentionDays)
	require.Equal(t, 120, snap.OfflineThresholdSeconds)
	require.Nil(t, snap.DailyWithdrawalCap)
	require.Equal(t, 12, snap.BlockTimeSeconds)
}

func TestPlaneCachesWithinTTL(t *testing.T) {
	ls := memledger.New()
	seedDefaults(t, ls)
	p := config.New(ls)
	ctx := context.Background()

	_, err := p.Get(ctx)
	require.NoError(t, err)

	ls.SetConfig(ctx, ledger.KeyMinWithdrawal, ptr(amount.MustNew("999")), time.Now())

	snap, err := p.Get(ctx)
	require.NoError(t, err)
	require.True(t, snap.MinWithdrawal.Equal(amount.MustNew("10")), "cached value should not reflect the direct LS write")
}

func TestSetInvalidatesCache(t *testing.T) {
	ls := memledger.New()
	seedDefaults(t, ls)
	p := config.New(ls)
	ctx := context.Background()

	_, err := p.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Set(ctx, ledger.KeyMinWithdrawal, ptr(amount.MustNew("50"))))

	snap, err := p.Get(ctx)
	require.NoError(t, err)
	require.True(t, snap.MinWithdrawal.Equal(amount.MustNew("50")))
}

func TestSetRejectsOutOfRange(t *testing.T) {
	ls := memledger.New()
	seedDefaults(t, ls)
	p := config.New(ls)

	err := p.Set(context.Background(), ledger.KeyOfflineThresholdSeconds, ptr(amount.NewFromInt(5)))
	require.Error(t, err)
}

func TestValidateRejectsUnknownKey(t *testing.T) {
	require.Error(t, config.Validate(ledger.ConfigKey("not_a_real_key"), ptr(amount.NewFromInt(1))))
}

func TestValidateRejectsNonNullableNull(t *testing.T) {
	require.Error(t, config.Validate(ledger.KeyMinWithdrawal, nil))
}

func TestValidateAllowsNullableNull(t *testing.T) {
	require.NoError(t, config.Validate(ledger.KeyDailyWithdrawalCap, nil))
}
