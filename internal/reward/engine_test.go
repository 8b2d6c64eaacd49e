package reward_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/config/fakeconfig"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/ledger/memledger"
	"github.com/contribpool/poolcore/internal/reward"
)

func TestRunCycleSplitsEmissionProportionally(t *testing.T) {
	ls := memledger.New()
	ls.SeedUser(&ledger.User{ID: 1, WalletAddress: "0xaaaa", AvailableBalance: amount.Zero, LifetimeEarned: amount.Zero})
	ls.SeedUser(&ledger.User{ID: 2, WalletAddress: "0xbbbb", AvailableBalance: amount.Zero, LifetimeEarned: amount.Zero})

	now := time.Now().UTC().Truncate(time.Minute)
	minute := now.Add(-time.Minute)
	_, err := ls.InsertActivity(context.Background(), 1, minute, 30, 0, now.Add(24*time.Hour))
	require.NoError(t, err)
	_, err = ls.InsertActivity(context.Background(), 2, minute, 70, 0, now.Add(24*time.Hour))
	require.NoError(t, err)

	cp := fakeconfig.New(config.Snapshot{
		BlockReward:      amount.MustNew("6"),
		BlockTimeSeconds: 60,
	})

	e := reward.New(ls, cp, nil)
	require.NoError(t, e.RunCycle(context.Background(), 2))

	u1, err := ls.GetUser(context.Background(), 1)
	require.NoError(t, err)
	u2, err := ls.GetUser(context.Background(), 2)
	require.NoError(t, err)

	// emission_per_minute = (60/60) * 6 = 6; split 30/100 and 70/100.
	require.True(t, u1.AvailableBalance.Equal(amount.MustNew("1.8")), "user1 got %s", u1.AvailableBalance)
	require.True(t, u2.AvailableBalance.Equal(amount.MustNew("4.2")), "user2 got %s", u2.AvailableBalance)
}

func TestRunCycleIsIdempotentOverSameWindow(t *testing.T) {
	ls := memledger.New()
	ls.SeedUser(&ledger.User{ID: 1, WalletAddress: "0xaaaa"})

	now := time.Now().UTC().Truncate(time.Minute)
	minute := now.Add(-time.Minute)
	_, err := ls.InsertActivity(context.Background(), 1, minute, 10, 0, now.Add(24*time.Hour))
	require.NoError(t, err)

	cp := fakeconfig.New(config.Snapshot{BlockReward: amount.MustNew("6"), BlockTimeSeconds: 60})
	e := reward.New(ls, cp, nil)

	require.NoError(t, e.RunCycle(context.Background(), 2))
	u, err := ls.GetUser(context.Background(), 1)
	require.NoError(t, err)
	first := u.AvailableBalance

	require.NoError(t, e.RunCycle(context.Background(), 2))
	u, err = ls.GetUser(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, u.AvailableBalance.Equal(first), "re-running the cycle over the same window must not credit twice")
}

func TestRunCycleSkipsEmptyWindow(t *testing.T) {
	ls := memledger.New()
	cp := fakeconfig.New(config.Snapshot{BlockReward: amount.MustNew("6"), BlockTimeSeconds: 60})
	e := reward.New(ls, cp, nil)
	require.NoError(t, e.RunCycle(context.Background(), 2))
}
