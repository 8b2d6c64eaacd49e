package sweeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/config/fakeconfig"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/ledger/memledger"
	"github.com/contribpool/poolcore/internal/sweeper"
)

func TestSweepMarksStaleUsersOffline(t *testing.T) {
	ls := memledger.New()
	stale := time.Now().Add(-10 * time.Minute)
	fresh := time.Now()
	ls.SeedUser(&ledger.User{ID: 1, WalletAddress: "0xaaaa", Status: ledger.StatusOnline, LastSignalAt: &stale})
	ls.SeedUser(&ledger.User{ID: 2, WalletAddress: "0xbbbb", Status: ledger.StatusOnline, LastSignalAt: &fresh})

	cp := fakeconfig.New(config.Snapshot{OfflineThresholdSeconds: 60})
	sw := sweeper.New(ls, cp)

	require.NoError(t, sw.Sweep(context.Background()))

	u1, err := ls.GetUser(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusOffline, u1.Status)

	u2, err := ls.GetUser(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusOnline, u2.Status)
}

func TestIntervalFloorsAtOneSecond(t *testing.T) {
	require.Equal(t, time.Second, sweeper.Interval(1))
	require.Equal(t, 20*time.Second, sweeper.Interval(60))
}
