package retention_test

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
	"github.com/contribpool/poolcore/internal/retention"
)

func TestRunOnceDeletesExpiredActivityAndOldWithdrawals(t *testing.T) {
	ls := memledger.New()
	ls.SeedUser(&ledger.User{ID: 1, WalletAddress: "0xaaaa", AvailableBalance: amount.MustNew("500")})
	cp := fakeconfig.New(config.Snapshot{RetentionDays: 30})
	ctx := context.Background()

	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	longAgo := time.Now().UTC().Add(-120 * 24 * time.Hour)

	_, err := ls.InsertActivity(ctx, 1, old.Truncate(time.Minute), 10, 0, old)
	require.NoError(t, err)
	_, err = ls.InsertActivity(ctx, 1, recent.Truncate(time.Minute), 10, 0, recent.Add(30*24*time.Hour))
	require.NoError(t, err)

	id, _, err := ls.RequestWithdrawal(ctx, 1, amount.MustNew("50"), "0xdest", nil, nil)
	require.NoError(t, err)
	_, err = ls.PickSettlementJob(ctx, time.Hour)
	require.NoError(t, err)
	require.NoError(t, ls.CompleteWithdrawal(ctx, id, "0xdeadbeef", longAgo))

	r := retention.New(ls, cp)
	require.NoError(t, r.RunOnce(ctx))

	remaining, err := ls.EligibleActivity(ctx, recent.Truncate(time.Minute).Add(-time.Minute), recent.Truncate(time.Minute).Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	_, err = ls.GetWithdrawal(ctx, id)
	require.Error(t, err, "old completed withdrawal should have been deleted")
}
