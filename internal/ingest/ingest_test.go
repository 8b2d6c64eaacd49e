package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/config/fakeconfig"
	"github.com/contribpool/poolcore/internal/ephemeral/memstore"
	"github.com/contribpool/poolcore/internal/ingest"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/ledger/memledger"
	"github.com/contribpool/poolcore/internal/poolerr"
)

func newFixture(t *testing.T) (*ingest.Ingest, *memledger.Store) {
	t.Helper()
	ls := memledger.New()
	ls.SeedUser(&ledger.User{ID: 1, WalletAddress: "0x" + "11", ReportedRate: 1000, Status: ledger.StatusOffline})
	es := memstore.New()
	cp := fakeconfig.New(config.Snapshot{RetentionDays: 30})
	return ingest.New(ls, es, cp), ls
}

func TestRecordSignalMarksOnlineAndInsertsActivity(t *testing.T) {
	ig, ls := newFixture(t)
	err := ig.RecordSignal(context.Background(), 1, "")
	require.NoError(t, err)

	u, err := ls.GetUser(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusOnline, u.Status)
	require.NotNil(t, u.LastSignalAt)

	minute := u.LastSignalAt.Truncate(time.Minute)
	rows, err := ls.EligibleActivity(context.Background(), minute, minute.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRecordSignalUnknownUser(t *testing.T) {
	ig, _ := newFixture(t)
	err := ig.RecordSignal(context.Background(), 999, "")
	require.True(t, errors.Is(err, poolerr.ErrUserNotFound))
}

func TestRecordSignalRateLimitsAt15PerMinute(t *testing.T) {
	ig, _ := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		require.NoError(t, ig.RecordSignal(ctx, 1, ""))
	}
	err := ig.RecordSignal(ctx, 1, "")
	require.True(t, errors.Is(err, poolerr.ErrRateLimited))
}

func TestRecordSignalOnlyOneActivityRowPerMinute(t *testing.T) {
	ig, ls := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, ig.RecordSignal(ctx, 1, ""))
	}

	now := time.Now().Truncate(time.Minute)
	rows, err := ls.EligibleActivity(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
