package admin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/contribpool/poolcore/internal/admin"
	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/config/fakeconfig"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/ledger/memledger"
	"github.com/contribpool/poolcore/internal/poolerr"
)

func TestRetryCreditsBackThenRedebits(t *testing.T) {
	ls := memledger.New()
	ls.SeedUser(&ledger.User{ID: 1, WalletAddress: "0xaaaa", AvailableBalance: amount.MustNew("120")})
	cp := fakeconfig.New(config.Snapshot{MinWithdrawal: amount.MustNew("1")})

	id, _, err := ls.RequestWithdrawal(context.Background(), 1, amount.MustNew("100"), "0xdest", nil, nil)
	require.NoError(t, err)
	// FailWithdrawal only acts on `processing` rows; force it there first.
	_, err = ls.PickSettlementJob(context.Background(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, ls.FailWithdrawal(context.Background(), id, "boom"))

	ops := admin.New(ls, cp)
	require.NoError(t, ops.Retry(context.Background(), id))

	w, err := ls.GetWithdrawal(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ledger.WithdrawalPending, w.Status)

	u, err := ls.GetUser(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, u.AvailableBalance.Equal(amount.MustNew("20")))
}

func TestRetryInsufficientBalanceFails(t *testing.T) {
	ls := memledger.New()
	ls.SeedUser(&ledger.User{ID: 1, WalletAddress: "0xaaaa", AvailableBalance: amount.MustNew("120")})
	cp := fakeconfig.New(config.Snapshot{MinWithdrawal: amount.MustNew("1")})

	id, _, err := ls.RequestWithdrawal(context.Background(), 1, amount.MustNew("100"), "0xdest", nil, nil)
	require.NoError(t, err)
	_, err = ls.PickSettlementJob(context.Background(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, ls.FailWithdrawal(context.Background(), id, "boom"))

	// available is back to 120 after the compensating credit; drain enough
	// of it that a re-debit of 100 cannot succeed.
	_, _, err = ls.RequestWithdrawal(context.Background(), 1, amount.MustNew("25"), "0xdest2", nil, nil)
	require.NoError(t, err)

	ops := admin.New(ls, cp)
	err = ops.Retry(context.Background(), id)
	require.True(t, errors.Is(err, poolerr.ErrInsufficientBalance))
}

func TestForceFailTruncatesReason(t *testing.T) {
	ls := memledger.New()
	ls.SeedUser(&ledger.User{ID: 1, WalletAddress: "0xaaaa", AvailableBalance: amount.MustNew("120")})
	cp := fakeconfig.New(config.Snapshot{})

	id, _, err := ls.RequestWithdrawal(context.Background(), 1, amount.MustNew("50"), "0xdest", nil, nil)
	require.NoError(t, err)

	ops := admin.New(ls, cp)
	longReason := make([]byte, 1000)
	for i := range longReason {
		longReason[i] = 'x'
	}
	require.NoError(t, ops.ForceFail(context.Background(), id, string(longReason)))

	w, err := ls.GetWithdrawal(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ledger.WithdrawalFailed, w.Status)
	require.LessOrEqual(t, len(w.ErrorText), 512)

	u, err := ls.GetUser(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, u.AvailableBalance.Equal(amount.MustNew("120")))
}
