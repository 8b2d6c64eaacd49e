package withdrawal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/chain/fakechain"
	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/config/fakeconfig"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/ledger/memledger"
	"github.com/contribpool/poolcore/internal/poolerr"
	"github.com/contribpool/poolcore/internal/withdrawal"
)

func newFixture(t *testing.T) (*withdrawal.Pipeline, *memledger.Store, *fakechain.Gateway) {
	t.Helper()
	ls := memledger.New()
	ls.SeedUser(&ledger.User{ID: 1, WalletAddress: "0xaaaa", AvailableBalance: amount.MustNew("150")})
	cp := fakeconfig.New(config.Snapshot{MinWithdrawal: amount.MustNew("10")})
	cg := fakechain.New()
	return withdrawal.New(ls, cp, cg), ls, cg
}

func TestRequestBelowMinimumRejected(t *testing.T) {
	p, _, _ := newFixture(t)
	_, err := p.Request(context.Background(), 1, amount.MustNew("5"), "0xdest", nil)
	require.True(t, errors.Is(err, poolerr.ErrBelowMinimum))
}

func TestRequestDebitsAndSettlesSuccessfully(t *testing.T) {
	p, ls, cg := newFixture(t)
	ctx := context.Background()

	id, err := p.Request(ctx, 1, amount.MustNew("100"), "0xdest", nil)
	require.NoError(t, err)

	u, err := ls.GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.AvailableBalance.Equal(amount.MustNew("50")))

	cg.Enqueue(fakechain.Result{TxID: "0xdeadbeef"})
	require.NoError(t, p.RunSettlementTick(ctx))

	w, err := ls.GetWithdrawal(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ledger.WithdrawalCompleted, w.Status)
	require.Equal(t, "0xdeadbeef", *w.TxID)
}

func TestSettlementFailureCompensatesCredit(t *testing.T) {
	p, ls, cg := newFixture(t)
	ctx := context.Background()

	id, err := p.Request(ctx, 1, amount.MustNew("100"), "0xdest", nil)
	require.NoError(t, err)

	cg.Enqueue(fakechain.Result{Err: errors.New("endpoint exhausted")})
	require.NoError(t, p.RunSettlementTick(ctx))

	w, err := ls.GetWithdrawal(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ledger.WithdrawalFailed, w.Status)
	require.NotEmpty(t, w.ErrorText)

	u, err := ls.GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.AvailableBalance.Equal(amount.MustNew("150")), "amount must be credited back on failure")
}

func TestInsufficientBalanceRejected(t *testing.T) {
	p, _, _ := newFixture(t)
	_, err := p.Request(context.Background(), 1, amount.MustNew("1000"), "0xdest", nil)
	require.True(t, errors.Is(err, poolerr.ErrInsufficientBalance))
}

func TestIdempotencyKeyReturnsExistingWithdrawalWithoutDoubleDebit(t *testing.T) {
	p, ls, _ := newFixture(t)
	ctx := context.Background()
	key := "req-1"

	id1, err := p.Request(ctx, 1, amount.MustNew("40"), "0xdest", &key)
	require.NoError(t, err)

	id2, err := p.Request(ctx, 1, amount.MustNew("40"), "0xdest", &key)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	u, err := ls.GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, u.AvailableBalance.Equal(amount.MustNew("110")), "only one debit should have happened")
}

func TestSettlementIdleWhenNoJobs(t *testing.T) {
	_, ls, cg := newFixture(t)
	_ = ls
	p := withdrawal.New(memledger.New(), fakeconfig.New(config.Snapshot{}), cg)
	require.NoError(t, p.RunSettlementTick(context.Background()))
}
