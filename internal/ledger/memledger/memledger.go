// Package memledger is the in-memory ledger.Port test double described
// in §9's design note ("a test double implements the interface; no
// production code branches on 'am I in a test'").
package memledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/poolerr"
)

type activityKey struct {
	userID      int64
	minuteStart int64
}

// Store is a single-process, mutex-guarded ledger.Port fake.
type Store struct {
	mu sync.Mutex

	users      map[int64]*ledger.User
	nextUserID int64

	activities map[activityKey]*ledger.Activity

	withdrawals   map[int64]*ledger.Withdrawal
	nextWithdID   int64
	idemIndex     map[string]int64 // "userID:key" -> withdrawal id

	config map[ledger.ConfigKey]ledger.ConfigEntry

	ledgerEntries []ledger.BalanceLedgerEntry
}

func New() *Store {
	return &Store{
		users:       make(map[int64]*ledger.User),
		nextUserID:  1,
		activities:  make(map[activityKey]*ledger.Activity),
		withdrawals: make(map[int64]*ledger.Withdrawal),
		nextWithdID: 1,
		idemIndex:   make(map[string]int64),
		config:      make(map[ledger.ConfigKey]ledger.ConfigEntry),
	}
}

// SeedUser installs a user with a fixed id for test setup.
func (s *Store) SeedUser(u *ledger.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextUserID
	}
	if u.ID >= s.nextUserID {
		s.nextUserID = u.ID + 1
	}
	s.users[u.ID] = u
}

func (s *Store) SeedConfig(key ledger.ConfigKey, value *amount.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = ledger.ConfigEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
}

func (s *Store) LedgerEntries() []ledger.BalanceLedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.BalanceLedgerEntry, len(s.ledgerEntries))
	copy(out, s.ledgerEntries)
	return out
}

func (s *Store) appendEntry(userID int64, delta amount.Amount, reason, refID string) {
	s.ledgerEntries = append(s.ledgerEntries, ledger.BalanceLedgerEntry{
		ID: int64(len(s.ledgerEntries) + 1), UserID: userID, Delta: delta,
		Reason: reason, RefID: refID, CreatedAt: time.Now().UTC(),
	})
}

func (s *Store) GetUser(_ context.Context, userID int64) (*ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, poolerr.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByWallet(_ context.Context, wallet string) (*ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if eqFold(u.WalletAddress, wallet) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, poolerr.ErrUserNotFound
}

func eqFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (s *Store) RecordSignal(_ context.Context, userID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return poolerr.ErrUserNotFound
	}
	t := now
	u.LastSignalAt = &t
	u.Status = ledger.StatusOnline
	return nil
}

func (s *Store) MarkOfflineStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.Status == ledger.StatusOnline && u.LastSignalAt != nil && u.LastSignalAt.Before(cutoff) {
			u.Status = ledger.StatusOffline
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertActivity(_ context.Context, userID int64, minuteStart time.Time, rateSnapshot, stakeSnapshot int64, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := activityKey{userID, minuteStart.Unix()}
	if _, exists := s.activities[key]; exists {
		return false, nil
	}
	s.activities[key] = &ledger.Activity{
		UserID: userID, MinuteStart: minuteStart, RateSnapshot: rateSnapshot,
		StakeSnapshot: stakeSnapshot, RewardCredited: amount.Zero, ExpiresAt: expiresAt,
	}
	return true, nil
}

func (s *Store) EligibleActivity(_ context.Context, from, to time.Time) ([]ledger.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Activity
	for _, a := range s.activities {
		if a.RewardCredited.IsZero() && !a.MinuteStart.Before(from) && a.MinuteStart.Before(to) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].MinuteStart.Before(out[j].MinuteStart)
	})
	return out, nil
}

func (s *Store) ApplyReward(_ context.Context, userID int64, total, perRow amount.Amount, from, to time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return poolerr.ErrUserNotFound
	}
	u.AvailableBalance = u.AvailableBalance.Add(total)
	u.LifetimeEarned = u.LifetimeEarned.Add(total)
	s.appendEntry(userID, total, "reward_credit", fmt.Sprintf("%d-%d", from.Unix(), to.Unix()))

	for k, a := range s.activities {
		if k.userID == userID && !a.MinuteStart.Before(from) && a.MinuteStart.Before(to) && a.RewardCredited.IsZero() {
			a.RewardCredited = perRow
		}
	}
	return nil
}

func (s *Store) RequestWithdrawal(_ context.Context, userID int64, amt amount.Amount, dest string, idempotencyKey *string, dailyCap *amount.Amount) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, false, poolerr.ErrUserNotFound
	}

	if idempotencyKey != nil {
		if id, found := s.idemIndex[idemKey(userID, *idempotencyKey)]; found {
			return id, true, nil
		}
	}

	if dailyCap != nil {
		dayStart := time.Now().UTC().Truncate(24 * time.Hour)
		sum := amount.Zero
		for _, w := range s.withdrawals {
			if w.UserID != userID || w.RequestedAt.Before(dayStart) {
				continue
			}
			if w.Status == ledger.WithdrawalPending || w.Status == ledger.WithdrawalProcessing || w.Status == ledger.WithdrawalCompleted {
				sum = sum.Add(w.Amount)
			}
		}
		if sum.Add(amt).GreaterThan(*dailyCap) {
			return 0, false, poolerr.ErrDailyLimitExceeded
		}
	}

	if !u.AvailableBalance.GreaterOrEqual(amt) {
		return 0, false, poolerr.ErrInsufficientBalance
	}
	u.AvailableBalance = u.AvailableBalance.Sub(amt)

	id := s.nextWithdID
	s.nextWithdID++
	s.withdrawals[id] = &ledger.Withdrawal{
		ID: id, UserID: userID, Amount: amt, DestinationWallet: dest,
		Status: ledger.WithdrawalPending, RequestedAt: time.Now().UTC(), IdempotencyKey: idempotencyKey,
	}
	if idempotencyKey != nil {
		s.idemIndex[idemKey(userID, *idempotencyKey)] = id
	}
	s.appendEntry(userID, amt.Mul(amount.NewFromInt(-1)), "withdrawal_debit", fmt.Sprint(id))
	return id, false, nil
}

func idemKey(userID int64, key string) string { return fmt.Sprintf("%d:%s", userID, key) }

func (s *Store) PickSettlementJob(_ context.Context, staleLease time.Duration) (*ledger.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id := range s.withdrawals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.withdrawals[ids[i]].RequestedAt.Before(s.withdrawals[ids[j]].RequestedAt) })

	for _, id := range ids {
		w := s.withdrawals[id]
		if w.Status == ledger.WithdrawalPending {
			w.Status = ledger.WithdrawalProcessing
			cp := *w
			return &cp, nil
		}
	}
	cutoff := time.Now().UTC().Add(-staleLease)
	for _, id := range ids {
		w := s.withdrawals[id]
		if w.Status == ledger.WithdrawalProcessing && w.RequestedAt.Before(cutoff) {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CompleteWithdrawal(_ context.Context, id int64, txID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok || w.Status != ledger.WithdrawalProcessing {
		return nil
	}
	w.Status = ledger.WithdrawalCompleted
	tx := txID
	w.TxID = &tx
	t := now
	w.CompletedAt = &t
	return nil
}

func (s *Store) FailWithdrawal(_ context.Context, id int64, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok || w.Status != ledger.WithdrawalProcessing {
		return nil
	}
	w.Status = ledger.WithdrawalFailed
	w.ErrorText = errText
	u := s.users[w.UserID]
	u.AvailableBalance = u.AvailableBalance.Add(w.Amount)
	s.appendEntry(w.UserID, w.Amount, "withdrawal_compensate", fmt.Sprint(id))
	return nil
}

func (s *Store) RetryAdmin(_ context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return fmt.Errorf("withdrawal %d: %w", id, poolerr.ErrInvalidInput)
	}
	if w.Status != ledger.WithdrawalFailed {
		return fmt.Errorf("withdrawal %d not failed: %w", id, poolerr.ErrInvalidInput)
	}
	u := s.users[w.UserID]
	if !u.AvailableBalance.GreaterOrEqual(w.Amount) {
		return poolerr.ErrInsufficientBalance
	}
	u.AvailableBalance = u.AvailableBalance.Sub(w.Amount)
	w.Status = ledger.WithdrawalPending
	w.TxID = nil
	w.ErrorText = ""
	w.RequestedAt = now
	s.appendEntry(w.UserID, w.Amount.Mul(amount.NewFromInt(-1)), "admin_retry_debit", fmt.Sprint(id))
	return nil
}

func (s *Store) ForceFailAdmin(_ context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return fmt.Errorf("withdrawal %d: %w", id, poolerr.ErrInvalidInput)
	}
	if w.Status == ledger.WithdrawalFailed {
		w.ErrorText = reason
		return nil
	}
	u := s.users[w.UserID]
	u.AvailableBalance = u.AvailableBalance.Add(w.Amount)
	w.Status = ledger.WithdrawalFailed
	w.ErrorText = reason
	s.appendEntry(w.UserID, w.Amount, "withdrawal_compensate", fmt.Sprint(id))
	return nil
}

func (s *Store) GetWithdrawal(_ context.Context, id int64) (*ledger.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %d: %w", id, poolerr.ErrInvalidInput)
	}
	cp := *w
	return &cp, nil
}

func (s *Store) GetAllConfig(_ context.Context) (map[ledger.ConfigKey]ledger.ConfigEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ledger.ConfigKey]ledger.ConfigEntry, len(s.config))
	for k, v := range s.config {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SetConfig(_ context.Context, key ledger.ConfigKey, value *amount.Amount, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = ledger.ConfigEntry{Key: key, Value: value, UpdatedAt: now}
	return nil
}

func (s *Store) DeleteExpiredActivity(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, a := range s.activities {
		if int(n) >= batchSize {
			break
		}
		if a.ExpiresAt.Before(cutoff) {
			delete(s.activities, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteOldCompletedWithdrawals(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, w := range s.withdrawals {
		if int(n) >= batchSize {
			break
		}
		if w.Status == ledger.WithdrawalCompleted && w.CompletedAt != nil && w.CompletedAt.Before(cutoff) {
			delete(s.withdrawals, id)
			n++
		}
	}
	return n, nil
}

var _ ledger.Port = (*Store)(nil)
