// Package fakeconfig is a fixed-snapshot config.Port test double: no TTL,
// no LedgerPort dependency, just whatever Snapshot the test installs.
package fakeconfig

import (
	"context"
	"sync"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/ledger"
)

type Store struct {
	mu   sync.Mutex
	snap config.Snapshot
}

// New installs snap as the fixed, always-current value.
func New(snap config.Snapshot) *Store {
	return &Store{snap: snap}
}

func (s *Store) Get(_ context.Context) (config.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, nil
}

// Set mutates the installed snapshot in place, ignoring Validate — tests
// that want rejection semantics should call config.Validate directly.
func (s *Store) Set(_ context.Context, key ledger.ConfigKey, value *amount.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case ledger.KeyMinWithdrawal:
		s.snap.MinWithdrawal = *value
	case ledger.KeyDailyWithdrawalCap:
		s.snap.DailyWithdrawalCap = value
	case ledger.KeyBlockReward:
		s.snap.BlockReward = *value
	case ledger.KeyRewardIntervalMinutes:
		s.snap.RewardIntervalMinutes = toInt(*value)
	case ledger.KeyRetentionDays:
		s.snap.RetentionDays = toInt(*value)
	case ledger.KeyOfflineThresholdSeconds:
		s.snap.OfflineThresholdSeconds = toInt(*value)
	case ledger.KeyBlockTimeSeconds:
		s.snap.BlockTimeSeconds = toInt(*value)
	}
	return nil
}

func toInt(a amount.Amount) int {
	n := 0
	s := a.Floor().String()
	for i := 0; i < len(s) && s[i] != '.'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}

var _ config.Port = (*Store)(nil)
