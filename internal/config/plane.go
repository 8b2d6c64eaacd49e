package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/ledger"
)

// ttl is the Config Plane's cache lifetime (§4.5, §3).
const ttl = 30 * time.Second

// Snapshot is a frozen view of every tunable, handed out by Get and held
// constant for the duration of the caller's operation (§4.5's "no
// mid-operation re-read" rule).
type Snapshot struct {
	MinWithdrawal           amount.Amount
	RewardIntervalMinutes   int
	RetentionDays           int
	OfflineThresholdSeconds int
	DailyWithdrawalCap      *amount.Amount // nil = unlimited
	BlockReward             amount.Amount
	BlockTimeSeconds        int
}

// Plane is the Config Plane. Get() is safe for concurrent use; Set()
// persists through ls and clears the cache.
type Plane struct {
	ls  ledger.Port
	log log.Logger
	now func() time.Time

	mu       sync.Mutex
	cached   *Snapshot
	cachedAt time.Time
}

func New(ls ledger.Port) *Plane {
	return &Plane{ls: ls, log: log.New("component", "configplane"), now: time.Now}
}

// Get returns a cached Snapshot if still within ttl, else refreshes from
// the Ledger Store.
func (p *Plane) Get(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	if p.cached != nil && p.now().Sub(p.cachedAt) < ttl {
		snap := *p.cached
		p.mu.Unlock()
		return snap, nil
	}
	p.mu.Unlock()

	entries, err := p.ls.GetAllConfig(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("configplane: refresh: %w", err)
	}
	snap, err := toSnapshot(entries)
	if err != nil {
		return Snapshot{}, err
	}

	p.mu.Lock()
	p.cached = &snap
	p.cachedAt = p.now()
	p.mu.Unlock()

	return snap, nil
}

// Set validates and persists one tunable, then clears the cache so the
// next Get reflects it immediately (§4.5).
func (p *Plane) Set(ctx context.Context, key ledger.ConfigKey, value *amount.Amount) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	if err := p.ls.SetConfig(ctx, key, value, p.now()); err != nil {
		return fmt.Errorf("configplane: set %s: %w", key, err)
	}

	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()

	p.log.Info("config updated", "key", key)
	return nil
}

func intOf(e ledger.ConfigEntry) (int, error) {
	if e.Value == nil {
		return 0, fmt.Errorf("configplane: key %s unexpectedly null", e.Key)
	}
	return toInt(*e.Value), nil
}

func toInt(a amount.Amount) int {
	// Config integers (minutes, days, seconds) are read as whole numbers:
	// Validate checks only the range on write, so any fractional part is
	// dropped here.
	s := a.Floor().String()
	var n int
	var neg bool
	i := 0
	if len(s) > 0 && s[0] == '-' {
		neg = true
		i = 1
	}
	for ; i < len(s) && s[i] != '.'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func toSnapshot(entries map[ledger.ConfigKey]ledger.ConfigEntry) (Snapshot, error) {
	get := func(k ledger.ConfigKey) (ledger.ConfigEntry, error) {
		e, ok := entries[k]
		if !ok {
			return ledger.ConfigEntry{}, fmt.Errorf("configplane: missing required key %s", k)
		}
		return e, nil
	}

	minW, err := get(ledger.KeyMinWithdrawal)
	if err != nil {
		return Snapshot{}, err
	}
	interval, err := get(ledger.KeyRewardIntervalMinutes)
	if err != nil {
		return Snapshot{}, err
	}
	retention, err := get(ledger.KeyRetentionDays)
	if err != nil {
		return Snapshot{}, err
	}
	offline, err := get(ledger.KeyOfflineThresholdSeconds)
	if err != nil {
		return Snapshot{}, err
	}
	cap_, ok := entries[ledger.KeyDailyWithdrawalCap]
	if !ok {
		return Snapshot{}, fmt.Errorf("configplane: missing required key %s", ledger.KeyDailyWithdrawalCap)
	}
	blockReward, err := get(ledger.KeyBlockReward)
	if err != nil {
		return Snapshot{}, err
	}
	blockTime, err := get(ledger.KeyBlockTimeSeconds)
	if err != nil {
		return Snapshot{}, err
	}

	intervalMin, err := intOf(interval)
	if err != nil {
		return Snapshot{}, err
	}
	retentionDays, err := intOf(retention)
	if err != nil {
		return Snapshot{}, err
	}
	offlineSeconds, err := intOf(offline)
	if err != nil {
		return Snapshot{}, err
	}
	blockTimeSeconds, err := intOf(blockTime)
	if err != nil {
		return Snapshot{}, err
	}
	if minW.Value == nil {
		return Snapshot{}, fmt.Errorf("configplane: min_withdrawal unexpectedly null")
	}
	if blockReward.Value == nil {
		return Snapshot{}, fmt.Errorf("configplane: block_reward unexpectedly null")
	}

	return Snapshot{
		MinWithdrawal:           *minW.Value,
		RewardIntervalMinutes:   intervalMin,
		RetentionDays:           retentionDays,
		OfflineThresholdSeconds: offlineSeconds,
		DailyWithdrawalCap:      cap_.Value,
		BlockReward:             *blockReward.Value,
		BlockTimeSeconds:        blockTimeSeconds,
	}, nil
}
