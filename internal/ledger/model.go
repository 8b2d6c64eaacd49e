// Package ledger defines the durable data model (§3) and the LedgerPort
// seam (§9) that every component uses instead of talking to Postgres
// directly. Concrete transports (postgres, an in-memory fake for tests)
// live in sibling packages and only need to satisfy Port.
package ledger

import (
	"time"

	"github.com/contribpool/poolcore/internal/amount"
)

// Status is a user's liveness state, mutated by Activity Ingest and the
// Liveness Sweeper.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// User is the identity and balance record of §3.
type User struct {
	ID               int64
	WalletAddress    string // 0x + 40 hex, stored lower-case, unique case-insensitively
	DeviceTag        string
	ReportedRate     int64 // capped at 1e12
	AvailableBalance amount.Amount
	LifetimeEarned   amount.Amount
	LastSignalAt     *time.Time
	Status           Status
}

// Activity is one (user, minute) liveness record, partitioned by month.
type Activity struct {
	UserID         int64
	MinuteStart    time.Time // UTC minute boundary
	RateSnapshot   int64
	StakeSnapshot  int64 // populated only when the stake-weighted emission strategy is active
	RewardCredited amount.Amount
	ExpiresAt      time.Time
}

// WithdrawalStatus is the lifecycle state of a Withdrawal row (§3).
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
)

// Withdrawal is one withdrawal request/settlement row.
type Withdrawal struct {
	ID                 int64
	UserID             int64
	Amount             amount.Amount
	DestinationWallet  string
	Status             WithdrawalStatus
	TxID               *string
	RequestedAt        time.Time
	CompletedAt        *time.Time
	ErrorText          string
	IdempotencyKey     *string
}

// ConfigKey is the closed set of dynamic tunables (§6).
type ConfigKey string

const (
	KeyMinWithdrawal           ConfigKey = "min_withdrawal"
	KeyRewardIntervalMinutes   ConfigKey = "reward_interval_minutes"
	KeyRetentionDays           ConfigKey = "retention_days"
	KeyOfflineThresholdSeconds ConfigKey = "offline_threshold_seconds"
	KeyDailyWithdrawalCap      ConfigKey = "daily_withdrawal_cap"
	KeyBlockReward             ConfigKey = "block_reward"
	KeyBlockTimeSeconds        ConfigKey = "block_time_seconds"
)

// ConfigEntry is one row of the `config` table.
type ConfigEntry struct {
	Key       ConfigKey
	Value     *amount.Amount // nil means "unlimited", only valid for KeyDailyWithdrawalCap
	UpdatedAt time.Time
}

// BalanceLedgerEntry is the append-only audit trail supplementing §3 so
// the invariants of §8 are reconstructable independent of current-state
// columns (grounded on replay-api's LedgerRepository entry shape).
type BalanceLedgerEntry struct {
	ID        int64
	UserID    int64
	Delta     amount.Amount // positive = credit, negative = debit
	Reason    string        // "reward_credit", "withdrawal_debit", "withdrawal_compensate", "admin_retry_debit"
	RefID     string        // withdrawal id or activity window tag
	CreatedAt time.Time
}
