package config

import (
	"context"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/ledger"
)

// Port is the seam components downstream of the Config Plane depend on,
// so Activity Ingest, the Reward Engine, and the Withdrawal Pipeline can
// be tested against a fake snapshot instead of a live Plane.
type Port interface {
	Get(ctx context.Context) (Snapshot, error)
	Set(ctx context.Context, key ledger.ConfigKey, value *amount.Amount) error
}

var _ Port = (*Plane)(nil)
