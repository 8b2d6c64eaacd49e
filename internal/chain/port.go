// Package chain defines the Chain Gateway (CG) seam: the only component
// allowed to submit outbound settlement transactions (§4.6). Every other
// component reaches the chain only through Port.
package chain

import (
	"context"

	"github.com/contribpool/poolcore/internal/amount"
)

// Port is what the Withdrawal Pipeline depends on.
type Port interface {
	// Submit sends amt to toAddress and returns the chain's transaction id.
	// Implementations never retry internally past their configured
	// endpoint list; the caller (the settlement worker) owns retry
	// scheduling across PickSettlementJob leases (§4.4.2).
	Submit(ctx context.Context, toAddress string, amt amount.Amount) (txID string, err error)
}
