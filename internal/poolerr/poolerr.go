// Package poolerr declares the stable, external error kinds of the pool
// core (spec §7) and the correlation-id wrapping that keeps internal
// identifiers from leaking past the boundary.
package poolerr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel kinds. Each maps to exactly one stable external code; callers
// compare with errors.Is, never by string.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUserNotFound        = errors.New("user not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrBelowMinimum        = errors.New("below minimum withdrawal")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDailyLimitExceeded  = errors.New("daily withdrawal limit exceeded")
	ErrStaleOrReused       = errors.New("stale or reused request")
	ErrTransientLedger     = errors.New("transient ledger error")
	ErrChainFailure        = errors.New("chain failure")
	ErrPartitionMissing    = errors.New("partition missing")
)

// Code is the stable machine-readable code surfaced to callers.
type Code string

const (
	CodeInvalidInput        Code = "invalid_input"
	CodeUserNotFound        Code = "user_not_found"
	CodeRateLimited         Code = "rate_limited"
	CodeBelowMinimum        Code = "below_minimum"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeDailyLimitExceeded  Code = "daily_limit_exceeded"
	CodeStaleOrReused       Code = "stale_or_reused_request"
	CodeTransientLedger     Code = "internal"
	CodeChainFailure        Code = "internal"
	CodePartitionMissing    Code = "internal"
	CodeUnknown             Code = "internal"
)

var kindToCode = map[error]Code{
	ErrInvalidInput:        CodeInvalidInput,
	ErrUserNotFound:        CodeUserNotFound,
	ErrRateLimited:         CodeRateLimited,
	ErrBelowMinimum:        CodeBelowMinimum,
	ErrInsufficientBalance: CodeInsufficientBalance,
	ErrDailyLimitExceeded:  CodeDailyLimitExceeded,
	ErrStaleOrReused:       CodeStaleOrReused,
	ErrTransientLedger:     CodeTransientLedger,
	ErrChainFailure:        CodeChainFailure,
	ErrPartitionMissing:    CodePartitionMissing,
}

// Fault is a user-visible failure: a stable code, a correlation id, and an
// optional remediation hint. It never carries internal identifiers beyond
// the correlation id (§7).
type Fault struct {
	Code          Code
	CorrelationID string
	Hint          string
	cause         error
}

func (f *Fault) Error() string {
	if f.Hint != "" {
		return fmt.Sprintf("%s (%s) [%s]", f.Code, f.Hint, f.CorrelationID)
	}
	return fmt.Sprintf("%s [%s]", f.Code, f.CorrelationID)
}

func (f *Fault) Unwrap() error { return f.cause }

// Wrap converts an internal error into a user-visible Fault, classifying
// it by the nearest matching sentinel kind via errors.Is.
func Wrap(err error, hint string) *Fault {
	if err == nil {
		return nil
	}
	var existing *Fault
	if errors.As(err, &existing) {
		return existing
	}
	code := CodeUnknown
	for kind, c := range kindToCode {
		if errors.Is(err, kind) {
			code = c
			break
		}
	}
	return &Fault{
		Code:          code,
		CorrelationID: uuid.NewString(),
		Hint:          hint,
		cause:         err,
	}
}
