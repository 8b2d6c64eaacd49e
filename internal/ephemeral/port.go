// Package ephemeral defines the Ephemeral Store (ES) seam: rate-limit
// counters, per-minute dedup markers, nonce markers, and short-lived
// caches (§3). Loss of ES only degrades the system (rate limits reset,
// caches refill) — it is never the system of record.
package ephemeral

import (
	"context"
	"time"
)

// Port is the narrow interface AI, the withdrawal pipeline, and request
// signature verification depend on.
type Port interface {
	// Incr atomically increments the counter at key, setting ttl only the
	// first time the key is created, and returns the new value. Used for
	// the per-worker per-minute rate counter (§4.1).
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SetNX atomically claims key with ttl if absent, returning true if
	// this call performed the claim. Used for minute-dedup markers and
	// single-use nonces (§4.1, §6).
	SetNX(ctx context.Context, key string, ttl time.Duration) (claimed bool, err error)

	// Get and Set back short-lived cached values (e.g. the per-worker
	// cached rate value, §3) as opaque strings.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
