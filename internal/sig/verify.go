// Package sig verifies the request signature scheme of §6: message
// `<entity>:<address>:<timestamp_ms>:<nonce>` signed by the private key
// matching address, recovered with go-ethereum's secp256k1 Ecrecover the
// same way the signer package proves key ownership without a challenge
// round-trip.
package sig

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/contribpool/poolcore/internal/ephemeral"
	"github.com/contribpool/poolcore/internal/poolerr"
)

var addressRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// window is how far the supplied timestamp may drift from the server
// clock in either direction (§6).
const window = 30 * time.Second

// nonceTTL is the single-use marker's lifetime (§3, §6).
const nonceTTL = 30 * time.Second

// Request is one signed request as received at the boundary.
type Request struct {
	Entity      string
	Address     string
	TimestampMs int64
	Nonce       string
	Signature   []byte // 65-byte [R || S || V]
}

// Verifier checks Requests against the ES-backed nonce store.
type Verifier struct {
	es  ephemeral.Port
	now func() time.Time
}

func NewVerifier(es ephemeral.Port) *Verifier {
	return &Verifier{es: es, now: time.Now}
}

// Verify recovers the signing address from Signature and r.message,
// checks it matches r.Address case-insensitively, checks the timestamp
// window, and claims the nonce exactly once.
func (v *Verifier) Verify(ctx context.Context, r Request) error {
	if !addressRE.MatchString(r.Address) {
		return fmt.Errorf("sig: malformed address %q: %w", r.Address, poolerr.ErrInvalidInput)
	}

	skew := v.now().Sub(time.UnixMilli(r.TimestampMs))
	if skew < 0 {
		skew = -skew
	}
	if skew > window {
		return fmt.Errorf("sig: timestamp outside %s window: %w", window, poolerr.ErrStaleOrReused)
	}

	message := fmt.Sprintf("%s:%s:%d:%s", r.Entity, r.Address, r.TimestampMs, r.Nonce)
	recovered, err := recoverAddress(message, r.Signature)
	if err != nil {
		return fmt.Errorf("sig: recover address: %w: %v", poolerr.ErrStaleOrReused, err)
	}
	if !strings.EqualFold(recovered, r.Address) {
		return fmt.Errorf("sig: recovered address does not match claimed address: %w", poolerr.ErrStaleOrReused)
	}

	nonceKey := fmt.Sprintf("sig:nonce:%s:%s", strings.ToLower(r.Address), r.Nonce)
	claimed, err := v.es.SetNX(ctx, nonceKey, nonceTTL)
	if err != nil {
		return fmt.Errorf("sig: claim nonce: %w", err)
	}
	if !claimed {
		return fmt.Errorf("sig: nonce already used: %w", poolerr.ErrStaleOrReused)
	}
	return nil
}

// recoverAddress recovers the signing address for message under the
// personal-message digest scheme, matching the prefixing most wallets
// apply before signing (crypto.Sign never adds this prefix itself).
func recoverAddress(message string, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(signature))
	}
	digest := personalHash(message)

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// DecodeSignature parses a 0x-prefixed hex signature string as found on
// the wire.
func DecodeSignature(hexSig string) ([]byte, error) {
	hexSig = strings.TrimPrefix(hexSig, "0x")
	return hex.DecodeString(hexSig)
}
