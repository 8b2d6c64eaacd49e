package sig

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/contribpool/poolcore/internal/ephemeral/memstore"
)

func sign(t *testing.T, key *ecdsa.PrivateKey, message string) []byte {
	t.Helper()
	digest := personalHash(message)
	sig, err := ethcrypto.Sign(digest, key)
	require.NoError(t, err)
	return sig
}

func TestVerifyAcceptsCorrectlySignedRequest(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	es := memstore.New()
	v := NewVerifier(es)
	v.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	r := Request{Entity: "withdrawal", Address: addr, TimestampMs: 1_700_000_000_000, Nonce: "n1"}
	r.Signature = sign(t, key, fmt.Sprintf("%s:%s:%d:%s", r.Entity, r.Address, r.TimestampMs, r.Nonce))

	require.NoError(t, v.Verify(context.Background(), r))
}

func TestVerifyRejectsReusedNonce(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	es := memstore.New()
	v := NewVerifier(es)
	v.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	r := Request{Entity: "withdrawal", Address: addr, TimestampMs: 1_700_000_000_000, Nonce: "n1"}
	r.Signature = sign(t, key, fmt.Sprintf("%s:%s:%d:%s", r.Entity, r.Address, r.TimestampMs, r.Nonce))

	require.NoError(t, v.Verify(context.Background(), r))
	require.Error(t, v.Verify(context.Background(), r))
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	es := memstore.New()
	v := NewVerifier(es)
	v.now = func() time.Time { return time.UnixMilli(1_700_000_000_000 + 60_000) }

	r := Request{Entity: "withdrawal", Address: addr, TimestampMs: 1_700_000_000_000, Nonce: "n1"}
	r.Signature = sign(t, key, fmt.Sprintf("%s:%s:%d:%s", r.Entity, r.Address, r.TimestampMs, r.Nonce))

	require.Error(t, v.Verify(context.Background(), r))
}

func TestVerifyRejectsMismatchedAddress(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	other, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	claimed := ethcrypto.PubkeyToAddress(other.PublicKey).Hex()

	es := memstore.New()
	v := NewVerifier(es)
	v.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	r := Request{Entity: "withdrawal", Address: claimed, TimestampMs: 1_700_000_000_000, Nonce: "n1"}
	r.Signature = sign(t, key, fmt.Sprintf("%s:%s:%d:%s", r.Entity, r.Address, r.TimestampMs, r.Nonce))

	require.Error(t, v.Verify(context.Background(), r))
}
