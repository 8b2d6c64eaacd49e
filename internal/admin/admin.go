// Package admin implements Admin Ops (AO, §4.4.3, §4.5): privileged
// retry/force_fail of withdrawals and updates to Config Plane tunables.
// The HTTP/dashboard surface is explicitly out of scope, but the
// operations themselves are gated by a bearer token so this core never
// exposes an unauthenticated privileged path (supplemented ambient
// concern, grounded on the Engine API's JWT auth in go-ethereum's
// node package).
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/contribpool/poolcore/internal/amount"
	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/ledger"
)

// maxReasonLen bounds force_fail's reason text (§4.4.3: "truncated to a
// bounded length").
const maxReasonLen = 512

var ErrUnauthorized = errors.New("admin: unauthorized")

// Authenticator verifies a bearer token against a shared HMAC secret,
// the same scheme go-ethereum's Engine API JWT auth uses between node
// and consensus client.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// Verify parses and validates tokenString, returning ErrUnauthorized on
// any failure (expired, bad signature, wrong algorithm).
func (a *Authenticator) Verify(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return ErrUnauthorized
	}
	return nil
}

// Issue mints a short-lived admin token, used by operator tooling
// outside this core.
func (a *Authenticator) Issue(subject string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Ops is the set of privileged operations, independent of how the
// caller authenticated.
type Ops struct {
	ls  ledger.Port
	cp  config.Port
	log log.Logger
	now func() time.Time
}

func New(ls ledger.Port, cp config.Port) *Ops {
	return &Ops{ls: ls, cp: cp, log: log.New("component", "adminops"), now: time.Now}
}

// Retry implements retry(id) (§4.4.3).
func (o *Ops) Retry(ctx context.Context, id int64) error {
	if err := o.ls.RetryAdmin(ctx, id, o.now()); err != nil {
		return fmt.Errorf("admin: retry %d: %w", id, err)
	}
	o.log.Info("withdrawal retried", "withdrawal_id", id)
	return nil
}

// ForceFail implements force_fail(id, reason) (§4.4.3).
func (o *Ops) ForceFail(ctx context.Context, id int64, reason string) error {
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	if err := o.ls.ForceFailAdmin(ctx, id, reason); err != nil {
		return fmt.Errorf("admin: force_fail %d: %w", id, err)
	}
	o.log.Info("withdrawal force-failed", "withdrawal_id", id, "reason", reason)
	return nil
}

// SetConfig implements CP's set(key, value) (§4.5) from the admin side.
func (o *Ops) SetConfig(ctx context.Context, key ledger.ConfigKey, value *amount.Amount) error {
	return o.cp.Set(ctx, key, value)
}
