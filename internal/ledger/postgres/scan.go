package postgres

import (
	"database/sql"
	"database/sql/driver"

	"github.com/contribpool/poolcore/internal/amount"
)

// ledgerAmount adapts amount.Amount to database/sql scanning inside sqlx
// struct tags without exposing driver plumbing on the domain type itself.
type ledgerAmount struct {
	amount.Amount
}

func (a *ledgerAmount) Scan(src interface{}) error { return a.Amount.Scan(src) }
func (a ledgerAmount) Value() (driver.Value, error) { return a.Amount.Value() }

// nullableTime adapts sql.NullTime for struct-tag based scanning.
type nullableTime struct {
	sql.NullTime
}

func (t *nullableTime) Scan(src interface{}) error { return t.NullTime.Scan(src) }

// nullableAmount represents a NUMERIC column that may be SQL NULL, used
// for daily_withdrawal_cap (§3: "nullable, null = unlimited").
type nullableAmount struct {
	Valid bool
	Val   amount.Amount
}

func (a *nullableAmount) Scan(src interface{}) error {
	if src == nil {
		a.Valid = false
		a.Val = amount.Zero
		return nil
	}
	a.Valid = true
	return a.Val.Scan(src)
}

func (a nullableAmount) Value() (driver.Value, error) {
	if !a.Valid {
		return nil, nil
	}
	return a.Val.Value()
}
