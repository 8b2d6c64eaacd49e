// Package postgres is the production Ledger Store (LS): a durable,
// transactional store over Postgres, accessed through sqlx the way
// chimera-pool-core and flyingrobots-go-redis-work-queue reach their
// relational stores. Every mutating operation runs inside a transaction
// with row-level locking or lock-free skipping, matching §4.7.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/contribpool/poolcore/internal/ledger"
	"github.com/contribpool/poolcore/internal/poolerr"
)

// queryTimeout bounds every LS round trip (§5: "LS queries have a bounded
// timeout (~30s) and fail the enclosing operation on breach").
const queryTimeout = 30 * time.Second

// Store implements ledger.Port against Postgres.
type Store struct {
	db  *sqlx.DB
	log log.Logger
}

// Open connects to Postgres via lib/pq and wraps the handle with sqlx.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: connect: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db, log: log.New("component", "ledger.postgres")}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", errTransient, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("rollback failed", "err", rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", errTransient, err)
	}
	return nil
}

// isMissingPartition reports whether err is the partition-missing signal
// of §4.1/§4.7/§7: Postgres rejects a row that matches no partition of a
// partitioned table with 23514 (check_violation; activities carries no
// CHECK constraint of its own), and 42P01 (undefined_table) is also
// accepted.
func isMissingPartition(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23514" || pqErr.Code == "42P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// errTransient is poolerr.ErrTransientLedger itself, so callers can
// classify a wrapped store error with a single errors.Is against the
// public sentinel (§7's TransientLedgerError) without reaching into this
// package.
var errTransient = poolerr.ErrTransientLedger

func noRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

var _ ledger.Port = (*Store)(nil)
