// Package sqlite is a single-file store for running the service without
// Postgres. Writers take SQLite's reserved lock at BEGIN, so a transaction
// that reads and then writes cannot interleave with another writer.
//
// Money columns hold integer cents and timestamps hold Unix microseconds, so
// balance increments stay exact and queue order keeps sub-millisecond ties.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

//go:embed schema.sql
var schema string

// ErrForeignTx is returned when a repository receives a transaction that was
// not started by this store.
var ErrForeignTx = errors.New("sqlite: transaction not started by sqlite.Store")

const busyTimeout = 5 * time.Second

// Store owns the database handle and hands out repositories over it.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")

	db, err := sql.Open("sqlite", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// TxManager returns the store's usecase.TransactionManager.
func (s *Store) TxManager() *TxManager { return &TxManager{db: s.db} }

// Users returns the store's usecase.UserRepository.
func (s *Store) Users() *UserRepository { return &UserRepository{db: s.db} }

// Batches returns the store's usecase.BatchRepository.
func (s *Store) Batches() *BatchRepository { return &BatchRepository{db: s.db} }

// Transactions returns the store's usecase.TransactionRepository.
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{db: s.db} }

// Settings returns the store's usecase.SettingsRepository.
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{db: s.db} }

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	db *sql.DB
}

// Begin starts an immediate transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a database/sql transaction.
type Tx struct {
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(context.Context) error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction. Rolling back a finished transaction
// is a no-op.
func (t *Tx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn inside tx, or inside a transaction of its own when tx is nil.
func inTx(ctx context.Context, db *sql.DB, tx usecase.Transaction, fn func(q querier) error) error {
	if tx != nil {
		t, ok := tx.(*Tx)
		if !ok {
			return ErrForeignTx
		}
		return fn(t.tx)
	}

	own, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer own.Rollback()

	if err := fn(own); err != nil {
		return err
	}
	return own.Commit()
}

// IsRetryableError reports whether err is lock contention that a later
// attempt may not hit.
func IsRetryableError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// uniqueViolation reports whether err is a UNIQUE or PRIMARY KEY violation
// on column, given as table.column.
func uniqueViolation(err error, column string) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return column == "" || strings.Contains(sqliteErr.Error(), column)
	}
	return false
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(domain.MoneyPlaces).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -domain.MoneyPlaces)
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func nowMicros() int64 {
	return time.Now().UnixMicro()
}
