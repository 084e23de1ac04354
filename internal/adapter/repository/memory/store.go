// Package memory is an in-process ledger store for development and tests.
//
// A transaction holds the store's write lock from Begin until Commit or
// Rollback and records an undo entry for every write, so transactional
// methods see a consistent store and a rollback restores it. Methods that
// take a transaction assume the lock is held; the others lock for themselves.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

// ErrInvalidTx is returned when a transaction from another store, or one
// already finished, is passed to a transactional method.
var ErrInvalidTx = errors.New("memory: invalid or finished transaction")

// Store holds all state of the memory ledger.
type Store struct {
	mu sync.RWMutex

	users   map[string]*domain.User
	emails  map[string]string
	payouts map[string]string

	batches      map[string]*domain.Batch
	nextPosition int64

	// keyed by payment id
	txns map[string]*domain.Transaction

	settings map[string]decimal.Decimal
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]*domain.User),
		emails:   make(map[string]string),
		payouts:  make(map[string]string),
		batches:  make(map[string]*domain.Batch),
		txns:     make(map[string]*domain.Transaction),
		settings: make(map[string]decimal.Decimal),
	}
}

// TxManager returns the store's usecase.TransactionManager.
func (s *Store) TxManager() *TxManager { return &TxManager{store: s} }

// Users returns the store's usecase.UserRepository.
func (s *Store) Users() *UserRepository { return &UserRepository{store: s} }

// Batches returns the store's usecase.BatchRepository.
func (s *Store) Batches() *BatchRepository { return &BatchRepository{store: s} }

// Transactions returns the store's usecase.TransactionRepository.
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{store: s} }

// Settings returns the store's usecase.SettingsRepository.
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{store: s} }

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// Begin takes the store's write lock.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.Lock()
	return &Tx{store: m.store}, nil
}

// Tx is a memory transaction.
type Tx struct {
	store *Store
	undo  []func()
	done  bool
}

// Commit keeps the writes and releases the lock.
func (t *Tx) Commit(context.Context) error {
	if t.done {
		return ErrInvalidTx
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

// Rollback reverts the writes and releases the lock. It is a no-op on a
// finished transaction.
func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

func (t *Tx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (s *Store) own(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s || t.done {
		return nil, ErrInvalidTx
	}
	return t, nil
}
