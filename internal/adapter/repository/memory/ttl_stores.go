package memory

import (
	"context"
	"sync"
	"time"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// expiring is a mutex-guarded map whose entries vanish after their TTL.
// Expired entries are dropped lazily on access.
type expiring[T any] struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]entry[T]
}

func newExpiring[T any](now func() time.Time) *expiring[T] {
	if now == nil {
		now = time.Now
	}
	return &expiring[T]{now: now, items: make(map[string]entry[T])}
}

func (e *expiring[T]) getLocked(key string) (T, bool) {
	it, ok := e.items[key]
	if !ok {
		var zero T
		return zero, false
	}
	if !e.now().Before(it.expiresAt) {
		delete(e.items, key)
		var zero T
		return zero, false
	}
	return it.value, true
}

func (e *expiring[T]) setLocked(key string, value T, ttl time.Duration) {
	e.items[key] = entry[T]{value: value, expiresAt: e.now().Add(ttl)}
}

// IntentStore implements usecase.IntentStore for deployments without Redis.
type IntentStore struct {
	intents *expiring[domain.PaymentIntent]
}

// NewIntentStore creates an empty IntentStore.
func NewIntentStore() *IntentStore {
	return &IntentStore{intents: newExpiring[domain.PaymentIntent](nil)}
}

// Save stores a copy of intent for ttl.
func (s *IntentStore) Save(_ context.Context, intent *domain.PaymentIntent, ttl time.Duration) error {
	s.intents.mu.Lock()
	defer s.intents.mu.Unlock()
	s.intents.setLocked(intent.ID, *intent, ttl)
	return nil
}

// Get returns the intent while it lives.
func (s *IntentStore) Get(_ context.Context, id string) (*domain.PaymentIntent, error) {
	s.intents.mu.Lock()
	defer s.intents.mu.Unlock()
	intent, ok := s.intents.getLocked(id)
	if !ok {
		return nil, domain.ErrIntentNotFound
	}
	return &intent, nil
}

// IdempotencyStore implements usecase.IdempotencyStore for deployments
// without Redis. Claims are only visible to this process.
type IdempotencyStore struct {
	keys *expiring[[]byte]
}

// NewIdempotencyStore creates an empty IdempotencyStore.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{keys: newExpiring[[]byte](nil)}
}

// CheckAndSet claims key unless it is already claimed.
func (s *IdempotencyStore) CheckAndSet(_ context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.keys.mu.Lock()
	defer s.keys.mu.Unlock()

	if existing, ok := s.keys.getLocked(key); ok {
		return true, existing, nil
	}
	if response == nil {
		response = []byte(usecase.IdempotencyInFlight)
	}
	s.keys.setLocked(key, response, ttl)
	return false, nil, nil
}

// Update stores the final response for key.
func (s *IdempotencyStore) Update(_ context.Context, key string, response []byte, ttl time.Duration) error {
	s.keys.mu.Lock()
	defer s.keys.mu.Unlock()
	s.keys.setLocked(key, response, ttl)
	return nil
}
