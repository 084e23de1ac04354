package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/invitequeue/internal/domain"
)

// IntentStore implements usecase.IntentStore. Intents are JSON values that
// Redis expires on its own.
type IntentStore struct {
	client redis.Cmdable
	prefix string
}

// NewIntentStore creates a new IntentStore.
func NewIntentStore(client redis.Cmdable) *IntentStore {
	return &IntentStore{
		client: client,
		prefix: "invitequeue:intent:",
	}
}

// Save stores intent for ttl.
func (s *IntentStore) Save(ctx context.Context, intent *domain.PaymentIntent, ttl time.Duration) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent %s: %w", intent.ID, err)
	}

	return s.client.Set(ctx, s.prefix+intent.ID, payload, ttl).Err()
}

// Get returns the intent while it lives.
func (s *IntentStore) Get(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	payload, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}

	var intent domain.PaymentIntent
	if err := json.Unmarshal(payload, &intent); err != nil {
		return nil, fmt.Errorf("decode intent %s: %w", id, err)
	}

	return &intent, nil
}
