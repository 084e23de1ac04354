package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iho/invitequeue/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestIntentStoreExpires(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Now()}
	s := &IntentStore{intents: newExpiring[domain.PaymentIntent](clock.now)}

	require.NoError(t, s.Save(ctx, &domain.PaymentIntent{ID: "i1", BuyerID: "b"}, time.Minute))

	got, err := s.Get(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, "b", got.BuyerID)

	got.BuyerID = "mutated"
	again, err := s.Get(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, "b", again.BuyerID)

	clock.t = clock.t.Add(time.Minute)
	_, err = s.Get(ctx, "i1")
	require.ErrorIs(t, err, domain.ErrIntentNotFound)
}

func TestIdempotencyStoreClaimAndUpdate(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Now()}
	s := &IdempotencyStore{keys: newExpiring[[]byte](clock.now)}

	exists, _, err := s.CheckAndSet(ctx, "k", nil, time.Minute)
	require.NoError(t, err)
	require.False(t, exists)

	exists, value, err := s.CheckAndSet(ctx, "k", nil, time.Minute)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "processing", string(value))

	require.NoError(t, s.Update(ctx, "k", []byte(`{"ok":true}`), time.Minute))
	_, value, err = s.CheckAndSet(ctx, "k", nil, time.Minute)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(value))

	clock.t = clock.t.Add(2 * time.Minute)
	exists, _, err = s.CheckAndSet(ctx, "k", nil, time.Minute)
	require.NoError(t, err)
	require.False(t, exists)
}
