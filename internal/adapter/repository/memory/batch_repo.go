package memory

import (
	"context"
	"sort"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/usecase"
)

// BatchRepository implements usecase.BatchRepository.
type BatchRepository struct {
	store *Store
}

// FindEligible returns the head of the queue.
func (r *BatchRepository) FindEligible(_ context.Context) (*domain.Batch, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	eligible := s.eligible()
	if len(eligible) == 0 {
		return nil, domain.ErrNoEligibleBatch
	}
	out := *eligible[0]
	return &out, nil
}

// ListEligible returns up to limit eligible batches in queue order.
func (r *BatchRepository) ListEligible(_ context.Context, limit int) ([]*domain.Batch, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	eligible := s.eligible()
	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	out := make([]*domain.Batch, 0, len(eligible))
	for _, b := range eligible {
		c := *b
		out = append(out, &c)
	}
	return out, nil
}

// GetByID retrieves a batch by ID.
func (r *BatchRepository) GetByID(_ context.Context, id string) (*domain.Batch, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	out := *b
	return &out, nil
}

// Insert appends batches at the tail of the queue.
func (r *BatchRepository) Insert(_ context.Context, tx usecase.Transaction, batches []*domain.Batch) error {
	t, err := r.store.own(tx)
	if err != nil {
		return err
	}

	r.store.insertBatches(batches)
	t.onRollback(func() {
		for _, b := range batches {
			delete(r.store.batches, b.ID)
		}
	})
	return nil
}

// InsertOverflow inserts batches if no batch is eligible.
func (r *BatchRepository) InsertOverflow(_ context.Context, _ string, batches []*domain.Batch) (int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.eligible()) > 0 {
		return 0, nil
	}
	s.insertBatches(batches)
	return len(batches), nil
}

// DecrementInvites subtracts amount from the batch, stopping at zero.
func (r *BatchRepository) DecrementInvites(_ context.Context, tx usecase.Transaction, id string, amount int) (bool, error) {
	t, err := r.store.own(tx)
	if err != nil {
		return false, err
	}

	b, ok := r.store.batches[id]
	if !ok {
		return false, domain.ErrBatchNotFound
	}

	prev := b.RemainingInvites
	clamped := prev < amount
	b.RemainingInvites = max(prev-amount, 0)
	t.onRollback(func() { b.RemainingInvites = prev })

	return clamped, nil
}

// InviteStats sums the remaining invites of the owner's batches.
func (r *BatchRepository) InviteStats(_ context.Context, ownerID string) (int, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	available := 0
	for _, b := range s.batches {
		if b.OwnerID == ownerID {
			available += b.RemainingInvites
		}
	}
	return available, nil
}

func (s *Store) insertBatches(batches []*domain.Batch) {
	for _, b := range batches {
		s.nextPosition++
		b.QueuePosition = s.nextPosition
		c := *b
		s.batches[c.ID] = &c
	}
}

func (s *Store) eligible() []*domain.Batch {
	var out []*domain.Batch
	for _, b := range s.batches {
		if b.IsEligible() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].QueuePosition < out[j].QueuePosition
	})
	return out
}
