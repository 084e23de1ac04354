package domain

import "time"

// Batch is a seller's allotment of invites and their place in the queue.
// The eligible batch with the oldest CreatedAt is the head of the queue.
type Batch struct {
	ID               string
	OwnerID          string
	QueuePosition    int64
	RemainingInvites int
	Overflow         bool
	CreatedAt        time.Time
}

// IsEligible reports whether the batch can still be sold from.
func (b *Batch) IsEligible() bool {
	return b.RemainingInvites > 0
}

// NewBuyerBatch builds the allotment a buyer receives after a settled purchase.
// QueuePosition is assigned by the store.
func NewBuyerBatch(id, ownerID string, invites int, now time.Time) *Batch {
	return &Batch{
		ID:               id,
		OwnerID:          ownerID,
		RemainingInvites: invites,
		CreatedAt:        now,
	}
}

// NewOverflowBlock builds size overflow batches owned by ownerID. Creation
// times are a microsecond apart so the block keeps its order at timestamptz
// precision.
func NewOverflowBlock(newID func() string, ownerID string, size, invites int, now time.Time) []*Batch {
	batches := make([]*Batch, 0, size)
	for i := 0; i < size; i++ {
		batches = append(batches, &Batch{
			ID:               newID(),
			OwnerID:          ownerID,
			RemainingInvites: invites,
			Overflow:         true,
			CreatedAt:        now.Add(time.Duration(i) * time.Microsecond),
		})
	}
	return batches
}

// Allocation is the seller and batch picked for one purchase.
type Allocation struct {
	SellerID string
	BatchID  string
}
