package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// DefaultIntentTTL is how long an unpaid purchase intent is kept
	DefaultIntentTTL = 24 * time.Hour
)

// QueueConfig holds the allotment sizes and retry budgets of the core.
type QueueConfig struct {
	// StartingInvites is the allotment a buyer receives after a purchase.
	StartingInvites int
	// OverflowBlockSize is how many batches are created when the queue runs dry.
	OverflowBlockSize int
	// OverflowInvites is the allotment of each overflow batch.
	OverflowInvites int
	// AllocationAttempts bounds the find/insert-overflow loop.
	AllocationAttempts int
	// EffectMaxRetries bounds the retries of one post-commit effect.
	EffectMaxRetries int
}

// DefaultQueueConfig returns the stock allotments.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		StartingInvites:    3,
		OverflowBlockSize:  10,
		OverflowInvites:    1,
		AllocationAttempts: 3,
		EffectMaxRetries:   5,
	}
}

func (c QueueConfig) withDefaults() QueueConfig {
	d := DefaultQueueConfig()
	if c.StartingInvites <= 0 {
		c.StartingInvites = d.StartingInvites
	}
	if c.OverflowBlockSize <= 0 {
		c.OverflowBlockSize = d.OverflowBlockSize
	}
	if c.OverflowInvites <= 0 {
		c.OverflowInvites = d.OverflowInvites
	}
	if c.AllocationAttempts <= 0 {
		c.AllocationAttempts = d.AllocationAttempts
	}
	if c.EffectMaxRetries <= 0 {
		c.EffectMaxRetries = d.EffectMaxRetries
	}
	return c
}
