package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/domain"
)

// UserRepository defines data access for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// EnsureSystemUser upserts the system account and returns it.
	EnsureSystemUser(ctx context.Context) (*domain.User, error)
	// IncrementBalance adds amount to the stored balance without reading it first.
	IncrementBalance(ctx context.Context, tx Transaction, id string, amount decimal.Decimal) error
	SetPayoutAccount(ctx context.Context, id, ref string) error
}

// BatchRepository defines data access for the invite queue.
type BatchRepository interface {
	// FindEligible returns the head of the queue or domain.ErrNoEligibleBatch.
	FindEligible(ctx context.Context) (*domain.Batch, error)
	// ListEligible returns up to limit eligible batches in queue order.
	ListEligible(ctx context.Context, limit int) ([]*domain.Batch, error)
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	// Insert appends batches at the tail of the queue, assigning QueuePosition.
	Insert(ctx context.Context, tx Transaction, batches []*domain.Batch) error
	// InsertOverflow inserts batches only if no batch is eligible at insert
	// time. It returns how many were inserted.
	InsertOverflow(ctx context.Context, ownerID string, batches []*domain.Batch) (int, error)
	// DecrementInvites subtracts amount, stopping at zero. clamped is true when
	// the counter held less than amount.
	DecrementInvites(ctx context.Context, tx Transaction, id string, amount int) (clamped bool, err error)
	InviteStats(ctx context.Context, ownerID string) (available int, err error)
}

// TransactionRepository defines data access for settlement records.
type TransactionRepository interface {
	// InsertIfAbsent inserts txn unless a row with the same payment id exists,
	// in which case it returns the stored row.
	InsertIfAbsent(ctx context.Context, txn *domain.Transaction) (inserted bool, existing *domain.Transaction, err error)
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Transaction, error)
	// MarkEffectApplied flips the effect flag if it is still unset and reports
	// whether this call flipped it.
	MarkEffectApplied(ctx context.Context, tx Transaction, paymentID string, effect domain.SettlementEffect) (bool, error)
	RecordEffectFailure(ctx context.Context, paymentID, msg string) error
	ListPendingEffects(ctx context.Context, filter domain.PendingFilter) ([]*domain.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error)
	CountSoldBy(ctx context.Context, sellerID string) (int, error)
}

// SettingsRepository defines data access for named settings.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (decimal.Decimal, error)
	Set(ctx context.Context, key string, value decimal.Decimal) error
	SetIfAbsent(ctx context.Context, key string, value decimal.Decimal) error
	List(ctx context.Context) (map[string]decimal.Decimal, error)
}

// PaymentGateway is the external payment provider.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.PaymentIntent, error)
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
}

// IntentStore keeps purchase intents until they expire.
type IntentStore interface {
	Save(ctx context.Context, intent *domain.PaymentIntent, ttl time.Duration) error
	Get(ctx context.Context, id string) (*domain.PaymentIntent, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier retries an operation while it fails with a retryable error,
// giving up after maxRetries retries.
type Retrier interface {
	RetryN(ctx context.Context, maxRetries int, op func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// IdempotencyInFlight is the value a claimed key holds until the request
// that claimed it stores its response.
const IdempotencyInFlight = "processing"

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
}
