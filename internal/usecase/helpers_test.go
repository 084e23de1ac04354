package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/invitequeue/internal/adapter/repository/memory"
	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/infrastructure/retry"
	"github.com/iho/invitequeue/internal/usecase"
)

type seqIDGenerator struct {
	n atomic.Int64
}

func (g *seqIDGenerator) Generate() string {
	return fmt.Sprintf("id-%06d", g.n.Add(1))
}

func fastRetrier() *retry.Retrier {
	return retry.New(retry.Config{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  time.Second,
	}, retry.Always, zerolog.Nop())
}

// flakyUserRepository fails IncrementBalance a set number of times.
type flakyUserRepository struct {
	usecase.UserRepository

	mu       sync.Mutex
	failures int
}

func (f *flakyUserRepository) IncrementBalance(ctx context.Context, tx usecase.Transaction, id string, amount decimal.Decimal) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("connection reset by peer")
	}
	f.mu.Unlock()
	return f.UserRepository.IncrementBalance(ctx, tx, id, amount)
}

func (f *flakyUserRepository) setFailures(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

type harness struct {
	store      *memory.Store
	users      *flakyUserRepository
	allocator  *usecase.AllocatorUseCase
	settlement *usecase.SettlementUseCase
	accounts   *usecase.UserUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, usecase.DefaultQueueConfig())
}

func newHarnessWithConfig(t *testing.T, cfg usecase.QueueConfig) *harness {
	t.Helper()

	store := memory.NewStore()
	users := &flakyUserRepository{UserRepository: store.Users()}
	idGen := &seqIDGenerator{}

	ctx := context.Background()
	for key, value := range map[string]int64{
		domain.SettingInvitePrice: 65,
		domain.SettingSystemSplit: 15,
		domain.SettingSellerSplit: 50,
	} {
		if err := store.Settings().Set(ctx, key, decimal.NewFromInt(value)); err != nil {
			t.Fatalf("seed setting %s: %v", key, err)
		}
	}

	return &harness{
		store:     store,
		users:     users,
		allocator: usecase.NewAllocatorUseCase(users, store.Batches(), idGen, cfg, nil),
		settlement: usecase.NewSettlementUseCase(
			store.TxManager(), users, store.Batches(), store.Transactions(), store.Settings(),
			idGen, fastRetrier(), cfg, nil,
		),
		accounts: usecase.NewUserUseCase(users, store.Batches(), store.Transactions(), store.Settings(), idGen),
	}
}

func (h *harness) register(t *testing.T, email string) *domain.User {
	t.Helper()
	u, err := h.accounts.RegisterUser(context.Background(), usecase.RegisterUserInput{Email: email})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}

func (h *harness) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	b, err := h.accounts.GetBalance(context.Background(), id)
	if err != nil {
		t.Fatalf("balance of %s: %v", id, err)
	}
	return b
}

func (h *harness) batch(t *testing.T, id string) *domain.Batch {
	t.Helper()
	b, err := h.store.Batches().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("batch %s: %v", id, err)
	}
	return b
}

func (h *harness) settleInput(paymentID string, buyer *domain.User, alloc *domain.Allocation, gross int64) domain.SettleInput {
	return domain.SettleInput{
		PaymentID:   paymentID,
		BuyerID:     buyer.ID,
		SellerID:    alloc.SellerID,
		BatchID:     alloc.BatchID,
		GrossAmount: decimal.NewFromInt(gross),
	}
}

func timeNow() time.Time { return time.Now().UTC() }
