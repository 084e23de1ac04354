package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/invitequeue/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "invites.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, id string) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{ID: id, Email: id + "@example.com", Role: domain.RoleMember, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func seedBatch(t *testing.T, s *Store, id, owner string, invites int, createdAt time.Time) *domain.Batch {
	t.Helper()
	b := &domain.Batch{ID: id, OwnerID: owner, RemainingInvites: invites, CreatedAt: createdAt}
	require.NoError(t, s.Batches().Insert(context.Background(), nil, []*domain.Batch{b}))
	return b
}

func seedTransaction(paymentID string) *domain.Transaction {
	now := time.Now().UTC()
	return &domain.Transaction{
		ID:            "t-" + paymentID,
		PaymentID:     paymentID,
		BuyerID:       "buyer",
		SellerID:      "seller",
		BatchID:       "b1",
		Amount:        decimal.RequireFromString("65.00"),
		SplitToSeller: decimal.RequireFromString("50.00"),
		SplitToSystem: decimal.RequireFromString("15.00"),
		Status:        domain.TransactionStatusCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "invites.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	seedUser(t, s, "seller")
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	u, err := s.Users().GetByID(ctx, "seller")
	require.NoError(t, err)
	require.Equal(t, "seller@example.com", u.Email)
}

func TestUsersUniqueness(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seedUser(t, s, "alice")

	err := s.Users().Create(ctx, &domain.User{ID: "alice", Email: "other@example.com", Role: domain.RoleMember})
	require.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	require.NoError(t, s.Users().SetPayoutAccount(ctx, "alice", "acct-1"))
	seedUser(t, s, "bob")
	err = s.Users().SetPayoutAccount(ctx, "bob", "acct-1")
	require.ErrorIs(t, err, domain.ErrPayoutAccountTaken)

	err = s.Users().SetPayoutAccount(ctx, "ghost", "acct-2")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestEnsureSystemUser(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	first, err := s.Users().EnsureSystemUser(ctx)
	require.NoError(t, err)
	require.True(t, first.IsSystem())
	require.Equal(t, domain.RoleMember, first.Role)

	second, err := s.Users().EnsureSystemUser(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestTxRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seedUser(t, s, "seller")

	tx, err := s.TxManager().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Users().IncrementBalance(ctx, tx, "seller", decimal.RequireFromString("32.50")))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx))

	u, err := s.Users().GetByID(ctx, "seller")
	require.NoError(t, err)
	require.True(t, u.Balance.IsZero())

	tx, err = s.TxManager().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Users().IncrementBalance(ctx, tx, "seller", decimal.RequireFromString("32.50")))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	u, err = s.Users().GetByID(ctx, "seller")
	require.NoError(t, err)
	require.True(t, u.Balance.Equal(decimal.RequireFromString("32.5")), u.Balance.String())
}

func TestConcurrentIncrementsAreExact(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seedUser(t, s, "seller")

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Users().IncrementBalance(ctx, nil, "seller", decimal.RequireFromString("0.10"))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	u, err := s.Users().GetByID(ctx, "seller")
	require.NoError(t, err)
	require.True(t, u.Balance.Equal(decimal.NewFromInt(1)), u.Balance.String())
}

func TestFindEligibleOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seedUser(t, s, "a")
	seedUser(t, s, "b")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBatch(t, s, "late", "a", 3, base.Add(time.Second))
	seedBatch(t, s, "empty", "a", 0, base.Add(-time.Hour))
	first := seedBatch(t, s, "early", "b", 1, base)
	tie := seedBatch(t, s, "tie", "a", 2, base)
	require.Greater(t, tie.QueuePosition, first.QueuePosition)

	head, err := s.Batches().FindEligible(ctx)
	require.NoError(t, err)
	require.Equal(t, "early", head.ID)
	require.True(t, base.Equal(head.CreatedAt), head.CreatedAt.String())

	list, err := s.Batches().ListEligible(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, b := range list {
		ids = append(ids, b.ID)
	}
	require.Equal(t, []string{"early", "tie", "late"}, ids)

	available, err := s.Batches().InviteStats(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 5, available)
}

func TestFindEligibleEmptyQueue(t *testing.T) {
	_, err := openStore(t).Batches().FindEligible(context.Background())
	require.ErrorIs(t, err, domain.ErrNoEligibleBatch)
}

func TestInsertOverflowOnlyIntoEmptyQueue(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	_, err := s.Users().EnsureSystemUser(ctx)
	require.NoError(t, err)

	const callers = 8
	var (
		wg    sync.WaitGroup
		total int
		mu    sync.Mutex
		errs  = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := 0
			next := func() string { n++; return fmt.Sprintf("o-%d-%d", i, n) }
			block := domain.NewOverflowBlock(next, domain.SystemUserID, 3, 1, time.Now().UTC())
			inserted, err := s.Batches().InsertOverflow(ctx, domain.SystemUserID, block)
			errs[i] = err
			mu.Lock()
			total += inserted
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 3, total)

	list, err := s.Batches().ListEligible(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, b := range list {
		require.True(t, b.Overflow)
		require.Equal(t, domain.SystemUserID, b.OwnerID)
	}
}

func TestDecrementInvitesClamps(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seedUser(t, s, "seller")
	seedBatch(t, s, "b1", "seller", 1, time.Now().UTC())

	clamped, err := s.Batches().DecrementInvites(ctx, nil, "b1", 1)
	require.NoError(t, err)
	require.False(t, clamped)

	clamped, err = s.Batches().DecrementInvites(ctx, nil, "b1", 1)
	require.NoError(t, err)
	require.True(t, clamped)

	b, err := s.Batches().GetByID(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 0, b.RemainingInvites)

	_, err = s.Batches().DecrementInvites(ctx, nil, "ghost", 1)
	require.ErrorIs(t, err, domain.ErrBatchNotFound)
}

func TestTransactionsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	seedUser(t, s, "buyer")
	seedUser(t, s, "seller")
	seedBatch(t, s, "b1", "seller", 3, time.Now().UTC())

	inserted, existing, err := s.Transactions().InsertIfAbsent(ctx, seedTransaction("p1"))
	require.NoError(t, err)
	require.True(t, inserted)
	require.Nil(t, existing)

	dup := seedTransaction("p1")
	dup.ID = "t-other"
	inserted, existing, err = s.Transactions().InsertIfAbsent(ctx, dup)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, "t-p1", existing.ID)
	require.True(t, existing.SplitToSeller.Equal(decimal.NewFromInt(50)))

	flipped, err := s.Transactions().MarkEffectApplied(ctx, nil, "p1", domain.EffectSellerCredit)
	require.NoError(t, err)
	require.True(t, flipped)
	flipped, err = s.Transactions().MarkEffectApplied(ctx, nil, "p1", domain.EffectSellerCredit)
	require.NoError(t, err)
	require.False(t, flipped)

	_, err = s.Transactions().MarkEffectApplied(ctx, nil, "p1", domain.SettlementEffect("balance"))
	require.ErrorIs(t, err, domain.ErrInvariantViolation)

	require.NoError(t, s.Transactions().RecordEffectFailure(ctx, "p1", "batch store down"))
	require.ErrorIs(t, s.Transactions().RecordEffectFailure(ctx, "nope", "x"), domain.ErrTransactionNotFound)

	pending, err := s.Transactions().ListPendingEffects(ctx, domain.PendingFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].ReconcileAttempts)
	require.Equal(t, "batch store down", pending[0].LastError)
	require.Equal(t, []domain.SettlementEffect{domain.EffectBatchDecrement, domain.EffectBuyerReplenish}, pending[0].PendingEffects())

	pending, err = s.Transactions().ListPendingEffects(ctx, domain.PendingFilter{MaxAttempts: 1})
	require.NoError(t, err)
	require.Empty(t, pending)

	pending, err = s.Transactions().ListPendingEffects(ctx, domain.PendingFilter{UpdatedBefore: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.Empty(t, pending)

	for _, effect := range []domain.SettlementEffect{domain.EffectBatchDecrement, domain.EffectBuyerReplenish} {
		_, err := s.Transactions().MarkEffectApplied(ctx, nil, "p1", effect)
		require.NoError(t, err)
	}
	pending, err = s.Transactions().ListPendingEffects(ctx, domain.PendingFilter{})
	require.NoError(t, err)
	require.Empty(t, pending)

	byBuyer, err := s.Transactions().ListByUser(ctx, "buyer", 10, 0)
	require.NoError(t, err)
	require.Len(t, byBuyer, 1)

	sold, err := s.Transactions().CountSoldBy(ctx, "seller")
	require.NoError(t, err)
	require.Equal(t, 1, sold)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	repo := s.Settings()

	_, err := repo.Get(ctx, domain.SettingInvitePrice)
	require.ErrorIs(t, err, domain.ErrSettingNotFound)

	require.NoError(t, repo.SetIfAbsent(ctx, domain.SettingInvitePrice, decimal.RequireFromString("65.00")))
	require.NoError(t, repo.SetIfAbsent(ctx, domain.SettingInvitePrice, decimal.NewFromInt(1)))

	price, err := repo.Get(ctx, domain.SettingInvitePrice)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.NewFromInt(65)))

	require.NoError(t, repo.Set(ctx, domain.SettingInvitePrice, decimal.NewFromInt(70)))
	require.NoError(t, repo.Set(ctx, domain.SettingSellerSplit, decimal.NewFromInt(50)))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.True(t, all[domain.SettingInvitePrice].Equal(decimal.NewFromInt(70)))
}

func TestForeignTxRejected(t *testing.T) {
	s := openStore(t)
	err := s.Users().IncrementBalance(context.Background(), fakeTx{}, "x", decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrForeignTx)
}

type fakeTx struct{}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }
