package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/invitequeue/internal/domain"
)

func seedUser(t *testing.T, s *Store, id string) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, Email: id + "@example.com", Role: domain.RoleMember, Balance: decimal.Zero}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func TestTxRollbackRestoresState(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUser(t, s, "seller")
	_, err := s.Batches().InsertOverflow(ctx, "seller", []*domain.Batch{
		{ID: "b1", OwnerID: "seller", RemainingInvites: 1, CreatedAt: time.Now()},
	})
	require.NoError(t, err)
	inserted, _, err := s.Transactions().InsertIfAbsent(ctx, &domain.Transaction{PaymentID: "p1", SellerID: "seller", BatchID: "b1"})
	require.NoError(t, err)
	require.True(t, inserted)

	tx, err := s.TxManager().Begin(ctx)
	require.NoError(t, err)

	flipped, err := s.Transactions().MarkEffectApplied(ctx, tx, "p1", domain.EffectSellerCredit)
	require.NoError(t, err)
	require.True(t, flipped)
	require.NoError(t, s.Users().IncrementBalance(ctx, tx, "seller", decimal.NewFromInt(50)))
	clamped, err := s.Batches().DecrementInvites(ctx, tx, "b1", 1)
	require.NoError(t, err)
	require.False(t, clamped)
	require.NoError(t, s.Batches().Insert(ctx, tx, []*domain.Batch{{ID: "b2", OwnerID: "seller", RemainingInvites: 3}}))

	require.NoError(t, tx.Rollback(ctx))

	u, err := s.Users().GetByID(ctx, "seller")
	require.NoError(t, err)
	require.True(t, u.Balance.IsZero())

	b, err := s.Batches().GetByID(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 1, b.RemainingInvites)

	_, err = s.Batches().GetByID(ctx, "b2")
	require.ErrorIs(t, err, domain.ErrBatchNotFound)

	txn, err := s.Transactions().GetByPaymentID(ctx, "p1")
	require.NoError(t, err)
	require.False(t, txn.SellerCredited)

	// rollback after rollback is a no-op and the lock is free again
	require.NoError(t, tx.Rollback(ctx))
	_, err = s.Users().GetByID(ctx, "seller")
	require.NoError(t, err)
}

func TestTxCommitKeepsState(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUser(t, s, "seller")

	tx, err := s.TxManager().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Users().IncrementBalance(ctx, tx, "seller", decimal.RequireFromString("12.50")))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	u, err := s.Users().GetByID(ctx, "seller")
	require.NoError(t, err)
	require.True(t, u.Balance.Equal(decimal.RequireFromString("12.50")))

	require.ErrorIs(t, s.Users().IncrementBalance(ctx, tx, "seller", decimal.NewFromInt(1)), ErrInvalidTx)
}

func TestMarkEffectAppliedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, _, err := s.Transactions().InsertIfAbsent(ctx, &domain.Transaction{PaymentID: "p1"})
	require.NoError(t, err)

	for i, want := range []bool{true, false} {
		tx, err := s.TxManager().Begin(ctx)
		require.NoError(t, err)
		flipped, err := s.Transactions().MarkEffectApplied(ctx, tx, "p1", domain.EffectBuyerReplenish)
		require.NoError(t, err)
		require.Equal(t, want, flipped, "call %d", i)
		require.NoError(t, tx.Commit(ctx))
	}

	tx, err := s.TxManager().Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = s.Transactions().MarkEffectApplied(ctx, tx, "missing", domain.EffectBuyerReplenish)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestInsertIfAbsentReturnsExisting(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	inserted, existing, err := s.Transactions().InsertIfAbsent(ctx, &domain.Transaction{ID: "t1", PaymentID: "p1"})
	require.NoError(t, err)
	require.True(t, inserted)
	require.Nil(t, existing)

	inserted, existing, err = s.Transactions().InsertIfAbsent(ctx, &domain.Transaction{ID: "t2", PaymentID: "p1"})
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, "t1", existing.ID)
}

func TestFindEligibleOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	_, err := s.Batches().FindEligible(ctx)
	require.ErrorIs(t, err, domain.ErrNoEligibleBatch)

	tx, err := s.TxManager().Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Batches().Insert(ctx, tx, []*domain.Batch{
		{ID: "late", OwnerID: "a", RemainingInvites: 3, CreatedAt: now.Add(time.Second)},
		{ID: "tie-2", OwnerID: "b", RemainingInvites: 3, CreatedAt: now},
		{ID: "empty", OwnerID: "c", RemainingInvites: 0, CreatedAt: now.Add(-time.Hour)},
	}))
	require.NoError(t, s.Batches().Insert(ctx, tx, []*domain.Batch{
		{ID: "tie-3", OwnerID: "d", RemainingInvites: 3, CreatedAt: now},
	}))
	require.NoError(t, tx.Commit(ctx))

	head, err := s.Batches().FindEligible(ctx)
	require.NoError(t, err)
	require.Equal(t, "tie-2", head.ID)

	list, err := s.Batches().ListEligible(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, b := range list {
		ids = append(ids, b.ID)
	}
	require.Equal(t, []string{"tie-2", "tie-3", "late"}, ids)
}

func TestInsertOverflowOnlyIntoEmptyQueue(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	block := func(prefix string) []*domain.Batch {
		var out []*domain.Batch
		for i := 0; i < 10; i++ {
			out = append(out, &domain.Batch{ID: fmt.Sprintf("%s-%d", prefix, i), OwnerID: domain.SystemUserID, RemainingInvites: 1, Overflow: true})
		}
		return out
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Batches().InsertOverflow(ctx, domain.SystemUserID, block(fmt.Sprintf("w%d", i)))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	total := 0
	for _, n := range results {
		total += n
	}
	require.Equal(t, 10, total)

	available, err := s.Batches().InviteStats(ctx, domain.SystemUserID)
	require.NoError(t, err)
	require.Equal(t, 10, available)
}

func TestDecrementInvitesClamps(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.Batches().InsertOverflow(ctx, "s", []*domain.Batch{{ID: "b", OwnerID: "s", RemainingInvites: 1}})
	require.NoError(t, err)

	for i, wantClamped := range []bool{false, true} {
		tx, err := s.TxManager().Begin(ctx)
		require.NoError(t, err)
		clamped, err := s.Batches().DecrementInvites(ctx, tx, "b", 1)
		require.NoError(t, err)
		require.Equal(t, wantClamped, clamped, "call %d", i)
		require.NoError(t, tx.Commit(ctx))
	}

	b, err := s.Batches().GetByID(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 0, b.RemainingInvites)
}

func TestUsersUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUser(t, s, "a")

	err := s.Users().Create(ctx, &domain.User{ID: "b", Email: "a@example.com"})
	require.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	require.NoError(t, s.Users().SetPayoutAccount(ctx, "a", "mp:1"))
	seedUser(t, s, "c")
	require.ErrorIs(t, s.Users().SetPayoutAccount(ctx, "c", "mp:1"), domain.ErrPayoutAccountTaken)
	require.ErrorIs(t, s.Users().SetPayoutAccount(ctx, "missing", "mp:2"), domain.ErrUserNotFound)

	sys1, err := s.Users().EnsureSystemUser(ctx)
	require.NoError(t, err)
	sys2, err := s.Users().EnsureSystemUser(ctx)
	require.NoError(t, err)
	require.Equal(t, sys1.ID, sys2.ID)
	require.Equal(t, domain.SystemUserID, sys1.ID)
}

func TestListPendingEffectsFilter(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	old := time.Now().Add(-time.Hour)

	for i, attempts := range []int{0, 2, 5} {
		_, _, err := s.Transactions().InsertIfAbsent(ctx, &domain.Transaction{
			PaymentID:         fmt.Sprintf("p%d", i),
			ReconcileAttempts: attempts,
			CreatedAt:         old.Add(time.Duration(i) * time.Second),
			UpdatedAt:         old,
		})
		require.NoError(t, err)
	}
	_, _, err := s.Transactions().InsertIfAbsent(ctx, &domain.Transaction{
		PaymentID: "done", SellerCredited: true, BatchDecremented: true, BuyerReplenished: true, UpdatedAt: old,
	})
	require.NoError(t, err)
	_, _, err = s.Transactions().InsertIfAbsent(ctx, &domain.Transaction{PaymentID: "fresh", UpdatedAt: time.Now()})
	require.NoError(t, err)

	all, err := s.Transactions().ListPendingEffects(ctx, domain.PendingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	filtered, err := s.Transactions().ListPendingEffects(ctx, domain.PendingFilter{
		UpdatedBefore: time.Now().Add(-time.Minute),
		MaxAttempts:   5,
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	require.Equal(t, "p0", filtered[0].PaymentID)
	require.Equal(t, "p1", filtered[1].PaymentID)
}
