package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(id, spa, date string) *domain.Booking {
	return &domain.Booking{
		ID:         domain.ID(id),
		CustomerID: "customer-1",
		SpaID:      domain.ID(spa),
		OwnerID:    "owner-1",
		Services:   []domain.BookedService{{ID: "s1", Name: "Massage", Price: decimal.NewFromInt(500)}},
		Slot:       "10:00 AM",
		Date:       date,
		Status:     domain.BookingStatusPending,
		BasePrice:  decimal.NewFromInt(500),
		FinalPrice: decimal.NewFromInt(500),
	}
}

func TestMemoryBookingRepository_InsertGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()

	b := newBooking("b1", "spa-1", "2025-01-10")
	require.NoError(t, repo.Insert(ctx, b))
	assert.False(t, b.CreatedAt.IsZero())

	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, got.Status)

	// Returned copies are detached from the store.
	got.Services[0].Name = "changed"
	again, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Massage", again.Services[0].Name)

	err = repo.Insert(ctx, newBooking("b1", "spa-1", "2025-01-10"))
	var internal *domain.InternalError
	assert.ErrorAs(t, err, &internal)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))
}

func TestMemoryBookingRepository_UpdateDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	require.NoError(t, repo.Insert(ctx, newBooking("b1", "spa-1", "2025-01-10")))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "b1", func(b *domain.Booking) error {
		b.Status = domain.BookingStatusApproved
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, got.Status)

	updated, err := repo.Update(ctx, "b1", func(b *domain.Booking) error {
		b.Status = domain.BookingStatusApproved
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusApproved, updated.Status)

	_, err = repo.Update(ctx, "missing", func(*domain.Booking) error { return nil })
	assert.True(t, domain.IsNotFound(err))
}

func TestMemoryBookingRepository_Lists(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()

	first := newBooking("b1", "spa-1", "2025-01-10")
	first.CreatedAt = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	second := newBooking("b2", "spa-1", "2025-01-10")
	second.CreatedAt = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	second.CustomerID = "customer-2"
	other := newBooking("b3", "spa-2", "2025-01-10")
	other.CreatedAt = time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC)
	for _, b := range []*domain.Booking{first, second, other} {
		require.NoError(t, repo.Insert(ctx, b))
	}

	sameDay, err := repo.ListBySpaDate(ctx, "spa-1", "2025-01-10")
	require.NoError(t, err)
	require.Len(t, sameDay, 2)
	assert.Equal(t, domain.ID("b1"), sameDay[0].ID)

	all, err := repo.List(ctx, BookingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.ID("b3"), all[0].ID)

	mine, err := repo.List(ctx, BookingFilter{CustomerID: "customer-2"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, domain.ID("b2"), mine[0].ID)

	pending, err := repo.List(ctx, BookingFilter{SpaID: "spa-1", Status: domain.BookingStatusApproved})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMemoryMembershipRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMembershipRepository()
	now := time.Now().UTC()

	_, err := repo.Get(ctx, "u1")
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, repo.Save(ctx, &domain.Membership{CustomerID: "u1", Status: domain.MembershipStatusActive, EndDate: now.Add(-time.Hour)}))
	require.NoError(t, repo.Save(ctx, &domain.Membership{CustomerID: "u2", Status: domain.MembershipStatusActive, EndDate: now.Add(time.Hour)}))

	expired, err := repo.ExpireBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, domain.ID("u1"), expired[0].CustomerID)

	require.NoError(t, repo.MarkExpired(ctx, "u2", now))
	m, err := repo.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusActive, m.Status, "a term still running is not expired")

	require.NoError(t, repo.MarkExpired(ctx, "u2", now.Add(2*time.Hour)))
	m, err = repo.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipStatusExpired, m.Status)

	assert.True(t, domain.IsNotFound(repo.MarkExpired(ctx, "u3", now)))
}

func seedLedger(t *testing.T, repo *MemoryLedgerRepository) {
	t.Helper()
	require.NoError(t, repo.Seed(context.Background(),
		[]domain.Identity{
			{ID: "c1", UPIID: "c1@bank", Name: "Customer", Status: domain.IdentityStatusActive, UPIEnabled: true},
			{ID: "o1", UPIID: "o1@bank", Name: "Owner", Status: domain.IdentityStatusActive, UPIEnabled: true},
		},
		[]domain.Account{
			{ID: "acc-c1", IdentityID: "c1", Balance: decimal.NewFromInt(1000), Primary: true, Active: true},
			{ID: "acc-o1", IdentityID: "o1", Balance: decimal.NewFromInt(100), Primary: true, Active: true},
		}))
}

func transfer(id string, from, to domain.ID, amount int64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:        domain.ID(id),
		OrderID:   "order-" + id,
		Amount:    decimal.NewFromInt(amount),
		Type:      domain.TransactionTypePayment,
		Status:    domain.TransactionStatusSuccess,
		From:      domain.Party{IdentityID: from, AccountID: "acc-" + from},
		To:        domain.Party{IdentityID: to, AccountID: "acc-" + to},
		Timestamp: at,
	}
}

func TestMemoryLedgerRepository_Lookups(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()
	seedLedger(t, repo)

	identity, err := repo.IdentityByUPI(ctx, "c1@bank")
	require.NoError(t, err)
	assert.Equal(t, domain.ID("c1"), identity.ID)

	_, err = repo.IdentityByUPI(ctx, "nobody@bank")
	assert.True(t, domain.IsNotFound(err))

	account, err := repo.PrimaryAccount(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.ID("acc-o1"), account.ID)

	_, err = repo.PrimaryAccount(ctx, "ghost")
	assert.True(t, domain.IsNotFound(err))
}

func TestMemoryLedgerRepository_ApplyTransfer(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()
	seedLedger(t, repo)
	now := time.Now().UTC()

	require.NoError(t, repo.ApplyTransfer(ctx, transfer("t1", "c1", "o1", 400, now)))

	from, _ := repo.Account(ctx, "acc-c1")
	to, _ := repo.Account(ctx, "acc-o1")
	assert.True(t, from.Balance.Equal(decimal.NewFromInt(600)))
	assert.True(t, to.Balance.Equal(decimal.NewFromInt(500)))

	err := repo.ApplyTransfer(ctx, transfer("t2", "c1", "o1", 601, now))
	var funds *domain.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	from, _ = repo.Account(ctx, "acc-c1")
	assert.True(t, from.Balance.Equal(decimal.NewFromInt(600)))

	err = repo.ApplyTransfer(ctx, transfer("t1", "c1", "o1", 1, now))
	var internal *domain.InternalError
	assert.ErrorAs(t, err, &internal)

	txs, err := repo.Transactions(ctx, TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestMemoryLedgerRepository_InactiveAccount(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()
	seedLedger(t, repo)
	require.NoError(t, repo.Seed(ctx, nil, []domain.Account{
		{ID: "acc-o1", IdentityID: "o1", Balance: decimal.NewFromInt(100), Primary: true, Active: false},
	}))

	err := repo.ApplyTransfer(ctx, transfer("t1", "c1", "o1", 10, time.Now()))
	var auth *domain.AuthError
	assert.ErrorAs(t, err, &auth)
}

func TestMemoryLedgerRepository_ConcurrentTransfersConserveTotal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()
	seedLedger(t, repo)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = repo.ApplyTransfer(ctx, transfer(fmt.Sprintf("pay-%d", i), "c1", "o1", 30, time.Now()))
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = repo.ApplyTransfer(ctx, transfer(fmt.Sprintf("back-%d", i), "o1", "c1", 20, time.Now()))
		}(i)
	}
	wg.Wait()

	from, _ := repo.Account(ctx, "acc-c1")
	to, _ := repo.Account(ctx, "acc-o1")
	assert.True(t, from.Balance.Add(to.Balance).Equal(decimal.NewFromInt(1100)))
	assert.False(t, from.Balance.IsNegative())
	assert.False(t, to.Balance.IsNegative())
}

func TestMemoryLedgerRepository_TransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLedgerRepository()
	seedLedger(t, repo)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.ApplyTransfer(ctx, transfer("t1", "c1", "o1", 10, base)))
	require.NoError(t, repo.ApplyTransfer(ctx, transfer("t2", "c1", "o1", 10, base.Add(time.Minute))))
	refund := transfer("t3", "o1", "c1", 5, base.Add(2*time.Minute))
	refund.Type = domain.TransactionTypeRefund
	require.NoError(t, repo.ApplyTransfer(ctx, refund))

	txs, err := repo.Transactions(ctx, TransactionFilter{IdentityID: "c1"})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, domain.ID("t3"), txs[0].ID)
	assert.Equal(t, domain.ID("t1"), txs[2].ID)

	payments, err := repo.Transactions(ctx, TransactionFilter{IdentityID: "o1", Type: domain.TransactionTypePayment, Limit: 1})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.ID("t2"), payments[0].ID)
}
