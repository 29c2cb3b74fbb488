package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
)

type BookingFilter struct {
	CustomerID domain.ID
	OwnerID    domain.ID
	SpaID      domain.ID
	Status     domain.BookingStatus
}

// BookingRepository stores bookings. Update is an atomic read-modify-write:
// fn sees the current record and its changes are committed only if it
// returns nil.
type BookingRepository interface {
	Insert(ctx context.Context, booking *domain.Booking) error
	Get(ctx context.Context, id domain.ID) (*domain.Booking, error)
	Update(ctx context.Context, id domain.ID, fn func(b *domain.Booking) error) (*domain.Booking, error)
	ListBySpaDate(ctx context.Context, spaID domain.ID, date string) ([]domain.Booking, error)
	List(ctx context.Context, filter BookingFilter) ([]domain.Booking, error)
}

type MembershipRepository interface {
	Get(ctx context.Context, customerID domain.ID) (*domain.Membership, error)
	Save(ctx context.Context, m *domain.Membership) error
	// MarkExpired flips a stored active membership to expired only if its
	// term ended before now. A term renewed in the meantime is kept.
	MarkExpired(ctx context.Context, customerID domain.ID, now time.Time) error
	// ExpireBefore expires every active membership whose end date is before
	// deadline and returns the changed records.
	ExpireBefore(ctx context.Context, deadline time.Time) ([]domain.Membership, error)
}

type TransactionFilter struct {
	IdentityID domain.ID
	Type       domain.TransactionType
	Limit      int
}

// LedgerRepository stores identities, accounts and the append-only
// transaction log. ApplyTransfer must apply the debit, the credit and the
// log append as one unit, re-checking balance and account state inside it.
type LedgerRepository interface {
	IdentityByUPI(ctx context.Context, upiID string) (*domain.Identity, error)
	Identity(ctx context.Context, id domain.ID) (*domain.Identity, error)
	Account(ctx context.Context, id domain.ID) (*domain.Account, error)
	PrimaryAccount(ctx context.Context, identityID domain.ID) (*domain.Account, error)
	ApplyTransfer(ctx context.Context, tx *domain.Transaction) error
	Transactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	Seed(ctx context.Context, identities []domain.Identity, accounts []domain.Account) error
}
