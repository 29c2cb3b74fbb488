package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
)

type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[domain.ID]*domain.Booking
	order    []domain.ID
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[domain.ID]*domain.Booking)}
}

func (r *MemoryBookingRepository) Insert(_ context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[booking.ID]; ok {
		return &domain.InternalError{Op: "insert booking", Err: errDuplicate(booking.ID)}
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	r.bookings[booking.ID] = booking.Clone()
	r.order = append(r.order, booking.ID)
	return nil
}

func (r *MemoryBookingRepository) Get(_ context.Context, id domain.ID) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "booking", ID: id.String()}
	}
	return b.Clone(), nil
}

func (r *MemoryBookingRepository) Update(_ context.Context, id domain.ID, fn func(b *domain.Booking) error) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bookings[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "booking", ID: id.String()}
	}
	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = stored.ID
	working.UpdatedAt = time.Now().UTC()
	r.bookings[id] = working
	return working.Clone(), nil
}

func (r *MemoryBookingRepository) ListBySpaDate(_ context.Context, spaID domain.ID, date string) ([]domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Booking, 0)
	for _, id := range r.order {
		b := r.bookings[id]
		if b.SpaID.Equal(spaID) && b.Date == date {
			out = append(out, *b.Clone())
		}
	}
	return out, nil
}

func (r *MemoryBookingRepository) List(_ context.Context, filter BookingFilter) ([]domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Booking, 0)
	for _, id := range r.order {
		b := r.bookings[id]
		if !filter.matches(b) {
			continue
		}
		out = append(out, *b.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f BookingFilter) matches(b *domain.Booking) bool {
	if !f.CustomerID.IsZero() && !b.CustomerID.Equal(f.CustomerID) {
		return false
	}
	if !f.OwnerID.IsZero() && !b.OwnerID.Equal(f.OwnerID) {
		return false
	}
	if !f.SpaID.IsZero() && !b.SpaID.Equal(f.SpaID) {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}

var _ BookingRepository = (*MemoryBookingRepository)(nil)
