package availability

import (
	"context"
	"errors"
	"testing"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetAvailability(ctx context.Context, spaID domain.ID, date, signature string) ([]domain.SlotAvailability, error) {
	args := m.Called(ctx, spaID, date, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SlotAvailability), args.Error(1)
}

func (m *MockCache) SetAvailability(ctx context.Context, spaID domain.ID, date, signature string, slots []domain.SlotAvailability) error {
	args := m.Called(ctx, spaID, date, signature, slots)
	return args.Error(0)
}

func (m *MockCache) InvalidateAvailability(ctx context.Context, spaID domain.ID, date string) error {
	args := m.Called(ctx, spaID, date)
	return args.Error(0)
}

func booking(id string, slot string, status domain.BookingStatus, services ...string) *domain.Booking {
	b := &domain.Booking{
		ID:       domain.ID(id),
		SpaID:    "10",
		Date:     "2025-12-01",
		Slot:     slot,
		Status:   status,
		OwnerID:  "owner-1",
		Services: make([]domain.BookedService, 0, len(services)),
	}
	for _, s := range services {
		b.Services = append(b.Services, domain.BookedService{ID: domain.ID(s), Name: "service " + s, Price: decimal.NewFromInt(100)})
	}
	return b
}

func newStore(t *testing.T, bookings ...*domain.Booking) *repository.MemoryBookingRepository {
	t.Helper()
	repo := repository.NewMemoryBookingRepository()
	for _, b := range bookings {
		require.NoError(t, repo.Insert(context.Background(), b))
	}
	return repo
}

func TestComputeConflicts_Overlap(t *testing.T) {
	repo := newStore(t, booking("A", "10:00 AM", domain.BookingStatusPending, "1", "2"))
	index := NewIndex(repo, nil, nil, nil)

	conflicts, err := index.ComputeConflicts(context.Background(), "10", "2025-12-01", "10:00 AM", []domain.ID{"3", "2"})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, domain.ID("A"), conflicts[0].ID)
}

func TestComputeConflicts_IgnoresOtherSlotsAndCancelled(t *testing.T) {
	repo := newStore(t,
		booking("A", "10:00 AM", domain.BookingStatusCancelled, "1"),
		booking("B", "11:00 AM", domain.BookingStatusApproved, "1"),
		booking("C", "10:00 am", domain.BookingStatusCompleted, "4"),
	)
	index := NewIndex(repo, nil, nil, nil)

	conflicts, err := index.ComputeConflicts(context.Background(), "10", "2025-12-01", "10:00 AM", []domain.ID{"1"})
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = index.ComputeConflicts(context.Background(), "10", "2025-12-01", " 10:00 AM ", []domain.ID{"4"})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, domain.ID("C"), conflicts[0].ID)
}

func TestComputeConflicts_EmptyRequest(t *testing.T) {
	repo := newStore(t, booking("A", "10:00 AM", domain.BookingStatusPending, "1"))
	index := NewIndex(repo, nil, nil, nil)

	conflicts, err := index.ComputeConflicts(context.Background(), "10", "2025-12-01", "10:00 AM", nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestConflicts_OrderInsensitive(t *testing.T) {
	bookings := []domain.Booking{*booking("A", "10:00 AM", domain.BookingStatusPending, "2", "1")}

	forward := Conflicts(bookings, "10:00 AM", domain.NewIDSet("1", "2"))
	backward := Conflicts(bookings, "10:00 AM", domain.NewIDSet("2", "1", "1"))
	assert.Equal(t, forward, backward)
	assert.Len(t, forward, 1)
}

func TestListAvailability(t *testing.T) {
	repo := newStore(t, booking("A", "10:00 AM", domain.BookingStatusPending, "1"))
	index := NewIndex(repo, nil, nil, nil)
	ctx := context.Background()

	slots, err := index.ListAvailability(ctx, "10", "2025-12-01", []string{"09:00 AM", "10:00 AM", "10:00 am", "11:00 AM"}, []domain.ID{"1"})
	require.NoError(t, err)
	assert.Equal(t, []domain.SlotAvailability{
		{Time: "09:00 AM", IsBooked: false},
		{Time: "10:00 AM", IsBooked: true},
		{Time: "11:00 AM", IsBooked: false},
	}, slots)

	again, err := index.ListAvailability(ctx, "10", "2025-12-01", []string{"09:00 AM", "10:00 AM", "10:00 am", "11:00 AM"}, []domain.ID{"1"})
	require.NoError(t, err)
	assert.Equal(t, slots, again)

	other, err := index.ListAvailability(ctx, "10", "2025-12-01", []string{"10:00 AM"}, []domain.ID{"2"})
	require.NoError(t, err)
	assert.False(t, other[0].IsBooked)
}

func TestListAvailability_EmptyServices(t *testing.T) {
	index := NewIndex(newStore(t), NewStaticSlotCatalog([]string{"09:00 AM"}), nil, nil)

	slots, err := index.ListAvailability(context.Background(), "10", "2025-12-01", nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestListAvailability_FallsBackToCatalog(t *testing.T) {
	index := NewIndex(newStore(t), NewStaticSlotCatalog([]string{"09:00 AM", "10:00 AM"}), nil, nil)

	slots, err := index.ListAvailability(context.Background(), "10", "2025-12-01", nil, []domain.ID{"1"})
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestListAvailability_UsesCache(t *testing.T) {
	cache := &MockCache{}
	index := NewIndex(newStore(t), nil, cache, nil)
	ctx := context.Background()
	cached := []domain.SlotAvailability{{Time: "10:00 AM", IsBooked: true}}

	cache.On("GetAvailability", ctx, domain.ID("10"), "2025-12-01", "1|10:00 am").Return(cached, nil).Once()

	slots, err := index.ListAvailability(ctx, "10", "2025-12-01", []string{"10:00 AM"}, []domain.ID{"1"})
	require.NoError(t, err)
	assert.Equal(t, cached, slots)
	cache.AssertExpectations(t)
}

func TestListAvailability_CacheFailureFallsThrough(t *testing.T) {
	cache := &MockCache{}
	repo := newStore(t, booking("A", "10:00 AM", domain.BookingStatusPending, "1"))
	index := NewIndex(repo, nil, cache, nil)
	ctx := context.Background()

	cache.On("GetAvailability", ctx, domain.ID("10"), "2025-12-01", mock.Anything).Return(nil, errors.New("redis down")).Once()
	cache.On("SetAvailability", ctx, domain.ID("10"), "2025-12-01", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()

	slots, err := index.ListAvailability(ctx, "10", "2025-12-01", []string{"10:00 AM"}, []domain.ID{"1"})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].IsBooked)
	cache.AssertExpectations(t)
}

func TestInvalidate(t *testing.T) {
	cache := &MockCache{}
	index := NewIndex(newStore(t), nil, cache, nil)
	ctx := context.Background()

	cache.On("InvalidateAvailability", ctx, domain.ID("10"), "2025-12-01").Return(nil).Once()
	index.Invalidate(ctx, "10", "2025-12-01")
	cache.AssertExpectations(t)

	NewIndex(newStore(t), nil, nil, nil).Invalidate(ctx, "10", "2025-12-01")
}
