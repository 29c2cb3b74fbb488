package availability

import (
	"context"
	"strings"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"go.uber.org/zap"
)

type BookingReader interface {
	ListBySpaDate(ctx context.Context, spaID domain.ID, date string) ([]domain.Booking, error)
}

// SlotCatalog supplies the bookable slot labels of a spa when the caller
// does not pass candidate slots explicitly.
type SlotCatalog interface {
	Slots(ctx context.Context, spaID domain.ID, serviceIDs []domain.ID) ([]string, error)
}

type Cache interface {
	GetAvailability(ctx context.Context, spaID domain.ID, date, signature string) ([]domain.SlotAvailability, error)
	SetAvailability(ctx context.Context, spaID domain.ID, date, signature string, slots []domain.SlotAvailability) error
	InvalidateAvailability(ctx context.Context, spaID domain.ID, date string) error
}

type Index struct {
	bookings BookingReader
	catalog  SlotCatalog
	cache    Cache
	logger   *zap.Logger
}

// NewIndex builds the index. catalog and cache may be nil.
func NewIndex(bookings BookingReader, catalog SlotCatalog, cache Cache, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{bookings: bookings, catalog: catalog, cache: cache, logger: logger}
}

// ComputeConflicts returns the live bookings of the spa/date/slot that claim
// any of the requested services.
func (i *Index) ComputeConflicts(ctx context.Context, spaID domain.ID, date, slot string, serviceIDs []domain.ID) ([]domain.Booking, error) {
	requested := domain.NewIDSet(serviceIDs...)
	if len(requested) == 0 {
		return nil, nil
	}
	bookings, err := i.bookings.ListBySpaDate(ctx, spaID, date)
	if err != nil {
		return nil, domain.Internal("list bookings", err)
	}
	return Conflicts(bookings, slot, requested), nil
}

// ListAvailability marks every candidate slot as booked when a live booking
// of that slot claims one of serviceIDs.
func (i *Index) ListAvailability(ctx context.Context, spaID domain.ID, date string, candidateSlots []string, serviceIDs []domain.ID) ([]domain.SlotAvailability, error) {
	requested := domain.NewIDSet(serviceIDs...)
	if len(requested) == 0 {
		return []domain.SlotAvailability{}, nil
	}

	slots := candidateSlots
	if len(slots) == 0 && i.catalog != nil {
		var err error
		if slots, err = i.catalog.Slots(ctx, spaID, requested.Sorted()); err != nil {
			return nil, domain.Internal("load slot catalog", err)
		}
	}
	slots = dedupSlots(slots)

	signature := cacheSignature(requested, slots)
	if i.cache != nil {
		cached, err := i.cache.GetAvailability(ctx, spaID, date, signature)
		if err != nil {
			i.logger.Warn("availability cache read failed", zap.String("spa_id", spaID.String()), zap.String("date", date), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	bookings, err := i.bookings.ListBySpaDate(ctx, spaID, date)
	if err != nil {
		return nil, domain.Internal("list bookings", err)
	}

	out := make([]domain.SlotAvailability, 0, len(slots))
	for _, slot := range slots {
		out = append(out, domain.SlotAvailability{
			Time:     slot,
			IsBooked: len(Conflicts(bookings, slot, requested)) > 0,
		})
	}

	if i.cache != nil {
		if err := i.cache.SetAvailability(ctx, spaID, date, signature, out); err != nil {
			i.logger.Warn("availability cache write failed", zap.String("spa_id", spaID.String()), zap.String("date", date), zap.Error(err))
		}
	}
	return out, nil
}

// Invalidate drops cached grids of the spa/date after a booking claimed or
// released services there.
func (i *Index) Invalidate(ctx context.Context, spaID domain.ID, date string) {
	if i.cache == nil {
		return
	}
	if err := i.cache.InvalidateAvailability(ctx, spaID, date); err != nil {
		i.logger.Warn("availability cache invalidation failed", zap.String("spa_id", spaID.String()), zap.String("date", date), zap.Error(err))
	}
}

// Conflicts filters bookings down to the live ones on slot whose services
// intersect requested.
func Conflicts(bookings []domain.Booking, slot string, requested domain.IDSet) []domain.Booking {
	var out []domain.Booking
	for _, b := range bookings {
		if !b.IsLive() || !SameSlot(b.Slot, slot) {
			continue
		}
		if b.ServiceIDs().Intersects(requested) {
			out = append(out, b)
		}
	}
	return out
}

// SameSlot compares slot labels ignoring case and surrounding blanks.
func SameSlot(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func dedupSlots(slots []string) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			if SameSlot(seen, s) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

func cacheSignature(services domain.IDSet, slots []string) string {
	ids := services.Sorted()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ",") + "|" + strings.ToLower(strings.Join(slots, ","))
}

// StaticSlotCatalog offers the same slots for every spa.
type StaticSlotCatalog struct {
	slots []string
}

func NewStaticSlotCatalog(slots []string) *StaticSlotCatalog {
	return &StaticSlotCatalog{slots: append([]string(nil), slots...)}
}

func (c *StaticSlotCatalog) Slots(context.Context, domain.ID, []domain.ID) ([]string, error) {
	return append([]string(nil), c.slots...), nil
}

// DefaultCacheTTL is used when the availability cache TTL is not configured.
const DefaultCacheTTL = 30 * time.Second
