package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/kafka"
	"github.com/Domenick1991/spabooking/internal/lock"
	"github.com/Domenick1991/spabooking/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	ValidateSlot(ctx context.Context, input SlotInput) (*SlotCheck, error)
	CheckAvailability(ctx context.Context, input AvailabilityInput) ([]domain.SlotAvailability, error)
	ApproveBooking(ctx context.Context, id domain.ID) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, id domain.ID, input CompleteInput) (*domain.Booking, error)
	CompleteWith(ctx context.Context, id domain.ID, settle PaymentStep) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id domain.ID, refund domain.RefundRecord) (*domain.Booking, error)
	CancelWith(ctx context.Context, id domain.ID, settle RefundStep) (*domain.Booking, error)
	GetBooking(ctx context.Context, id domain.ID) (*domain.Booking, error)
	ListBookings(ctx context.Context, filter repository.BookingFilter) ([]domain.Booking, error)
	ListByCustomer(ctx context.Context, customerID domain.ID) ([]domain.Booking, error)
	ListByOwner(ctx context.Context, ownerID domain.ID) ([]domain.Booking, error)
}

// Index is the slot availability view the lifecycle consults.
type Index interface {
	ComputeConflicts(ctx context.Context, spaID domain.ID, date, slot string, serviceIDs []domain.ID) ([]domain.Booking, error)
	ListAvailability(ctx context.Context, spaID domain.ID, date string, candidateSlots []string, serviceIDs []domain.ID) ([]domain.SlotAvailability, error)
	Invalidate(ctx context.Context, spaID domain.ID, date string)
}

type Producer interface {
	PublishWithRetry(ctx context.Context, topic, key string, value any, maxRetries int) error
}

// DefaultPublishRetries bounds the attempts per event after a commit.
const DefaultPublishRetries = 3

type BookingService struct {
	bookings           repository.BookingRepository
	index              Index
	locker             lock.Locker
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	publishRetries     int
	now                func() time.Time
	logger             *zap.Logger
}

type CreateBookingInput struct {
	CustomerID domain.ID              `json:"userId"`
	SpaID      domain.ID              `json:"spaId"`
	SpaName    string                 `json:"spaName"`
	OwnerID    domain.ID              `json:"ownerId"`
	Services   []domain.BookedService `json:"services"`
	Slot       string                 `json:"slot"`
	Date       string                 `json:"date"`
	TotalPrice *decimal.Decimal       `json:"totalPrice"`
}

type SlotInput struct {
	SpaID    domain.ID              `json:"spaId"`
	Date     string                 `json:"date"`
	Slot     string                 `json:"slot"`
	Services []domain.BookedService `json:"services"`
}

type SlotCheck struct {
	Available   bool                        `json:"available"`
	Message     string                      `json:"message"`
	Conflicting []domain.ConflictingBooking `json:"conflictingBookings,omitempty"`
}

type AvailabilityInput struct {
	SpaID            domain.ID              `json:"spaId"`
	SelectedServices []domain.BookedService `json:"selectedServices"`
	Date             string                 `json:"date"`
	Slots            []string               `json:"slots"`
}

// CompleteInput carries the payment facts recorded on completion. Nil
// prices keep the booking's current values.
type CompleteInput struct {
	PaymentMethod    string           `json:"paymentMethod"`
	PaymentDetails   map[string]any   `json:"paymentDetails"`
	FinalPrice       *decimal.Decimal `json:"totalPrice"`
	DiscountAmount   *decimal.Decimal `json:"discountPrice"`
	PaymentReference string           `json:"paymentReference"`
	CustomerUPIID    string           `json:"customerUpiId"`
	MerchantUPIID    string           `json:"merchantUpiId"`
}

// PaymentSettlement is what a PaymentStep produced. Undo reverses the money
// movement when the completion cannot be committed.
type PaymentSettlement struct {
	Input CompleteInput
	Undo  func(ctx context.Context) error
}

// PaymentStep runs inside the booking's critical section after the
// approved-state guard passed.
type PaymentStep func(ctx context.Context, b *domain.Booking) (*PaymentSettlement, error)

type RefundSettlement struct {
	Record domain.RefundRecord
	Undo   func(ctx context.Context) error
}

// RefundStep runs inside the booking's critical section after the
// completed-state guard passed.
type RefundStep func(ctx context.Context, b *domain.Booking) (*RefundSettlement, error)

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithProducer(producer Producer, topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.bookingTopic = topic
	}
}

func WithPublishRetries(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.publishRetries = n
		}
	}
}

func WithLogger(logger *zap.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	index Index,
	locker lock.Locker,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings: bookings,
		index:    index,
		locker:   locker,
		now:      time.Now,
		logger:   zap.NewNop(),

		publishRetries: DefaultPublishRetries,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateBooking checks conflicts and inserts the booking inside one
// critical section keyed by spa, date and slot.
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	price := sumPrices(input.Services)
	if input.TotalPrice != nil {
		price = *input.TotalPrice
	}

	var created *domain.Booking
	key := lock.SlotKey(input.SpaID.String(), input.Date, input.Slot)
	err := s.locker.WithLock(ctx, key, func(ctx context.Context) error {
		conflicts, err := s.index.ComputeConflicts(ctx, input.SpaID, input.Date, input.Slot, serviceIDs(input.Services))
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &domain.ConflictError{
				SpaID:       input.SpaID,
				Date:        input.Date,
				Slot:        input.Slot,
				Conflicting: describe(conflicts),
			}
		}

		now := s.now().UTC()
		booking := &domain.Booking{
			ID:             domain.ID(uuid.NewString()),
			CustomerID:     input.CustomerID,
			SpaID:          input.SpaID,
			SpaName:        input.SpaName,
			OwnerID:        input.OwnerID,
			Services:       append([]domain.BookedService(nil), input.Services...),
			Slot:           input.Slot,
			Date:           input.Date,
			Status:         domain.BookingStatusPending,
			BasePrice:      price,
			DiscountAmount: decimal.Zero,
			FinalPrice:     price,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.bookings.Insert(ctx, booking); err != nil {
			return err
		}
		created = booking
		return nil
	})
	if err != nil {
		return nil, domain.Internal("create booking", err)
	}

	s.index.Invalidate(ctx, created.SpaID, created.Date)
	s.logger.Info("booking created",
		zap.String("booking_id", created.ID.String()),
		zap.String("spa_id", created.SpaID.String()),
		zap.String("date", created.Date),
		zap.String("slot", created.Slot),
	)
	s.publish(ctx, kafka.EventBookingCreated, created)
	return created, nil
}

// ValidateSlot is a read-only probe; it takes no lock and promises nothing
// about a later CreateBooking.
func (s *BookingService) ValidateSlot(ctx context.Context, input SlotInput) (*SlotCheck, error) {
	if input.SpaID.IsZero() || input.Date == "" || input.Slot == "" || len(input.Services) == 0 {
		return nil, domain.NewValidationError("", "Missing required fields")
	}
	conflicts, err := s.index.ComputeConflicts(ctx, input.SpaID, input.Date, input.Slot, serviceIDs(input.Services))
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return &SlotCheck{
			Available:   false,
			Message:     "This slot is already booked for one or more of the selected services",
			Conflicting: describe(conflicts),
		}, nil
	}
	return &SlotCheck{Available: true, Message: "Slot is available"}, nil
}

func (s *BookingService) CheckAvailability(ctx context.Context, input AvailabilityInput) ([]domain.SlotAvailability, error) {
	if len(input.SelectedServices) == 0 {
		return []domain.SlotAvailability{}, nil
	}
	if input.SpaID.IsZero() {
		return nil, domain.NewValidationError("spaId", "is required")
	}
	if !domain.ValidDate(input.Date) {
		return nil, domain.NewValidationError("date", "must be YYYY-MM-DD")
	}
	return s.index.ListAvailability(ctx, input.SpaID, input.Date, input.Slots, serviceIDs(input.SelectedServices))
}

func (s *BookingService) ApproveBooking(ctx context.Context, id domain.ID) (*domain.Booking, error) {
	updated, err := s.transition(ctx, id, domain.BookingStatusApproved)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, kafka.EventBookingApproved, updated)
	return updated, nil
}

// CompleteBooking records a payment that was settled outside the ledger
// service.
func (s *BookingService) CompleteBooking(ctx context.Context, id domain.ID, input CompleteInput) (*domain.Booking, error) {
	return s.CompleteWith(ctx, id, func(context.Context, *domain.Booking) (*PaymentSettlement, error) {
		return &PaymentSettlement{Input: input}, nil
	})
}

// CompleteWith runs settle and the completion write in the booking's
// critical section. If the write fails after settle moved money, the
// settlement is undone before the error is returned.
func (s *BookingService) CompleteWith(ctx context.Context, id domain.ID, settle PaymentStep) (*domain.Booking, error) {
	var updated *domain.Booking
	err := s.locker.WithLock(ctx, lock.BookingKey(id.String()), func(ctx context.Context) error {
		current, err := s.bookings.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := current.CheckTransition(domain.BookingStatusCompleted); err != nil {
			return err
		}
		settlement, err := settle(ctx, current.Clone())
		if err != nil {
			return err
		}
		if err := settlement.Input.validate(); err != nil {
			s.undo(ctx, id, settlement.Undo)
			return err
		}

		paidAt := s.now().UTC()
		updated, err = s.bookings.Update(ctx, id, func(b *domain.Booking) error {
			if err := b.CheckTransition(domain.BookingStatusCompleted); err != nil {
				return err
			}
			settlement.Input.apply(b, paidAt)
			if b.FinalPrice.IsNegative() {
				return domain.NewValidationError("discountPrice", "exceeds the booking price")
			}
			b.Status = domain.BookingStatusCompleted
			return nil
		})
		if err != nil {
			s.undo(ctx, id, settlement.Undo)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, domain.Internal("complete booking", err)
	}

	s.logger.Info("booking completed",
		zap.String("booking_id", id.String()),
		zap.String("final_price", updated.FinalPrice.StringFixed(2)),
		zap.String("payment_reference", updated.PaymentReference),
	)
	s.publish(ctx, kafka.EventBookingCompleted, updated)
	return updated, nil
}

// CancelBooking attaches a refund record computed elsewhere.
func (s *BookingService) CancelBooking(ctx context.Context, id domain.ID, refund domain.RefundRecord) (*domain.Booking, error) {
	return s.CancelWith(ctx, id, func(context.Context, *domain.Booking) (*RefundSettlement, error) {
		return &RefundSettlement{Record: refund}, nil
	})
}

// CancelWith runs settle and the cancellation write in the booking's
// critical section, so the refund is computed and moved at most once.
func (s *BookingService) CancelWith(ctx context.Context, id domain.ID, settle RefundStep) (*domain.Booking, error) {
	var updated *domain.Booking
	err := s.locker.WithLock(ctx, lock.BookingKey(id.String()), func(ctx context.Context) error {
		current, err := s.bookings.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := current.CheckTransition(domain.BookingStatusCancelled); err != nil {
			return err
		}
		settlement, err := settle(ctx, current.Clone())
		if err != nil {
			return err
		}

		record := settlement.Record
		if record.RefundDate.IsZero() {
			record.RefundDate = s.now().UTC()
		}
		if record.RefundStatus == "" {
			record.RefundStatus = domain.RefundStatusRefunded
		}
		updated, err = s.bookings.Update(ctx, id, func(b *domain.Booking) error {
			if err := b.CheckTransition(domain.BookingStatusCancelled); err != nil {
				return err
			}
			b.Refund = &record
			b.Status = domain.BookingStatusCancelled
			return nil
		})
		if err != nil {
			s.undo(ctx, id, settlement.Undo)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, domain.Internal("cancel booking", err)
	}

	s.index.Invalidate(ctx, updated.SpaID, updated.Date)
	s.logger.Info("booking cancelled",
		zap.String("booking_id", id.String()),
		zap.String("refund_amount", updated.Refund.RefundAmount.StringFixed(2)),
		zap.String("membership_status", string(updated.Refund.MembershipStatusAtCancel)),
	)
	s.publish(ctx, kafka.EventBookingCancelled, updated)
	return updated, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id domain.ID) (*domain.Booking, error) {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, domain.Internal("get booking", err)
	}
	return b, nil
}

func (s *BookingService) ListBookings(ctx context.Context, filter repository.BookingFilter) ([]domain.Booking, error) {
	bookings, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, domain.Internal("list bookings", err)
	}
	return bookings, nil
}

func (s *BookingService) ListByCustomer(ctx context.Context, customerID domain.ID) ([]domain.Booking, error) {
	if customerID.IsZero() {
		return nil, domain.NewValidationError("userId", "is required")
	}
	return s.ListBookings(ctx, repository.BookingFilter{CustomerID: customerID})
}

func (s *BookingService) ListByOwner(ctx context.Context, ownerID domain.ID) ([]domain.Booking, error) {
	if ownerID.IsZero() {
		return nil, domain.NewValidationError("ownerId", "is required")
	}
	return s.ListBookings(ctx, repository.BookingFilter{OwnerID: ownerID})
}

func (s *BookingService) transition(ctx context.Context, id domain.ID, next domain.BookingStatus) (*domain.Booking, error) {
	var updated *domain.Booking
	err := s.locker.WithLock(ctx, lock.BookingKey(id.String()), func(ctx context.Context) error {
		var err error
		updated, err = s.bookings.Update(ctx, id, func(b *domain.Booking) error {
			if err := b.CheckTransition(next); err != nil {
				return err
			}
			b.Status = next
			return nil
		})
		return err
	})
	if err != nil {
		return nil, domain.Internal(fmt.Sprintf("move booking to %s", next), err)
	}
	s.logger.Info("booking status changed", zap.String("booking_id", id.String()), zap.String("status", string(next)))
	return updated, nil
}

// undo reverses a settlement whose booking write failed. It runs detached
// from ctx so a cancelled request still returns the money.
func (s *BookingService) undo(ctx context.Context, id domain.ID, undo func(ctx context.Context) error) {
	if undo == nil {
		return
	}
	if err := undo(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("failed to reverse settlement", zap.String("booking_id", id.String()), zap.Error(err))
		return
	}
	s.logger.Warn("settlement reversed after failed booking write", zap.String("booking_id", id.String()))
}

func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.NewBookingEvent(eventType, booking, s.now().UTC())
	if err := s.producer.PublishWithRetry(ctx, s.bookingTopic, booking.ID.String(), event, s.publishRetries); err != nil {
		s.logger.Warn("failed to publish booking event", zap.String("type", eventType), zap.String("booking_id", booking.ID.String()), zap.Error(err))
		return
	}
	if s.notificationsTopic != "" {
		if err := s.producer.PublishWithRetry(ctx, s.notificationsTopic, booking.ID.String(), event, s.publishRetries); err != nil {
			s.logger.Warn("failed to publish notification", zap.String("type", eventType), zap.String("booking_id", booking.ID.String()), zap.Error(err))
		}
	}
}

func (in CreateBookingInput) validate() error {
	switch {
	case in.CustomerID.IsZero():
		return domain.NewValidationError("userId", "is required")
	case in.SpaID.IsZero():
		return domain.NewValidationError("spaId", "is required")
	case in.OwnerID.IsZero():
		return domain.NewValidationError("ownerId", "is required")
	case in.Slot == "":
		return domain.NewValidationError("slot", "is required")
	case !domain.ValidDate(in.Date):
		return domain.NewValidationError("date", "must be YYYY-MM-DD")
	case len(in.Services) == 0:
		return domain.NewValidationError("services", "at least one service is required")
	}
	seen := make(domain.IDSet, len(in.Services))
	for _, svc := range in.Services {
		if svc.ID.IsZero() {
			return domain.NewValidationError("services", "every service needs an id")
		}
		if seen.Contains(svc.ID) {
			return domain.NewValidationError("services", fmt.Sprintf("service %s is listed twice", svc.ID))
		}
		seen[svc.ID] = struct{}{}
		if svc.Price.IsNegative() {
			return domain.NewValidationError("services", fmt.Sprintf("service %s has a negative price", svc.ID))
		}
		if !wholeCents(svc.Price) {
			return domain.NewValidationError("services", fmt.Sprintf("service %s price has more than two decimal places", svc.ID))
		}
	}
	if in.TotalPrice != nil {
		if err := validatePrice("totalPrice", *in.TotalPrice); err != nil {
			return err
		}
	}
	return nil
}

func (in CompleteInput) validate() error {
	if in.FinalPrice != nil {
		if err := validatePrice("totalPrice", *in.FinalPrice); err != nil {
			return err
		}
	}
	if in.DiscountAmount != nil {
		if err := validatePrice("discountPrice", *in.DiscountAmount); err != nil {
			return err
		}
	}
	return nil
}

// Prices must settle through the ledger, which moves whole cents only.
func validatePrice(field string, price decimal.Decimal) error {
	if price.IsNegative() {
		return domain.NewValidationError(field, "must not be negative")
	}
	if !wholeCents(price) {
		return domain.NewValidationError(field, "must have at most two decimal places")
	}
	return nil
}

func wholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func (in CompleteInput) apply(b *domain.Booking, paidAt time.Time) {
	b.PaymentMethod = in.PaymentMethod
	b.PaymentDetails = in.PaymentDetails
	b.DiscountAmount = decimal.Zero
	if in.DiscountAmount != nil {
		b.DiscountAmount = *in.DiscountAmount
	}
	switch {
	case in.FinalPrice != nil:
		b.FinalPrice = *in.FinalPrice
	default:
		b.FinalPrice = b.BasePrice.Sub(b.DiscountAmount)
	}
	b.PaymentReference = in.PaymentReference
	if b.PaymentReference == "" {
		b.PaymentReference = fmt.Sprintf("PAY-%d", paidAt.UnixMilli())
	}
	b.PaidAt = &paidAt
	b.CustomerUPIID = in.CustomerUPIID
	b.MerchantUPIID = in.MerchantUPIID
}

func sumPrices(services []domain.BookedService) decimal.Decimal {
	total := decimal.Zero
	for _, svc := range services {
		total = total.Add(svc.Price)
	}
	return total
}

func serviceIDs(services []domain.BookedService) []domain.ID {
	ids := make([]domain.ID, 0, len(services))
	for _, svc := range services {
		ids = append(ids, svc.ID)
	}
	return ids
}

func describe(bookings []domain.Booking) []domain.ConflictingBooking {
	out := make([]domain.ConflictingBooking, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, domain.ConflictingBooking{ID: b.ID, Services: b.ServiceNames()})
	}
	return out
}

var _ BookingUseCase = (*BookingService)(nil)
