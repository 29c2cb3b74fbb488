package refund

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/service/booking"
	"github.com/Domenick1991/spabooking/internal/service/ledger"
	"github.com/Domenick1991/spabooking/internal/service/membership"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Calculator turns a completed booking and the customer's membership into a
// refund record.
type Calculator struct {
	penaltyRate decimal.Decimal
}

func NewCalculator(penaltyRate decimal.Decimal) *Calculator {
	return &Calculator{penaltyRate: penaltyRate}
}

// Compute refunds the full final price to active members and deducts the
// cancellation penalty from everyone else.
func (c *Calculator) Compute(b *domain.Booking, ev membership.Evaluation, now time.Time) domain.RefundRecord {
	original := b.FinalPrice
	deducted := decimal.Zero
	if ev.Status != domain.MembershipStatusActive {
		deducted = original.Mul(c.penaltyRate).Round(2)
	}
	return domain.RefundRecord{
		RefundAmount:             original.Sub(deducted),
		DeductedAmount:           deducted,
		OriginalAmount:           original,
		RefundDate:               now.UTC(),
		RefundStatus:             domain.RefundStatusRefunded,
		MembershipStatusAtCancel: ev.Status,
		CustomerUPIID:            b.CustomerUPIID,
		MerchantUPIID:            b.MerchantUPIID,
	}
}

type Lifecycle interface {
	CancelWith(ctx context.Context, id domain.ID, settle booking.RefundStep) (*domain.Booking, error)
}

type MembershipEvaluator interface {
	Effective(ctx context.Context, customerID domain.ID) (membership.Evaluation, error)
}

type Ledger interface {
	Settle(ctx context.Context, fromUPIID, toUPIID string, amount decimal.Decimal, meta ledger.TransferMeta) (*domain.Transaction, error)
}

// Request carries what the caller knows about the refund. ExternalTransactionID
// is only used for bookings paid outside the ledger.
type Request struct {
	Details               string    `json:"refundDetails"`
	ExternalTransactionID domain.ID `json:"refundTransactionId"`
}

type Service struct {
	bookings    Lifecycle
	memberships MembershipEvaluator
	ledger      Ledger
	calculator  *Calculator
	now         func() time.Time
	logger      *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(bookings Lifecycle, memberships MembershipEvaluator, ledger Ledger, calculator *Calculator, opts ...Option) *Service {
	s := &Service{
		bookings:    bookings,
		memberships: memberships,
		ledger:      ledger,
		calculator:  calculator,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process cancels a completed booking and returns the refund to the
// customer. The amount is computed from the membership status at this
// moment, never from caller input. Bookings paid through the ledger are
// refunded merchant to customer; the transfer is reversed if the booking
// cannot be marked cancelled.
func (s *Service) Process(ctx context.Context, bookingID domain.ID, req Request) (*domain.Booking, error) {
	return s.bookings.CancelWith(ctx, bookingID, func(ctx context.Context, b *domain.Booking) (*booking.RefundSettlement, error) {
		ev, err := s.memberships.Effective(ctx, b.CustomerID)
		if err != nil {
			return nil, err
		}
		record := s.calculator.Compute(b, ev, s.now())
		record.RefundDetails = req.Details

		if b.CustomerUPIID == "" || b.MerchantUPIID == "" {
			if record.RefundAmount.IsPositive() && req.ExternalTransactionID.IsZero() {
				return nil, domain.NewValidationError("refundTransactionId", "is required for bookings paid outside the ledger")
			}
			record.RefundTransactionID = req.ExternalTransactionID
			return &booking.RefundSettlement{Record: record}, nil
		}
		if !req.ExternalTransactionID.IsZero() {
			return nil, domain.NewValidationError("refundTransactionId", "must be omitted for bookings paid through the ledger, the refund is transferred on cancel")
		}

		if !record.RefundAmount.IsPositive() {
			return &booking.RefundSettlement{Record: record}, nil
		}

		tx, err := s.ledger.Settle(ctx, b.MerchantUPIID, b.CustomerUPIID, record.RefundAmount, ledger.TransferMeta{
			OrderID:     b.ID.String(),
			Description: fmt.Sprintf("Refund for booking %s at %s", b.ID, b.SpaName),
			Type:        domain.TransactionTypeRefund,
		})
		if err != nil {
			return nil, err
		}
		record.RefundTransactionID = tx.ID
		s.logger.Info("refund transferred",
			zap.String("booking_id", b.ID.String()),
			zap.String("transaction_id", tx.ID.String()),
			zap.String("amount", record.RefundAmount.StringFixed(2)),
		)

		return &booking.RefundSettlement{
			Record: record,
			Undo: func(ctx context.Context) error {
				_, err := s.ledger.Settle(ctx, b.CustomerUPIID, b.MerchantUPIID, record.RefundAmount, ledger.TransferMeta{
					OrderID:     b.ID.String(),
					Description: fmt.Sprintf("Reversal of refund %s", tx.ID),
					Type:        domain.TransactionTypePayment,
				})
				return err
			},
		}, nil
	})
}
