package checkout

import (
	"context"
	"fmt"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/Domenick1991/spabooking/internal/service/booking"
	"github.com/Domenick1991/spabooking/internal/service/ledger"
	"github.com/Domenick1991/spabooking/internal/service/membership"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultPaymentMethod = "upi"

type Lifecycle interface {
	GetBooking(ctx context.Context, id domain.ID) (*domain.Booking, error)
	CompleteWith(ctx context.Context, id domain.ID, settle booking.PaymentStep) (*domain.Booking, error)
}

type Pricing interface {
	Effective(ctx context.Context, customerID domain.ID) (membership.Evaluation, error)
	Discount(base decimal.Decimal, ev membership.Evaluation) decimal.Decimal
	DiscountRate() decimal.Decimal
}

type Payments interface {
	Pay(ctx context.Context, req ledger.PayRequest) (*domain.Transaction, error)
	Settle(ctx context.Context, fromUPIID, toUPIID string, amount decimal.Decimal, meta ledger.TransferMeta) (*domain.Transaction, error)
	Identity(ctx context.Context, id domain.ID) (*domain.Identity, error)
}

// Quote is the price a customer pays for a booking. For completed and
// cancelled bookings it is the snapshot taken at payment time.
type Quote struct {
	BookingID        domain.ID               `json:"bookingId"`
	Status           domain.BookingStatus    `json:"status"`
	BasePrice        decimal.Decimal         `json:"basePrice"`
	DiscountRate     decimal.Decimal         `json:"discountRate"`
	DiscountAmount   decimal.Decimal         `json:"discountAmount"`
	FinalPrice       decimal.Decimal         `json:"finalPrice"`
	MembershipStatus domain.MembershipStatus `json:"membershipStatus,omitempty"`
	DiscountEligible bool                    `json:"discountEligible"`
}

type Request struct {
	CustomerUPIID string `json:"upiId"`
	PIN           string `json:"pin"`
	PaymentMethod string `json:"paymentMethod"`
	// MerchantUPIID overrides the UPI id registered for the spa owner.
	MerchantUPIID string `json:"merchantUpiId"`
}

type Service struct {
	bookings Lifecycle
	pricing  Pricing
	payments Payments
	logger   *zap.Logger
}

func NewService(bookings Lifecycle, pricing Pricing, payments Payments, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{bookings: bookings, pricing: pricing, payments: payments, logger: logger}
}

func (s *Service) Quote(ctx context.Context, id domain.ID) (*Quote, error) {
	b, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BookingStatusCompleted || b.Status == domain.BookingStatusCancelled {
		return &Quote{
			BookingID:        b.ID,
			Status:           b.Status,
			BasePrice:        b.BasePrice,
			DiscountRate:     s.pricing.DiscountRate(),
			DiscountAmount:   b.DiscountAmount,
			FinalPrice:       b.FinalPrice,
			DiscountEligible: b.DiscountAmount.IsPositive(),
		}, nil
	}
	return s.quote(ctx, b)
}

func (s *Service) quote(ctx context.Context, b *domain.Booking) (*Quote, error) {
	ev, err := s.pricing.Effective(ctx, b.CustomerID)
	if err != nil {
		return nil, err
	}
	discount := s.pricing.Discount(b.BasePrice, ev)
	return &Quote{
		BookingID:        b.ID,
		Status:           b.Status,
		BasePrice:        b.BasePrice,
		DiscountRate:     s.pricing.DiscountRate(),
		DiscountAmount:   discount,
		FinalPrice:       b.BasePrice.Sub(discount),
		MembershipStatus: ev.Status,
		DiscountEligible: ev.DiscountEligible,
	}, nil
}

// Checkout prices an approved booking, debits the customer through the
// ledger and completes the booking in one critical section. The payment is
// refunded when the completion cannot be stored.
func (s *Service) Checkout(ctx context.Context, id domain.ID, req Request) (*domain.Booking, error) {
	if req.CustomerUPIID == "" {
		return nil, domain.NewValidationError("upiId", "is required")
	}
	if req.PIN == "" {
		return nil, domain.NewValidationError("pin", "is required")
	}
	method := req.PaymentMethod
	if method == "" {
		method = DefaultPaymentMethod
	}

	return s.bookings.CompleteWith(ctx, id, func(ctx context.Context, b *domain.Booking) (*booking.PaymentSettlement, error) {
		q, err := s.quote(ctx, b)
		if err != nil {
			return nil, err
		}
		merchantUPI, err := s.merchantUPI(ctx, b, req.MerchantUPIID)
		if err != nil {
			return nil, err
		}

		input := booking.CompleteInput{
			PaymentMethod:  method,
			FinalPrice:     &q.FinalPrice,
			DiscountAmount: &q.DiscountAmount,
			CustomerUPIID:  req.CustomerUPIID,
			MerchantUPIID:  merchantUPI,
		}
		if !q.FinalPrice.IsPositive() {
			return &booking.PaymentSettlement{Input: input}, nil
		}

		tx, err := s.payments.Pay(ctx, ledger.PayRequest{
			CustomerUPIID: req.CustomerUPIID,
			PIN:           req.PIN,
			MerchantUPIID: merchantUPI,
			MerchantName:  b.SpaName,
			Amount:        q.FinalPrice,
			OrderID:       b.ID.String(),
			Description:   fmt.Sprintf("Booking %s at %s", b.ID, b.SpaName),
		})
		if err != nil {
			return nil, err
		}
		input.PaymentReference = tx.ID.String()
		input.PaymentDetails = map[string]any{
			"transactionId": tx.ID.String(),
			"upiId":         req.CustomerUPIID,
		}
		s.logger.Info("booking paid",
			zap.String("booking_id", b.ID.String()),
			zap.String("transaction_id", tx.ID.String()),
			zap.String("amount", q.FinalPrice.StringFixed(2)),
			zap.Bool("member_discount", q.DiscountEligible),
		)

		return &booking.PaymentSettlement{
			Input: input,
			Undo: func(ctx context.Context) error {
				_, err := s.payments.Settle(ctx, merchantUPI, req.CustomerUPIID, q.FinalPrice, ledger.TransferMeta{
					OrderID:     b.ID.String(),
					Description: fmt.Sprintf("Reversal of payment %s", tx.ID),
					Type:        domain.TransactionTypeRefund,
				})
				return err
			},
		}, nil
	})
}

func (s *Service) merchantUPI(ctx context.Context, b *domain.Booking, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	owner, err := s.payments.Identity(ctx, b.OwnerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", domain.NewValidationError("merchantUpiId", fmt.Sprintf("spa owner %s has no ledger account", b.OwnerID))
		}
		return "", err
	}
	return owner.UPIID, nil
}
