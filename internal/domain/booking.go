package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusApproved  BookingStatus = "approved"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// DateLayout is the calendar date format of Booking.Date.
const DateLayout = "2006-01-02"

const RefundStatusRefunded = "refunded"

// ParseBookingStatus accepts any casing ("PENDING", "Pending") and returns
// the canonical lowercase status.
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case BookingStatusPending, BookingStatusApproved, BookingStatusCompleted, BookingStatusCancelled:
		return status, nil
	default:
		return "", NewValidationError("status", fmt.Sprintf("unknown booking status %q", s))
	}
}

type BookedService struct {
	ID    ID              `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type RefundRecord struct {
	RefundAmount             decimal.Decimal  `json:"refundAmount"`
	DeductedAmount           decimal.Decimal  `json:"deductedAmount"`
	OriginalAmount           decimal.Decimal  `json:"originalAmount"`
	RefundDate               time.Time        `json:"refundDate"`
	RefundStatus             string           `json:"refundStatus"`
	MembershipStatusAtCancel MembershipStatus `json:"membershipStatusAtCancel"`
	RefundTransactionID      ID               `json:"refundTransactionId,omitempty"`
	RefundDetails            string           `json:"refundDetails,omitempty"`
	CustomerUPIID            string           `json:"customerUpiId,omitempty"`
	MerchantUPIID            string           `json:"merchantUpiId,omitempty"`
}

type Booking struct {
	ID               ID              `json:"id"`
	CustomerID       ID              `json:"userId"`
	SpaID            ID              `json:"spaId"`
	SpaName          string          `json:"spaName"`
	OwnerID          ID              `json:"ownerId"`
	Services         []BookedService `json:"services"`
	Slot             string          `json:"slot"`
	Date             string          `json:"date"`
	Status           BookingStatus   `json:"status"`
	BasePrice        decimal.Decimal `json:"basePrice"`
	DiscountAmount   decimal.Decimal `json:"discountAmount"`
	FinalPrice       decimal.Decimal `json:"finalPrice"`
	PaymentMethod    string          `json:"paymentMethod,omitempty"`
	PaymentDetails   map[string]any  `json:"paymentDetails,omitempty"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	PaidAt           *time.Time      `json:"paidAt,omitempty"`
	CustomerUPIID    string          `json:"customerUpiId,omitempty"`
	MerchantUPIID    string          `json:"merchantUpiId,omitempty"`
	Refund           *RefundRecord   `json:"refund,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// IsLive reports whether the booking still claims its services.
func (b *Booking) IsLive() bool {
	return b.Status != BookingStatusCancelled
}

func (b *Booking) ServiceIDs() IDSet {
	ids := make([]ID, 0, len(b.Services))
	for _, s := range b.Services {
		ids = append(ids, s.ID)
	}
	return NewIDSet(ids...)
}

func (b *Booking) ServiceNames() []string {
	names := make([]string, 0, len(b.Services))
	for _, s := range b.Services {
		names = append(names, s.Name)
	}
	return names
}

// CheckTransition returns a StateError unless moving to next is legal from
// the booking's current status.
func (b *Booking) CheckTransition(next BookingStatus) error {
	var required BookingStatus
	switch next {
	case BookingStatusApproved:
		required = BookingStatusPending
	case BookingStatusCompleted:
		required = BookingStatusApproved
	case BookingStatusCancelled:
		if b.Refund != nil {
			return &StateError{BookingID: b.ID, From: b.Status, To: next, Reason: "booking has already been cancelled and refunded"}
		}
		required = BookingStatusCompleted
	default:
		return &StateError{BookingID: b.ID, From: b.Status, To: next, Reason: "transition is not allowed"}
	}
	if b.Status != required {
		return &StateError{
			BookingID: b.ID,
			From:      b.Status,
			To:        next,
			Reason:    fmt.Sprintf("booking must be %s, is %s", required, b.Status),
		}
	}
	return nil
}

// Clone returns a deep copy so snapshots never alias stored records.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	out := *b
	out.Services = append([]BookedService(nil), b.Services...)
	if b.PaymentDetails != nil {
		out.PaymentDetails = make(map[string]any, len(b.PaymentDetails))
		for k, v := range b.PaymentDetails {
			out.PaymentDetails[k] = v
		}
	}
	if b.PaidAt != nil {
		paid := *b.PaidAt
		out.PaidAt = &paid
	}
	if b.Refund != nil {
		refund := *b.Refund
		out.Refund = &refund
	}
	return &out
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

type SlotAvailability struct {
	Time     string `json:"time"`
	IsBooked bool   `json:"isBooked"`
}
