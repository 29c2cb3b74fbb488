package kafka

import (
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingApproved  = "booking_approved"
	EventBookingCompleted = "booking_completed"
	EventBookingCancelled = "booking_cancelled"

	EventPaymentCompleted = "payment_completed"
	EventRefundCompleted  = "refund_completed"
)

type BookingEvent struct {
	Type         string           `json:"type"`
	BookingID    string           `json:"booking_id"`
	CustomerID   string           `json:"customer_id"`
	SpaID        string           `json:"spa_id"`
	SpaName      string           `json:"spa_name,omitempty"`
	OwnerID      string           `json:"owner_id"`
	Date         string           `json:"date"`
	Slot         string           `json:"slot"`
	Services     []string         `json:"services"`
	Status       string           `json:"status"`
	FinalPrice   decimal.Decimal  `json:"final_price"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

func NewBookingEvent(eventType string, b *domain.Booking, at time.Time) BookingEvent {
	event := BookingEvent{
		Type:       eventType,
		BookingID:  b.ID.String(),
		CustomerID: b.CustomerID.String(),
		SpaID:      b.SpaID.String(),
		SpaName:    b.SpaName,
		OwnerID:    b.OwnerID.String(),
		Date:       b.Date,
		Slot:       b.Slot,
		Services:   b.ServiceNames(),
		Status:     string(b.Status),
		FinalPrice: b.FinalPrice,
		OccurredAt: at,
	}
	if b.Refund != nil {
		amount := b.Refund.RefundAmount
		event.RefundAmount = &amount
	}
	return event
}

type TransactionEvent struct {
	Type          string          `json:"type"`
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	FromUPIID     string          `json:"from_upi_id"`
	FromName      string          `json:"from_name"`
	ToUPIID       string          `json:"to_upi_id"`
	ToName        string          `json:"to_name"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func NewTransactionEvent(tx *domain.Transaction) TransactionEvent {
	eventType := EventPaymentCompleted
	if tx.Type == domain.TransactionTypeRefund {
		eventType = EventRefundCompleted
	}
	return TransactionEvent{
		Type:          eventType,
		TransactionID: tx.ID.String(),
		OrderID:       tx.OrderID,
		Amount:        tx.Amount,
		FromUPIID:     tx.From.UPIID,
		FromName:      tx.From.Name,
		ToUPIID:       tx.To.UPIID,
		ToName:        tx.To.Name,
		OccurredAt:    tx.Timestamp,
	}
}
