package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Domenick1991/spabooking/internal/kafka"
	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Notification is one message addressed to a user id.
type Notification struct {
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers notifications. Delivery is the structured log line; a
// mail gateway plugs in behind deliver.
type Sender struct {
	logger  *zap.Logger
	deliver func(ctx context.Context, n Notification) error
}

func NewSender(logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sender{logger: logger}
	s.deliver = s.logDelivery
	return s
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	for _, n := range BookingNotifications(event) {
		if err := s.deliver(ctx, n); err != nil {
			return fmt.Errorf("notify %s about booking %s: %w", n.Recipient, event.BookingID, err)
		}
	}
	return nil
}

func (s *Sender) SendTransaction(ctx context.Context, event kafka.TransactionEvent) error {
	for _, n := range TransactionNotifications(event) {
		if err := s.deliver(ctx, n); err != nil {
			return fmt.Errorf("notify %s about transaction %s: %w", n.Recipient, event.TransactionID, err)
		}
	}
	return nil
}

// Handle decodes a queued event by its type field. Undecodable and unknown
// messages are logged and skipped so they do not block the partition.
func (s *Sender) Handle(ctx context.Context, msg kafkaGo.Message) error {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		s.logger.Warn("skipping undecodable event", zap.String("topic", msg.Topic), zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}

	switch {
	case strings.HasPrefix(envelope.Type, "booking_"):
		var event kafka.BookingEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			s.logger.Warn("skipping malformed booking event", zap.Int64("offset", msg.Offset), zap.Error(err))
			return nil
		}
		return s.Send(ctx, event)
	case envelope.Type == kafka.EventPaymentCompleted || envelope.Type == kafka.EventRefundCompleted:
		var event kafka.TransactionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			s.logger.Warn("skipping malformed transaction event", zap.Int64("offset", msg.Offset), zap.Error(err))
			return nil
		}
		return s.SendTransaction(ctx, event)
	default:
		s.logger.Warn("skipping unknown event", zap.String("type", envelope.Type), zap.String("topic", msg.Topic))
		return nil
	}
}

func BookingNotifications(event kafka.BookingEvent) []Notification {
	where := fmt.Sprintf("%s on %s at %s", strings.Join(event.Services, ", "), event.Date, event.Slot)
	if event.SpaName != "" {
		where += " (" + event.SpaName + ")"
	}

	switch event.Type {
	case kafka.EventBookingCreated:
		return []Notification{
			{Recipient: event.CustomerID, Subject: "Booking received", Body: "Your booking for " + where + " is waiting for approval."},
			{Recipient: event.OwnerID, Subject: "New booking request", Body: "New booking request for " + where + "."},
		}
	case kafka.EventBookingApproved:
		return []Notification{
			{Recipient: event.CustomerID, Subject: "Booking approved", Body: "Your booking for " + where + " is approved. You can pay now."},
		}
	case kafka.EventBookingCompleted:
		return []Notification{
			{Recipient: event.CustomerID, Subject: "Payment received", Body: fmt.Sprintf("We received %s for %s.", event.FinalPrice.StringFixed(2), where)},
		}
	case kafka.EventBookingCancelled:
		body := "Your booking for " + where + " was cancelled."
		if event.RefundAmount != nil {
			body = fmt.Sprintf("Your booking for %s was cancelled. %s has been refunded.", where, event.RefundAmount.StringFixed(2))
		}
		return []Notification{
			{Recipient: event.CustomerID, Subject: "Booking cancelled", Body: body},
			{Recipient: event.OwnerID, Subject: "Booking cancelled", Body: "The booking for " + where + " was cancelled by the customer."},
		}
	default:
		return nil
	}
}

func TransactionNotifications(event kafka.TransactionEvent) []Notification {
	amount := event.Amount.StringFixed(2)
	return []Notification{
		{Recipient: event.FromUPIID, Subject: "Money sent", Body: fmt.Sprintf("%s was sent to %s (order %s).", amount, event.ToName, event.OrderID)},
		{Recipient: event.ToUPIID, Subject: "Money received", Body: fmt.Sprintf("%s was received from %s (order %s).", amount, event.FromName, event.OrderID)},
	}
}

func (s *Sender) logDelivery(_ context.Context, n Notification) error {
	s.logger.Info("notification sent",
		zap.String("recipient", n.Recipient),
		zap.String("subject", n.Subject),
		zap.String("body", n.Body),
	)
	return nil
}
