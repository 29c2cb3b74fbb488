package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrLockTimeout is returned when a keyed lock could not be taken in time.
var ErrLockTimeout = errors.New("lock wait timed out")

// ErrLockLost is the cancellation cause when a held lease expired or was
// taken over before the section finished.
var ErrLockLost = errors.New("lock lease lost")

type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictingBooking identifies a live booking that already claims one of
// the requested services.
type ConflictingBooking struct {
	ID       ID       `json:"id"`
	Services []string `json:"services"`
}

type ConflictError struct {
	SpaID       ID
	Date        string
	Slot        string
	Conflicting []ConflictingBooking
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Conflicting))
	for _, c := range e.Conflicting {
		ids = append(ids, c.ID.String())
	}
	return fmt.Sprintf("slot %s on %s at spa %s is already booked by %s", e.Slot, e.Date, e.SpaID, strings.Join(ids, ", "))
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

type StateError struct {
	BookingID ID
	From      BookingStatus
	To        BookingStatus
	Reason    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("booking %s: cannot move from %s to %s: %s", e.BookingID, e.From, e.To, e.Reason)
}

type InsufficientFundsError struct {
	AccountID ID
	Balance   decimal.Decimal
	Amount    decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: balance %s, requested %s", e.AccountID, e.Balance, e.Amount)
}

// AuthError covers PIN mismatches (Unauthorized) and disabled or inactive
// accounts (Unauthorized == false).
type AuthError struct {
	Subject      string
	Reason       string
	Unauthorized bool
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Subject, e.Reason)
}

type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Internal wraps err as an InternalError unless it already belongs to the
// domain taxonomy.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

func IsDomainError(err error) bool {
	var (
		validation *ValidationError
		conflict   *ConflictError
		notFound   *NotFoundError
		state      *StateError
		funds      *InsufficientFundsError
		auth       *AuthError
		internal   *InternalError
	)
	return errors.As(err, &validation) ||
		errors.As(err, &conflict) ||
		errors.As(err, &notFound) ||
		errors.As(err, &state) ||
		errors.As(err, &funds) ||
		errors.As(err, &auth) ||
		errors.As(err, &internal)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
