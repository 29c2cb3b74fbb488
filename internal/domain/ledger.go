package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypePayment TransactionType = "payment"
	TransactionTypeRefund  TransactionType = "refund"
)

const (
	TransactionStatusSuccess = "success"

	IdentityStatusActive = "active"
)

// Identity is a ledger user addressed by its UPI identifier.
type Identity struct {
	ID         ID     `json:"id"`
	UPIID      string `json:"upiId"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	UPIEnabled bool   `json:"upiEnabled"`
	PINHash    string `json:"-"`
	Status     string `json:"status"`
}

type Account struct {
	ID         ID              `json:"accountId"`
	IdentityID ID              `json:"userId"`
	Balance    decimal.Decimal `json:"balance"`
	Type       string          `json:"type"`
	Primary    bool            `json:"isPrimary"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Party snapshots one side of a transfer at the time it happened.
type Party struct {
	IdentityID ID     `json:"userId"`
	UPIID      string `json:"upiId"`
	AccountID  ID     `json:"accountId"`
	Name       string `json:"name"`
}

type Transaction struct {
	ID          ID              `json:"transactionId"`
	OrderID     string          `json:"orderId"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Status      string          `json:"status"`
	From        Party           `json:"from"`
	To          Party           `json:"to"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Involves reports whether the identity is on either side of the transfer.
func (t *Transaction) Involves(identityID ID) bool {
	return t.From.IdentityID.Equal(identityID) || t.To.IdentityID.Equal(identityID)
}
