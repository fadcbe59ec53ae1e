package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the canonical payment status derived from provider free text.
type Status string

const (
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusPending    Status = "pending"
	StatusRefund     Status = "refund"
	StatusCancel     Status = "cancel"
)

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccessful, StatusFailed, StatusPending, StatusRefund, StatusCancel:
		return true
	}
	return false
}

// Key identifies a real-world provider event across every record source.
type Key struct {
	Provider string
	UID      string
}

func (k Key) String() string {
	return k.Provider + ":" + k.UID
}

// Transaction is the normalized provider transaction, whatever source it came from.
type Transaction struct {
	Provider  string
	UID       string
	ParentUID string
	OrderRef  string

	TransactionType  string
	Status           string
	Message          string
	StatusNormalized Status
	IsFee            bool

	Amount   decimal.Decimal
	Currency string

	CreatedAt     time.Time
	PaidAt        *time.Time
	TransferredAt *time.Time

	CustomerEmail string
	CustomerPhone string
	CustomerIP    string
	Description   string

	CardLast4    string
	CardHolder   string
	CardBrand    string
	CardBIN      string
	CardBank     string
	CardCountry  string
	ThreeDSecure *bool

	Commission   decimal.Decimal
	PayoutAmount decimal.Decimal

	// Extra keeps provider columns that have no dedicated field, verbatim.
	Extra map[string]string
}

// Key returns the dedup key of the transaction.
func (t Transaction) Key() Key {
	return Key{Provider: t.Provider, UID: t.UID}
}

// EffectiveAt is paid_at when known, created_at otherwise. Zero when neither is set.
func (t Transaction) EffectiveAt() time.Time {
	if t.PaidAt != nil && !t.PaidAt.IsZero() {
		return *t.PaidAt
	}
	return t.CreatedAt
}

// Reversal reports whether the transaction moves money back to the customer.
func (t Transaction) Reversal() bool {
	return t.StatusNormalized == StatusRefund || t.StatusNormalized == StatusCancel
}

// DisplayAmount is the signed amount used for aggregates and listings.
// Refunds and cancellations are negative; the stored Amount is left untouched.
func (t Transaction) DisplayAmount() decimal.Decimal {
	if t.Reversal() {
		return t.Amount.Abs().Neg()
	}
	return t.Amount
}
