package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is the finalized ledger record for a provider transaction.
// Transaction.Provider and Transaction.UID never change once the payment exists.
type Payment struct {
	ID            string
	Transaction   Transaction
	ProfileID     string
	OrderID       string
	TariffID      string
	OfferID       string
	MatchedBy     MatchMethod
	RefundsCount  int
	TotalRefunded decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProviderPaymentID is the provider-assigned identifier of the payment.
func (p Payment) ProviderPaymentID() string {
	return p.Transaction.UID
}

// Order links a payment to the entitlements it paid for.
type Order struct {
	ID                 string
	PaymentUID         string
	ProfileID          string
	Status             string
	SubscriptionID     string
	SubscriptionStatus string
	EntitlementIDs     []string
	ChannelAccess      bool
}
