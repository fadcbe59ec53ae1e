package classify

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// FeePolicy decides whether a record is an acquiring fee rather than a customer payment.
// MinAmount is only meaningful in Currency; amounts in other currencies skip the threshold
// check because there is no conversion policy.
type FeePolicy struct {
	MinAmount decimal.Decimal
	Currency  string
}

// DefaultFeePolicy is the BYN threshold of one currency unit.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{MinAmount: decimal.NewFromInt(1), Currency: "BYN"}
}

// IsFee applies, in order: cancellations are fees, refunds never are, non-payment
// types are fees, sub-threshold amounts are fees.
func (p FeePolicy) IsFee(tx domain.Transaction) bool {
	switch {
	case IsCancelType(tx.TransactionType):
		return true
	case IsRefundType(tx.TransactionType):
		return false
	case !IsPaymentType(tx.TransactionType):
		return true
	}
	if p.MinAmount.IsPositive() && p.appliesTo(tx.Currency) && tx.Amount.Abs().LessThan(p.MinAmount) {
		return true
	}
	return false
}

func (p FeePolicy) appliesTo(currency string) bool {
	if p.Currency == "" || currency == "" {
		return true
	}
	return strings.EqualFold(p.Currency, currency)
}

// Apply fills StatusNormalized and IsFee on tx.
func (p FeePolicy) Apply(tx *domain.Transaction) {
	tx.StatusNormalized = Status(Signals{
		TransactionType: tx.TransactionType,
		Status:          tx.Status,
		Message:         tx.Message,
	})
	tx.IsFee = p.IsFee(*tx)
}
