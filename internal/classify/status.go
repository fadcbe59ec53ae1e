// Package classify derives canonical payment status and the acquiring-fee flag
// from the provider's free-text type, status and message fields.
package classify

import (
	"strings"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// Signals are the three free-text fields a provider row carries about its outcome.
type Signals struct {
	TransactionType string
	Status          string
	Message         string
}

// Rule maps a predicate over the signals to a canonical status.
type Rule struct {
	Name   string
	Match  func(Signals) bool
	Result domain.Status
}

var (
	refundTypeWords  = []string{"возврат", "refund", "return"}
	cancelTypeWords  = []string{"отмена", "аннулир", "cancel", "void", "reversal"}
	paymentTypeWords = []string{"платеж", "платёж", "оплата", "payment", "purchase", "sale", "authorization", "авторизац"}
	declineWords     = []string{"отклон", "отказ", "ошибк", "недостаточно", "запрещ", "declin", "denied", "reject", "error", "insufficient", "fraud", "fail"}
	failedWords      = []string{"неуспеш", "не успеш", "ошибк", "отклон", "отказ", "неудач", "истек", "unsuccess", "not success", "failed", "fail", "declined", "error", "expired", "rejected"}
	successWords     = []string{"успешн", "оплачен", "проведен", "success", "successful", "completed", "paid", "approved", "settled"}
)

// Rules is the fixed priority order used by Status. The first rule whose
// predicate holds decides the result.
var Rules = []Rule{
	{Name: "refund-type", Match: func(s Signals) bool { return IsRefundType(s.TransactionType) }, Result: domain.StatusRefund},
	{Name: "cancel-type", Match: func(s Signals) bool { return IsCancelType(s.TransactionType) }, Result: domain.StatusCancel},
	{Name: "decline-message", Match: func(s Signals) bool { return containsAny(s.Message, declineWords) }, Result: domain.StatusFailed},
	{Name: "failed-status", Match: func(s Signals) bool { return containsAny(s.Status, failedWords) }, Result: domain.StatusFailed},
	{Name: "success-status", Match: func(s Signals) bool { return containsAny(s.Status, successWords) }, Result: domain.StatusSuccessful},
}

// Status evaluates Rules in order and falls back to pending.
func Status(s Signals) domain.Status {
	status, _ := Evaluate(Rules, s)
	return status
}

// Evaluate runs rules in order and returns the winning status and rule name.
// The rule name is empty when the default applied.
func Evaluate(rules []Rule, s Signals) (domain.Status, string) {
	for _, rule := range rules {
		if rule.Match(s) {
			return rule.Result, rule.Name
		}
	}
	return domain.StatusPending, ""
}

// IsRefundType reports whether a transaction type names a refund.
func IsRefundType(txType string) bool {
	return containsAny(txType, refundTypeWords)
}

// IsCancelType reports whether a transaction type names a cancellation.
func IsCancelType(txType string) bool {
	return containsAny(txType, cancelTypeWords)
}

// IsPaymentType reports whether a transaction type is recognizably a customer payment.
// An empty type is treated as a payment: many exports carry no type column at all.
func IsPaymentType(txType string) bool {
	if strings.TrimSpace(txType) == "" {
		return true
	}
	return containsAny(txType, paymentTypeWords)
}

func containsAny(text string, needles []string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
