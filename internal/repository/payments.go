package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// PaymentFilter narrows ListPayments. Zero values apply no restriction.
type PaymentFilter struct {
	Provider string
	From     *time.Time
	To       *time.Time
	Limit    int
}

// UpsertPayments merges payments by (provider, uid). Refund aggregates are
// owned by RecordRefund and never overwritten here; empty link fields (profile,
// order, tariff, offer) leave the stored values in place.
func (r *Repository) UpsertPayments(ctx context.Context, payments []domain.Payment) (int, error) {
	if len(payments) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(payments))
	for _, p := range payments {
		props := transactionProperties(p.Transaction)
		setIfPresent(props, "profileId", p.ProfileID)
		setIfPresent(props, "orderId", p.OrderID)
		setIfPresent(props, "tariffId", p.TariffID)
		setIfPresent(props, "offerId", p.OfferID)
		setIfPresent(props, "matchedBy", string(p.MatchedBy))
		rows = append(rows, map[string]any{
			"id":       p.ID,
			"provider": p.Transaction.Provider,
			"uid":      p.Transaction.UID,
			"props":    props,
		})
	}

	res, err := r.client.ExecuteWrite(ctx, upsertPaymentsCypher, map[string]any{
		"payments": rows,
		"now":      r.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("upsert payments: %w", err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	return int(toInt64(res.Records[0]["total"])), nil
}

// ListPayments returns payments ordered by effective time, newest first.
func (r *Repository) ListPayments(ctx context.Context, filter PaymentFilter) ([]domain.Payment, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = maxListLimit
	}
	res, err := r.client.ExecuteRead(ctx, listPaymentsCypher, map[string]any{
		"provider": filter.Provider,
		"from":     timeParam(filter.From),
		"to":       timeParam(filter.To),
		"limit":    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	payments := make([]domain.Payment, 0, len(res.Records))
	for _, rec := range res.Records {
		payments = append(payments, paymentFromProps(propsOf(rec)))
	}
	return payments, nil
}

// DeletePayments removes payments and their relationships. Returns the number deleted.
func (r *Repository) DeletePayments(ctx context.Context, provider string, uids []string) (int, error) {
	if len(uids) == 0 {
		return 0, nil
	}
	res, err := r.client.ExecuteWrite(ctx, deletePaymentsCypher, map[string]any{
		"provider": provider,
		"uids":     uids,
	})
	if err != nil {
		return 0, fmt.Errorf("delete payments: %w", err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	return int(toInt64(res.Records[0]["total"])), nil
}

// RefundResult reports what RecordRefund did.
type RefundResult int

const (
	RefundRecorded RefundResult = iota
	RefundDuplicate
	RefundParentMissing
)

// RecordRefund attaches a refund to its parent payment once.
func (r *Repository) RecordRefund(ctx context.Context, provider, parentUID, refundUID string, amount decimal.Decimal) (RefundResult, error) {
	res, err := r.client.ExecuteWrite(ctx, recordRefundCypher, map[string]any{
		"provider":  provider,
		"parentUid": parentUID,
		"refundUid": refundUID,
		"amount":    amount.Abs().String(),
		"now":       r.now(),
	})
	if err != nil {
		return RefundParentMissing, fmt.Errorf("record refund: %w", err)
	}
	if len(res.Records) == 0 {
		return RefundParentMissing, nil
	}
	if toBool(res.Records[0]["duplicate"]) {
		return RefundDuplicate, nil
	}
	return RefundRecorded, nil
}

func setIfPresent(props map[string]any, key, value string) {
	if value != "" {
		props[key] = value
	}
}

func paymentFromProps(props map[string]any) domain.Payment {
	p := domain.Payment{
		ID:          toString(props["id"]),
		Transaction: transactionFromProps(props),
		ProfileID:   toString(props["profileId"]),
		OrderID:     toString(props["orderId"]),
		TariffID:    toString(props["tariffId"]),
		OfferID:     toString(props["offerId"]),
		MatchedBy:   domain.MatchMethod(toString(props["matchedBy"])),
	}
	refunds := toStringSlice(props["refundAmounts"])
	p.RefundsCount = len(refunds)
	p.TotalRefunded = decimal.Zero
	for _, amount := range refunds {
		p.TotalRefunded = p.TotalRefunded.Add(toDecimal(amount))
	}
	if created := toTimePtr(props["recordedAt"]); created != nil {
		p.CreatedAt = *created
	}
	if updated := toTimePtr(props["updatedAt"]); updated != nil {
		p.UpdatedAt = *updated
	}
	return p
}

const upsertPaymentsCypher = `
UNWIND $payments AS payment
MERGE (p:Payment {provider: payment.provider, uid: payment.uid})
ON CREATE SET p.id = payment.id,
              p.recordedAt = $now,
              p.refundUids = [],
              p.refundAmounts = []
SET p += payment.props,
    p.updatedAt = $now
WITH p, payment
OPTIONAL MATCH (profile:Profile {profileId: coalesce(p.profileId, '')})
FOREACH (_ IN CASE WHEN profile IS NULL THEN [] ELSE [1] END |
    MERGE (profile)-[:PAID]->(p)
)
RETURN count(DISTINCT p) AS total
`

const listPaymentsCypher = `
MATCH (p:Payment)
WHERE ($provider = '' OR p.provider = $provider)
  AND ($from = '' OR (p.effectiveAt <> '' AND datetime(p.effectiveAt) >= datetime($from)))
  AND ($to = '' OR (p.effectiveAt <> '' AND datetime(p.effectiveAt) < datetime($to)))
RETURN properties(p) AS props
ORDER BY p.effectiveAt DESC, p.uid ASC
LIMIT $limit
`

const deletePaymentsCypher = `
MATCH (p:Payment)
WHERE p.provider = $provider AND p.uid IN $uids
WITH p, p.uid AS uid
DETACH DELETE p
RETURN count(uid) AS total
`

const recordRefundCypher = `
MATCH (p:Payment {provider: $provider, uid: $parentUid})
SET p._lock = true
WITH p, $refundUid IN coalesce(p.refundUids, []) AS seen
REMOVE p._lock
WITH p, seen
SET p.refundUids = CASE WHEN seen THEN p.refundUids ELSE coalesce(p.refundUids, []) + $refundUid END,
    p.refundAmounts = CASE WHEN seen THEN p.refundAmounts ELSE coalesce(p.refundAmounts, []) + $amount END,
    p.updatedAt = CASE WHEN seen THEN p.updatedAt ELSE $now END
RETURN p.uid AS uid, seen AS duplicate
`
