package repository

import (
	"context"
	"fmt"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// OrdersForPayments returns every order paid by one of the given provider uids.
func (r *Repository) OrdersForPayments(ctx context.Context, uids []string) ([]domain.Order, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	res, err := r.client.ExecuteRead(ctx, ordersForPaymentsCypher, map[string]any{"uids": uids})
	if err != nil {
		return nil, fmt.Errorf("orders for payments: %w", err)
	}
	orders := make([]domain.Order, 0, len(res.Records))
	for _, rec := range res.Records {
		orders = append(orders, domain.Order{
			ID:                 toString(rec["orderId"]),
			PaymentUID:         toString(rec["paymentUid"]),
			ProfileID:          toString(rec["profileId"]),
			Status:             toString(rec["status"]),
			SubscriptionID:     toString(rec["subscriptionId"]),
			SubscriptionStatus: toString(rec["subscriptionStatus"]),
			EntitlementIDs:     toStringSlice(rec["entitlementIds"]),
			ChannelAccess:      toBool(rec["channelAccess"]),
		})
	}
	return orders, nil
}

// UpsertOrders merges orders by id.
func (r *Repository) UpsertOrders(ctx context.Context, orders []domain.Order) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		entitlements := o.EntitlementIDs
		if entitlements == nil {
			entitlements = []string{}
		}
		rows = append(rows, map[string]any{
			"orderId":            o.ID,
			"paymentUid":         o.PaymentUID,
			"profileId":          o.ProfileID,
			"status":             o.Status,
			"subscriptionId":     o.SubscriptionID,
			"subscriptionStatus": o.SubscriptionStatus,
			"entitlementIds":     entitlements,
			"channelAccess":      o.ChannelAccess,
		})
	}
	res, err := r.client.ExecuteWrite(ctx, upsertOrdersCypher, map[string]any{
		"orders": rows,
		"now":    r.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("upsert orders: %w", err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	return int(toInt64(res.Records[0]["total"])), nil
}

// ApplyCascade cancels and flags the orders a sync change affects.
func (r *Repository) ApplyCascade(ctx context.Context, c domain.Cascade) error {
	if c.Empty() {
		return nil
	}
	now := r.now()
	if len(c.OrdersToCancel) > 0 {
		_, err := r.client.ExecuteWrite(ctx, cancelOrdersCypher, map[string]any{
			"orderIds":        c.OrdersToCancel,
			"subscriptionIds": nonNil(c.SubscriptionsToCancel),
			"entitlementIds":  nonNil(c.EntitlementsToRevoke),
			"revokeChannel":   c.RevokesChannelAccess,
			"now":             now,
		})
		if err != nil {
			return fmt.Errorf("cancel orders: %w", err)
		}
	}
	if len(c.OrdersToUpdate) > 0 {
		_, err := r.client.ExecuteWrite(ctx, flagOrdersCypher, map[string]any{
			"orderIds": c.OrdersToUpdate,
			"now":      now,
		})
		if err != nil {
			return fmt.Errorf("flag orders: %w", err)
		}
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

const ordersForPaymentsCypher = `
MATCH (o:Order)
WHERE o.paymentUid IN $uids
RETURN o.orderId AS orderId, o.paymentUid AS paymentUid, o.profileId AS profileId, o.status AS status,
       o.subscriptionId AS subscriptionId, o.subscriptionStatus AS subscriptionStatus,
       o.entitlementIds AS entitlementIds, o.channelAccess AS channelAccess
ORDER BY o.orderId
`

const upsertOrdersCypher = `
UNWIND $orders AS row
MERGE (o:Order {orderId: row.orderId})
ON CREATE SET o.createdAt = $now
SET o += row,
    o.updatedAt = $now
WITH o, row
OPTIONAL MATCH (p:Payment {uid: row.paymentUid})
FOREACH (_ IN CASE WHEN p IS NULL THEN [] ELSE [1] END |
    MERGE (p)-[:PAYS_FOR]->(o)
)
RETURN count(DISTINCT o) AS total
`

const cancelOrdersCypher = `
MATCH (o:Order)
WHERE o.orderId IN $orderIds
SET o.status = 'cancelled',
    o.subscriptionStatus = CASE WHEN o.subscriptionId IN $subscriptionIds THEN 'cancelled' ELSE o.subscriptionStatus END,
    o.revokedEntitlementIds = [id IN coalesce(o.entitlementIds, []) WHERE id IN $entitlementIds],
    o.channelAccess = CASE WHEN $revokeChannel THEN false ELSE o.channelAccess END,
    o.updatedAt = $now
RETURN count(o) AS total
`

const flagOrdersCypher = `
MATCH (o:Order)
WHERE o.orderId IN $orderIds
SET o.needsReview = true,
    o.reviewRequestedAt = $now,
    o.updatedAt = $now
RETURN count(o) AS total
`
