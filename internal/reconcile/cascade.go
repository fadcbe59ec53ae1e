package reconcile

import (
	"sort"
	"strings"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// OrderIndex groups orders by the provider uid of the payment that paid for them.
type OrderIndex map[string][]domain.Order

// IndexOrders builds an OrderIndex.
func IndexOrders(orders []domain.Order) OrderIndex {
	idx := make(OrderIndex)
	for _, o := range orders {
		if o.PaymentUID == "" {
			continue
		}
		idx[o.PaymentUID] = append(idx[o.PaymentUID], o)
	}
	return idx
}

// CascadeFor lists the downstream entities touched by applying change.
//
// Removing a payment, or moving it away from successful, cancels its open
// orders and subscriptions and revokes what they granted. Amount, currency or
// status updates that keep the payment collected only need the orders refreshed.
// Creates have no orders yet.
func CascadeFor(change domain.SyncChange, orders OrderIndex) domain.Cascade {
	linked := orders[change.UID]
	if len(linked) == 0 || change.Action == domain.ActionCreate {
		return domain.Cascade{}
	}

	var c domain.Cascade
	switch {
	case change.Action == domain.ActionDelete, revokesPayment(change):
		for _, o := range linked {
			if isClosed(o.Status) {
				continue
			}
			c.OrdersToCancel = append(c.OrdersToCancel, o.ID)
			if o.SubscriptionID != "" && !isClosed(o.SubscriptionStatus) {
				c.SubscriptionsToCancel = append(c.SubscriptionsToCancel, o.SubscriptionID)
			}
			c.EntitlementsToRevoke = append(c.EntitlementsToRevoke, o.EntitlementIDs...)
			if o.ChannelAccess {
				c.RevokesChannelAccess = true
			}
		}
	case touchesOrders(change):
		for _, o := range linked {
			if !isClosed(o.Status) {
				c.OrdersToUpdate = append(c.OrdersToUpdate, o.ID)
			}
		}
	}

	sort.Strings(c.OrdersToCancel)
	sort.Strings(c.OrdersToUpdate)
	sort.Strings(c.SubscriptionsToCancel)
	sort.Strings(c.EntitlementsToRevoke)
	return c
}

func revokesPayment(change domain.SyncChange) bool {
	if change.Action != domain.ActionUpdate || change.Internal == nil || change.Statement == nil {
		return false
	}
	return change.Internal.StatusNormalized == domain.StatusSuccessful &&
		change.Statement.StatusNormalized != domain.StatusSuccessful
}

func touchesOrders(change domain.SyncChange) bool {
	for _, d := range change.Differences {
		switch d.Field {
		case FieldAmount, FieldCurrency, FieldStatus:
			return true
		}
	}
	return false
}

func isClosed(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled", "refunded", "expired", "revoked":
		return true
	}
	return false
}
