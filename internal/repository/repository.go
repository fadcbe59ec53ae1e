// Package repository persists reconciliation records in the graph store.
//
// Every record type is keyed by a uniqueness constraint created in
// EnsureSchema, and every write is a MERGE on that key, so concurrent imports
// of overlapping data converge on one node per (provider, uid).
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/graph"
)

// Repository encapsulates graph persistence operations.
type Repository struct {
	client graph.Client
	nowFn  func() time.Time
}

// New instantiates a Repository backed by the supplied graph client.
func New(client graph.Client) *Repository {
	return &Repository{client: client, nowFn: time.Now}
}

// WithClock overrides the time source used for createdAt/updatedAt stamps.
func (r *Repository) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		r.nowFn = nowFn
	}
}

func (r *Repository) now() string {
	return formatTime(r.nowFn())
}

// EnsureSchema creates the uniqueness constraints the write paths rely on.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Ping verifies the graph is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.VerifyConnectivity(ctx)
}

func transactionProperties(tx domain.Transaction) map[string]any {
	props := map[string]any{
		"provider":         tx.Provider,
		"uid":              tx.UID,
		"parentUid":        tx.ParentUID,
		"orderRef":         tx.OrderRef,
		"transactionType":  tx.TransactionType,
		"status":           tx.Status,
		"message":          tx.Message,
		"statusNormalized": string(tx.StatusNormalized),
		"isFee":            tx.IsFee,
		"amount":           tx.Amount.String(),
		"currency":         tx.Currency,
		"createdAt":        formatTime(tx.CreatedAt),
		"paidAt":           formatTimePtr(tx.PaidAt),
		"transferredAt":    formatTimePtr(tx.TransferredAt),
		"effectiveAt":      formatTime(tx.EffectiveAt()),
		"customerEmail":    tx.CustomerEmail,
		"customerPhone":    tx.CustomerPhone,
		"customerIp":       tx.CustomerIP,
		"description":      tx.Description,
		"cardLast4":        tx.CardLast4,
		"cardHolder":       tx.CardHolder,
		"cardBrand":        tx.CardBrand,
		"cardBin":          tx.CardBIN,
		"cardBank":         tx.CardBank,
		"cardCountry":      tx.CardCountry,
		"commission":       tx.Commission.String(),
		"payoutAmount":     tx.PayoutAmount.String(),
	}
	if tx.ThreeDSecure != nil {
		props["threeDSecure"] = *tx.ThreeDSecure
	}
	if len(tx.Extra) > 0 {
		if serialized, err := json.Marshal(tx.Extra); err == nil {
			props["extraJson"] = string(serialized)
		}
	}
	return props
}

func transactionFromProps(props map[string]any) domain.Transaction {
	tx := domain.Transaction{
		Provider:         toString(props["provider"]),
		UID:              toString(props["uid"]),
		ParentUID:        toString(props["parentUid"]),
		OrderRef:         toString(props["orderRef"]),
		TransactionType:  toString(props["transactionType"]),
		Status:           toString(props["status"]),
		Message:          toString(props["message"]),
		StatusNormalized: domain.Status(toString(props["statusNormalized"])),
		IsFee:            toBool(props["isFee"]),
		Amount:           toDecimal(props["amount"]),
		Currency:         toString(props["currency"]),
		PaidAt:           toTimePtr(props["paidAt"]),
		TransferredAt:    toTimePtr(props["transferredAt"]),
		CustomerEmail:    toString(props["customerEmail"]),
		CustomerPhone:    toString(props["customerPhone"]),
		CustomerIP:       toString(props["customerIp"]),
		Description:      toString(props["description"]),
		CardLast4:        toString(props["cardLast4"]),
		CardHolder:       toString(props["cardHolder"]),
		CardBrand:        toString(props["cardBrand"]),
		CardBIN:          toString(props["cardBin"]),
		CardBank:         toString(props["cardBank"]),
		CardCountry:      toString(props["cardCountry"]),
		Commission:       toDecimal(props["commission"]),
		PayoutAmount:     toDecimal(props["payoutAmount"]),
	}
	if created := toTimePtr(props["createdAt"]); created != nil {
		tx.CreatedAt = *created
	}
	if v, ok := props["threeDSecure"].(bool); ok {
		tx.ThreeDSecure = &v
	}
	if raw := toString(props["extraJson"]); raw != "" {
		var extra map[string]string
		if err := json.Unmarshal([]byte(raw), &extra); err == nil {
			tx.Extra = extra
		}
	}
	return tx
}

func propsOf(record graph.Record) map[string]any {
	props, _ := record["props"].(map[string]any)
	if props == nil {
		return map[string]any{}
	}
	return props
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return formatTime(*t)
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func toInt64(val any) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func toBool(val any) bool {
	v, _ := val.(bool)
	return v
}

func toDecimal(val any) decimal.Decimal {
	switch v := val.(type) {
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(v)
	case int64:
		return decimal.NewFromInt(v)
	case int:
		return decimal.NewFromInt(int64(v))
	}
	return decimal.Zero
}

func toStringSlice(val any) []string {
	switch v := val.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toTimePtr(val any) *time.Time {
	switch v := val.(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return &v
	case string:
		if v == "" {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &parsed
		}
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			return &parsed
		}
	}
	return nil
}

func timeParam(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

var schemaStatements = []string{
	`CREATE CONSTRAINT queue_item_key IF NOT EXISTS FOR (q:QueueItem) REQUIRE (q.provider, q.uid) IS UNIQUE`,
	`CREATE CONSTRAINT payment_key IF NOT EXISTS FOR (p:Payment) REQUIRE (p.provider, p.uid) IS UNIQUE`,
	`CREATE CONSTRAINT profile_id IF NOT EXISTS FOR (p:Profile) REQUIRE p.profileId IS UNIQUE`,
	`CREATE CONSTRAINT card_link_key IF NOT EXISTS FOR (c:CardLink) REQUIRE (c.cardLast4, c.cardHolder, c.profileId) IS UNIQUE`,
	`CREATE CONSTRAINT order_id IF NOT EXISTS FOR (o:Order) REQUIRE o.orderId IS UNIQUE`,
	`CREATE CONSTRAINT status_override_key IF NOT EXISTS FOR (s:StatusOverride) REQUIRE (s.provider, s.uid) IS UNIQUE`,
	`CREATE INDEX profile_email IF NOT EXISTS FOR (p:Profile) ON (p.email)`,
	`CREATE INDEX card_link_last4 IF NOT EXISTS FOR (c:CardLink) ON (c.cardLast4)`,
	`CREATE INDEX order_payment_uid IF NOT EXISTS FOR (o:Order) ON (o.paymentUid)`,
}
