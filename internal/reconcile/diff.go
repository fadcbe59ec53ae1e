// Package reconcile compares an authoritative provider statement with the
// internal record set and proposes create, update and delete changes.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// Tracked field names, as reported in domain.Difference.Field.
const (
	FieldAmount          = "amount"
	FieldCurrency        = "currency"
	FieldStatus          = "status_normalized"
	FieldTransactionType = "transaction_type"
	FieldPaidAt          = "paid_at"
	FieldCustomerEmail   = "customer_email"
	FieldCardLast4       = "card_last4"
)

const displayTimeLayout = "2006-01-02 15:04:05"

type trackedField struct {
	name    string
	display func(domain.Transaction) string
	equal   func(a, b domain.Transaction) bool
}

var trackedFields = []trackedField{
	{
		name:    FieldAmount,
		display: func(t domain.Transaction) string { return t.Amount.StringFixed(2) },
		equal:   func(a, b domain.Transaction) bool { return a.Amount.Equal(b.Amount) },
	},
	{
		name:    FieldCurrency,
		display: func(t domain.Transaction) string { return t.Currency },
		equal:   func(a, b domain.Transaction) bool { return strings.EqualFold(a.Currency, b.Currency) },
	},
	{
		name:    FieldStatus,
		display: func(t domain.Transaction) string { return string(t.StatusNormalized) },
		equal:   func(a, b domain.Transaction) bool { return a.StatusNormalized == b.StatusNormalized },
	},
	{
		name:    FieldTransactionType,
		display: func(t domain.Transaction) string { return t.TransactionType },
		equal: func(a, b domain.Transaction) bool {
			return strings.EqualFold(strings.TrimSpace(a.TransactionType), strings.TrimSpace(b.TransactionType))
		},
	},
	{
		name:    FieldPaidAt,
		display: func(t domain.Transaction) string { return displayTime(t.PaidAt) },
		equal:   func(a, b domain.Transaction) bool { return sameSecond(a.PaidAt, b.PaidAt) },
	},
	{
		name:    FieldCustomerEmail,
		display: func(t domain.Transaction) string { return t.CustomerEmail },
		equal:   func(a, b domain.Transaction) bool { return strings.EqualFold(a.CustomerEmail, b.CustomerEmail) },
	},
	{
		name:    FieldCardLast4,
		display: func(t domain.Transaction) string { return t.CardLast4 },
		equal:   func(a, b domain.Transaction) bool { return a.CardLast4 == b.CardLast4 },
	},
}

func displayTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(displayTimeLayout)
}

func sameSecond(a, b *time.Time) bool {
	if a == nil || a.IsZero() {
		return b == nil || b.IsZero()
	}
	if b == nil || b.IsZero() {
		return false
	}
	return a.Truncate(time.Second).Equal(b.Truncate(time.Second))
}

// Differences lists every tracked field where internal (before) and statement (after) disagree.
func Differences(internal, statement domain.Transaction) []domain.Difference {
	var diffs []domain.Difference
	for _, f := range trackedFields {
		if f.equal(internal, statement) {
			continue
		}
		diffs = append(diffs, domain.Difference{
			Field:  f.name,
			Before: f.display(internal),
			After:  f.display(statement),
		})
	}
	return diffs
}

// Diff computes the change list. Statement is authoritative: its uids missing
// internally are creates, shared uids with differing tracked fields are updates,
// internal uids missing from the statement are deletes. Results are sorted by uid.
func Diff(statement, internal []domain.Transaction, orders OrderIndex) []domain.SyncChange {
	internalByUID := make(map[string]domain.Transaction, len(internal))
	for _, tx := range internal {
		internalByUID[tx.UID] = tx
	}

	changes := make([]domain.SyncChange, 0)
	seen := make(map[string]bool, len(statement))
	for _, st := range statement {
		if seen[st.UID] {
			continue
		}
		seen[st.UID] = true
		stmt := st

		current, exists := internalByUID[st.UID]
		if !exists {
			changes = append(changes, annotate(domain.SyncChange{
				UID:       st.UID,
				Action:    domain.ActionCreate,
				Statement: &stmt,
			}, orders))
			continue
		}

		diffs := Differences(current, st)
		if len(diffs) == 0 {
			continue
		}
		cur := current
		changes = append(changes, annotate(domain.SyncChange{
			UID:         st.UID,
			Action:      domain.ActionUpdate,
			Statement:   &stmt,
			Internal:    &cur,
			Differences: diffs,
		}, orders))
	}

	for uid, tx := range internalByUID {
		if seen[uid] {
			continue
		}
		cur := tx
		changes = append(changes, annotate(domain.SyncChange{
			UID:      uid,
			Action:   domain.ActionDelete,
			Internal: &cur,
		}, orders))
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].UID < changes[j].UID
	})
	return changes
}

func annotate(change domain.SyncChange, orders OrderIndex) domain.SyncChange {
	change.Cascade = CascadeFor(change, orders)
	change.IsDangerous = change.Action == domain.ActionDelete || !change.Cascade.Empty()
	return change
}

// WithinRange keeps transactions whose effective time falls in [from, to).
// A zero bound is open.
func WithinRange(txs []domain.Transaction, from, to time.Time) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		at := tx.EffectiveAt()
		if !from.IsZero() && at.Before(from) {
			continue
		}
		if !to.IsZero() && !at.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// ExcludeFees drops fee records; they never take part in reconciliation.
func ExcludeFees(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.IsFee {
			out = append(out, tx)
		}
	}
	return out
}

// ApplyOverrides returns a copy of txs where admin overrides replace the
// classified status for matching (provider, uid) keys.
func ApplyOverrides(txs []domain.Transaction, overrides []domain.StatusOverride) []domain.Transaction {
	if len(overrides) == 0 {
		return txs
	}
	byKey := make(map[domain.Key]domain.Status, len(overrides))
	for _, o := range overrides {
		if o.Status.Valid() {
			byKey[domain.Key{Provider: o.Provider, UID: o.UID}] = o.Status
		}
	}
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		if status, ok := byKey[tx.Key()]; ok {
			tx.StatusNormalized = status
		}
		out[i] = tx
	}
	return out
}
