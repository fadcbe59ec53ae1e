// Package stats reduces transaction lists into status buckets.
package stats

import (
	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// Aggregate sums count and amount per status bucket. Fee records are counted in
// Fees only. Amounts are summed as absolute values; the bucket carries the sign.
func Aggregate(txs []domain.Transaction) domain.Stats {
	s := domain.Stats{
		Successful: zeroBucket(),
		Refunded:   zeroBucket(),
		Cancelled:  zeroBucket(),
		Failed:     zeroBucket(),
		Pending:    zeroBucket(),
		Fees:       zeroBucket(),
		Commission: decimal.Zero,
	}
	for _, tx := range txs {
		s.Total++
		s.Commission = s.Commission.Add(tx.Commission)
		if tx.IsFee {
			add(&s.Fees, tx)
			continue
		}
		switch tx.StatusNormalized {
		case domain.StatusSuccessful:
			add(&s.Successful, tx)
		case domain.StatusRefund:
			add(&s.Refunded, tx)
		case domain.StatusCancel:
			add(&s.Cancelled, tx)
		case domain.StatusFailed:
			add(&s.Failed, tx)
		default:
			add(&s.Pending, tx)
		}
	}
	return s
}

func zeroBucket() domain.Bucket {
	return domain.Bucket{Amount: decimal.Zero}
}

func add(b *domain.Bucket, tx domain.Transaction) {
	b.Count++
	b.Amount = b.Amount.Add(tx.Amount.Abs())
}

// Net is successful minus refunded and cancelled amounts.
func Net(s domain.Stats) decimal.Decimal {
	return s.Successful.Amount.Sub(s.Refunded.Amount).Sub(s.Cancelled.Amount)
}

// Project returns the stats the internal set would have after applying the
// selected changes: creates add the statement record, updates replace the
// internal record, deletes remove it. Unselected changes are ignored.
func Project(internal []domain.Transaction, changes []domain.SyncChange, selected []string) domain.Stats {
	wanted := make(map[string]bool, len(selected))
	for _, uid := range selected {
		wanted[uid] = true
	}

	byUID := make(map[string]domain.Transaction, len(internal))
	order := make([]string, 0, len(internal))
	for _, tx := range internal {
		if _, ok := byUID[tx.UID]; !ok {
			order = append(order, tx.UID)
		}
		byUID[tx.UID] = tx
	}

	for _, c := range changes {
		if !wanted[c.UID] {
			continue
		}
		switch c.Action {
		case domain.ActionCreate, domain.ActionUpdate:
			if c.Statement == nil {
				continue
			}
			if _, ok := byUID[c.UID]; !ok {
				order = append(order, c.UID)
			}
			byUID[c.UID] = *c.Statement
		case domain.ActionDelete:
			delete(byUID, c.UID)
		}
	}

	projected := make([]domain.Transaction, 0, len(byUID))
	for _, uid := range order {
		if tx, ok := byUID[uid]; ok {
			projected = append(projected, tx)
		}
	}
	return Aggregate(projected)
}
