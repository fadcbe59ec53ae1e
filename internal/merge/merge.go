// Package merge builds the combined view of queued and finalized transactions.
package merge

import (
	"sort"
	"strings"
	"time"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

const (
	SourceQueue   = "queue"
	SourcePayment = "payment"
)

// Options controls which records make it into the merged view.
type Options struct {
	IncludeFees bool
}

// Merge combines both streams keyed by (provider, uid). A finalized payment
// replaces the queue item for the same key. Inputs are not modified.
func Merge(queue []domain.QueueItem, payments []domain.Payment, opts Options) []domain.MergedRecord {
	byKey := make(map[domain.Key]domain.MergedRecord, len(queue)+len(payments))

	for _, item := range queue {
		if item.Transaction.IsFee && !opts.IncludeFees {
			continue
		}
		key := item.Transaction.Key()
		if _, exists := byKey[key]; exists {
			continue
		}
		byKey[key] = domain.MergedRecord{
			Transaction:   item.Transaction,
			Source:        SourceQueue,
			RecordID:      item.ID,
			Match:         item.Match,
			JobStatus:     item.JobStatus,
			DisplayAmount: item.Transaction.DisplayAmount(),
		}
	}

	for _, p := range payments {
		if p.Transaction.IsFee && !opts.IncludeFees {
			continue
		}
		byKey[p.Transaction.Key()] = domain.MergedRecord{
			Transaction: p.Transaction,
			Source:      SourcePayment,
			RecordID:    p.ID,
			Match: domain.MatchResult{
				ProfileID: p.ProfileID,
				MatchedBy: p.MatchedBy,
			},
			JobStatus:     domain.JobProcessed,
			DisplayAmount: p.Transaction.DisplayAmount(),
		}
	}

	merged := make([]domain.MergedRecord, 0, len(byKey))
	for _, record := range byKey {
		merged = append(merged, record)
	}
	Sort(merged)
	return merged
}

// Sort orders records newest first by effective time. Records without any
// timestamp go last; ties fall back to provider and uid.
func Sort(records []domain.MergedRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Transaction, records[j].Transaction
		ta, tb := a.EffectiveAt(), b.EffectiveAt()
		switch {
		case ta.IsZero() != tb.IsZero():
			return !ta.IsZero()
		case !ta.Equal(tb):
			return ta.After(tb)
		case a.UID != b.UID:
			return a.UID < b.UID
		}
		return a.Provider < b.Provider
	})
}

// Filter narrows a merged view for listing.
type Filter struct {
	From   *time.Time
	To     *time.Time
	Status domain.Status
	Source string
	Search string
}

// Apply returns the records that satisfy every set criterion, preserving order.
// From is inclusive and To exclusive.
func (f Filter) Apply(records []domain.MergedRecord) []domain.MergedRecord {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]domain.MergedRecord, 0, len(records))
	for _, r := range records {
		at := r.Transaction.EffectiveAt()
		if f.From != nil && (at.IsZero() || at.Before(*f.From)) {
			continue
		}
		if f.To != nil && (at.IsZero() || !at.Before(*f.To)) {
			continue
		}
		if f.Status != "" && r.Transaction.StatusNormalized != f.Status {
			continue
		}
		if f.Source != "" && r.Source != f.Source {
			continue
		}
		if search != "" && !matchesSearch(r.Transaction, search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesSearch(tx domain.Transaction, needle string) bool {
	for _, haystack := range []string{tx.UID, tx.OrderRef, tx.CustomerEmail, tx.CardHolder, tx.CardLast4, tx.Description} {
		if strings.Contains(strings.ToLower(haystack), needle) {
			return true
		}
	}
	return false
}

// Page slices records for the given limit and offset.
func Page(records []domain.MergedRecord, limit, offset int) domain.MergedListResult {
	total := int64(len(records))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return domain.MergedListResult{Items: []domain.MergedRecord{}, Total: total}
	}
	end := len(records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return domain.MergedListResult{Items: records[offset:end], Total: total}
}
