package reconcile

import "github.com/vanshika/payrecon/backend/internal/domain"

// SelectSafe returns the uids of changes that may be bulk-applied without
// explicit confirmation: never a delete, never a change with a cascade.
func SelectSafe(changes []domain.SyncChange) []string {
	uids := make([]string, 0, len(changes))
	for _, c := range changes {
		if c.IsDangerous || c.Action == domain.ActionDelete || !c.Cascade.Empty() {
			continue
		}
		uids = append(uids, c.UID)
	}
	return uids
}

// Select returns the changes whose uid is in uids, keeping change order.
func Select(changes []domain.SyncChange, uids []string) []domain.SyncChange {
	wanted := make(map[string]bool, len(uids))
	for _, uid := range uids {
		wanted[uid] = true
	}
	out := make([]domain.SyncChange, 0, len(uids))
	for _, c := range changes {
		if wanted[c.UID] {
			out = append(out, c)
		}
	}
	return out
}

// Summary counts changes by kind.
type Summary struct {
	Creates   int
	Updates   int
	Deletes   int
	Dangerous int
	Safe      int
}

// Summarize counts a change list.
func Summarize(changes []domain.SyncChange) Summary {
	var s Summary
	for _, c := range changes {
		switch c.Action {
		case domain.ActionCreate:
			s.Creates++
		case domain.ActionUpdate:
			s.Updates++
		case domain.ActionDelete:
			s.Deletes++
		}
		if c.IsDangerous {
			s.Dangerous++
		} else {
			s.Safe++
		}
	}
	return s
}
