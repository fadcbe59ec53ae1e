// Package matching resolves provider transactions to platform profiles.
//
// The chain is email, then card fingerprint (last4 + holder) through learned
// card links, then the transliterated card holder name against profile full
// names. The first strategy that resolves a profile wins.
package matching

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// Store fetches the identity tables for one batch. Each method receives only
// the keys present in the batch.
type Store interface {
	ProfilesByEmail(ctx context.Context, emails []string) ([]domain.Profile, error)
	CardLinks(ctx context.Context, last4 []string) ([]domain.CardLink, error)
	ProfilesByName(ctx context.Context, names []string) ([]domain.Profile, error)
}

// Lookups holds the batch-scoped identity tables. Build one per batch and pass
// it to Match; nothing is cached across batches.
type Lookups struct {
	byEmail map[string]string
	byCard  map[string]string
	byName  map[string]string
}

// NewLookups indexes the fetched tables. Duplicate emails resolve to the lowest
// profile id, duplicate card fingerprints to the most recently used link, and
// duplicate names are dropped: an ambiguous name never matches.
func NewLookups(emailProfiles []domain.Profile, links []domain.CardLink, nameProfiles []domain.Profile) Lookups {
	l := Lookups{
		byEmail: make(map[string]string, len(emailProfiles)),
		byCard:  make(map[string]string, len(links)),
		byName:  make(map[string]string, len(nameProfiles)),
	}

	for _, p := range emailProfiles {
		key := EmailKey(p.Email)
		if key == "" || p.ID == "" {
			continue
		}
		if current, ok := l.byEmail[key]; !ok || p.ID < current {
			l.byEmail[key] = p.ID
		}
	}

	sorted := append([]domain.CardLink(nil), links...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].LastUsedAt, sorted[j].LastUsedAt
		switch {
		case ti != nil && tj != nil && !ti.Equal(*tj):
			return ti.After(*tj)
		case (ti == nil) != (tj == nil):
			return ti != nil
		}
		return sorted[i].ProfileID < sorted[j].ProfileID
	})
	for _, link := range sorted {
		key := CardKey(link.CardLast4, link.CardHolder)
		if key == "" || link.ProfileID == "" {
			continue
		}
		if _, ok := l.byCard[key]; !ok {
			l.byCard[key] = link.ProfileID
		}
	}

	ambiguous := make(map[string]bool)
	for _, p := range nameProfiles {
		key := NameKey(p.FullName)
		if key == "" || p.ID == "" || ambiguous[key] {
			continue
		}
		if current, ok := l.byName[key]; ok && current != p.ID {
			delete(l.byName, key)
			ambiguous[key] = true
			continue
		}
		l.byName[key] = p.ID
	}
	return l
}

// BuildLookups collects the batch keys and runs the three table queries concurrently.
func BuildLookups(ctx context.Context, store Store, txs []domain.Transaction) (Lookups, error) {
	emails, last4s, names := batchKeys(txs)

	var emailProfiles, nameProfiles []domain.Profile
	var links []domain.CardLink

	g, gctx := errgroup.WithContext(ctx)
	if len(emails) > 0 {
		g.Go(func() error {
			var err error
			emailProfiles, err = store.ProfilesByEmail(gctx, emails)
			if err != nil {
				return fmt.Errorf("profiles by email: %w", err)
			}
			return nil
		})
	}
	if len(last4s) > 0 {
		g.Go(func() error {
			var err error
			links, err = store.CardLinks(gctx, last4s)
			if err != nil {
				return fmt.Errorf("card links: %w", err)
			}
			return nil
		})
	}
	if len(names) > 0 {
		g.Go(func() error {
			var err error
			nameProfiles, err = store.ProfilesByName(gctx, names)
			if err != nil {
				return fmt.Errorf("profiles by name: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Lookups{}, err
	}
	return NewLookups(emailProfiles, links, nameProfiles), nil
}

func batchKeys(txs []domain.Transaction) (emails, last4s, names []string) {
	seenEmail := make(map[string]bool)
	seenLast4 := make(map[string]bool)
	seenName := make(map[string]bool)
	for _, tx := range txs {
		if tx.IsFee {
			continue
		}
		if key := EmailKey(tx.CustomerEmail); key != "" && !seenEmail[key] {
			seenEmail[key] = true
			emails = append(emails, key)
		}
		if tx.CardLast4 != "" && tx.CardHolder != "" && !seenLast4[tx.CardLast4] {
			seenLast4[tx.CardLast4] = true
			last4s = append(last4s, tx.CardLast4)
		}
		for _, candidate := range nameCandidates(tx.CardHolder) {
			if !seenName[candidate] {
				seenName[candidate] = true
				names = append(names, candidate)
			}
		}
	}
	sort.Strings(emails)
	sort.Strings(last4s)
	sort.Strings(names)
	return emails, last4s, names
}

// Match runs the chain for one transaction.
func (l Lookups) Match(tx domain.Transaction) domain.MatchResult {
	if id, ok := l.byEmail[EmailKey(tx.CustomerEmail)]; ok && tx.CustomerEmail != "" {
		return domain.MatchResult{ProfileID: id, MatchedBy: domain.MatchByEmail}
	}
	if key := CardKey(tx.CardLast4, tx.CardHolder); key != "" {
		if id, ok := l.byCard[key]; ok {
			return domain.MatchResult{ProfileID: id, MatchedBy: domain.MatchByCard}
		}
	}
	if key := NameKey(Transliterate(tx.CardHolder)); key != "" {
		if id, ok := l.byName[key]; ok {
			return domain.MatchResult{ProfileID: id, MatchedBy: domain.MatchByName}
		}
	}
	return domain.MatchResult{MatchedBy: domain.MatchNone}
}

// MatchAll matches every transaction; results are index-aligned with txs.
// Fee records are never matched.
func (l Lookups) MatchAll(txs []domain.Transaction) []domain.MatchResult {
	results := make([]domain.MatchResult, len(txs))
	for i, tx := range txs {
		if tx.IsFee {
			results[i] = domain.MatchResult{MatchedBy: domain.MatchNone}
			continue
		}
		results[i] = l.Match(tx)
	}
	return results
}
