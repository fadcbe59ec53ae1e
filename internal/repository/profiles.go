package repository

import (
	"context"
	"fmt"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/graph"
)

// ProfilesByEmail returns profiles whose email matches one of emails, case-insensitively.
func (r *Repository) ProfilesByEmail(ctx context.Context, emails []string) ([]domain.Profile, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	res, err := r.client.ExecuteRead(ctx, profilesByEmailCypher, map[string]any{"emails": emails})
	if err != nil {
		return nil, fmt.Errorf("profiles by email: %w", err)
	}
	return profilesFromResult(res.Records), nil
}

// ProfilesByName returns profiles whose lowercased full name (ё folded to е)
// equals one of names.
func (r *Repository) ProfilesByName(ctx context.Context, names []string) ([]domain.Profile, error) {
	if len(names) == 0 {
		return nil, nil
	}
	res, err := r.client.ExecuteRead(ctx, profilesByNameCypher, map[string]any{"names": names})
	if err != nil {
		return nil, fmt.Errorf("profiles by name: %w", err)
	}
	return profilesFromResult(res.Records), nil
}

// UpsertProfiles merges profiles by id.
func (r *Repository) UpsertProfiles(ctx context.Context, profiles []domain.Profile) (int, error) {
	if len(profiles) == 0 {
		return 0, nil
	}
	rows := make([]map[string]any, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, map[string]any{
			"profileId": p.ID,
			"fullName":  p.FullName,
			"email":     p.Email,
			"phone":     p.Phone,
		})
	}
	res, err := r.client.ExecuteWrite(ctx, upsertProfilesCypher, map[string]any{
		"profiles": rows,
		"now":      r.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("upsert profiles: %w", err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	return int(toInt64(res.Records[0]["total"])), nil
}

// CardLinks returns the learned card links for the given last-four digits.
func (r *Repository) CardLinks(ctx context.Context, last4 []string) ([]domain.CardLink, error) {
	if len(last4) == 0 {
		return nil, nil
	}
	res, err := r.client.ExecuteRead(ctx, cardLinksCypher, map[string]any{"last4": last4})
	if err != nil {
		return nil, fmt.Errorf("card links: %w", err)
	}
	links := make([]domain.CardLink, 0, len(res.Records))
	for _, rec := range res.Records {
		links = append(links, domain.CardLink{
			ProfileID:  toString(rec["profileId"]),
			CardLast4:  toString(rec["cardLast4"]),
			CardHolder: toString(rec["cardHolder"]),
			LastUsedAt: toTimePtr(rec["lastUsedAt"]),
		})
	}
	return links, nil
}

// UpsertCardLink records that a profile paid with the card. lastUsedAt only moves forward.
func (r *Repository) UpsertCardLink(ctx context.Context, link domain.CardLink) error {
	if link.ProfileID == "" || link.CardLast4 == "" || link.CardHolder == "" {
		return nil
	}
	lastUsed := formatTimePtr(link.LastUsedAt)
	if lastUsed == "" {
		lastUsed = r.now()
	}
	_, err := r.client.ExecuteWrite(ctx, upsertCardLinkCypher, map[string]any{
		"profileId":  link.ProfileID,
		"cardLast4":  link.CardLast4,
		"cardHolder": link.CardHolder,
		"lastUsedAt": lastUsed,
	})
	if err != nil {
		return fmt.Errorf("upsert card link: %w", err)
	}
	return nil
}

func profilesFromResult(records []graph.Record) []domain.Profile {
	profiles := make([]domain.Profile, 0, len(records))
	for _, rec := range records {
		p := domain.Profile{
			ID:       toString(rec["profileId"]),
			FullName: toString(rec["fullName"]),
			Email:    toString(rec["email"]),
			Phone:    toString(rec["phone"]),
		}
		if created := toTimePtr(rec["createdAt"]); created != nil {
			p.CreatedAt = *created
		}
		if updated := toTimePtr(rec["updatedAt"]); updated != nil {
			p.UpdatedAt = *updated
		}
		profiles = append(profiles, p)
	}
	return profiles
}

const profilesByEmailCypher = `
MATCH (p:Profile)
WHERE toLower(trim(p.email)) IN $emails
RETURN p.profileId AS profileId, p.fullName AS fullName, p.email AS email, p.phone AS phone,
       p.createdAt AS createdAt, p.updatedAt AS updatedAt
ORDER BY p.profileId
`

const profilesByNameCypher = `
MATCH (p:Profile)
WHERE replace(toLower(trim(p.fullName)), 'ё', 'е') IN $names
RETURN p.profileId AS profileId, p.fullName AS fullName, p.email AS email, p.phone AS phone,
       p.createdAt AS createdAt, p.updatedAt AS updatedAt
ORDER BY p.profileId
`

const upsertProfilesCypher = `
UNWIND $profiles AS profile
MERGE (p:Profile {profileId: profile.profileId})
ON CREATE SET p.createdAt = $now
SET p.fullName = profile.fullName,
    p.email = profile.email,
    p.phone = profile.phone,
    p.updatedAt = $now
RETURN count(p) AS total
`

const cardLinksCypher = `
MATCH (c:CardLink)
WHERE c.cardLast4 IN $last4
RETURN c.profileId AS profileId, c.cardLast4 AS cardLast4, c.cardHolder AS cardHolder, c.lastUsedAt AS lastUsedAt
ORDER BY c.cardLast4, c.profileId
`

const upsertCardLinkCypher = `
MERGE (c:CardLink {cardLast4: $cardLast4, cardHolder: $cardHolder, profileId: $profileId})
ON CREATE SET c.lastUsedAt = $lastUsedAt
SET c.lastUsedAt = CASE
        WHEN c.lastUsedAt IS NULL OR datetime(c.lastUsedAt) < datetime($lastUsedAt) THEN $lastUsedAt
        ELSE c.lastUsedAt
    END
WITH c
OPTIONAL MATCH (p:Profile {profileId: $profileId})
FOREACH (_ IN CASE WHEN p IS NULL THEN [] ELSE [1] END |
    MERGE (p)-[:USES_CARD]->(c)
)
RETURN c.profileId AS profileId
`
