package repository

import (
	"context"
	"fmt"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// ListOverrides returns admin status overrides, optionally scoped to one provider.
func (r *Repository) ListOverrides(ctx context.Context, provider string) ([]domain.StatusOverride, error) {
	res, err := r.client.ExecuteRead(ctx, listOverridesCypher, map[string]any{"provider": provider})
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	overrides := make([]domain.StatusOverride, 0, len(res.Records))
	for _, rec := range res.Records {
		o := domain.StatusOverride{
			Provider: toString(rec["provider"]),
			UID:      toString(rec["uid"]),
			Status:   domain.Status(toString(rec["status"])),
			Reason:   toString(rec["reason"]),
		}
		if created := toTimePtr(rec["createdAt"]); created != nil {
			o.CreatedAt = *created
		}
		overrides = append(overrides, o)
	}
	return overrides, nil
}

// UpsertOverride sets the status override for (provider, uid).
func (r *Repository) UpsertOverride(ctx context.Context, o domain.StatusOverride) error {
	if !o.Status.Valid() {
		return fmt.Errorf("upsert override: invalid status %q", o.Status)
	}
	_, err := r.client.ExecuteWrite(ctx, upsertOverrideCypher, map[string]any{
		"provider": o.Provider,
		"uid":      o.UID,
		"status":   string(o.Status),
		"reason":   o.Reason,
		"now":      r.now(),
	})
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

// DeleteOverride removes the override for (provider, uid), if any.
func (r *Repository) DeleteOverride(ctx context.Context, provider, uid string) error {
	_, err := r.client.ExecuteWrite(ctx, deleteOverrideCypher, map[string]any{
		"provider": provider,
		"uid":      uid,
	})
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return nil
}

const listOverridesCypher = `
MATCH (s:StatusOverride)
WHERE $provider = '' OR s.provider = $provider
RETURN s.provider AS provider, s.uid AS uid, s.status AS status, s.reason AS reason, s.createdAt AS createdAt
ORDER BY s.provider, s.uid
`

const upsertOverrideCypher = `
MERGE (s:StatusOverride {provider: $provider, uid: $uid})
ON CREATE SET s.createdAt = $now
SET s.status = $status,
    s.reason = $reason,
    s.updatedAt = $now
`

const deleteOverrideCypher = `
MATCH (s:StatusOverride {provider: $provider, uid: $uid})
DETACH DELETE s
`
