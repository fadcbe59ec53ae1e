package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/retry"
	"github.com/vanshika/payrecon/backend/internal/syncrun"
)

// RepositoryApplier applies sync chunks directly against the graph store.
// Every write is a MERGE or a keyed delete, so re-submitting a chunk is safe.
type RepositoryApplier struct {
	repo     GraphRepository
	provider string
	newID    func() string
}

// NewRepositoryApplier constructs a RepositoryApplier.
func NewRepositoryApplier(repo GraphRepository, provider string) *RepositoryApplier {
	return &RepositoryApplier{repo: repo, provider: provider, newID: uuid.NewString}
}

// ApplyChunk implements syncrun.Applier. Storage errors keep their transient
// classification so the runner retries lost connections but not bad data.
func (a *RepositoryApplier) ApplyChunk(ctx context.Context, req syncrun.ChunkRequest) (int, error) {
	ctx, span := tracer.Start(ctx, "reconcile.apply_chunk")
	defer span.End()

	var upserts []domain.Payment
	deletes := make(map[string][]string)
	var cascades []domain.Cascade

	for _, change := range req.Changes {
		switch change.Action {
		case domain.ActionCreate, domain.ActionUpdate:
			if change.Statement == nil {
				return 0, retry.Permanent(fmt.Errorf("change %s has no statement record", change.UID))
			}
			upserts = append(upserts, domain.Payment{ID: a.newID(), Transaction: *change.Statement})
		case domain.ActionDelete:
			provider := a.provider
			if change.Internal != nil && change.Internal.Provider != "" {
				provider = change.Internal.Provider
			}
			deletes[provider] = append(deletes[provider], change.UID)
		default:
			return 0, retry.Permanent(fmt.Errorf("change %s has unknown action %q", change.UID, change.Action))
		}
		if !change.Cascade.Empty() {
			cascades = append(cascades, change.Cascade)
		}
	}

	if _, err := a.repo.UpsertPayments(ctx, upserts); err != nil {
		return 0, err
	}
	for provider, uids := range deletes {
		if _, err := a.repo.DeletePayments(ctx, provider, uids); err != nil {
			return 0, err
		}
	}
	for _, c := range cascades {
		if err := a.repo.ApplyCascade(ctx, c); err != nil {
			return 0, err
		}
	}
	return len(req.Changes), nil
}
