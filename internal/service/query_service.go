package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/merge"
	"github.com/vanshika/payrecon/backend/internal/reconcile"
	"github.com/vanshika/payrecon/backend/internal/repository"
	"github.com/vanshika/payrecon/backend/internal/stats"
)

// ListTransactionsParams defines filters for the merged transactions listing.
type ListTransactionsParams struct {
	Page        int
	PageSize    int
	From        *time.Time
	To          *time.Time
	Status      string
	Source      string
	Search      string
	IncludeFees bool
}

// TransactionsPage represents paginated merged records with metadata.
type TransactionsPage struct {
	Items      []domain.MergedRecord
	Pagination PaginationMeta
}

// StatsParams scopes a stats rollup.
type StatsParams struct {
	From   *time.Time
	To     *time.Time
	Source string
}

// StatsReport is the rollup plus the derived net amount.
type StatsReport struct {
	Stats domain.Stats
	Net   decimal.Decimal
}

// QueryService serves the read side: the merged queue + payments view and its stats.
type QueryService struct {
	repo     GraphRepository
	provider string
}

// NewQueryService constructs a QueryService scoped to one provider.
func NewQueryService(repo GraphRepository, provider string) *QueryService {
	return &QueryService{repo: repo, provider: provider}
}

// ListTransactions returns one page of the merged view, newest first.
func (s *QueryService) ListTransactions(ctx context.Context, params ListTransactionsParams) (TransactionsPage, error) {
	page, pageSize := normalizePagination(params.Page, params.PageSize)
	offset := (page - 1) * pageSize

	records, err := s.merged(ctx, params.From, params.To, params.IncludeFees)
	if err != nil {
		return TransactionsPage{}, err
	}
	filtered := merge.Filter{
		From:   params.From,
		To:     params.To,
		Status: normalizeStatus(params.Status),
		Source: sanitizeString(params.Source),
		Search: sanitizeString(params.Search),
	}.Apply(records)

	result := merge.Page(filtered, pageSize, offset)
	return TransactionsPage{
		Items:      result.Items,
		Pagination: buildPaginationMeta(page, pageSize, result.Total),
	}, nil
}

// Stats aggregates the merged view, fees included in their own bucket.
func (s *QueryService) Stats(ctx context.Context, params StatsParams) (StatsReport, error) {
	records, err := s.merged(ctx, params.From, params.To, true)
	if err != nil {
		return StatsReport{}, err
	}
	records = merge.Filter{From: params.From, To: params.To, Source: sanitizeString(params.Source)}.Apply(records)

	txs := make([]domain.Transaction, len(records))
	for i, r := range records {
		txs[i] = r.Transaction
	}
	rollup := stats.Aggregate(txs)
	return StatsReport{Stats: rollup, Net: stats.Net(rollup)}, nil
}

func (s *QueryService) merged(ctx context.Context, from, to *time.Time, includeFees bool) ([]domain.MergedRecord, error) {
	queue, err := s.repo.ListQueue(ctx, repository.QueueFilter{Provider: s.provider, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	payments, err := s.repo.ListPayments(ctx, repository.PaymentFilter{Provider: s.provider, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return merge.Merge(queue, payments, merge.Options{IncludeFees: includeFees}), nil
}

// Projection is the payment rollup for a period before and after a selection is applied.
type Projection struct {
	Current   domain.Stats
	Projected domain.Stats
}

// Project rolls up finalized payments in [from, to) and the same set with the
// selected changes applied.
func (s *QueryService) Project(ctx context.Context, from, to time.Time, changes []domain.SyncChange, selected []string) (Projection, error) {
	payments, err := s.repo.ListPayments(ctx, repository.PaymentFilter{Provider: s.provider, From: &from, To: &to})
	if err != nil {
		return Projection{}, fmt.Errorf("list payments: %w", err)
	}
	internal := make([]domain.Transaction, 0, len(payments))
	for _, p := range payments {
		internal = append(internal, p.Transaction)
	}
	internal = reconcile.ExcludeFees(reconcile.WithinRange(internal, from, to))
	return Projection{
		Current:   stats.Aggregate(internal),
		Projected: stats.Project(internal, changes, selected),
	}, nil
}

// SetOverride pins the status of one provider uid, superseding the classifier
// on later imports and previews.
func (s *QueryService) SetOverride(ctx context.Context, uid, status, reason string) (domain.StatusOverride, error) {
	uid = sanitizeString(uid)
	if uid == "" {
		return domain.StatusOverride{}, fmt.Errorf("%w: uid is required", ErrInvalidOverride)
	}
	normalized := normalizeStatus(status)
	if normalized == "" {
		return domain.StatusOverride{}, fmt.Errorf("%w: unknown status %q", ErrInvalidOverride, status)
	}
	o := domain.StatusOverride{Provider: s.provider, UID: uid, Status: normalized, Reason: sanitizeString(reason)}
	if err := s.repo.UpsertOverride(ctx, o); err != nil {
		return domain.StatusOverride{}, fmt.Errorf("save override: %w", err)
	}
	return o, nil
}
