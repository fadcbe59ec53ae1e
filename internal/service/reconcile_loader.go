package service

import (
	"context"
	"fmt"

	"github.com/vanshika/payrecon/backend/internal/classify"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/reconcile"
	"github.com/vanshika/payrecon/backend/internal/repository"
	"github.com/vanshika/payrecon/backend/internal/syncrun"
)

// StatementLoader computes sync changes for a period: the provider statement
// (from the API when a Fetcher is set, otherwise from the queue) against the
// finalized payments.
type StatementLoader struct {
	repo     GraphRepository
	fetcher  Fetcher
	fees     classify.FeePolicy
	provider string
}

// NewStatementLoader constructs a StatementLoader. fetcher may be nil.
func NewStatementLoader(repo GraphRepository, fetcher Fetcher, fees classify.FeePolicy, provider string) *StatementLoader {
	return &StatementLoader{repo: repo, fetcher: fetcher, fees: fees, provider: provider}
}

// LoadChanges implements syncrun.Loader.
func (l *StatementLoader) LoadChanges(ctx context.Context, period syncrun.Period) ([]domain.SyncChange, error) {
	ctx, span := tracer.Start(ctx, "reconcile.load")
	defer span.End()

	statement, err := l.statement(ctx, period)
	if err != nil {
		return nil, err
	}
	overrides, err := l.repo.ListOverrides(ctx, l.provider)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	statement = reconcile.ApplyOverrides(statement, overrides)
	statement = reconcile.ExcludeFees(reconcile.WithinRange(statement, period.From, period.To))

	from, to := period.From, period.To
	payments, err := l.repo.ListPayments(ctx, repository.PaymentFilter{Provider: l.provider, From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	internal := make([]domain.Transaction, 0, len(payments))
	for _, p := range payments {
		internal = append(internal, p.Transaction)
	}
	internal = reconcile.ExcludeFees(reconcile.WithinRange(internal, period.From, period.To))

	uids := make([]string, 0, len(internal))
	for _, tx := range internal {
		uids = append(uids, tx.UID)
	}
	orders, err := l.repo.OrdersForPayments(ctx, uids)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	return reconcile.Diff(statement, internal, reconcile.IndexOrders(orders)), nil
}

func (l *StatementLoader) statement(ctx context.Context, period syncrun.Period) ([]domain.Transaction, error) {
	if l.fetcher != nil {
		txs, err := l.fetcher.Fetch(ctx, period.From, period.To)
		if err != nil {
			return nil, fmt.Errorf("fetch statement: %w", err)
		}
		for i := range txs {
			l.fees.Apply(&txs[i])
		}
		return txs, nil
	}

	from, to := period.From, period.To
	items, err := l.repo.ListQueue(ctx, repository.QueueFilter{Provider: l.provider, From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("load queued statement: %w", err)
	}
	txs := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		if item.JobStatus == domain.JobCancelled {
			continue
		}
		txs = append(txs, item.Transaction)
	}
	return txs, nil
}
