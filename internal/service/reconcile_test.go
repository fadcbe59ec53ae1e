package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/classify"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/graph"
	"github.com/vanshika/payrecon/backend/internal/retry"
	"github.com/vanshika/payrecon/backend/internal/syncrun"
)

func february() syncrun.Period {
	from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	return syncrun.Period{From: from, To: from.AddDate(0, 1, 0)}
}

func TestStatementLoader_FromQueue(t *testing.T) {
	at := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := newStubRepository()

	fee := txAt("FEE", domain.StatusSuccessful, "0.2", at)
	fee.IsFee = true
	outOfRange := txAt("OLD", domain.StatusSuccessful, "10", at.AddDate(0, -2, 0))
	repo.queue = []domain.QueueItem{
		{Transaction: txAt("NEW", domain.StatusSuccessful, "10", at)},
		{Transaction: txAt("SAME", domain.StatusSuccessful, "10", at)},
		{Transaction: txAt("CHANGED", domain.StatusSuccessful, "10", at)},
		{Transaction: txAt("CANCELLED", domain.StatusSuccessful, "10", at), JobStatus: domain.JobCancelled},
		{Transaction: fee},
		{Transaction: outOfRange},
	}
	repo.payments = []domain.Payment{
		{Transaction: txAt("SAME", domain.StatusSuccessful, "10", at)},
		{Transaction: txAt("CHANGED", domain.StatusSuccessful, "10", at)},
		{Transaction: txAt("GONE", domain.StatusSuccessful, "15", at)},
	}
	repo.overrides = []domain.StatusOverride{{Provider: "bepaid", UID: "CHANGED", Status: domain.StatusFailed}}
	repo.orders = []domain.Order{{ID: "o-1", PaymentUID: "GONE", Status: "active", ChannelAccess: true}}

	loader := NewStatementLoader(repo, nil, classify.DefaultFeePolicy(), "bepaid")
	changes, err := loader.LoadChanges(context.Background(), february())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byUID := make(map[string]domain.SyncChange)
	for _, c := range changes {
		byUID[c.UID] = c
	}
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d: %+v", len(changes), changes)
	}
	if byUID["NEW"].Action != domain.ActionCreate {
		t.Errorf("NEW should be a create, got %s", byUID["NEW"].Action)
	}
	changed := byUID["CHANGED"]
	if changed.Action != domain.ActionUpdate || changed.Statement.StatusNormalized != domain.StatusFailed {
		t.Errorf("CHANGED should be an update carrying the override: %+v", changed)
	}
	if changed.IsDangerous {
		t.Errorf("CHANGED has no orders and must be safe")
	}
	gone := byUID["GONE"]
	if gone.Action != domain.ActionDelete || !gone.Cascade.RevokesChannelAccess {
		t.Errorf("GONE should be a delete revoking channel access: %+v", gone)
	}
}

func TestStatementLoader_FromFetcherClassifies(t *testing.T) {
	at := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{txs: []domain.Transaction{
		{Provider: "bepaid", UID: "API-1", TransactionType: "payment", Status: "successful", Amount: decimal.NewFromInt(5), Currency: "BYN", CreatedAt: at},
		{Provider: "bepaid", UID: "API-FEE", TransactionType: "commission", Status: "successful", Amount: decimal.NewFromInt(5), Currency: "BYN", CreatedAt: at},
	}}
	repo := newStubRepository()
	loader := NewStatementLoader(repo, fetcher, classify.DefaultFeePolicy(), "bepaid")

	changes, err := loader.LoadChanges(context.Background(), february())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 1 || changes[0].UID != "API-1" || changes[0].Statement.StatusNormalized != domain.StatusSuccessful {
		t.Fatalf("expected only the classified payment, got %+v", changes)
	}
	if len(repo.queueFilters) != 0 {
		t.Error("queue must not be read when a fetcher is configured")
	}
}

func TestStatementLoader_FetchError(t *testing.T) {
	loader := NewStatementLoader(newStubRepository(), &stubFetcher{err: errors.New("timeout")}, classify.DefaultFeePolicy(), "bepaid")
	if _, err := loader.LoadChanges(context.Background(), february()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRepositoryApplier_ApplyChunk(t *testing.T) {
	at := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	created := txAt("NEW", domain.StatusSuccessful, "10", at)
	updated := txAt("UPD", domain.StatusSuccessful, "12", at)
	gone := txAt("GONE", domain.StatusSuccessful, "15", at)
	req := syncrun.ChunkRequest{
		BatchID: "b-1",
		Changes: []domain.SyncChange{
			{UID: "NEW", Action: domain.ActionCreate, Statement: &created},
			{UID: "UPD", Action: domain.ActionUpdate, Statement: &updated, Internal: &updated},
			{UID: "GONE", Action: domain.ActionDelete, Internal: &gone, Cascade: domain.Cascade{OrdersToCancel: []string{"o-1"}}},
		},
	}
	repo := newStubRepository()
	applier := NewRepositoryApplier(repo, "bepaid")

	applied, err := applier.ApplyChunk(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied != 3 {
		t.Errorf("expected 3 applied, got %d", applied)
	}
	if len(repo.upsertedPayments) != 2 {
		t.Errorf("expected 2 upserts, got %d", len(repo.upsertedPayments))
	}
	if got := repo.deleted["bepaid"]; len(got) != 1 || got[0] != "GONE" {
		t.Errorf("unexpected deletes: %v", repo.deleted)
	}
	if len(repo.cascades) != 1 || repo.cascades[0].OrdersToCancel[0] != "o-1" {
		t.Errorf("cascade not applied: %+v", repo.cascades)
	}
}

func TestRepositoryApplier_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		req           syncrun.ChunkRequest
		repoErr       error
		wantTransient bool
	}{
		{
			name:    "missing statement is permanent",
			req:     syncrun.ChunkRequest{Changes: []domain.SyncChange{{UID: "X", Action: domain.ActionCreate}}},
			repoErr: nil,
		},
		{
			name:          "lost connection is transient",
			req:           syncrun.ChunkRequest{Changes: []domain.SyncChange{{UID: "X", Action: domain.ActionCreate, Statement: &domain.Transaction{UID: "X"}}}},
			repoErr:       &graph.TransientError{Err: errors.New("connection reset")},
			wantTransient: true,
		},
		{
			name:    "constraint violation is not retried",
			req:     syncrun.ChunkRequest{Changes: []domain.SyncChange{{UID: "X", Action: domain.ActionCreate, Statement: &domain.Transaction{UID: "X"}}}},
			repoErr: errors.New("constraint violated"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepository()
			repo.upsertPaymentsErr = tt.repoErr
			_, err := NewRepositoryApplier(repo, "bepaid").ApplyChunk(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := retry.IsTransient(err); got != tt.wantTransient {
				t.Errorf("IsTransient = %v, want %v (%v)", got, tt.wantTransient, err)
			}
		})
	}
}
