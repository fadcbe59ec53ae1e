package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/repository"
)

func queued(uid string, status domain.Status, match domain.MatchResult) domain.QueueItem {
	return domain.QueueItem{
		ID: "q-" + uid,
		Transaction: domain.Transaction{
			Provider:         "bepaid",
			UID:              uid,
			StatusNormalized: status,
			Amount:           decimal.NewFromInt(10),
			CreatedAt:        time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC),
		},
		JobStatus: domain.JobMatched,
		Match:     match,
	}
}

func TestPromoter_PromoteMatched(t *testing.T) {
	matched := domain.MatchResult{ProfileID: "p-1", MatchedBy: domain.MatchByEmail}
	none := domain.MatchResult{MatchedBy: domain.MatchNone}

	withCard := queued("PAY", domain.StatusSuccessful, matched)
	withCard.Transaction.CardLast4 = "1234"
	withCard.Transaction.CardHolder = "IVAN PETROV"

	refund := queued("REF", domain.StatusRefund, none)
	refund.Transaction.ParentUID = "PAY"
	orphan := queued("ORPHAN", domain.StatusRefund, none)
	orphan.Transaction.ParentUID = "MISSING"
	fee := queued("FEE", domain.StatusSuccessful, none)
	fee.Transaction.IsFee = true

	repo := newStubRepository()
	repo.queue = []domain.QueueItem{
		withCard,
		refund,
		orphan,
		fee,
		queued("FAILED", domain.StatusFailed, none),
		queued("WAIT", domain.StatusPending, matched),
		queued("NOMATCH", domain.StatusSuccessful, none),
	}
	promoter := NewPromoter(repo, "bepaid", 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	report, err := promoter.PromoteMatched(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := PromotionReport{Considered: 7, Promoted: 1, Refunds: 1, Skipped: 2, Deferred: 3}
	if report != want {
		t.Fatalf("report = %+v, want %+v", report, want)
	}

	if len(repo.upsertedPayments) != 1 || repo.upsertedPayments[0].ProfileID != "p-1" {
		t.Fatalf("unexpected payments: %+v", repo.upsertedPayments)
	}
	if repo.upsertedPayments[0].MatchedBy != domain.MatchByEmail {
		t.Errorf("matched_by not carried: %s", repo.upsertedPayments[0].MatchedBy)
	}
	if len(repo.learnedLinks) != 1 || repo.learnedLinks[0].LastUsedAt == nil {
		t.Fatalf("expected one learned card link, got %+v", repo.learnedLinks)
	}
	if got := repo.refunds["PAY"]; len(got) != 1 || got[0] != "REF" {
		t.Errorf("refund not attached to parent: %v", got)
	}
	processed := repo.statusMarks[domain.JobProcessed]
	if len(processed) != 2 || processed[0] != "PAY" || processed[1] != "REF" {
		t.Errorf("unexpected processed marks: %v", processed)
	}
	skipped := repo.statusMarks[domain.JobSkipped]
	if len(skipped) != 2 || skipped[0] != "FAILED" || skipped[1] != "FEE" {
		t.Errorf("unexpected skipped marks: %v", skipped)
	}

	filter := repo.queueFilters[0]
	if len(filter.JobStatuses) != 2 {
		t.Errorf("expected open job statuses only, got %v", filter.JobStatuses)
	}
}

func TestPromoter_CollectsItemErrors(t *testing.T) {
	repo := newStubRepository()
	repo.upsertPaymentsErr = errors.New("write failed")
	repo.queue = []domain.QueueItem{
		queued("A", domain.StatusSuccessful, domain.MatchResult{ProfileID: "p-1", MatchedBy: domain.MatchByCard}),
		queued("B", domain.StatusSuccessful, domain.MatchResult{ProfileID: "p-2", MatchedBy: domain.MatchByCard}),
	}
	report, err := NewPromoter(repo, "bepaid", 1, nil).PromoteMatched(context.Background(), nil, nil)

	var taskErr *TaskError
	if !errors.As(err, &taskErr) || len(taskErr.Errors) != 2 {
		t.Fatalf("expected TaskError with 2 errors, got %v", err)
	}
	if report.Failed != 2 || report.Promoted != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if len(repo.statusMarks[domain.JobProcessed]) != 0 {
		t.Error("failed items must stay open")
	}
}

func TestPromoter_ListError(t *testing.T) {
	repo := newStubRepository()
	repo.listQueueErr = errors.New("down")
	if _, err := NewPromoter(repo, "bepaid", 1, nil).PromoteMatched(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

// overlapRepository flags RecordRefund calls that run concurrently for one parent.
type overlapRepository struct {
	*stubRepository

	mu       sync.Mutex
	inflight map[string]int
	overlaps int
}

func (r *overlapRepository) RecordRefund(ctx context.Context, provider, parentUID, refundUID string, amount decimal.Decimal) (repository.RefundResult, error) {
	r.mu.Lock()
	r.inflight[parentUID]++
	if r.inflight[parentUID] > 1 {
		r.overlaps++
	}
	r.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	res, err := r.stubRepository.RecordRefund(ctx, provider, parentUID, refundUID, amount)

	r.mu.Lock()
	r.inflight[parentUID]--
	r.mu.Unlock()
	return res, err
}

func TestPromoter_RefundsForOneParentAreSerial(t *testing.T) {
	none := domain.MatchResult{MatchedBy: domain.MatchNone}
	stub := newStubRepository()
	stub.payments = []domain.Payment{
		{Transaction: domain.Transaction{Provider: "bepaid", UID: "PAY"}},
		{Transaction: domain.Transaction{Provider: "bepaid", UID: "PAY2"}},
	}
	for _, ref := range []struct{ uid, parent string }{
		{"R1", "PAY"}, {"R2", "PAY"}, {"R3", "PAY"}, {"R4", "PAY2"},
	} {
		item := queued(ref.uid, domain.StatusRefund, none)
		item.Transaction.ParentUID = ref.parent
		stub.queue = append(stub.queue, item)
	}
	repo := &overlapRepository{stubRepository: stub, inflight: make(map[string]int)}

	report, err := NewPromoter(repo, "bepaid", 4, nil).PromoteMatched(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Refunds != 4 {
		t.Fatalf("expected 4 refunds recorded, got %+v", report)
	}
	if repo.overlaps != 0 {
		t.Fatalf("refunds for the same parent ran concurrently %d times", repo.overlaps)
	}
	if got := stub.refunds["PAY"]; len(got) != 3 || got[0] != "R1" || got[2] != "R3" {
		t.Fatalf("unexpected refunds on PAY: %v", got)
	}
}
