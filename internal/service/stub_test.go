package service

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/repository"
)

type stubRepository struct {
	mu sync.Mutex

	profilesByEmail []domain.Profile
	profilesByName  []domain.Profile
	cardLinks       []domain.CardLink
	overrides       []domain.StatusOverride
	orders          []domain.Order

	queue    []domain.QueueItem
	payments []domain.Payment

	upsertedQueue    []domain.QueueItem
	upsertedPayments []domain.Payment
	deleted          map[string][]string
	learnedLinks     []domain.CardLink
	cascades         []domain.Cascade
	statusMarks      map[domain.JobStatus][]string
	refunds          map[string][]string
	queueFilters     []repository.QueueFilter

	upsertPaymentsErr error
	listQueueErr      error
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		deleted:     make(map[string][]string),
		statusMarks: make(map[domain.JobStatus][]string),
		refunds:     make(map[string][]string),
	}
}

func (s *stubRepository) ProfilesByEmail(ctx context.Context, emails []string) ([]domain.Profile, error) {
	return s.profilesByEmail, nil
}

func (s *stubRepository) CardLinks(ctx context.Context, last4 []string) ([]domain.CardLink, error) {
	return s.cardLinks, nil
}

func (s *stubRepository) ProfilesByName(ctx context.Context, names []string) ([]domain.Profile, error) {
	return s.profilesByName, nil
}

func (s *stubRepository) UpsertQueueItems(ctx context.Context, items []domain.QueueItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertedQueue = append(s.upsertedQueue, items...)
	return len(items), nil
}

func (s *stubRepository) ListQueue(ctx context.Context, filter repository.QueueFilter) ([]domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueFilters = append(s.queueFilters, filter)
	if s.listQueueErr != nil {
		return nil, s.listQueueErr
	}
	return s.queue, nil
}

func (s *stubRepository) MarkQueueStatus(ctx context.Context, provider string, uids []string, status domain.JobStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusMarks[status] = append(s.statusMarks[status], uids...)
	sort.Strings(s.statusMarks[status])
	return len(uids), nil
}

func (s *stubRepository) UpsertPayments(ctx context.Context, payments []domain.Payment) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertPaymentsErr != nil {
		return 0, s.upsertPaymentsErr
	}
	s.upsertedPayments = append(s.upsertedPayments, payments...)
	return len(payments), nil
}

func (s *stubRepository) ListPayments(ctx context.Context, filter repository.PaymentFilter) ([]domain.Payment, error) {
	return s.payments, nil
}

func (s *stubRepository) DeletePayments(ctx context.Context, provider string, uids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[provider] = append(s.deleted[provider], uids...)
	return len(uids), nil
}

func (s *stubRepository) RecordRefund(ctx context.Context, provider, parentUID, refundUID string, amount decimal.Decimal) (repository.RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := false
	for _, p := range s.payments {
		if p.Transaction.UID == parentUID {
			known = true
		}
	}
	for _, p := range s.upsertedPayments {
		if p.Transaction.UID == parentUID {
			known = true
		}
	}
	if !known {
		return repository.RefundParentMissing, nil
	}
	for _, uid := range s.refunds[parentUID] {
		if uid == refundUID {
			return repository.RefundDuplicate, nil
		}
	}
	s.refunds[parentUID] = append(s.refunds[parentUID], refundUID)
	return repository.RefundRecorded, nil
}

func (s *stubRepository) UpsertCardLink(ctx context.Context, link domain.CardLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learnedLinks = append(s.learnedLinks, link)
	return nil
}

func (s *stubRepository) OrdersForPayments(ctx context.Context, uids []string) ([]domain.Order, error) {
	return s.orders, nil
}

func (s *stubRepository) ApplyCascade(ctx context.Context, c domain.Cascade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cascades = append(s.cascades, c)
	return nil
}

func (s *stubRepository) ListOverrides(ctx context.Context, provider string) ([]domain.StatusOverride, error) {
	return s.overrides, nil
}

func (s *stubRepository) UpsertOverride(ctx context.Context, o domain.StatusOverride) error {
	s.overrides = append(s.overrides, o)
	return nil
}
