// Package service orchestrates imports, listings, queue promotion and statement
// reconciliation on top of the graph repository.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/matching"
	"github.com/vanshika/payrecon/backend/internal/repository"
)

var tracer = otel.Tracer("payrecon/service")

var (
	// ErrPollingDisabled indicates no provider API client is configured.
	ErrPollingDisabled = errors.New("provider polling is not configured")
	// ErrInvalidOverride indicates a status override request that cannot be stored.
	ErrInvalidOverride = errors.New("invalid status override")
)

// GraphRepository is the storage contract required by the reconciliation services.
type GraphRepository interface {
	matching.Store

	UpsertQueueItems(ctx context.Context, items []domain.QueueItem) (int, error)
	ListQueue(ctx context.Context, filter repository.QueueFilter) ([]domain.QueueItem, error)
	MarkQueueStatus(ctx context.Context, provider string, uids []string, status domain.JobStatus) (int, error)

	UpsertPayments(ctx context.Context, payments []domain.Payment) (int, error)
	ListPayments(ctx context.Context, filter repository.PaymentFilter) ([]domain.Payment, error)
	DeletePayments(ctx context.Context, provider string, uids []string) (int, error)
	RecordRefund(ctx context.Context, provider, parentUID, refundUID string, amount decimal.Decimal) (repository.RefundResult, error)

	UpsertCardLink(ctx context.Context, link domain.CardLink) error
	OrdersForPayments(ctx context.Context, uids []string) ([]domain.Order, error)
	ApplyCascade(ctx context.Context, c domain.Cascade) error

	ListOverrides(ctx context.Context, provider string) ([]domain.StatusOverride, error)
	UpsertOverride(ctx context.Context, o domain.StatusOverride) error
}

// Fetcher pulls a provider statement for [from, to).
type Fetcher interface {
	Fetch(ctx context.Context, from, to time.Time) ([]domain.Transaction, error)
}
