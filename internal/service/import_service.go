package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vanshika/payrecon/backend/internal/classify"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/ingest"
	"github.com/vanshika/payrecon/backend/internal/matching"
	"github.com/vanshika/payrecon/backend/internal/reconcile"
)

// ImportReport summarizes one ingestion run.
type ImportReport struct {
	BatchID   string
	Source    domain.RecordSource
	Rows      int
	Parsed    int
	Skipped   int
	Fees      int
	Queued    int
	Matched   map[domain.MatchMethod]int
	Unmatched int
}

// ImportOptions configures an ImportService.
type ImportOptions struct {
	Fees          classify.FeePolicy
	WebhookSecret string
	Fetcher       Fetcher
	Logger        *slog.Logger
}

// ImportService turns provider files, webhooks and API pages into queue items.
type ImportService struct {
	repo          GraphRepository
	parser        *ingest.Parser
	fees          classify.FeePolicy
	webhookSecret string
	fetcher       Fetcher
	logger        *slog.Logger
	newID         func() string
}

// NewImportService constructs an ImportService.
func NewImportService(repo GraphRepository, parser *ingest.Parser, opts ImportOptions) *ImportService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportService{
		repo:          repo,
		parser:        parser,
		fees:          opts.Fees,
		webhookSecret: opts.WebhookSecret,
		fetcher:       opts.Fetcher,
		logger:        logger.With("component", "import"),
		newID:         uuid.NewString,
	}
}

// Provider is the provider name stamped on every imported record.
func (s *ImportService) Provider() string {
	return s.parser.Provider
}

// Import reads a statement export. Rows without a transaction id are skipped
// and counted; an empty file or a file with no transactions is rejected.
func (s *ImportService) Import(ctx context.Context, name string, r io.Reader) (ImportReport, error) {
	ctx, span := tracer.Start(ctx, "import.file")
	defer span.End()
	span.SetAttributes(attribute.String("file.name", name))

	rows, err := ingest.ReadFile(name, r)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ImportReport{}, fmt.Errorf("read %s: %w", name, err)
	}
	batch, err := s.parser.ParseRows(rows)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ImportReport{Rows: batch.Rows, Skipped: batch.Skipped}, fmt.Errorf("parse %s: %w", name, err)
	}

	report, err := s.enqueue(ctx, domain.SourceImport, batch.Transactions)
	report.Rows = batch.Rows
	report.Skipped = batch.Skipped
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	span.SetAttributes(attribute.Int("import.queued", report.Queued))
	return report, nil
}

// IngestWebhook verifies and queues a single provider notification.
func (s *ImportService) IngestWebhook(ctx context.Context, body []byte, signature string) (ImportReport, error) {
	if err := ingest.VerifySignature(body, signature, s.webhookSecret); err != nil {
		return ImportReport{}, err
	}
	tx, err := s.parser.ParseWebhook(body)
	if err != nil {
		return ImportReport{}, fmt.Errorf("parse webhook: %w", err)
	}
	report, err := s.enqueue(ctx, domain.SourceWebhook, []domain.Transaction{tx})
	report.Rows = 1
	return report, err
}

// Poll pulls [from, to) from the provider API and queues the result.
func (s *ImportService) Poll(ctx context.Context, from, to time.Time) (ImportReport, error) {
	if s.fetcher == nil {
		return ImportReport{}, ErrPollingDisabled
	}
	txs, err := s.fetcher.Fetch(ctx, from, to)
	if err != nil {
		return ImportReport{}, fmt.Errorf("poll provider: %w", err)
	}
	report, err := s.enqueue(ctx, domain.SourcePoll, txs)
	report.Rows = len(txs)
	return report, err
}

func (s *ImportService) enqueue(ctx context.Context, source domain.RecordSource, txs []domain.Transaction) (ImportReport, error) {
	report := ImportReport{
		BatchID: s.newID(),
		Source:  source,
		Parsed:  len(txs),
		Matched: make(map[domain.MatchMethod]int),
	}
	if len(txs) == 0 {
		return report, nil
	}

	overrides, err := s.repo.ListOverrides(ctx, s.parser.Provider)
	if err != nil {
		return report, fmt.Errorf("load overrides: %w", err)
	}
	classified := make([]domain.Transaction, len(txs))
	copy(classified, txs)
	for i := range classified {
		s.fees.Apply(&classified[i])
	}
	classified = reconcile.ApplyOverrides(classified, overrides)

	lookups, err := matching.BuildLookups(ctx, s.repo, classified)
	if err != nil {
		return report, fmt.Errorf("build identity lookups: %w", err)
	}
	matches := lookups.MatchAll(classified)

	items := make([]domain.QueueItem, len(classified))
	for i, tx := range classified {
		status := domain.JobPending
		switch {
		case tx.IsFee:
			status = domain.JobSkipped
			report.Fees++
		case matches[i].Matched():
			status = domain.JobMatched
			report.Matched[matches[i].MatchedBy]++
		default:
			report.Unmatched++
		}
		items[i] = domain.QueueItem{
			ID:            s.newID(),
			Transaction:   tx,
			Source:        source,
			JobStatus:     status,
			Match:         matches[i],
			ImportBatchID: report.BatchID,
		}
	}

	queued, err := s.repo.UpsertQueueItems(ctx, items)
	if err != nil {
		return report, fmt.Errorf("queue transactions: %w", err)
	}
	report.Queued = queued

	s.logger.Info("transactions queued",
		"batch_id", report.BatchID,
		"source", source,
		"parsed", report.Parsed,
		"queued", report.Queued,
		"fees", report.Fees,
		"unmatched", report.Unmatched,
	)
	return report, nil
}
