package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/repository"
)

// PromotionReport counts what a promotion pass did with each queue item.
type PromotionReport struct {
	Considered int
	Promoted   int
	Refunds    int
	Skipped    int
	Deferred   int
	Failed     int
}

// Promoter moves matched, successful queue items into finalized payments.
type Promoter struct {
	repo     GraphRepository
	provider string
	pool     *WorkerPool
	logger   *slog.Logger
	newID    func() string
}

// NewPromoter constructs a Promoter. workers bounds concurrent item writes.
func NewPromoter(repo GraphRepository, provider string, workers int, logger *slog.Logger) *Promoter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Promoter{
		repo:     repo,
		provider: provider,
		pool:     NewWorkerPool(workers),
		logger:   logger.With("component", "promotion"),
		newID:    uuid.NewString,
	}
}

type promotionPlan struct {
	payments []domain.QueueItem
	// refunds are grouped by parent uid; a group is applied serially so two
	// refunds never append to the same parent's aggregates concurrently.
	refunds  [][]domain.QueueItem
	skipped  []string
	deferred int
}

// plan sorts open queue items into work. Successful items need a matched
// profile; refunds need a parent uid. Pending items and successful items
// without a match wait for a later pass.
func plan(items []domain.QueueItem) promotionPlan {
	var p promotionPlan
	byParent := make(map[string][]domain.QueueItem)
	for _, item := range items {
		tx := item.Transaction
		switch {
		case tx.IsFee:
			p.skipped = append(p.skipped, tx.UID)
		case tx.StatusNormalized == domain.StatusRefund:
			if tx.ParentUID == "" {
				p.skipped = append(p.skipped, tx.UID)
				continue
			}
			byParent[tx.ParentUID] = append(byParent[tx.ParentUID], item)
		case tx.StatusNormalized == domain.StatusCancel, tx.StatusNormalized == domain.StatusFailed:
			p.skipped = append(p.skipped, tx.UID)
		case tx.StatusNormalized == domain.StatusSuccessful && item.Match.Matched():
			p.payments = append(p.payments, item)
		default:
			p.deferred++
		}
	}
	sort.Strings(p.skipped)

	parents := make([]string, 0, len(byParent))
	for parent := range byParent {
		parents = append(parents, parent)
	}
	sort.Strings(parents)
	for _, parent := range parents {
		group := byParent[parent]
		sort.Slice(group, func(i, j int) bool { return group[i].Transaction.UID < group[j].Transaction.UID })
		p.refunds = append(p.refunds, group)
	}
	return p
}

// PromoteMatched runs one promotion pass over open queue items in [from, to).
// Payments are written before refunds so a refund can find a parent promoted
// in the same pass.
func (p *Promoter) PromoteMatched(ctx context.Context, from, to *time.Time) (PromotionReport, error) {
	items, err := p.repo.ListQueue(ctx, repository.QueueFilter{
		Provider:    p.provider,
		From:        from,
		To:          to,
		JobStatuses: []domain.JobStatus{domain.JobPending, domain.JobMatched},
	})
	if err != nil {
		return PromotionReport{}, fmt.Errorf("list open queue items: %w", err)
	}

	work := plan(items)
	report := PromotionReport{Considered: len(items), Deferred: work.deferred}
	var mu sync.Mutex
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	var taskErr TaskError
	err = p.pool.Run(ctx, len(work.payments), func(idx int) error {
		if err := p.promote(ctx, work.payments[idx]); err != nil {
			count(&report.Failed)
			return err
		}
		count(&report.Promoted)
		return nil
	})
	if err := collect(&taskErr, err); err != nil {
		return report, err
	}

	err = p.pool.Run(ctx, len(work.refunds), func(idx int) error {
		var errs []error
		for _, item := range work.refunds[idx] {
			recorded, err := p.refund(ctx, item)
			switch {
			case err != nil:
				count(&report.Failed)
				errs = append(errs, err)
			case recorded:
				count(&report.Refunds)
			default:
				count(&report.Deferred)
			}
		}
		return errors.Join(errs...)
	})
	if err := collect(&taskErr, err); err != nil {
		return report, err
	}

	if len(work.skipped) > 0 {
		if _, err := p.repo.MarkQueueStatus(ctx, p.provider, work.skipped, domain.JobSkipped); err != nil {
			taskErr.append(fmt.Errorf("mark skipped: %w", err))
		} else {
			report.Skipped = len(work.skipped)
		}
	}

	p.logger.Info("queue promotion finished",
		"considered", report.Considered,
		"promoted", report.Promoted,
		"refunds", report.Refunds,
		"skipped", report.Skipped,
		"deferred", report.Deferred,
		"failed", report.Failed,
	)
	return report, taskErr.asError()
}

// collect folds a pool error into acc. Anything other than a TaskError aborts the pass.
func collect(acc *TaskError, err error) error {
	if err == nil {
		return nil
	}
	var te *TaskError
	if errors.As(err, &te) {
		acc.Errors = append(acc.Errors, te.Errors...)
		return nil
	}
	return err
}

func (p *Promoter) promote(ctx context.Context, item domain.QueueItem) error {
	tx := item.Transaction
	payment := domain.Payment{
		ID:          p.newID(),
		Transaction: tx,
		ProfileID:   item.Match.ProfileID,
		MatchedBy:   item.Match.MatchedBy,
	}
	if _, err := p.repo.UpsertPayments(ctx, []domain.Payment{payment}); err != nil {
		return fmt.Errorf("promote %s: %w", tx.UID, err)
	}

	if tx.CardLast4 != "" && tx.CardHolder != "" {
		used := tx.EffectiveAt()
		link := domain.CardLink{
			ProfileID:  item.Match.ProfileID,
			CardLast4:  tx.CardLast4,
			CardHolder: tx.CardHolder,
		}
		if !used.IsZero() {
			link.LastUsedAt = &used
		}
		if err := p.repo.UpsertCardLink(ctx, link); err != nil {
			return fmt.Errorf("learn card link for %s: %w", tx.UID, err)
		}
	}

	if _, err := p.repo.MarkQueueStatus(ctx, tx.Provider, []string{tx.UID}, domain.JobProcessed); err != nil {
		return fmt.Errorf("mark %s processed: %w", tx.UID, err)
	}
	return nil
}

// refund reports false when the parent payment does not exist yet.
func (p *Promoter) refund(ctx context.Context, item domain.QueueItem) (bool, error) {
	tx := item.Transaction
	result, err := p.repo.RecordRefund(ctx, tx.Provider, tx.ParentUID, tx.UID, tx.Amount)
	if err != nil {
		return false, fmt.Errorf("refund %s: %w", tx.UID, err)
	}
	if result == repository.RefundParentMissing {
		return false, nil
	}
	if _, err := p.repo.MarkQueueStatus(ctx, tx.Provider, []string{tx.UID}, domain.JobProcessed); err != nil {
		return false, fmt.Errorf("mark %s processed: %w", tx.UID, err)
	}
	return true, nil
}
