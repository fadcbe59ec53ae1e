package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// QueueFilter narrows ListQueue. Zero values apply no restriction.
type QueueFilter struct {
	Provider    string
	From        *time.Time
	To          *time.Time
	JobStatuses []domain.JobStatus
	Limit       int
}

// UpsertQueueItems merges queue items by (provider, uid). Items whose job is
// already processed or cancelled keep that job status so a re-import never
// reopens finished work. Returns the number of items written.
func (r *Repository) UpsertQueueItems(ctx context.Context, items []domain.QueueItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := r.now()
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		props := transactionProperties(item.Transaction)
		props["source"] = string(item.Source)
		props["matchedProfileId"] = item.Match.ProfileID
		props["matchedBy"] = string(item.Match.MatchedBy)
		props["importBatchId"] = item.ImportBatchID
		rows = append(rows, map[string]any{
			"id":        item.ID,
			"provider":  item.Transaction.Provider,
			"uid":       item.Transaction.UID,
			"jobStatus": string(item.JobStatus),
			"props":     props,
		})
	}

	res, err := r.client.ExecuteWrite(ctx, upsertQueueItemsCypher, map[string]any{
		"items": rows,
		"now":   now,
	})
	if err != nil {
		return 0, fmt.Errorf("upsert queue items: %w", err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	return int(toInt64(res.Records[0]["total"])), nil
}

// ListQueue returns queue items ordered by effective time, newest first.
func (r *Repository) ListQueue(ctx context.Context, filter QueueFilter) ([]domain.QueueItem, error) {
	statuses := make([]string, 0, len(filter.JobStatuses))
	for _, s := range filter.JobStatuses {
		statuses = append(statuses, string(s))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = maxListLimit
	}

	res, err := r.client.ExecuteRead(ctx, listQueueCypher, map[string]any{
		"provider": filter.Provider,
		"from":     timeParam(filter.From),
		"to":       timeParam(filter.To),
		"statuses": statuses,
		"limit":    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	items := make([]domain.QueueItem, 0, len(res.Records))
	for _, rec := range res.Records {
		items = append(items, queueItemFromProps(propsOf(rec)))
	}
	return items, nil
}

// MarkQueueStatus moves queue items to a new job status. processedAt is stamped
// for processed and skipped items.
func (r *Repository) MarkQueueStatus(ctx context.Context, provider string, uids []string, status domain.JobStatus) (int, error) {
	if len(uids) == 0 {
		return 0, nil
	}
	processedAt := ""
	if status == domain.JobProcessed || status == domain.JobSkipped {
		processedAt = r.now()
	}
	res, err := r.client.ExecuteWrite(ctx, markQueueStatusCypher, map[string]any{
		"provider":    provider,
		"uids":        uids,
		"status":      string(status),
		"processedAt": processedAt,
		"now":         r.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("mark queue status: %w", err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	return int(toInt64(res.Records[0]["total"])), nil
}

func queueItemFromProps(props map[string]any) domain.QueueItem {
	item := domain.QueueItem{
		ID:            toString(props["id"]),
		Transaction:   transactionFromProps(props),
		Source:        domain.RecordSource(toString(props["source"])),
		JobStatus:     domain.JobStatus(toString(props["jobStatus"])),
		ImportBatchID: toString(props["importBatchId"]),
		Match: domain.MatchResult{
			ProfileID: toString(props["matchedProfileId"]),
			MatchedBy: domain.MatchMethod(toString(props["matchedBy"])),
		},
		ProcessedAt: toTimePtr(props["processedAt"]),
	}
	if item.Match.MatchedBy == "" {
		item.Match.MatchedBy = domain.MatchNone
	}
	if created := toTimePtr(props["queuedAt"]); created != nil {
		item.CreatedAt = *created
	}
	if updated := toTimePtr(props["updatedAt"]); updated != nil {
		item.UpdatedAt = *updated
	}
	return item
}

const maxListLimit = 10000

const upsertQueueItemsCypher = `
UNWIND $items AS item
MERGE (q:QueueItem {provider: item.provider, uid: item.uid})
ON CREATE SET q.id = item.id,
              q.queuedAt = $now
WITH q, item, q.jobStatus AS previous
SET q += item.props,
    q.updatedAt = $now,
    q.jobStatus = CASE
        WHEN previous IN ['processed', 'cancelled'] THEN previous
        ELSE item.jobStatus
    END
RETURN count(q) AS total
`

const listQueueCypher = `
MATCH (q:QueueItem)
WHERE ($provider = '' OR q.provider = $provider)
  AND ($from = '' OR (q.effectiveAt <> '' AND datetime(q.effectiveAt) >= datetime($from)))
  AND ($to = '' OR (q.effectiveAt <> '' AND datetime(q.effectiveAt) < datetime($to)))
  AND (size($statuses) = 0 OR q.jobStatus IN $statuses)
RETURN properties(q) AS props
ORDER BY q.effectiveAt DESC, q.uid ASC
LIMIT $limit
`

const markQueueStatusCypher = `
MATCH (q:QueueItem)
WHERE q.provider = $provider AND q.uid IN $uids
SET q.jobStatus = $status,
    q.updatedAt = $now,
    q.processedAt = CASE WHEN $processedAt = '' THEN q.processedAt ELSE $processedAt END
RETURN count(q) AS total
`
