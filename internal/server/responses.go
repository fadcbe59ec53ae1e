package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/service"
	"github.com/vanshika/payrecon/backend/internal/syncrun"
)

type paginationResponse struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

type listTransactionsResponse struct {
	Data       []transactionResponse `json:"data"`
	Pagination paginationResponse    `json:"pagination"`
}

type transactionResponse struct {
	UID              string `json:"uid"`
	ParentUID        string `json:"parentUid,omitempty"`
	OrderRef         string `json:"orderRef,omitempty"`
	Source           string `json:"source"`
	RecordID         string `json:"recordId,omitempty"`
	JobStatus        string `json:"jobStatus,omitempty"`
	TransactionType  string `json:"transactionType"`
	Status           string `json:"status"`
	StatusNormalized string `json:"statusNormalized"`
	Message          string `json:"message,omitempty"`
	IsFee            bool   `json:"isFee"`
	Amount           string `json:"amount"`
	DisplayAmount    string `json:"displayAmount"`
	Currency         string `json:"currency"`
	Commission       string `json:"commission"`
	CreatedAt        string `json:"createdAt,omitempty"`
	PaidAt           string `json:"paidAt,omitempty"`
	CustomerEmail    string `json:"customerEmail,omitempty"`
	CardLast4        string `json:"cardLast4,omitempty"`
	CardHolder       string `json:"cardHolder,omitempty"`
	CardBrand        string `json:"cardBrand,omitempty"`
	ProfileID        string `json:"profileId,omitempty"`
	MatchedBy        string `json:"matchedBy"`
}

type bucketResponse struct {
	Count  int    `json:"count"`
	Amount string `json:"amount"`
}

type statsResponse struct {
	Total      int            `json:"total"`
	Successful bucketResponse `json:"successful"`
	Refunded   bucketResponse `json:"refunded"`
	Cancelled  bucketResponse `json:"cancelled"`
	Failed     bucketResponse `json:"failed"`
	Pending    bucketResponse `json:"pending"`
	Fees       bucketResponse `json:"fees"`
	Commission string         `json:"commission"`
	Net        string         `json:"net,omitempty"`
}

type importResponse struct {
	BatchID   string         `json:"batchId"`
	Source    string         `json:"source"`
	Rows      int            `json:"rows"`
	Parsed    int            `json:"parsed"`
	Skipped   int            `json:"skipped"`
	Fees      int            `json:"fees"`
	Queued    int            `json:"queued"`
	Matched   map[string]int `json:"matched"`
	Unmatched int            `json:"unmatched"`
}

type differenceResponse struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

type cascadeResponse struct {
	OrdersToUpdate        []string `json:"ordersToUpdate"`
	OrdersToCancel        []string `json:"ordersToCancel"`
	SubscriptionsToCancel []string `json:"subscriptionsToCancel"`
	EntitlementsToRevoke  []string `json:"entitlementsToRevoke"`
	RevokesChannelAccess  bool     `json:"revokesChannelAccess"`
}

type changeResponse struct {
	UID         string               `json:"uid"`
	Action      string               `json:"action"`
	IsDangerous bool                 `json:"isDangerous"`
	Amount      string               `json:"amount,omitempty"`
	Currency    string               `json:"currency,omitempty"`
	Status      string               `json:"status,omitempty"`
	PaidAt      string               `json:"paidAt,omitempty"`
	Differences []differenceResponse `json:"differences"`
	Cascade     cascadeResponse      `json:"cascade"`
}

type summaryResponse struct {
	Creates   int `json:"creates"`
	Updates   int `json:"updates"`
	Deletes   int `json:"deletes"`
	Dangerous int `json:"dangerous"`
	Safe      int `json:"safe"`
}

type chunkResponse struct {
	Index    int      `json:"index"`
	UIDs     []string `json:"uids"`
	Status   string   `json:"status"`
	Attempts int      `json:"attempts"`
	Applied  int      `json:"applied"`
	Error    string   `json:"error,omitempty"`
}

type runResponse struct {
	State        string           `json:"state"`
	BatchID      string           `json:"batchId,omitempty"`
	FromDate     string           `json:"fromDate,omitempty"`
	ToDate       string           `json:"toDate,omitempty"`
	Summary      summaryResponse  `json:"summary"`
	Changes      []changeResponse `json:"changes"`
	Selected     int              `json:"selected"`
	Chunks       []chunkResponse  `json:"chunks"`
	Applied      int              `json:"applied"`
	Errors       int              `json:"errors"`
	FailedChunks int              `json:"failedChunks"`
	FailedUIDs   []string         `json:"failedUids"`
	LastError    string           `json:"lastError,omitempty"`
	StartedAt    string           `json:"startedAt,omitempty"`
	FinishedAt   string           `json:"finishedAt,omitempty"`
}

type previewResponse struct {
	Run            runResponse    `json:"run"`
	CurrentStats   *statsResponse `json:"currentStats,omitempty"`
	ProjectedStats *statsResponse `json:"projectedStats,omitempty"`
}

type promotionResponse struct {
	Considered int `json:"considered"`
	Promoted   int `json:"promoted"`
	Refunds    int `json:"refunds"`
	Skipped    int `json:"skipped"`
	Deferred   int `json:"deferred"`
	Failed     int `json:"failed"`
}

type auditEntryResponse struct {
	ID         string   `json:"id"`
	BatchID    string   `json:"batchId"`
	ChunkIndex int      `json:"chunkIndex"`
	UIDs       []string `json:"uids"`
	Outcome    string   `json:"outcome"`
	Applied    int      `json:"applied"`
	Attempts   int      `json:"attempts"`
	Error      string   `json:"error,omitempty"`
	CreatedAt  string   `json:"createdAt"`
}

type auditListResponse struct {
	Data []auditEntryResponse `json:"data"`
}

type statusResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

func toTransactionResponse(rec domain.MergedRecord) transactionResponse {
	tx := rec.Transaction
	return transactionResponse{
		UID:              tx.UID,
		ParentUID:        tx.ParentUID,
		OrderRef:         tx.OrderRef,
		Source:           rec.Source,
		RecordID:         rec.RecordID,
		JobStatus:        string(rec.JobStatus),
		TransactionType:  tx.TransactionType,
		Status:           tx.Status,
		StatusNormalized: string(tx.StatusNormalized),
		Message:          tx.Message,
		IsFee:            tx.IsFee,
		Amount:           money(tx.Amount),
		DisplayAmount:    money(rec.DisplayAmount),
		Currency:         tx.Currency,
		Commission:       money(tx.Commission),
		CreatedAt:        formatTime(tx.CreatedAt),
		PaidAt:           formatTimePtr(tx.PaidAt),
		CustomerEmail:    tx.CustomerEmail,
		CardLast4:        tx.CardLast4,
		CardHolder:       tx.CardHolder,
		CardBrand:        tx.CardBrand,
		ProfileID:        rec.Match.ProfileID,
		MatchedBy:        string(matchedBy(rec.Match)),
	}
}

func matchedBy(m domain.MatchResult) domain.MatchMethod {
	if m.MatchedBy == "" {
		return domain.MatchNone
	}
	return m.MatchedBy
}

func toStatsResponse(s domain.Stats) statsResponse {
	return statsResponse{
		Total:      s.Total,
		Successful: toBucketResponse(s.Successful),
		Refunded:   toBucketResponse(s.Refunded),
		Cancelled:  toBucketResponse(s.Cancelled),
		Failed:     toBucketResponse(s.Failed),
		Pending:    toBucketResponse(s.Pending),
		Fees:       toBucketResponse(s.Fees),
		Commission: money(s.Commission),
	}
}

func toBucketResponse(b domain.Bucket) bucketResponse {
	return bucketResponse{Count: b.Count, Amount: money(b.Amount)}
}

func toImportResponse(r service.ImportReport) importResponse {
	matched := make(map[string]int, len(r.Matched))
	for method, n := range r.Matched {
		matched[string(method)] = n
	}
	return importResponse{
		BatchID:   r.BatchID,
		Source:    string(r.Source),
		Rows:      r.Rows,
		Parsed:    r.Parsed,
		Skipped:   r.Skipped,
		Fees:      r.Fees,
		Queued:    r.Queued,
		Matched:   matched,
		Unmatched: r.Unmatched,
	}
}

func toRunResponse(s syncrun.Snapshot) runResponse {
	resp := runResponse{
		State:   string(s.State),
		BatchID: s.BatchID,
		Summary: summaryResponse{
			Creates:   s.Summary.Creates,
			Updates:   s.Summary.Updates,
			Deletes:   s.Summary.Deletes,
			Dangerous: s.Summary.Dangerous,
			Safe:      s.Summary.Safe,
		},
		Changes:      make([]changeResponse, 0, len(s.Changes)),
		Selected:     s.Selected,
		Chunks:       make([]chunkResponse, 0, len(s.Chunks)),
		Applied:      s.Applied,
		Errors:       s.Errors,
		FailedChunks: s.FailedChunks(),
		FailedUIDs:   nonNilStrings(s.FailedUIDs),
		LastError:    s.LastError,
		StartedAt:    formatTimePtr(s.StartedAt),
		FinishedAt:   formatTimePtr(s.FinishedAt),
	}
	if !s.Period.From.IsZero() {
		resp.FromDate = s.Period.From.Format(dateLayout)
		// Period.To is exclusive; clients think in inclusive dates.
		resp.ToDate = s.Period.To.AddDate(0, 0, -1).Format(dateLayout)
	}
	for _, c := range s.Changes {
		resp.Changes = append(resp.Changes, toChangeResponse(c))
	}
	for _, c := range s.Chunks {
		resp.Chunks = append(resp.Chunks, chunkResponse{
			Index:    c.Index,
			UIDs:     nonNilStrings(c.UIDs),
			Status:   c.Status,
			Attempts: c.Attempts,
			Applied:  c.Applied,
			Error:    c.Error,
		})
	}
	return resp
}

func toChangeResponse(c domain.SyncChange) changeResponse {
	resp := changeResponse{
		UID:         c.UID,
		Action:      string(c.Action),
		IsDangerous: c.IsDangerous,
		Differences: make([]differenceResponse, 0, len(c.Differences)),
		Cascade: cascadeResponse{
			OrdersToUpdate:        nonNilStrings(c.Cascade.OrdersToUpdate),
			OrdersToCancel:        nonNilStrings(c.Cascade.OrdersToCancel),
			SubscriptionsToCancel: nonNilStrings(c.Cascade.SubscriptionsToCancel),
			EntitlementsToRevoke:  nonNilStrings(c.Cascade.EntitlementsToRevoke),
			RevokesChannelAccess:  c.Cascade.RevokesChannelAccess,
		},
	}
	// Statement side for creates and updates, internal side for deletes.
	tx := c.Statement
	if tx == nil {
		tx = c.Internal
	}
	if tx != nil {
		resp.Amount = money(tx.Amount)
		resp.Currency = tx.Currency
		resp.Status = string(tx.StatusNormalized)
		resp.PaidAt = formatTimePtr(tx.PaidAt)
	}
	for _, d := range c.Differences {
		resp.Differences = append(resp.Differences, differenceResponse{Field: d.Field, Before: d.Before, After: d.After})
	}
	return resp
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
