package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/audit"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/ingest"
	"github.com/vanshika/payrecon/backend/internal/service"
	"github.com/vanshika/payrecon/backend/internal/syncrun"
)

type stubImporter struct {
	name      string
	body      string
	signature string
	from, to  time.Time
	report    service.ImportReport
	err       error
}

func (s *stubImporter) Import(ctx context.Context, name string, r io.Reader) (service.ImportReport, error) {
	data, _ := io.ReadAll(r)
	s.name, s.body = name, string(data)
	return s.report, s.err
}

func (s *stubImporter) IngestWebhook(ctx context.Context, body []byte, signature string) (service.ImportReport, error) {
	s.body, s.signature = string(body), signature
	return s.report, s.err
}

func (s *stubImporter) Poll(ctx context.Context, from, to time.Time) (service.ImportReport, error) {
	s.from, s.to = from, to
	return s.report, s.err
}

type stubQuerier struct {
	params     service.ListTransactionsParams
	statsArgs  service.StatsParams
	page       service.TransactionsPage
	report     service.StatsReport
	projection service.Projection
	selected   []string
	override   domain.StatusOverride
	err        error
}

func (s *stubQuerier) ListTransactions(ctx context.Context, params service.ListTransactionsParams) (service.TransactionsPage, error) {
	s.params = params
	return s.page, s.err
}

func (s *stubQuerier) Stats(ctx context.Context, params service.StatsParams) (service.StatsReport, error) {
	s.statsArgs = params
	return s.report, s.err
}

func (s *stubQuerier) Project(ctx context.Context, from, to time.Time, changes []domain.SyncChange, selected []string) (service.Projection, error) {
	s.selected = selected
	return s.projection, nil
}

func (s *stubQuerier) SetOverride(ctx context.Context, uid, status, reason string) (domain.StatusOverride, error) {
	if s.err != nil {
		return domain.StatusOverride{}, s.err
	}
	s.override = domain.StatusOverride{UID: uid, Status: domain.Status(status), Reason: reason}
	return s.override, nil
}

type stubPromoter struct {
	from, to *time.Time
	report   service.PromotionReport
}

func (s *stubPromoter) PromoteMatched(ctx context.Context, from, to *time.Time) (service.PromotionReport, error) {
	s.from, s.to = from, to
	return s.report, nil
}

type stubLoader struct {
	period  syncrun.Period
	changes []domain.SyncChange
}

func (s *stubLoader) LoadChanges(ctx context.Context, period syncrun.Period) ([]domain.SyncChange, error) {
	s.period = period
	return s.changes, nil
}

type stubApplier struct {
	calls [][]string
	fail  bool
}

func (s *stubApplier) ApplyChunk(ctx context.Context, req syncrun.ChunkRequest) (int, error) {
	s.calls = append(s.calls, req.UIDs())
	if s.fail {
		return 0, errors.New("rejected")
	}
	return len(req.Changes), nil
}

type stubSync struct {
	err error
}

func (s stubSync) Preview(ctx context.Context, period syncrun.Period) (syncrun.Snapshot, error) {
	return syncrun.Snapshot{}, s.err
}
func (s stubSync) Apply(ctx context.Context, uids []string) (syncrun.Snapshot, error) {
	return syncrun.Snapshot{}, s.err
}
func (s stubSync) RetryFailed(ctx context.Context) (syncrun.Snapshot, error) {
	return syncrun.Snapshot{}, s.err
}
func (s stubSync) Reset() error                { return s.err }
func (s stubSync) Snapshot() syncrun.Snapshot { return syncrun.Snapshot{State: syncrun.StateIdle} }

type stubAudit struct {
	batchID string
	limit   int
	entries []audit.Entry
}

func (s *stubAudit) List(ctx context.Context, batchID string, limit int) ([]audit.Entry, error) {
	s.batchID, s.limit = batchID, limit
	return s.entries, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(loader *stubLoader, applier *stubApplier) *syncrun.Runner {
	return syncrun.NewRunner(loader, applier, syncrun.Options{
		BatchSize: 2,
		Sleeper:   func(ctx context.Context, d time.Duration) error { return nil },
		Logger:    testLogger(),
	})
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHandleImports_Multipart(t *testing.T) {
	importer := &stubImporter{report: service.ImportReport{
		BatchID: "B1",
		Source:  domain.SourceImport,
		Rows:    3,
		Parsed:  2,
		Skipped: 1,
		Queued:  2,
		Matched: map[domain.MatchMethod]int{domain.MatchByEmail: 1},
	}}
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Imports: importer})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "statement.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("ID транзакции;Сумма\nT1;10\n"))
	_ = form.Close()

	req := httptest.NewRequest(http.MethodPost, "/imports", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	handlers.handleImports(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if importer.name != "statement.csv" || !strings.Contains(importer.body, "T1;10") {
		t.Fatalf("unexpected upload passed to importer: %q %q", importer.name, importer.body)
	}
	payload := decodeBody[importResponse](t, rec)
	if payload.BatchID != "B1" || payload.Skipped != 1 || payload.Matched["email"] != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleImports_Errors(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		err    error
		status int
	}{
		{name: "missing filename", url: "/imports", status: http.StatusBadRequest},
		{name: "empty file", url: "/imports?filename=a.csv", err: ingest.ErrEmptyFile, status: http.StatusUnprocessableEntity},
		{name: "no rows", url: "/imports?filename=a.csv", err: ingest.ErrNoTransactions, status: http.StatusUnprocessableEntity},
		{name: "bad format", url: "/imports?filename=a.pdf", err: ingest.ErrUnsupportedFormat, status: http.StatusBadRequest},
		{name: "storage down", url: "/imports?filename=a.csv", err: errors.New("neo4j unavailable"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewAPIHandlers(testLogger(), APIDependencies{Imports: &stubImporter{err: tt.err}})
			req := httptest.NewRequest(http.MethodPost, tt.url, strings.NewReader("x"))
			rec := httptest.NewRecorder()
			handlers.handleImports(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "neo4j") {
				t.Fatalf("internal error details leaked: %s", rec.Body.String())
			}
		})
	}
}

func TestHandleImports_MethodNotAllowed(t *testing.T) {
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Imports: &stubImporter{}})
	rec := httptest.NewRecorder()
	handlers.handleImports(rec, httptest.NewRequest(http.MethodGet, "/imports", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected 405 with Allow header, got %d %q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestHandleWebhook(t *testing.T) {
	importer := &stubImporter{report: service.ImportReport{Source: domain.SourceWebhook, Queued: 1}}
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Imports: importer})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(`{"transaction":{"uid":"T1"}}`))
	req.Header.Set(signatureHeader, "abc")
	rec := httptest.NewRecorder()
	handlers.handleWebhook(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
	if importer.signature != "abc" || !strings.Contains(importer.body, "T1") {
		t.Fatalf("unexpected webhook forwarded: %q %q", importer.signature, importer.body)
	}

	importer.err = ingest.ErrInvalidSignature
	rec = httptest.NewRecorder()
	handlers.handleWebhook(rec, httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestHandlePoll(t *testing.T) {
	importer := &stubImporter{err: service.ErrPollingDisabled}
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Imports: importer})

	req := httptest.NewRequest(http.MethodPost, "/imports/poll", strings.NewReader(`{"from_date":"2025-02-01","to_date":"2025-02-28"}`))
	rec := httptest.NewRecorder()
	handlers.handlePoll(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected status 501, got %d", rec.Code)
	}
	wantTo := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if !importer.to.Equal(wantTo) {
		t.Fatalf("expected inclusive to_date to become %s, got %s", wantTo, importer.to)
	}
}

func TestHandleTransactions(t *testing.T) {
	paid := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	querier := &stubQuerier{page: service.TransactionsPage{
		Items: []domain.MergedRecord{{
			Transaction: domain.Transaction{
				UID:              "T1",
				TransactionType:  "refund",
				StatusNormalized: domain.StatusRefund,
				Amount:           decimal.RequireFromString("12.5"),
				Currency:         "BYN",
				PaidAt:           &paid,
			},
			Source:        "payment",
			DisplayAmount: decimal.RequireFromString("-12.5"),
		}},
		Pagination: service.PaginationMeta{Page: 2, PageSize: 10, TotalItems: 11, TotalPages: 2},
	}}
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Queries: querier})

	req := httptest.NewRequest(http.MethodGet, "/transactions?page=2&pageSize=10&from=2025-02-01&to=2025-02-28&status=refund&includeFees=true", nil)
	rec := httptest.NewRecorder()
	handlers.handleTransactions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if querier.params.Page != 2 || querier.params.PageSize != 10 || !querier.params.IncludeFees || querier.params.Status != "refund" {
		t.Fatalf("unexpected params: %+v", querier.params)
	}
	if querier.params.To == nil || !querier.params.To.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected bare to date to cover the whole day, got %v", querier.params.To)
	}

	payload := decodeBody[listTransactionsResponse](t, rec)
	if len(payload.Data) != 1 || payload.Pagination.TotalItems != 11 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	got := payload.Data[0]
	if got.Amount != "12.50" || got.DisplayAmount != "-12.50" || got.MatchedBy != "none" || got.PaidAt != "2025-02-10T12:00:00Z" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestHandleTransactions_InvalidRange(t *testing.T) {
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Queries: &stubQuerier{}})
	rec := httptest.NewRecorder()
	handlers.handleTransactions(rec, httptest.NewRequest(http.MethodGet, "/transactions?from=yesterday", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	querier := &stubQuerier{report: service.StatsReport{
		Stats: domain.Stats{
			Total:      2,
			Successful: domain.Bucket{Count: 1, Amount: decimal.NewFromInt(100)},
			Refunded:   domain.Bucket{Count: 1, Amount: decimal.NewFromInt(30)},
		},
		Net: decimal.NewFromInt(70),
	}}
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Queries: querier})

	rec := httptest.NewRecorder()
	handlers.handleStats(rec, httptest.NewRequest(http.MethodGet, "/stats?source=queue", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if querier.statsArgs.Source != "queue" {
		t.Fatalf("expected source filter passed through, got %+v", querier.statsArgs)
	}
	payload := decodeBody[statsResponse](t, rec)
	if payload.Net != "70.00" || payload.Successful.Amount != "100.00" || payload.Refunded.Count != 1 {
		t.Fatalf("unexpected stats: %+v", payload)
	}
}

func TestReconcileFlow(t *testing.T) {
	statement := domain.Transaction{UID: "NEW", StatusNormalized: domain.StatusSuccessful, Amount: decimal.NewFromInt(60)}
	internal := domain.Transaction{UID: "GONE", StatusNormalized: domain.StatusSuccessful, Amount: decimal.NewFromInt(40)}
	loader := &stubLoader{changes: []domain.SyncChange{
		{UID: "NEW", Action: domain.ActionCreate, Statement: &statement},
		{UID: "GONE", Action: domain.ActionDelete, Internal: &internal, IsDangerous: true},
	}}
	applier := &stubApplier{}
	querier := &stubQuerier{projection: service.Projection{
		Current:   domain.Stats{Total: 1},
		Projected: domain.Stats{Total: 2},
	}}
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Queries: querier, Sync: newTestRunner(loader, applier)})

	rec := httptest.NewRecorder()
	handlers.handleApply(rec, httptest.NewRequest(http.MethodPost, "/reconcile/apply", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before preview, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handlers.handlePreview(rec, httptest.NewRequest(http.MethodPost, "/reconcile/preview", strings.NewReader(`{"from_date":"2025-02-01","to_date":"2025-02-28"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected preview 200, got %d: %s", rec.Code, rec.Body.String())
	}
	preview := decodeBody[previewResponse](t, rec)
	if preview.Run.State != string(syncrun.StatePreview) || preview.Run.Summary.Dangerous != 1 || len(preview.Run.Changes) != 2 {
		t.Fatalf("unexpected preview: %+v", preview.Run)
	}
	if preview.Run.FromDate != "2025-02-01" || preview.Run.ToDate != "2025-02-28" {
		t.Fatalf("expected inclusive dates echoed back, got %s..%s", preview.Run.FromDate, preview.Run.ToDate)
	}
	if preview.ProjectedStats == nil || preview.ProjectedStats.Total != 2 {
		t.Fatalf("expected projected stats, got %+v", preview.ProjectedStats)
	}
	if len(querier.selected) != 1 || querier.selected[0] != "NEW" {
		t.Fatalf("projection must use safe selection only, got %v", querier.selected)
	}
	if !loader.period.To.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected loader period: %+v", loader.period)
	}

	rec = httptest.NewRecorder()
	handlers.handleApply(rec, httptest.NewRequest(http.MethodPost, "/reconcile/apply", strings.NewReader(`{}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected apply 200, got %d: %s", rec.Code, rec.Body.String())
	}
	run := decodeBody[runResponse](t, rec)
	if run.State != string(syncrun.StateDone) || run.Applied != 1 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(applier.calls) != 1 || applier.calls[0][0] != "NEW" {
		t.Fatalf("dangerous change applied without opt-in: %v", applier.calls)
	}

	rec = httptest.NewRecorder()
	handlers.handleRetry(rec, httptest.NewRequest(http.MethodPost, "/reconcile/retry", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 with nothing to retry, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handlers.handleReset(rec, httptest.NewRequest(http.MethodPost, "/reconcile/reset", nil))
	if rec.Code != http.StatusOK || decodeBody[runResponse](t, rec).State != string(syncrun.StateIdle) {
		t.Fatalf("expected reset to idle, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestPreview_PeriodInProviderTimezone(t *testing.T) {
	minsk, err := time.LoadLocation("Europe/Minsk")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	loader := &stubLoader{}
	handlers := NewAPIHandlers(testLogger(), APIDependencies{
		Queries:  &stubQuerier{},
		Sync:     newTestRunner(loader, &stubApplier{}),
		Location: minsk,
	})

	rec := httptest.NewRecorder()
	handlers.handlePreview(rec, httptest.NewRequest(http.MethodPost, "/reconcile/preview", strings.NewReader(`{"from_date":"2024-02-01","to_date":"2024-02-29"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected preview 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if want := time.Date(2024, 1, 31, 21, 0, 0, 0, time.UTC); !loader.period.From.Equal(want) {
		t.Fatalf("expected From %s, got %s", want, loader.period.From.UTC())
	}
	if want := time.Date(2024, 2, 29, 21, 0, 0, 0, time.UTC); !loader.period.To.Equal(want) {
		t.Fatalf("expected To %s, got %s", want, loader.period.To.UTC())
	}
	preview := decodeBody[previewResponse](t, rec)
	if preview.Run.FromDate != "2024-02-01" || preview.Run.ToDate != "2024-02-29" {
		t.Fatalf("expected local dates echoed back, got %s..%s", preview.Run.FromDate, preview.Run.ToDate)
	}
}

func TestParseRange_BareDatesInLocation(t *testing.T) {
	minsk, err := time.LoadLocation("Europe/Minsk")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	from, to, err := parseRange("2024-03-01", "2024-03-01", minsk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !from.Equal(time.Date(2024, 2, 29, 21, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range %s..%s", from.UTC(), to.UTC())
	}
}

func TestReconcileFlow_FailedChunksRetried(t *testing.T) {
	a := domain.Transaction{UID: "A", StatusNormalized: domain.StatusSuccessful}
	loader := &stubLoader{changes: []domain.SyncChange{{UID: "A", Action: domain.ActionCreate, Statement: &a}}}
	applier := &stubApplier{fail: true}
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Queries: &stubQuerier{}, Sync: newTestRunner(loader, applier)})

	rec := httptest.NewRecorder()
	handlers.handlePreview(rec, httptest.NewRequest(http.MethodPost, "/reconcile/preview", strings.NewReader(`{"from_date":"2025-02-01","to_date":"2025-02-01"}`)))
	rec = httptest.NewRecorder()
	handlers.handleApply(rec, httptest.NewRequest(http.MethodPost, "/reconcile/apply", strings.NewReader(`{"uids":["A"]}`)))
	run := decodeBody[runResponse](t, rec)
	if run.State != string(syncrun.StateError) || run.FailedChunks != 1 || len(run.FailedUIDs) != 1 {
		t.Fatalf("expected error state with one failed chunk, got %+v", run)
	}

	applier.fail = false
	rec = httptest.NewRecorder()
	handlers.handleRetry(rec, httptest.NewRequest(http.MethodPost, "/reconcile/retry", nil))
	run = decodeBody[runResponse](t, rec)
	if run.State != string(syncrun.StateDone) || run.Applied != 1 || len(run.FailedUIDs) != 0 {
		t.Fatalf("expected retry to finish the batch, got %+v", run)
	}
}

func TestReconcileErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "busy", err: syncrun.ErrBusy, status: http.StatusConflict},
		{name: "nothing selected", err: syncrun.ErrNothingSelected, status: http.StatusUnprocessableEntity},
		{name: "no preview", err: syncrun.ErrNoPreview, status: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewAPIHandlers(testLogger(), APIDependencies{Sync: stubSync{err: tt.err}})
			rec := httptest.NewRecorder()
			handlers.handleApply(rec, httptest.NewRequest(http.MethodPost, "/reconcile/apply", strings.NewReader(`{"uids":["X"]}`)))
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestHandlePreview_InvalidDates(t *testing.T) {
	tests := []string{
		`{"from_date":"01.02.2025","to_date":"2025-02-28"}`,
		`{"from_date":"2025-02-28","to_date":"2025-02-01"}`,
		`{"from_date":"2025-02-01","to_date":"2025-02-28","dry_run":true}`,
	}
	for _, body := range tests {
		t.Run(body, func(t *testing.T) {
			handlers := NewAPIHandlers(testLogger(), APIDependencies{Sync: stubSync{}})
			rec := httptest.NewRecorder()
			handlers.handlePreview(rec, httptest.NewRequest(http.MethodPost, "/reconcile/preview", strings.NewReader(body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandleAudit(t *testing.T) {
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Sync: stubSync{}})
	rec := httptest.NewRecorder()
	handlers.handleAudit(rec, httptest.NewRequest(http.MethodGet, "/reconcile/audit", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without audit log, got %d", rec.Code)
	}

	log := &stubAudit{entries: []audit.Entry{{ID: "E1", BatchID: "B1", UIDs: []string{"A"}, Outcome: audit.OutcomeApplied, Applied: 1}}}
	handlers = NewAPIHandlers(testLogger(), APIDependencies{Sync: stubSync{}, Audit: log})
	rec = httptest.NewRecorder()
	handlers.handleAudit(rec, httptest.NewRequest(http.MethodGet, "/reconcile/audit?batchId=B1&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if log.batchID != "B1" || log.limit != 5 {
		t.Fatalf("unexpected audit query: %q %d", log.batchID, log.limit)
	}
	payload := decodeBody[auditListResponse](t, rec)
	if len(payload.Data) != 1 || payload.Data[0].Outcome != "applied" {
		t.Fatalf("unexpected audit payload: %+v", payload)
	}
}

func TestHandlePromote(t *testing.T) {
	promoter := &stubPromoter{report: service.PromotionReport{Considered: 3, Promoted: 1, Refunds: 1, Skipped: 1}}
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Promoter: promoter})

	rec := httptest.NewRecorder()
	handlers.handlePromote(rec, httptest.NewRequest(http.MethodPost, "/queue/promote?from=2025-02-01", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if promoter.from == nil || promoter.to != nil {
		t.Fatalf("expected only the lower bound, got %v %v", promoter.from, promoter.to)
	}
	payload := decodeBody[promotionResponse](t, rec)
	if payload.Promoted != 1 || payload.Refunds != 1 || payload.Considered != 3 {
		t.Fatalf("unexpected promotion payload: %+v", payload)
	}
}

func TestHandleOverrides(t *testing.T) {
	querier := &stubQuerier{}
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Queries: querier})

	rec := httptest.NewRecorder()
	handlers.handleOverrides(rec, httptest.NewRequest(http.MethodPost, "/overrides", strings.NewReader(`{"uid":"T1","status":"failed","reason":"chargeback"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if querier.override.UID != "T1" || querier.override.Reason != "chargeback" {
		t.Fatalf("unexpected override: %+v", querier.override)
	}

	querier.err = service.ErrInvalidOverride
	rec = httptest.NewRecorder()
	handlers.handleOverrides(rec, httptest.NewRequest(http.MethodPost, "/overrides", strings.NewReader(`{"uid":"T1","status":"lost"}`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestRouter_HealthAndCORS(t *testing.T) {
	handlers := NewAPIHandlers(testLogger(), APIDependencies{Sync: stubSync{}})
	router := NewRouter(testLogger(), RouterDependencies{
		Health:         HealthChecks{{Name: "graph"}},
		API:            handlers,
		AllowedOrigins: []string{"http://admin.local"},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/reconcile/state", nil)
	req.Header.Set("Origin", "http://admin.local")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "http://admin.local" {
		t.Fatalf("expected CORS headers on allowed origin, got %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/reconcile/state", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected preflight from unknown origin rejected, got %d", rec.Code)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestRouter_HealthDegraded(t *testing.T) {
	router := NewRouter(testLogger(), RouterDependencies{Health: HealthChecks{
		{Name: "graph", Target: failingPinger{}},
		{Name: "audit"},
	}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	payload := decodeBody[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, rec)
	if payload.Status != "degraded" || payload.Checks["graph"] != "down" || payload.Checks["audit"] != "skipped" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestRouter_RequestIDAndRecovery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	handler := requestIDMiddleware(loggingMiddleware(testLogger(), recoverMiddleware(testLogger(), mux)))

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(requestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
	if got := rec.Header().Get(requestIDHeader); got != "req-1" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	rec = httptest.NewRecorder()
	NewRouter(testLogger(), RouterDependencies{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}
