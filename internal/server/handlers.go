package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vanshika/payrecon/backend/internal/audit"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/ingest"
	"github.com/vanshika/payrecon/backend/internal/reconcile"
	"github.com/vanshika/payrecon/backend/internal/service"
	"github.com/vanshika/payrecon/backend/internal/syncrun"
)

const (
	defaultUploadLimit = 32 << 20
	defaultAuditLimit  = 100
	signatureHeader    = "X-Signature"
	dateLayout         = time.DateOnly
)

// Importer turns provider files, webhooks and API pages into queue items.
type Importer interface {
	Import(ctx context.Context, name string, r io.Reader) (service.ImportReport, error)
	IngestWebhook(ctx context.Context, body []byte, signature string) (service.ImportReport, error)
	Poll(ctx context.Context, from, to time.Time) (service.ImportReport, error)
}

// Querier serves the merged view, its stats and status overrides.
type Querier interface {
	ListTransactions(ctx context.Context, params service.ListTransactionsParams) (service.TransactionsPage, error)
	Stats(ctx context.Context, params service.StatsParams) (service.StatsReport, error)
	Project(ctx context.Context, from, to time.Time, changes []domain.SyncChange, selected []string) (service.Projection, error)
	SetOverride(ctx context.Context, uid, status, reason string) (domain.StatusOverride, error)
}

// QueuePromoter finalizes matched queue items.
type QueuePromoter interface {
	PromoteMatched(ctx context.Context, from, to *time.Time) (service.PromotionReport, error)
}

// SyncRunner is the shared preview/apply state machine.
type SyncRunner interface {
	Preview(ctx context.Context, period syncrun.Period) (syncrun.Snapshot, error)
	Apply(ctx context.Context, uids []string) (syncrun.Snapshot, error)
	RetryFailed(ctx context.Context) (syncrun.Snapshot, error)
	Reset() error
	Snapshot() syncrun.Snapshot
}

// AuditLog lists recorded chunk submissions.
type AuditLog interface {
	List(ctx context.Context, batchID string, limit int) ([]audit.Entry, error)
}

// APIDependencies collects the services behind the REST API. Audit is optional.
type APIDependencies struct {
	Imports        Importer
	Queries        Querier
	Promoter       QueuePromoter
	Sync           SyncRunner
	Audit          AuditLog
	MaxUploadBytes int64
	// Location interprets bare dates; defaults to UTC.
	Location *time.Location
}

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger *slog.Logger
	deps   APIDependencies
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, deps APIDependencies) *APIHandlers {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultUploadLimit
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &APIHandlers{
		logger: logger.With("component", "api"),
		deps:   deps,
	}
}

func (h *APIHandlers) handleImports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUploadBytes)
	name, body, closeFn, err := uploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeFn()

	report, err := h.deps.Imports.Import(r.Context(), name, body)
	if err != nil {
		h.fail(w, "import failed", err, "file", name)
		return
	}
	respondJSON(w, http.StatusCreated, toImportResponse(report))
}

func (h *APIHandlers) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload periodRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	period, err := payload.period(h.deps.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.deps.Imports.Poll(r.Context(), period.From, period.To)
	if err != nil {
		h.fail(w, "provider poll failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, toImportResponse(report))
}

func (h *APIHandlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.deps.MaxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	report, err := h.deps.Imports.IngestWebhook(r.Context(), body, r.Header.Get(signatureHeader))
	if err != nil {
		h.fail(w, "webhook rejected", err)
		return
	}
	respondJSON(w, http.StatusAccepted, toImportResponse(report))
}

func (h *APIHandlers) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	query := r.URL.Query()
	from, to, err := parseRange(query.Get("from"), query.Get("to"), h.deps.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := service.ListTransactionsParams{
		Page:        parseInt(query.Get("page"), 1),
		PageSize:    parseInt(query.Get("pageSize"), 50),
		From:        from,
		To:          to,
		Status:      query.Get("status"),
		Source:      query.Get("source"),
		Search:      query.Get("search"),
		IncludeFees: parseBool(query.Get("includeFees")),
	}

	page, err := h.deps.Queries.ListTransactions(r.Context(), params)
	if err != nil {
		h.fail(w, "failed to list transactions", err)
		return
	}

	response := listTransactionsResponse{
		Data: make([]transactionResponse, 0, len(page.Items)),
		Pagination: paginationResponse{
			Page:       page.Pagination.Page,
			PageSize:   page.Pagination.PageSize,
			TotalItems: page.Pagination.TotalItems,
			TotalPages: page.Pagination.TotalPages,
		},
	}
	for _, rec := range page.Items {
		response.Data = append(response.Data, toTransactionResponse(rec))
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *APIHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	query := r.URL.Query()
	from, to, err := parseRange(query.Get("from"), query.Get("to"), h.deps.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.deps.Queries.Stats(r.Context(), service.StatsParams{From: from, To: to, Source: query.Get("source")})
	if err != nil {
		h.fail(w, "failed to compute stats", err)
		return
	}
	resp := toStatsResponse(report.Stats)
	resp.Net = report.Net.StringFixed(2)
	respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload periodRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	period, err := payload.period(h.deps.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.deps.Sync.Preview(r.Context(), period)
	if err != nil {
		h.fail(w, "preview failed", err)
		return
	}

	response := previewResponse{Run: toRunResponse(snap)}
	projection, err := h.deps.Queries.Project(r.Context(), period.From, period.To, snap.Changes, reconcile.SelectSafe(snap.Changes))
	if err != nil {
		// The preview itself succeeded; the rollup is informational.
		h.logger.Warn("stats projection failed", "error", err)
	} else {
		current := toStatsResponse(projection.Current)
		projected := toStatsResponse(projection.Projected)
		response.CurrentStats = &current
		response.ProjectedStats = &projected
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *APIHandlers) handleApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload applyRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	// A client disconnect must not abandon a half-applied batch.
	snap, err := h.deps.Sync.Apply(context.WithoutCancel(r.Context()), payload.UIDs)
	if err != nil {
		h.fail(w, "apply failed", err)
		return
	}
	respondJSON(w, http.StatusOK, toRunResponse(snap))
}

func (h *APIHandlers) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	snap, err := h.deps.Sync.RetryFailed(context.WithoutCancel(r.Context()))
	if err != nil {
		h.fail(w, "retry failed", err)
		return
	}
	respondJSON(w, http.StatusOK, toRunResponse(snap))
}

func (h *APIHandlers) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := h.deps.Sync.Reset(); err != nil {
		h.fail(w, "reset failed", err)
		return
	}
	respondJSON(w, http.StatusOK, toRunResponse(h.deps.Sync.Snapshot()))
}

func (h *APIHandlers) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	respondJSON(w, http.StatusOK, toRunResponse(h.deps.Sync.Snapshot()))
}

func (h *APIHandlers) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if h.deps.Audit == nil {
		writeError(w, http.StatusNotImplemented, "audit log is not configured")
		return
	}

	query := r.URL.Query()
	entries, err := h.deps.Audit.List(r.Context(), query.Get("batchId"), parseInt(query.Get("limit"), defaultAuditLimit))
	if err != nil {
		h.fail(w, "failed to list audit log", err)
		return
	}

	response := auditListResponse{Data: make([]auditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		response.Data = append(response.Data, auditEntryResponse{
			ID:         e.ID,
			BatchID:    e.BatchID,
			ChunkIndex: e.ChunkIndex,
			UIDs:       nonNilStrings(e.UIDs),
			Outcome:    e.Outcome,
			Applied:    e.Applied,
			Attempts:   e.Attempts,
			Error:      e.Error,
			CreatedAt:  formatTime(e.CreatedAt),
		})
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *APIHandlers) handlePromote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	query := r.URL.Query()
	from, to, err := parseRange(query.Get("from"), query.Get("to"), h.deps.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.deps.Promoter.PromoteMatched(r.Context(), from, to)
	if err != nil {
		h.fail(w, "promotion failed", err)
		return
	}
	respondJSON(w, http.StatusOK, promotionResponse{
		Considered: report.Considered,
		Promoted:   report.Promoted,
		Refunds:    report.Refunds,
		Skipped:    report.Skipped,
		Deferred:   report.Deferred,
		Failed:     report.Failed,
	})
}

func (h *APIHandlers) handleOverrides(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload overrideRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.deps.Queries.SetOverride(r.Context(), payload.UID, payload.Status, payload.Reason)
	if err != nil {
		h.fail(w, "failed to save override", err, "uid", payload.UID)
		return
	}
	respondJSON(w, http.StatusCreated, statusResponse{Status: string(o.Status), ID: o.UID})
}

// fail maps domain errors to status codes; anything unrecognized is logged as a 500.
func (h *APIHandlers) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append([]any{"error", err}, attrs...)...)
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, syncrun.ErrBusy),
		errors.Is(err, syncrun.ErrNoPreview),
		errors.Is(err, syncrun.ErrNothingToRetry):
		return http.StatusConflict
	case errors.Is(err, syncrun.ErrNothingSelected),
		errors.Is(err, ingest.ErrEmptyFile),
		errors.Is(err, ingest.ErrNoTransactions),
		errors.Is(err, ingest.ErrMissingUID),
		errors.Is(err, service.ErrInvalidOverride):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPollingDisabled):
		return http.StatusNotImplemented
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// uploadedFile accepts either a multipart form with a "file" part or a raw
// body named by the filename query parameter.
func uploadedFile(r *http.Request) (string, io.Reader, func(), error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, nil, fmtError("multipart field \"file\" is required")
		}
		return header.Filename, file, func() { _ = file.Close() }, nil
	}

	name := strings.TrimSpace(r.URL.Query().Get("filename"))
	if name == "" {
		return "", nil, nil, fmtError("filename query parameter is required")
	}
	return name, r.Body, func() { _ = r.Body.Close() }, nil
}

type periodRequest struct {
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

// period converts inclusive calendar dates in loc into a half-open range.
func (req periodRequest) period(loc *time.Location) (syncrun.Period, error) {
	from, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.FromDate), loc)
	if err != nil {
		return syncrun.Period{}, fmtError("invalid from_date, expected YYYY-MM-DD")
	}
	to, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.ToDate), loc)
	if err != nil {
		return syncrun.Period{}, fmtError("invalid to_date, expected YYYY-MM-DD")
	}
	if to.Before(from) {
		return syncrun.Period{}, fmtError("to_date must not be before from_date")
	}
	return syncrun.Period{From: from, To: to.AddDate(0, 0, 1)}, nil
}

type applyRequest struct {
	UIDs []string `json:"uids"`
}

type overrideRequest struct {
	UID    string `json:"uid"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func parseRange(fromValue, toValue string, loc *time.Location) (*time.Time, *time.Time, error) {
	from, err := parseTimeParam(fromValue, false, loc)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid from: %w", err)
	}
	to, err := parseTimeParam(toValue, true, loc)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid to: %w", err)
	}
	return from, to, nil
}

// parseTimeParam accepts RFC3339 or a bare date; a bare upper bound covers the whole day.
func parseTimeParam(value string, upper bool, loc *time.Location) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return nil, fmtError("expected RFC3339 or YYYY-MM-DD")
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

func parseBool(value string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && v
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func fmtError(msg string) error {
	return errors.New(msg)
}
