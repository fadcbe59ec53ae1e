package syncrun

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vanshika/payrecon/backend/internal/functions"
)

// Invoker is the remote function call used by FunctionApplier.
type Invoker interface {
	Invoke(ctx context.Context, function string, req functions.Request) (functions.Response, error)
}

// FunctionApplier submits chunks to the remote statement-sync function.
type FunctionApplier struct {
	invoker  Invoker
	function string
}

// NewFunctionApplier builds an applier calling function through invoker.
func NewFunctionApplier(invoker Invoker, function string) *FunctionApplier {
	return &FunctionApplier{invoker: invoker, function: function}
}

type applyStats struct {
	Applied *int `json:"applied"`
}

// ApplyChunk implements Applier.
func (a *FunctionApplier) ApplyChunk(ctx context.Context, req ChunkRequest) (int, error) {
	uids := req.UIDs()
	resp, err := a.invoker.Invoke(ctx, a.function, functions.Request{
		FromDate:     req.Period.From.Format(time.DateOnly),
		ToDate:       lastDay(req.Period),
		DryRun:       false,
		SelectedUIDs: uids,
		BatchID:      req.BatchID,
	})
	if err != nil {
		return 0, err
	}

	var stats applyStats
	if len(resp.Stats) > 0 && json.Unmarshal(resp.Stats, &stats) == nil && stats.Applied != nil {
		return *stats.Applied, nil
	}
	return len(uids), nil
}

// lastDay is the inclusive end date the remote function expects; Period.To is exclusive.
func lastDay(p Period) string {
	if p.To.IsZero() {
		return ""
	}
	return p.To.AddDate(0, 0, -1).Format(time.DateOnly)
}
