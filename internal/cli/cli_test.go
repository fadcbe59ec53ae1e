package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vanshika/payrecon/backend/internal/app"
	"github.com/vanshika/payrecon/backend/internal/config"
	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/graph"
	"github.com/vanshika/payrecon/backend/internal/syncrun"
)

func useMemoryApp(t *testing.T) *graph.MemoryClient {
	t.Helper()
	client := graph.NewMemoryClient()
	original := buildApp
	buildApp = func(ctx context.Context, stderr io.Writer) (*app.App, error) {
		cfg := config.Defaults()
		cfg.Audit.Path = ""
		return app.New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), client)
	}
	t.Cleanup(func() { buildApp = original })
	return client
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		wantTo   time.Time
		wantErr  bool
	}{
		{name: "single day", from: "2025-02-01", wantTo: time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)},
		{name: "inclusive range", from: "2025-02-01", to: "2025-02-28", wantTo: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "bad from", from: "01.02.2025", wantErr: true},
		{name: "bad to", from: "2025-02-01", to: "tomorrow", wantErr: true},
		{name: "reversed", from: "2025-02-10", to: "2025-02-01", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parsePeriod(tt.from, tt.to, time.UTC)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !p.To.Equal(tt.wantTo) {
				t.Fatalf("expected To %s, got %s", tt.wantTo, p.To)
			}
		})
	}
}

func TestParsePeriod_ProviderTimezone(t *testing.T) {
	minsk, err := time.LoadLocation("Europe/Minsk")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	p, err := parsePeriod("2024-02-01", "2024-02-29", minsk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Minsk is UTC+3: local midnights are 21:00 UTC the day before.
	if want := time.Date(2024, 1, 31, 21, 0, 0, 0, time.UTC); !p.From.Equal(want) {
		t.Fatalf("expected From %s, got %s", want, p.From.UTC())
	}
	if want := time.Date(2024, 2, 29, 21, 0, 0, 0, time.UTC); !p.To.Equal(want) {
		t.Fatalf("expected To %s, got %s", want, p.To.UTC())
	}

	earlyFeb := time.Date(2024, 2, 1, 1, 0, 0, 0, minsk)
	earlyMar := time.Date(2024, 3, 1, 1, 0, 0, 0, minsk)
	if earlyFeb.Before(p.From) || !earlyFeb.Before(p.To) {
		t.Fatalf("payment at %s should fall inside %s..%s", earlyFeb, p.From, p.To)
	}
	if earlyMar.Before(p.To) {
		t.Fatalf("payment at %s should fall outside %s..%s", earlyMar, p.From, p.To)
	}
}

func TestPreviewCommand_NoChanges(t *testing.T) {
	useMemoryApp(t)
	out, err := run(t, previewCmd, "--from", "2025-02-01", "--to", "2025-02-28")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No changes.") || !strings.Contains(out, "0 creates") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestApplyCommand_NothingSelected(t *testing.T) {
	useMemoryApp(t)
	_, err := run(t, applyCmd, "--from", "2025-02-01")
	if !errors.Is(err, syncrun.ErrNothingSelected) {
		t.Fatalf("expected nothing selected, got %v", err)
	}
}

func TestPromoteCommand_EmptyQueue(t *testing.T) {
	useMemoryApp(t)
	out, err := run(t, promoteCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "considered 0") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestImportCommand(t *testing.T) {
	client := useMemoryApp(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "statement.csv")
	csv := "ID транзакции;Тип транзакции;Статус;Сумма;Валюта;Дата создания\n" +
		"T1;Оплата;Успешный;100,50;BYN;01.02.2025 10:00:00\n"
	if err := os.WriteFile(good, []byte(csv), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	empty := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	out, err := run(t, importCmd, good, empty)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 files failed") {
		t.Fatalf("expected one failed file, got %v", err)
	}
	if !strings.Contains(out, "statement.csv") || !strings.Contains(out, "empty.csv: ") {
		t.Fatalf("unexpected output: %q", out)
	}

	queued := false
	for _, call := range client.WriteCalls() {
		if strings.Contains(call.Query, "QueueItem") && call.Params["items"] != nil {
			queued = true
		}
	}
	if !queued {
		t.Fatal("expected the parsed row to be written to the queue")
	}
}

func TestPrintChanges(t *testing.T) {
	paid := domain.Transaction{UID: "A", Amount: decimal.RequireFromString("10"), Currency: "BYN", StatusNormalized: domain.StatusSuccessful}
	changes := []domain.SyncChange{
		{UID: "A", Action: domain.ActionUpdate, Statement: &paid,
			Differences: []domain.Difference{{Field: "amount", Before: "12.00", After: "10.00"}}},
		{UID: "B", Action: domain.ActionDelete, Internal: &paid, IsDangerous: true,
			Cascade: domain.Cascade{OrdersToCancel: []string{"O1"}, RevokesChannelAccess: true}},
	}

	var buf bytes.Buffer
	printChanges(&buf, changes, true)
	out := buf.String()
	for _, want := range []string{"10.00 BYN", "12.00 -> 10.00", "delete, cancels 1 orders, revokes channel access"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
