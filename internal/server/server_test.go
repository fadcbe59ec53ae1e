package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/vanshika/payrecon/backend/internal/config"
)

func TestServer_StartAndShutdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	srv := New(logger, config.HTTPConfig{Host: "127.0.0.1", Port: 0}, handler)

	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if srv.Addr() == "127.0.0.1:0" {
		t.Fatalf("expected bound port, got %s", srv.Addr())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("start returned %v after shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return after shutdown")
	}
}

func TestServer_AddrBeforeListen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(logger, config.HTTPConfig{Host: "::1", Port: 8080}, http.NotFoundHandler())
	if got := srv.Addr(); got != "[::1]:8080" {
		t.Fatalf("unexpected addr %q", got)
	}
}
