package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/vanshika/payrecon/backend/internal/config"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "warn", Format: "JSON"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "batch_id", "b-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if entry["msg"] != "shown" || entry["batch_id"] != "b-1" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range tests {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	logger.Info("webhook rejected", "signature", "deadbeef", "uid", "T1")

	out := buf.String()
	if strings.Contains(out, "deadbeef") {
		t.Fatalf("secret leaked: %q", out)
	}
	if !strings.Contains(out, "signature=[redacted]") || !strings.Contains(out, "uid=T1") {
		t.Fatalf("unexpected output: %q", out)
	}
}
