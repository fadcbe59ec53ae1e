package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// Pinger is satisfied by the graph repository and the audit store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck is one named dependency probed by /healthz.
type HealthCheck struct {
	Name   string
	Target Pinger
}

// HealthChecks probes every dependency; nil targets are reported as skipped.
type HealthChecks []HealthCheck

// Probe implements HealthService.
func (c HealthChecks) Probe(ctx context.Context) error {
	_, err := c.run(ctx)
	return err
}

// run pings every target once and reports up/down/skipped per check.
func (c HealthChecks) run(ctx context.Context) (map[string]string, error) {
	report := make(map[string]string, len(c))
	var errs []error
	for _, check := range c {
		if check.Target == nil {
			report[check.Name] = "skipped"
			continue
		}
		if err := check.Target.Ping(ctx); err != nil {
			report[check.Name] = "down"
			errs = append(errs, fmt.Errorf("%s: %w", check.Name, err))
			continue
		}
		report[check.Name] = "up"
	}
	return report, errors.Join(errs...)
}

func healthHandler(logger *slog.Logger, health HealthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(w, http.MethodGet, http.MethodHead)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		payload := map[string]any{"status": "ok"}
		if health == nil {
			respondJSON(w, status, payload)
			return
		}

		var err error
		if checks, ok := health.(HealthChecks); ok {
			payload["checks"], err = checks.run(ctx)
		} else {
			err = health.Probe(ctx)
		}
		if err != nil {
			logger.Error("health probe failed", "error", err)
			status = http.StatusServiceUnavailable
			payload["status"] = "degraded"
			payload["error"] = err.Error()
		}
		respondJSON(w, status, payload)
	}
}
