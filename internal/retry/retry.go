// Package retry runs an attempt function under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds retries. Attempt n (1-based) waits BaseDelay*Multiplier^(n-2)
// before running, capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultPolicy is three attempts at 1s, 2s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// Delay returns the wait before attempt n. The first attempt never waits.
func (p Policy) Delay(n int) time.Duration {
	if n <= 1 || p.BaseDelay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.BaseDelay)
	for i := 2; i < n; i++ {
		delay *= multiplier
		if p.MaxDelay > 0 && delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the real Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transient is implemented by errors that know whether retrying could help.
type Transient interface {
	Transient() bool
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsTransient reports whether err may succeed on a later attempt. Only errors
// that declare themselves transient are retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var t Transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}

// Result reports how a Do call went.
type Result struct {
	Attempts int
	Err      error
}

// Do runs attempt until it succeeds, returns a non-transient error, or the
// policy runs out of attempts.
func Do(ctx context.Context, p Policy, sleep Sleeper, attempt func(ctx context.Context, n int) error) Result {
	if sleep == nil {
		sleep = ContextSleep
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		if n > 1 {
			if err := sleep(ctx, p.Delay(n)); err != nil {
				return Result{Attempts: n - 1, Err: fmt.Errorf("retry interrupted: %w", err)}
			}
		}
		err := attempt(ctx, n)
		if err == nil {
			return Result{Attempts: n}
		}
		lastErr = err
		if !IsTransient(err) {
			return Result{Attempts: n, Err: err}
		}
	}
	return Result{
		Attempts: maxAttempts,
		Err:      fmt.Errorf("max attempts (%d) exceeded: %w", maxAttempts, lastErr),
	}
}
