package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestWorkerPool_Run(t *testing.T) {
	var calls int64
	err := NewWorkerPool(3).Run(context.Background(), 10, func(idx int) error {
		atomic.AddInt64(&calls, 1)
		if idx%4 == 0 {
			return errors.New("bad item")
		}
		return nil
	})
	if calls != 10 {
		t.Fatalf("expected 10 calls, got %d", calls)
	}
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || len(taskErr.Errors) != 3 {
		t.Fatalf("expected 3 collected errors, got %v", err)
	}
}

func TestWorkerPool_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWorkerPool(2).Run(ctx, 5, func(idx int) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTaskErrorMessage(t *testing.T) {
	te := &TaskError{}
	if te.asError() != nil {
		t.Fatal("empty TaskError must be nil")
	}
	te.append(errors.New("a"))
	te.append(nil)
	te.append(errors.New("b"))
	if got := te.Error(); got != "multiple errors: a; b;" {
		t.Errorf("unexpected message %q", got)
	}
}
