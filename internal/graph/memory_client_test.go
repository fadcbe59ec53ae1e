package graph

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryClientRoutesBeforeQueue(t *testing.T) {
	client := NewMemoryClient()
	client.OnRead("MATCH (p:Profile)", func(params map[string]any) (Result, error) {
		return Result{Records: []Record{{"id": params["id"]}}}, nil
	})
	client.PushReadResult(Result{Records: []Record{{"queued": true}}})

	ctx := context.Background()
	routed, err := client.ExecuteRead(ctx, "MATCH (p:Profile) RETURN p", map[string]any{"id": "P1"})
	if err != nil || routed.Records[0]["id"] != "P1" {
		t.Fatalf("unexpected routed result %+v (%v)", routed, err)
	}
	queued, _ := client.ExecuteRead(ctx, "MATCH (o:Order) RETURN o", nil)
	if len(queued.Records) != 1 || queued.Records[0]["queued"] != true {
		t.Fatalf("unexpected queued result %+v", queued)
	}
	empty, _ := client.ExecuteRead(ctx, "MATCH (o:Order) RETURN o", nil)
	if len(empty.Records) != 0 {
		t.Fatalf("expected empty result, got %+v", empty)
	}
	if len(client.ReadCalls()) != 3 {
		t.Fatalf("expected 3 recorded reads, got %d", len(client.ReadCalls()))
	}
}

func TestMemoryClientError(t *testing.T) {
	boom := errors.New("boom")
	client := NewMemoryClient().WithError(boom)
	if _, err := client.ExecuteWrite(context.Background(), "CREATE (n)", nil); !errors.Is(err, boom) {
		t.Fatalf("expected configured error, got %v", err)
	}
}

func TestTransientErrorUnwraps(t *testing.T) {
	inner := errors.New("leader switch")
	err := error(&TransientError{Err: inner})
	if !errors.Is(err, inner) {
		t.Fatal("expected wrapped error")
	}
	var te interface{ Transient() bool }
	if !errors.As(err, &te) || !te.Transient() {
		t.Fatal("expected transient marker")
	}
}
