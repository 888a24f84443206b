package queue

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func req(user string) Request {
	return Request{ID: "r-" + user, UserID: user, RequestedAt: time.Now()}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if !q.Enqueue(ctx, req("u1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	r := <-q.Dequeue(ctx)
	if r.UserID != "u1" {
		t.Errorf("expected u1, got %v", r.UserID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, req("u1")) || !q.Enqueue(ctx, req("u2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, req("u3")) {
		t.Error("expected enqueue to fail when queue is full")
	}
}

func TestInMemoryQueue_Coalesce(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !q.Enqueue(ctx, req("u1")) {
			t.Fatalf("enqueue %d should be accepted", i)
		}
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected coalesced length 1, got %d", l)
	}

	ch := q.Dequeue(ctx)
	<-ch
	// once taken off the queue the user may be queued again
	if !q.Enqueue(ctx, req("u1")) {
		t.Error("expected re-enqueue after dequeue to succeed")
	}
	select {
	case r := <-ch:
		if r.UserID != "u1" {
			t.Errorf("expected u1, got %v", r.UserID)
		}
	case <-time.After(time.Second):
		t.Fatal("re-enqueued request was not delivered")
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(8))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q.Enqueue(ctx, req(fmt.Sprintf("u%d", i)))
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if q.Enqueue(ctx, req("late")) {
		t.Error("expected enqueue after close to fail")
	}
	if err := q.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	got := 0
	for range q.Dequeue(ctx) {
		got++
	}
	if got != 3 {
		t.Errorf("expected to drain 3 requests, got %d", got)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if q.Enqueue(ctx, req("u1")) {
		t.Error("expected enqueue with cancelled context to fail")
	}
}
