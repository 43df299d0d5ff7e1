package telemetry

import (
	"fmt"
	"testing"
)

func logEntry(n int) Entry {
	return NewLogEntry("test", SeverityInfo, fmt.Sprintf("entry %d", n), nil)
}

func TestBoundedQueue_NeverExceedsCapacity(t *testing.T) {
	q := NewBoundedQueue(3)
	for i := 0; i < 50; i++ {
		q.Push(logEntry(i))
		if q.Len() > 3 {
			t.Fatalf("queue length %d exceeds capacity after %d pushes", q.Len(), i+1)
		}
	}
}

func TestBoundedQueue_DropsOldestFirst(t *testing.T) {
	q := NewBoundedQueue(3)
	for i := 1; i <= 4; i++ {
		q.Push(logEntry(i))
	}

	got := q.DrainAll()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"entry 2", "entry 3", "entry 4"} {
		if got[i].Message != want {
			t.Errorf("position %d: expected %q, got %q", i, want, got[i].Message)
		}
	}
}

func TestBoundedQueue_PreservesInsertionOrder(t *testing.T) {
	q := NewBoundedQueue(10)
	for i := 0; i < 5; i++ {
		q.Push(logEntry(i))
	}

	got := q.DrainAll()
	for i := range got {
		if got[i].Message != fmt.Sprintf("entry %d", i) {
			t.Errorf("position %d: got %q", i, got[i].Message)
		}
	}
}

func TestBoundedQueue_DrainAllIsIdempotent(t *testing.T) {
	q := NewBoundedQueue(5)
	q.Push(logEntry(1))
	q.Push(logEntry(2))

	first := q.DrainAll()
	if len(first) != 2 {
		t.Fatalf("expected 2 entries from first drain, got %d", len(first))
	}

	second := q.DrainAll()
	if len(second) != 0 {
		t.Fatalf("expected empty second drain, got %d entries", len(second))
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got length %d", q.Len())
	}
}

func TestBoundedQueue_PushAfterDrain(t *testing.T) {
	q := NewBoundedQueue(3)
	for i := 0; i < 3; i++ {
		q.Push(logEntry(i))
	}
	q.DrainAll()

	q.Push(logEntry(99))
	got := q.DrainAll()
	if len(got) != 1 || got[0].Message != "entry 99" {
		t.Fatalf("unexpected contents after drain and push: %+v", got)
	}
}
