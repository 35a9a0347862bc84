package engine

import (
	"testing"
	"time"
)

func item(id string, ordinal, priority int) queueItem {
	return queueItem{id: id, ordinal: ordinal, priority: priority, enqueuedAt: time.Now()}
}

func TestWorkQueue_NormalTierSortedByOrdinal(t *testing.T) {
	q := newWorkQueue()
	q.insert(item("c", 5, priorityNormal))
	q.insert(item("a", 1, priorityNormal))
	q.insert(item("b", 3, priorityNormal))

	want := []int{1, 3, 5}
	for i, w := range want {
		if got := q.at(i).ordinal; got != w {
			t.Errorf("position %d: ordinal = %d, want %d", i, got, w)
		}
	}
}

func TestWorkQueue_HighPriorityPrepended(t *testing.T) {
	q := newWorkQueue()
	q.insert(item("a", 1, priorityNormal))
	q.insert(item("b", 2, priorityNormal))
	q.insert(item("retry", 9, priorityHigh))

	if got := q.at(0).id; got != "retry" {
		t.Errorf("head = %s, want retry", got)
	}
	if got := q.at(1).ordinal; got != 1 {
		t.Errorf("position 1 ordinal = %d, want 1", got)
	}

	// Normal inserts after a high item land behind it, still sorted.
	q.insert(item("c", 0, priorityNormal))
	if got := q.at(0).id; got != "retry" {
		t.Errorf("head after normal insert = %s, want retry", got)
	}
	if got := q.at(1).ordinal; got != 0 {
		t.Errorf("position 1 ordinal = %d, want 0", got)
	}
}

func TestWorkQueue_IdempotentInsert(t *testing.T) {
	q := newWorkQueue()
	if !q.insert(item("a", 1, priorityNormal)) {
		t.Fatal("first insert rejected")
	}
	if q.insert(item("a", 1, priorityNormal)) {
		t.Error("duplicate insert accepted")
	}
	if q.insert(item("a", 1, priorityHigh)) {
		t.Error("duplicate high-priority insert accepted")
	}
	if q.len() != 1 {
		t.Errorf("len = %d, want 1", q.len())
	}
}

func TestWorkQueue_Remove(t *testing.T) {
	q := newWorkQueue()
	q.insert(item("a", 1, priorityNormal))
	q.insert(item("b", 2, priorityNormal))
	q.insert(item("c", 3, priorityNormal))

	q.removeAll([]string{"a", "c"})

	if q.len() != 1 {
		t.Fatalf("len = %d, want 1", q.len())
	}
	if q.contains("a") || q.contains("c") {
		t.Error("removed ids still reported as members")
	}
	if !q.contains("b") {
		t.Error("surviving id missing")
	}

	// Removing an absent id is a no-op.
	q.remove("missing")
	if q.len() != 1 {
		t.Errorf("len after no-op remove = %d, want 1", q.len())
	}
}
