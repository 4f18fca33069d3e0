package scheduler

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/task"
)

func entry(name string, prio float64) *Entry {
	return &Entry{
		Task:     task.New(name, []string{"task_execution"}, nil),
		Priority: prio,
	}
}

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewQueue()
	q.Push(entry("low", 10))
	q.Push(entry("high", 90))
	q.Push(entry("mid", 50))

	want := []float64{90, 50, 10}
	for i, p := range want {
		e := q.Pop()
		if e == nil {
			t.Fatalf("pop %d returned nil", i)
		}
		if e.Priority != p {
			t.Errorf("pop %d: expected priority %.0f, got %.0f", i, p, e.Priority)
		}
	}
	if q.Pop() != nil {
		t.Error("empty queue should pop nil")
	}
}

func TestQueueFIFOAmongEqualPriorities(t *testing.T) {
	q := NewQueue()
	first := entry("first", 50)
	second := entry("second", 50)
	third := entry("third", 50)
	q.Push(first)
	q.Push(second)
	q.Push(third)

	for i, want := range []*Entry{first, second, third} {
		got := q.Pop()
		if got.Task.ID != want.Task.ID {
			t.Errorf("pop %d: expected %s, got %s", i, want.Task.Name, got.Task.Name)
		}
	}
}

func TestQueuePopNonIncreasing(t *testing.T) {
	q := NewQueue()
	prios := []float64{33, 91, 7, 55, 55, 91, 12, 100, 0, 68}
	for _, p := range prios {
		q.Push(entry("t", p))
	}

	last := 101.0
	for q.Len() > 0 {
		e := q.Pop()
		if e.Priority > last {
			t.Fatalf("pop order not non-increasing: %.0f after %.0f", e.Priority, last)
		}
		last = e.Priority
	}
}

func TestQueueRemove(t *testing.T) {
	q := NewQueue()
	keep := entry("keep", 50)
	drop := entry("drop", 60)
	q.Push(keep)
	q.Push(drop)

	if !q.Remove(drop.Task.ID) {
		t.Fatal("remove returned false for queued task")
	}
	if q.Remove(uuid.New()) {
		t.Error("remove returned true for unknown task")
	}

	e := q.Pop()
	if e.Task.ID != keep.Task.ID {
		t.Errorf("expected remaining task %s, got %s", keep.Task.Name, e.Task.Name)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestQueueUpdatePriorityReorders(t *testing.T) {
	q := NewQueue()
	a := entry("a", 10)
	b := entry("b", 20)
	q.Push(a)
	q.Push(b)

	if !q.UpdatePriority(a.Task.ID, 99) {
		t.Fatal("update priority failed")
	}
	if got := q.Pop(); got.Task.ID != a.Task.ID {
		t.Errorf("expected boosted task first, got %s", got.Task.Name)
	}
}

func TestQueueQueuedAtDefaulted(t *testing.T) {
	q := NewQueue()
	e := entry("t", 50)
	before := time.Now()
	q.Push(e)
	if e.QueuedAt.Before(before.Add(-time.Second)) || e.QueuedAt.IsZero() {
		t.Error("queued_at not stamped on push")
	}
}
