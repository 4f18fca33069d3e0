package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/task"
)

// Entry is one queued unit of work. Ordering is by priority descending,
// then queued_at ascending among equal priorities.
type Entry struct {
	Task        *task.Task
	Priority    float64
	Deadline    *time.Time
	QueuedAt    time.Time
	Attempts    int
	NotBefore   time.Time // retry backoff gate; zero means immediately eligible
	TargetAgent string

	index int // heap bookkeeping
	seq   uint64
}

// Queue is a thread-safe priority queue of task entries
type Queue struct {
	mu      sync.RWMutex
	entries entryHeap
	index   map[uuid.UUID]*Entry
	nextSeq uint64
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	q := &Queue{index: make(map[uuid.UUID]*Entry)}
	heap.Init(&q.entries)
	return q
}

// Push inserts an entry, maintaining priority order
func (q *Queue) Push(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e.QueuedAt.IsZero() {
		e.QueuedAt = time.Now()
	}
	e.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.entries, e)
	q.index[e.Task.ID] = e
}

// Pop removes and returns the highest-priority entry, or nil when empty
func (q *Queue) Pop() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.entries.Len() == 0 {
		return nil
	}
	e := heap.Pop(&q.entries).(*Entry)
	delete(q.index, e.Task.ID)
	return e
}

// Peek returns the highest-priority entry without removing it
func (q *Queue) Peek() *Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.entries.Len() == 0 {
		return nil
	}
	return q.entries[0]
}

// Remove removes an entry by task id. Returns false if absent.
func (q *Queue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.index[id]
	if !ok {
		return false
	}
	heap.Remove(&q.entries, e.index)
	delete(q.index, id)
	return true
}

// Get returns the queued entry for a task id, or nil
func (q *Queue) Get(id uuid.UUID) *Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index[id]
}

// UpdatePriority adjusts a queued entry's priority in place
func (q *Queue) UpdatePriority(id uuid.UUID, priority float64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.index[id]
	if !ok {
		return false
	}
	e.Priority = priority
	heap.Fix(&q.entries, e.index)
	return true
}

// Len returns the number of queued entries
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.entries.Len()
}

// entryHeap orders entries by priority descending, FIFO on ties
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
