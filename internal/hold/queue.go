// Package hold keeps references to recently received buffers so the
// upstream pool cannot recycle them.
package hold

import "sync"

// Release drops one held reference. It must be safe to call once.
type Release func()

// Queue is a bounded FIFO of held buffer references.
//
// When full, Push evicts the oldest entries. Evicted entries are released
// after the lock is dropped so a slow release never blocks other callers.
type Queue struct {
	capacity int

	mu      sync.Mutex
	items   []Release
	pushed  uint64
	evicted uint64
	peak    int
}

// Stats is a snapshot of queue activity.
type Stats struct {
	Pushed  uint64
	Evicted uint64
	Held    int
	Peak    int
}

// NewQueue creates a queue holding at most capacity entries.
// A capacity <= 0 means unbounded.
func NewQueue(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	if capacity > 0 {
		q.items = make([]Release, 0, capacity)
	}
	return q
}

// Push appends r and returns the number of entries held before it was added.
func (q *Queue) Push(r Release) int {
	q.mu.Lock()
	before := len(q.items)
	q.items = append(q.items, r)
	q.pushed++

	var evict []Release
	if q.capacity > 0 && len(q.items) > q.capacity {
		n := len(q.items) - q.capacity
		evict = make([]Release, n)
		copy(evict, q.items[:n])
		// Shift in place to keep the backing array bounded.
		remaining := copy(q.items, q.items[n:])
		for i := remaining; i < len(q.items); i++ {
			q.items[i] = nil
		}
		q.items = q.items[:remaining]
		q.evicted += uint64(n)
	}
	if len(q.items) > q.peak {
		q.peak = len(q.items)
	}
	q.mu.Unlock()

	for _, release := range evict {
		if release != nil {
			release()
		}
	}
	return before
}

// Len returns the number of held entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain releases every held entry, oldest first, and returns how many
// were released. Calling Drain on an empty queue is a no-op.
func (q *Queue) Drain() int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	if q.capacity > 0 {
		q.items = make([]Release, 0, q.capacity)
	}
	q.mu.Unlock()

	for _, release := range items {
		if release != nil {
			release()
		}
	}
	return len(items)
}

// Stats returns a snapshot of queue activity.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pushed:  q.pushed,
		Evicted: q.evicted,
		Held:    len(q.items),
		Peak:    q.peak,
	}
}
