// Package queue holds pending events in insertion order until they are
// drained for delivery.
package queue

import (
	"sync"

	"github.com/dotcommander/missiontrack/internal/models"
)

// Queue is an ordered buffer of pending events. It is safe for many
// producers and one consumer. The lock is only held for the slice swap, so
// producers never wait on a delivery attempt.
type Queue struct {
	mu     sync.Mutex
	events []models.Event
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends ev to the tail and returns the new queue length.
func (q *Queue) Enqueue(ev models.Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, ev)
	return len(q.events)
}

// Drain removes and returns every queued event, leaving the queue empty.
// Returns nil when the queue is already empty.
func (q *Queue) Drain() []models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	batch := q.events
	q.events = nil
	return batch
}

// Prepend reinserts batch at the head, ahead of anything enqueued since it
// was drained. The batch's internal order is preserved.
func (q *Queue) Prepend(batch []models.Event) {
	if len(batch) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]models.Event, 0, len(batch)+len(q.events))
	merged = append(merged, batch...)
	merged = append(merged, q.events...)
	q.events = merged
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Snapshot returns a copy of the queued events without removing them.
func (q *Queue) Snapshot() []models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.Event, len(q.events))
	copy(out, q.events)
	return out
}
