package queue

import (
	"container/heap"
	"sync"
	"time"
)

// =============================================================================
// Delayed Retry Queue
// =============================================================================
//
// Retries are scheduled on an explicit time-ordered queue keyed by ready-at
// timestamp rather than on store-side key expiry, so an item is never
// redelivered before its backoff delay has elapsed. Among due entries the
// oldest scheduling wins.

type retryEntry struct {
	item        *Item
	readyAt     time.Time
	scheduledAt time.Time
}

type retryHeap []*retryEntry

func (h retryHeap) Len() int { return len(h) }

func (h retryHeap) Less(i, j int) bool {
	if !h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].readyAt.Before(h[j].readyAt)
	}
	return h[i].scheduledAt.Before(h[j].scheduledAt)
}

func (h retryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *retryHeap) Push(x any) {
	*h = append(*h, x.(*retryEntry))
}

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

// delayQueue holds items awaiting redelivery after a retry backoff.
type delayQueue struct {
	mu      sync.Mutex
	entries retryHeap
	now     func() time.Time
}

func newDelayQueue() *delayQueue {
	return &delayQueue{now: time.Now}
}

// Schedule records an item for redelivery at readyAt.
func (q *delayQueue) Schedule(item *Item, readyAt time.Time) {
	q.mu.Lock()
	heap.Push(&q.entries, &retryEntry{
		item:        item,
		readyAt:     readyAt,
		scheduledAt: q.now(),
	})
	q.mu.Unlock()
}

// PopDue removes and returns the oldest item whose delay has elapsed.
// Returns nil when nothing is due.
func (q *delayQueue) PopDue() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}
	if q.entries[0].readyAt.After(q.now()) {
		return nil
	}
	entry := heap.Pop(&q.entries).(*retryEntry)
	return entry.item
}

// Len returns the number of pending retries, due or not.
func (q *delayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
