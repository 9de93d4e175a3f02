package tracker

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// DelayQueue hands items from producers to a single consumer, releasing each
// item no earlier than its release deadline. Items are ordered by (deadline,
// arrival sequence): with a fixed hold duration this is exactly arrival
// order, and if arrival order ever diverges from slot order an
// earlier-releasing item is not stuck behind a later one.
//
// The queue is unbounded; Len is exported as a gauge so operators can watch
// the backlog. Close waives remaining deadlines so a drain completes
// promptly.
type DelayQueue[T any] struct {
	mu     sync.Mutex
	items  delayHeap[T]
	seq    uint64
	closed bool

	// wake nudges the consumer when an earlier deadline or Close arrives.
	wake chan struct{}
}

// NewDelayQueue creates an empty queue.
func NewDelayQueue[T any]() *DelayQueue[T] {
	return &DelayQueue[T]{
		wake: make(chan struct{}, 1),
	}
}

// Push enqueues v for release at releaseAt. Returns false if the queue is
// closed and the item was dropped.
func (q *DelayQueue[T]) Push(v T, releaseAt time.Time) bool {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return false
	}

	heap.Push(&q.items, delayItem[T]{value: v, releaseAt: releaseAt, seq: q.seq})
	q.seq++
	q.mu.Unlock()

	q.notify()

	return true
}

// Len returns the number of queued items.
func (q *DelayQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.items.Len()
}

// Close stops accepting items and releases the remaining ones immediately.
// Pop drains what is left and then reports ok=false.
func (q *DelayQueue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.notify()
}

// Pop blocks until the earliest item's deadline has elapsed (or the queue is
// closed) and returns it. ok is false once the queue is closed and empty, or
// when ctx is cancelled. Pop is intended for a single consumer.
func (q *DelayQueue[T]) Pop(ctx context.Context) (v T, ok bool) {
	var zero T

	for {
		q.mu.Lock()

		if q.items.Len() > 0 {
			next := q.items[0]
			now := time.Now()

			if q.closed || !next.releaseAt.After(now) {
				heap.Pop(&q.items)
				q.mu.Unlock()

				return next.value, true
			}

			wait := next.releaseAt.Sub(now)
			q.mu.Unlock()

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()

				return zero, false
			case <-q.wake:
				timer.Stop()
			case <-timer.C:
			}

			continue
		}

		if q.closed {
			q.mu.Unlock()

			return zero, false
		}

		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, false
		case <-q.wake:
		}
	}
}

func (q *DelayQueue[T]) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

type delayItem[T any] struct {
	value     T
	releaseAt time.Time
	seq       uint64
}

type delayHeap[T any] []delayItem[T]

func (h delayHeap[T]) Len() int { return len(h) }

func (h delayHeap[T]) Less(i, j int) bool {
	if !h[i].releaseAt.Equal(h[j].releaseAt) {
		return h[i].releaseAt.Before(h[j].releaseAt)
	}

	return h[i].seq < h[j].seq
}

func (h delayHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayHeap[T]) Push(x any) { *h = append(*h, x.(delayItem[T])) }

func (h *delayHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]

	return item
}
