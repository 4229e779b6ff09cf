package remote

import "sync"

// Feed is a single subscriber's channel. It holds at most one undelivered
// value; offering a new one replaces whatever the subscriber has not read
// yet, so a slow reader never blocks the publisher.
type Feed[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{ch: make(chan T, 1)}
}

// C returns the receive side of the feed.
func (f *Feed[T]) C() <-chan T { return f.ch }

// Offer publishes v, dropping any undelivered older value. Offers after
// Close are ignored.
func (f *Feed[T]) Offer(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- v
}

// Close closes the channel. Safe to call more than once.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}
