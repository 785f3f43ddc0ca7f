// SPDX-License-Identifier: MIT
package engine

import (
	"sync"
	"sync/atomic"
)

// Subscription delivers events of type T. Delivery never blocks the
// publisher: when the channel is full the event is dropped and counted.
// The channel is closed by Unsubscribe or when the stream disconnects.
type Subscription[T any] struct {
	ch      chan T
	dropped atomic.Uint64
	once    sync.Once
	cancel  func()
}

// C returns the event channel.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Dropped returns how many events this subscriber missed because its
// channel was full.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Unsubscribe stops delivery and closes the channel. Safe to call more than
// once and after the stream disconnected.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(s.cancel)
}

// topic fans events out to its subscribers.
type topic[T any] struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription[T]
	nextID  uint64
	closed  bool
	size    int
	dropped atomic.Uint64
}

func newTopic[T any](size int) *topic[T] {
	if size <= 0 {
		size = 1
	}
	return &topic[T]{subs: make(map[uint64]*Subscription[T]), size: size}
}

func (t *topic[T]) subscribe() *Subscription[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := &Subscription[T]{ch: make(chan T, t.size)}
	if t.closed {
		close(sub.ch)
		sub.cancel = func() {}
		return sub
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = sub
	sub.cancel = func() { t.remove(id) }
	return sub
}

func (t *topic[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sub, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(sub.ch)
	}
}

// publish delivers v to every subscriber without blocking and reports how
// many subscribers received it.
func (t *topic[T]) publish(v T) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0
	}

	delivered := 0
	for _, sub := range t.subs {
		select {
		case sub.ch <- v:
			delivered++
		default:
			sub.dropped.Add(1)
			t.dropped.Add(1)
		}
	}
	return delivered
}

func (t *topic[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// close closes every subscriber channel. Later publishes are no-ops and
// later subscriptions receive an already closed channel.
func (t *topic[T]) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, sub := range t.subs {
		close(sub.ch)
		delete(t.subs, id)
	}
}
