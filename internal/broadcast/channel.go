// Package broadcast keeps an append-only update log and fans every new
// update out to the live subscribers of that log.
package broadcast

import (
	"slices"
	"sync"
)

// Channel is safe for concurrent use. Subscribe and Publish are atomic with
// respect to each other, so a subscriber sees every update exactly once:
// either in its history or on its live queue.
type Channel[T any] struct {
	mu     sync.Mutex
	log    []T
	subs   map[string]*subscriber[T]
	buffer int
}

type subscriber[T any] struct {
	out  chan T
	done <-chan struct{}
}

// New returns a Channel whose subscribers each get a live queue of buffer
// updates. A subscriber whose queue is full when an update is published is
// dropped and its queue closed.
func New[T any](buffer int) *Channel[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Channel[T]{
		subs:   make(map[string]*subscriber[T]),
		buffer: buffer,
	}
}

// Subscribe returns a copy of the log so far and registers id for every
// later update. done signals that the subscriber's connection is gone; the
// registration is only discarded on the next Publish. Subscribing an id
// that is already registered replaces (and closes) the old queue.
func (c *Channel[T]) Subscribe(id string, done <-chan struct{}) ([]T, <-chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.subs[id]; ok {
		close(old.out)
	}
	sub := &subscriber[T]{out: make(chan T, c.buffer), done: done}
	c.subs[id] = sub
	return slices.Clone(c.log), sub.out
}

// Publish appends v to the log and delivers it to every live subscriber.
// It never blocks on a subscriber.
func (c *Channel[T]) Publish(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prune()
	c.log = append(c.log, v)
	for id, sub := range c.subs {
		select {
		case sub.out <- v:
			// ok
		default:
			// Subscriber is slow/full - drop them.
			close(sub.out)
			delete(c.subs, id)
		}
	}
}

// prune drops subscribers whose connection has ended. Must hold c.mu.
func (c *Channel[T]) prune() {
	for id, sub := range c.subs {
		if sub.done == nil {
			continue
		}
		select {
		case <-sub.done:
			close(sub.out)
			delete(c.subs, id)
		default:
		}
	}
}

// Log returns a copy of every update published so far.
func (c *Channel[T]) Log() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.log)
}

func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.log)
}

// Subscribers counts registrations, including ones that are already
// disconnected but not yet pruned.
func (c *Channel[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close closes every subscriber queue. The log is kept.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, sub := range c.subs {
		close(sub.out)
		delete(c.subs, id)
	}
}
