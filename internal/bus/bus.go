package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// Subscriptions form a subscriber table keyed by id; every Subscribe hands back
// the function that removes its own entry, and Close removes all of them.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	next   int
	closed bool
}

type subscription struct {
	namespace string
	ch        chan Event
	lossless  bool
	done      chan struct{}
	stop      sync.Once
}

func (s *subscription) release() {
	s.stop.Do(func() { close(s.done) })
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of event.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		if sub.lossless {
			select {
			case sub.ch <- evt:
			case <-sub.done:
			}
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop event if subscriber is full (non-blocking).
		}
	}
}

// Subscribe returns a channel that receives events matching the given namespace prefix.
// bufSize controls the channel buffer. The returned function unsubscribes and
// closes the channel; calling it more than once is a no-op.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, bufSize, false)
}

// SubscribeLossless is Subscribe for consumers that must see every event:
// when the buffer is full Publish waits for room instead of dropping. The
// consumer must keep draining and must not publish from its receive loop.
func (b *Bus) SubscribeLossless(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, bufSize, true)
}

func (b *Bus) subscribe(namespace string, bufSize int, lossless bool) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	sub := &subscription{namespace: namespace, ch: ch, lossless: lossless, done: make(chan struct{})}
	b.subs[id] = sub
	b.mu.Unlock()

	return ch, func() {
		// A publisher blocked on this subscription holds the read lock.
		sub.release()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close tears down every subscription. Later Subscribe calls get a closed channel.
func (b *Bus) Close() {
	b.mu.RLock()
	for _, sub := range b.subs {
		sub.release()
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.closed = true
}
