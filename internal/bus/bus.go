// Package bus provides the in-process topic bus that unrelated layers use
// to raise cross-cutting signals at the session coordinator, most notably
// a forced logout when any request observes an expired credential.
package bus

import "sync"

const TopicForceLogout = "force-logout"

type Bus struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func()
}

func New() *Bus {
	return &Bus{subs: make(map[string]map[int]func())}
}

// Subscribe registers fn for topic and returns an unsubscribe func that is
// safe to call more than once.
func (b *Bus) Subscribe(topic string, fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func())
	}
	id := b.next
	b.next++
	b.subs[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish invokes every subscriber of topic. Callbacks run on the caller's
// goroutine; subscribers that need serialization must enqueue themselves.
func (b *Bus) Publish(topic string) {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
