package events

import "sync"

type LifecycleState string

const (
	Foreground LifecycleState = "foreground"
	Background LifecycleState = "background"
)

// LifecycleMonitor fans app foreground/background transitions out to
// subscribers. The agent has no window of its own; the embedding shell
// reports transitions through the control API, which calls Dispatch.
type LifecycleMonitor struct {
	mu   sync.Mutex
	next int
	subs map[int]func(LifecycleState)
}

func NewLifecycleMonitor() *LifecycleMonitor {
	return &LifecycleMonitor{subs: make(map[int]func(LifecycleState))}
}

func (m *LifecycleMonitor) Subscribe(fn func(LifecycleState)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.next
	m.next++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *LifecycleMonitor) Dispatch(state LifecycleState) {
	m.mu.Lock()
	fns := make([]func(LifecycleState), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
