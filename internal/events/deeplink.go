package events

import "sync"

// DeepLinkRouter holds the URL the process was launched with (if any) and
// streams URLs delivered while running. The OS hands deep links to the UI
// shell, which forwards them over the control API.
type DeepLinkRouter struct {
	mu      sync.Mutex
	pending string
	next    int
	subs    map[int]func(string)
}

func NewDeepLinkRouter(pending string) *DeepLinkRouter {
	return &DeepLinkRouter{
		pending: pending,
		subs:    make(map[int]func(string)),
	}
}

// Pending returns the launch URL, or "" when the process started cold.
func (r *DeepLinkRouter) Pending() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *DeepLinkRouter) Subscribe(fn func(url string)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *DeepLinkRouter) Dispatch(url string) {
	r.mu.Lock()
	fns := make([]func(string), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(url)
	}
}
