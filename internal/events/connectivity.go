// Package events holds the sources that feed the session coordinator:
// connectivity probes, app lifecycle transitions delivered by the UI
// shell, and OAuth deep links.
package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnectivityMonitor probes the backend health endpoint on a fixed
// interval and notifies subscribers on every transition. The first probe
// result is also delivered, so subscribers start from a known state.
type ConnectivityMonitor struct {
	healthURL string
	interval  time.Duration
	client    *http.Client
	log       zerolog.Logger

	mu     sync.Mutex
	next   int
	subs   map[int]func(bool)
	known  bool
	online bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewConnectivityMonitor(healthURL string, interval time.Duration, client *http.Client, log zerolog.Logger) *ConnectivityMonitor {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ConnectivityMonitor{
		healthURL: healthURL,
		interval:  interval,
		client:    client,
		log:       log.With().Str("component", "connectivity").Logger(),
		subs:      make(map[int]func(bool)),
	}
}

func (m *ConnectivityMonitor) Subscribe(fn func(connected bool)) func() {
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

func (m *ConnectivityMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.report(m.probe(ctx))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.report(m.probe(ctx))
			}
		}
	}()
}

func (m *ConnectivityMonitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *ConnectivityMonitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.healthURL, nil)
	if err != nil {
		m.log.Error().Err(err).Msg("probe request build failed")
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

func (m *ConnectivityMonitor) report(online bool) {
	m.mu.Lock()
	changed := !m.known || online != m.online
	m.known = true
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	m.log.Debug().Bool("online", online).Msg("connectivity changed")
	for _, fn := range fns {
		fn(online)
	}
}
