// Package network delivers online/offline signals to the sync manager.
//
// The Source interface is the only origin of asynchronous, non-caller-driven
// state transitions in the sync engine. Switch is a manual source for tests
// and the CLI; Prober polls a health endpoint on an injected scheduler.
package network

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/roadbook/roadbook/internal/sched"
)

// Source reports and signals network reachability.
type Source interface {
	// Online returns the current reachability.
	Online() bool

	// Subscribe registers a listener called on every reachability change.
	// The returned cancel removes the listener.
	Subscribe(fn func(online bool)) (cancel func())
}

// Switch is a manually driven Source.
type Switch struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]func(bool)
}

// NewSwitch creates a Switch with the given initial reachability.
func NewSwitch(online bool) *Switch {
	return &Switch{
		online:    online,
		listeners: make(map[int]func(bool)),
	}
}

// Online implements Source.
func (s *Switch) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Subscribe implements Source.
func (s *Switch) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Set updates reachability and notifies listeners on change. Listeners run
// synchronously in the caller's goroutine, matching the cooperative,
// event-driven scheduling the sync manager assumes.
func (s *Switch) Set(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	fns := make([]func(bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Prober is a Source that decides reachability by polling a health endpoint.
// It embeds a Switch for listener bookkeeping and flips it on each probe.
type Prober struct {
	*Switch
	url      string
	interval time.Duration
	client   *http.Client
	sched    sched.Scheduler
	logger   *slog.Logger

	mu     sync.Mutex
	cancel sched.Cancel
	closed bool
}

// NewProber creates a Prober. It reports offline until the first successful
// probe; call Start to begin polling.
func NewProber(url string, interval time.Duration, scheduler sched.Scheduler, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		Switch:   NewSwitch(false),
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		sched:    scheduler,
		logger:   logger,
	}
}

// Start probes once immediately, then keeps probing on the configured
// interval until Stop is called.
func (p *Prober) Start(ctx context.Context) {
	p.probe(ctx)
	p.scheduleNext(ctx)
}

// Stop cancels the pending probe.
func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Prober) scheduleNext(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.cancel = p.sched.Schedule(p.interval, func() {
		p.probe(ctx)
		p.scheduleNext(ctx)
	})
}

func (p *Prober) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Error("network probe misconfigured", "url", p.url, "error", err)
		p.Set(false)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.Set(false)
		return
	}
	resp.Body.Close()

	online := resp.StatusCode < 500
	p.Set(online)
}
