// Package testutil provides deterministic test doubles for the sync engine's
// time-dependent collaborators.
package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/roadbook/roadbook/internal/sched"
)

// VirtualScheduler is a sched.Scheduler driven by an explicit virtual clock.
//
// Callbacks fire only when Advance moves the clock past their deadline, in
// deadline order (creation order for equal deadlines). Callbacks run in the
// goroutine calling Advance, without the scheduler lock held, so they may
// schedule further timers.
type VirtualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers []*virtualTimer
}

type virtualTimer struct {
	id      int
	at      time.Duration
	fn      func()
	stopped bool
}

// NewVirtualScheduler creates a scheduler with the clock at zero.
func NewVirtualScheduler() *VirtualScheduler {
	return &VirtualScheduler{}
}

// Schedule implements sched.Scheduler.
func (s *VirtualScheduler) Schedule(d time.Duration, fn func()) sched.Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &virtualTimer{
		id: s.nextID,
		at: s.now + d,
		fn: fn,
	}
	s.nextID++
	s.timers = append(s.timers, t)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.stopped = true
	}
}

// Advance moves the virtual clock forward, firing every due callback in
// deadline order.
func (s *VirtualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d

	for {
		t := s.popDueLocked(target)
		if t == nil {
			break
		}
		s.now = t.at
		s.mu.Unlock()
		t.fn()
		s.mu.Lock()
	}

	s.now = target
	s.mu.Unlock()
}

// popDueLocked removes and returns the earliest unstopped timer with
// deadline <= target, or nil.
func (s *VirtualScheduler) popDueLocked(target time.Duration) *virtualTimer {
	sort.SliceStable(s.timers, func(a, b int) bool {
		if s.timers[a].at != s.timers[b].at {
			return s.timers[a].at < s.timers[b].at
		}
		return s.timers[a].id < s.timers[b].id
	})
	for i, t := range s.timers {
		if t.stopped {
			continue
		}
		if t.at > target {
			break
		}
		s.timers = append(s.timers[:i], s.timers[i+1:]...)
		return t
	}
	return nil
}

// Pending returns the number of scheduled, unstopped callbacks.
func (s *VirtualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Now returns the current virtual time.
func (s *VirtualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}
