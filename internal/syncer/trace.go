package syncer

import (
	"encoding/json"
	"sync"
)

// TraceEvent is one observable step of the sync engine: a status change, a
// dispatch, or a conflict outcome. Events carry no wall-clock values so a
// recorded trace is deterministic under a virtual scheduler.
type TraceEvent struct {
	Action     string `json:"action"`
	MutationID string `json:"mutation_id,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Trace records sync engine events in order. Attach one to a Manager with
// WithTrace; used by tests to assert dispatch order and by golden tests to
// pin whole drain scenarios.
type Trace struct {
	mu     sync.Mutex
	events []TraceEvent
}

// NewTrace creates an empty trace.
func NewTrace() *Trace {
	return &Trace{}
}

func (t *Trace) add(e TraceEvent) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

// Events returns a copy of the recorded events.
func (t *Trace) Events() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}

// MarshalIndent renders the trace as indented JSON for golden comparison.
func (t *Trace) MarshalIndent() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.MarshalIndent(t.events, "", "  ")
}
