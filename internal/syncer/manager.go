package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roadbook/roadbook/internal/mutation"
	"github.com/roadbook/roadbook/internal/network"
	"github.com/roadbook/roadbook/internal/queue"
	"github.com/roadbook/roadbook/internal/remote"
	"github.com/roadbook/roadbook/internal/sched"
)

// Manager owns the offline mutation queue, the network-aware status machine,
// and the retry scheduler.
//
// Control flow: a local edit becomes a mutation, applied optimistically by
// the caller, then handed to Enqueue. When the network allows, ProcessQueue
// drains the queue strictly in insertion order, one mutation at a time. A
// successful dispatch removes the mutation; a failed one goes to the
// Resolver, whose verdict either removes it (accepted remote or rolled back)
// or leaves it queued for a backoff retry. A retrying mutation blocks
// everything enqueued after it — ordering is preserved at the cost of
// head-of-line blocking.
//
// At most one drain pass is active at a time, enforced by the draining flag.
// An offline signal cancels any pending retry timer so no remote calls are
// wasted while unreachable. A mutation, once enqueued, always ends in
// success, terminal rollback, or remote acceptance — never silently dropped.
//
// All collaborators are constructor-injected; the Manager holds no global
// state.
type Manager struct {
	queue     *queue.Queue
	exec      *remote.Executor
	resolver  *Resolver
	source    network.Source
	scheduler sched.Scheduler
	logger    *slog.Logger
	trace     *Trace
	now       func() int64 // client clock, ms since epoch
	baseDelay time.Duration
	maxDelay  time.Duration

	mu          sync.Mutex
	status      Status
	message     string
	notice      string // sticky rollback notice, cleared when a drain begins
	lastSyncAt  int64
	online      bool
	draining    bool
	retryCancel sched.Cancel
	unsubscribe func()
	closed      bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithBackoff overrides the retry backoff bounds.
func WithBackoff(base, max time.Duration) Option {
	return func(m *Manager) {
		m.baseDelay = base
		m.maxDelay = max
	}
}

// WithClock overrides the client clock (ms since epoch). Tests pin it.
func WithClock(now func() int64) Option {
	return func(m *Manager) { m.now = now }
}

// WithTrace attaches an event trace recorder.
func WithTrace(t *Trace) Option {
	return func(m *Manager) { m.trace = t }
}

// New creates a Manager, restores persisted sync state, computes the initial
// status from reachability and queue contents, and subscribes to network
// changes. It does not start draining; call ProcessQueue (or wait for a
// network signal) to begin.
func New(
	ctx context.Context,
	q *queue.Queue,
	exec *remote.Executor,
	resolver *Resolver,
	source network.Source,
	scheduler sched.Scheduler,
	opts ...Option,
) (*Manager, error) {
	m := &Manager{
		queue:     q,
		exec:      exec,
		resolver:  resolver,
		source:    source,
		scheduler: scheduler,
		logger:    slog.Default(),
		now:       func() int64 { return time.Now().UnixMilli() },
		baseDelay: DefaultBaseDelay,
		maxDelay:  DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(m)
	}

	lastSync, err := q.LoadLastSyncAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore sync state: %w", err)
	}
	m.lastSyncAt = lastSync

	msg, err := q.LoadMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore sync state: %w", err)
	}
	m.message = msg

	pending, err := q.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect queue: %w", err)
	}

	m.online = source.Online()
	m.mu.Lock()
	switch {
	case !m.online:
		m.setStatusLocked(ctx, StatusOffline, "offline, changes saved locally")
	case pending > 0:
		m.setStatusLocked(ctx, StatusPendingWrites, fmt.Sprintf("%d changes waiting to sync", pending))
	default:
		m.setStatusLocked(ctx, StatusIdle, "up to date")
	}
	m.mu.Unlock()

	m.unsubscribe = source.Subscribe(m.handleNetworkChange)
	return m, nil
}

// Close unsubscribes from network signals and cancels any pending retry.
// It does not close the queue; the queue's owner does.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cancelRetryLocked()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Status returns the current sync status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Message returns the human-readable status string. A rollback notice takes
// precedence until the next drain pass begins.
func (m *Manager) Message() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notice != "" {
		return m.notice
	}
	return m.message
}

// LastSyncAt returns the time of the last successful remote write
// (ms since epoch), or 0 if none yet.
func (m *Manager) LastSyncAt() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSyncAt
}

// Enqueue accepts one mutation for synchronization.
//
// The caller has already applied the edit optimistically to local state.
// When the status is Idle and the network is reachable, the mutation is
// dispatched immediately (it still passes through the durable queue, so a
// crash between enqueue and acknowledgement cannot lose it); otherwise it
// queues and the status moves to PendingWrites unless a drain is running.
func (m *Manager) Enqueue(ctx context.Context, mut mutation.Mutation) error {
	if mut.CreatedAt == 0 {
		mut.CreatedAt = m.now()
	}
	if err := mut.Validate(); err != nil {
		return err
	}
	if err := m.queue.Enqueue(ctx, mut); err != nil {
		return err
	}
	m.trace.add(TraceEvent{Action: "enqueue", MutationID: mut.ID, Kind: mut.Kind.String()})

	m.mu.Lock()
	fastPath := m.online && m.status == StatusIdle
	// Offline edits park in PendingWrites. A running drain (Syncing) will
	// pick the new mutation up on its next snapshot, and an Error state
	// keeps showing "retrying" until its timer fires.
	if m.status == StatusOffline {
		m.setStatusLocked(ctx, StatusPendingWrites, "changes waiting to sync")
	}
	m.mu.Unlock()

	if fastPath {
		m.ProcessQueue(ctx)
	}
	return nil
}

// ProcessQueue runs one drain pass. A request while a pass is active is a
// no-op, as is a request while offline.
func (m *Manager) ProcessQueue(ctx context.Context) {
	m.mu.Lock()
	if m.draining || m.closed || !m.online {
		m.mu.Unlock()
		return
	}
	m.draining = true
	m.notice = ""
	m.cancelRetryLocked()
	m.setStatusLocked(ctx, StatusSyncing, "syncing changes")
	m.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("drain pass panicked", "panic", rec)
			m.mu.Lock()
			m.setStatusLocked(ctx, StatusError, "sync failed unexpectedly")
			m.mu.Unlock()
		}
		m.mu.Lock()
		m.draining = false
		m.mu.Unlock()
	}()

	m.drain(ctx)
}

// drain dispatches queued mutations strictly in insertion order until the
// queue empties, the pass must stop for a retry, or the network drops.
func (m *Manager) drain(ctx context.Context) {
	for {
		m.mu.Lock()
		online := m.online
		m.mu.Unlock()
		if !online {
			// The offline signal already set the status and cancelled any
			// retry; just stop dispatching.
			return
		}

		snapshot, err := m.queue.Snapshot(ctx)
		if err != nil {
			m.logger.Error("queue snapshot failed", "error", err)
			m.mu.Lock()
			m.setStatusLocked(ctx, StatusError, "could not read pending changes")
			m.mu.Unlock()
			return
		}
		if len(snapshot) == 0 {
			m.mu.Lock()
			m.setStatusLocked(ctx, StatusIdle, "up to date")
			m.mu.Unlock()
			return
		}

		if !m.processOne(ctx, snapshot[0]) {
			return
		}
	}
}

// processOne dispatches a single mutation and settles its outcome. It
// returns false when the drain pass must stop (a retry was scheduled or
// queue bookkeeping failed).
func (m *Manager) processOne(ctx context.Context, head mutation.Mutation) bool {
	m.trace.add(TraceEvent{Action: "dispatch", MutationID: head.ID, Kind: head.Kind.String()})

	err := m.exec.Apply(ctx, head)
	if err == nil {
		if rmErr := m.queue.RemoveByID(ctx, head.ID); rmErr != nil {
			m.logger.Error("remove synced mutation failed", "mutation", head.ID, "error", rmErr)
			m.mu.Lock()
			m.setStatusLocked(ctx, StatusError, "could not update pending changes")
			m.mu.Unlock()
			return false
		}
		m.mu.Lock()
		m.lastSyncAt = m.now()
		if saveErr := m.queue.SaveLastSyncAt(ctx, m.lastSyncAt); saveErr != nil {
			m.logger.Warn("persist last sync time failed", "error", saveErr)
		}
		m.mu.Unlock()
		m.trace.add(TraceEvent{Action: "success", MutationID: head.ID})
		return true
	}

	kind := remote.Classify(err)
	m.logger.Warn("mutation dispatch failed",
		"mutation", head.ID, "kind", string(kind), "error", err)

	if kind.Terminal() {
		res := m.resolver.Resolve(ctx, head, err)
		// Terminal failures are never retried: the mutation leaves the
		// queue regardless of the resolver's verdict.
		if rmErr := m.queue.RemoveByID(ctx, head.ID); rmErr != nil {
			m.logger.Error("remove failed mutation", "mutation", head.ID, "error", rmErr)
		}
		m.settleResolution(ctx, head, res)
		return true
	}

	res := m.resolver.Resolve(ctx, head, err)
	if res.Resolved {
		if rmErr := m.queue.RemoveByID(ctx, head.ID); rmErr != nil {
			m.logger.Error("remove resolved mutation", "mutation", head.ID, "error", rmErr)
		}
		m.settleResolution(ctx, head, res)
		return true
	}

	// Unresolved: keep the mutation, back off, and stop the pass so nothing
	// enqueued after it can overtake.
	retries, rErr := m.queue.IncrementRetry(ctx, head.ID)
	if rErr != nil {
		m.logger.Error("increment retry failed", "mutation", head.ID, "error", rErr)
		m.mu.Lock()
		m.setStatusLocked(ctx, StatusError, "could not update pending changes")
		m.mu.Unlock()
		return false
	}
	delay := backoffDelay(m.baseDelay, m.maxDelay, retries)
	m.trace.add(TraceEvent{Action: "retry_scheduled", MutationID: head.ID, Detail: delay.String()})

	m.mu.Lock()
	m.setStatusLocked(ctx, StatusError, fmt.Sprintf("sync failed, retrying in %s", delay))
	m.retryCancel = m.scheduler.Schedule(delay, func() {
		m.ProcessQueue(context.Background())
	})
	m.mu.Unlock()
	return false
}

// settleResolution records a resolver verdict that removed the mutation.
func (m *Manager) settleResolution(ctx context.Context, head mutation.Mutation, res Resolution) {
	if res.RolledBack {
		m.trace.add(TraceEvent{Action: "rollback", MutationID: head.ID, Detail: res.Reason})
		m.mu.Lock()
		m.notice = "a change could not be saved and was undone"
		if err := m.queue.SaveMessage(ctx, m.notice); err != nil {
			m.logger.Warn("persist status message failed", "error", err)
		}
		m.mu.Unlock()
		return
	}
	m.trace.add(TraceEvent{Action: "accept_remote", MutationID: head.ID, Detail: res.Reason})
}

// handleNetworkChange is the only source of asynchronous transitions.
func (m *Manager) handleNetworkChange(online bool) {
	ctx := context.Background()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.online = online

	if !online {
		m.cancelRetryLocked()
		m.setStatusLocked(ctx, StatusOffline, "offline, changes saved locally")
		m.mu.Unlock()
		return
	}

	pending, err := m.queue.Len(ctx)
	if err != nil {
		m.logger.Error("inspect queue on reconnect failed", "error", err)
		m.setStatusLocked(ctx, StatusError, "could not read pending changes")
		m.mu.Unlock()
		return
	}
	if pending == 0 {
		m.setStatusLocked(ctx, StatusIdle, "up to date")
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.ProcessQueue(ctx)
}

// setStatusLocked transitions the status machine and persists the new value.
// Callers hold m.mu.
func (m *Manager) setStatusLocked(ctx context.Context, s Status, message string) {
	if m.status != s {
		m.logger.Debug("sync status changed", "from", string(m.status), "to", string(s))
		m.status = s
		if err := m.queue.SaveStatus(ctx, string(s)); err != nil {
			m.logger.Warn("persist status failed", "error", err)
		}
		m.trace.add(TraceEvent{Action: "status", Detail: string(s)})
	}
	if message != "" && message != m.message {
		m.message = message
		if err := m.queue.SaveMessage(ctx, message); err != nil {
			m.logger.Warn("persist status message failed", "error", err)
		}
	}
}

// cancelRetryLocked stops any pending retry timer. Callers hold m.mu.
func (m *Manager) cancelRetryLocked() {
	if m.retryCancel != nil {
		m.retryCancel()
		m.retryCancel = nil
	}
}
