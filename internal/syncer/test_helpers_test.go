package syncer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roadbook/roadbook/internal/localstate"
	"github.com/roadbook/roadbook/internal/mutation"
	"github.com/roadbook/roadbook/internal/network"
	"github.com/roadbook/roadbook/internal/queue"
	"github.com/roadbook/roadbook/internal/remote"
	"github.com/roadbook/roadbook/internal/testutil"
)

// scriptedStore wraps a MemStore with per-primitive failure queues so tests
// can script exact failure sequences.
type scriptedStore struct {
	*remote.MemStore

	mu       sync.Mutex
	failures map[string][]error
}

func newScriptedStore(opts ...remote.MemOption) *scriptedStore {
	return &scriptedStore{
		MemStore: remote.NewMemStore(opts...),
		failures: make(map[string][]error),
	}
}

// failNext queues errors for an op ("insert", "fetch", "merge_fields",
// "delete", "array_union", "array_remove", "list"); each call to that op
// pops one until the queue empties.
func (s *scriptedStore) failNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

func (s *scriptedStore) pop(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.failures[op]
	if len(queued) == 0 {
		return nil
	}
	err := queued[0]
	s.failures[op] = queued[1:]
	return err
}

func (s *scriptedStore) Insert(ctx context.Context, doc remote.Doc) error {
	if err := s.pop("insert"); err != nil {
		return err
	}
	return s.MemStore.Insert(ctx, doc)
}

func (s *scriptedStore) Fetch(ctx context.Context, collection, id string) (remote.Doc, error) {
	if err := s.pop("fetch"); err != nil {
		return remote.Doc{}, err
	}
	return s.MemStore.Fetch(ctx, collection, id)
}

func (s *scriptedStore) MergeFields(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := s.pop("merge_fields"); err != nil {
		return err
	}
	return s.MemStore.MergeFields(ctx, collection, id, fields)
}

func (s *scriptedStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.pop("delete"); err != nil {
		return err
	}
	return s.MemStore.Delete(ctx, collection, id)
}

func (s *scriptedStore) ArrayUnion(ctx context.Context, collection, id, field string, members []string) error {
	if err := s.pop("array_union"); err != nil {
		return err
	}
	return s.MemStore.ArrayUnion(ctx, collection, id, field, members)
}

func (s *scriptedStore) ArrayRemove(ctx context.Context, collection, id, field string, members []string) error {
	if err := s.pop("array_remove"); err != nil {
		return err
	}
	return s.MemStore.ArrayRemove(ctx, collection, id, field, members)
}

func (s *scriptedStore) List(ctx context.Context, collection, orderField string) ([]remote.Doc, error) {
	if err := s.pop("list"); err != nil {
		return nil, err
	}
	return s.MemStore.List(ctx, collection, orderField)
}

// serverClock returns a MemStore clock ticking 1ms per stamp from base.
func serverClock(base int64) func() int64 {
	t := base
	return func() int64 {
		t++
		return t
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires a Manager with scripted collaborators.
type fixture struct {
	queue     *queue.Queue
	store     *scriptedStore
	local     *localstate.Memory
	source    *network.Switch
	scheduler *testutil.VirtualScheduler
	trace     *Trace
	mgr       *Manager
}

// newFixture opens a fresh durable queue, seeds the given mutations, and
// builds a Manager. The manager's clock is pinned to clockMS.
func newFixture(t *testing.T, online bool, clockMS int64, store *scriptedStore, seed ...mutation.Mutation) *fixture {
	t.Helper()
	ctx := context.Background()

	q, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	for _, m := range seed {
		require.NoError(t, q.Enqueue(ctx, m))
	}

	if store == nil {
		store = newScriptedStore(remote.WithServerClock(serverClock(0)))
	}
	local := localstate.NewMemory()
	source := network.NewSwitch(online)
	scheduler := testutil.NewVirtualScheduler()
	trace := NewTrace()

	mgr, err := New(ctx, q,
		remote.NewExecutor(store),
		NewResolver(store, local, quietLogger()),
		source, scheduler,
		WithLogger(quietLogger()),
		WithClock(func() int64 { return clockMS }),
		WithTrace(trace),
	)
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	return &fixture{
		queue:     q,
		store:     store,
		local:     local,
		source:    source,
		scheduler: scheduler,
		trace:     trace,
		mgr:       mgr,
	}
}

// dispatched returns the mutation ids of dispatch events, in order.
func (f *fixture) dispatched() []string {
	var out []string
	for _, e := range f.trace.Events() {
		if e.Action == "dispatch" {
			out = append(out, e.MutationID)
		}
	}
	return out
}

func (f *fixture) queueLen(t *testing.T) int {
	t.Helper()
	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	return n
}

// Fixed-id mutation builders for deterministic traces.

func updateMutation(id string, createdAt int64) mutation.Mutation {
	return mutation.Mutation{
		ID:        id,
		Kind:      mutation.KindUpdateEntityFields,
		CreatedAt: createdAt,
		UpdateEntityFields: &mutation.UpdateEntityFieldsPayload{
			Collection: "trips",
			EntityID:   "trip-1",
			Fields:     map[string]any{"title": "Lisbon long weekend"},
		},
	}
}

func addItemMutation(id string, createdAt int64) mutation.Mutation {
	return mutation.Mutation{
		ID:        id,
		Kind:      mutation.KindAddListItem,
		CreatedAt: createdAt,
		AddListItem: &mutation.AddListItemPayload{
			Collection: "itinerary",
			ItemID:     "item-" + id,
			Fields:     map[string]any{"title": "Tram 28"},
			OrderKey:   1,
		},
	}
}

func membershipMutation(id string, createdAt int64) mutation.Mutation {
	return mutation.Mutation{
		ID:        id,
		Kind:      mutation.KindSetMembershipChange,
		CreatedAt: createdAt,
		SetMembership: &mutation.SetMembershipPayload{
			Collection: "trips",
			EntityID:   "trip-1",
			Field:      "collaborators",
			Op:         mutation.MembershipUnion,
			Members:    []string{"user-b"},
		},
	}
}
