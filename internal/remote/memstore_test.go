package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock returns a server clock that ticks 1ms per call, starting at base.
func testClock(base int64) func() int64 {
	t := base
	return func() int64 {
		t++
		return t
	}
}

func TestMemStore_InsertFetch(t *testing.T) {
	s := NewMemStore(WithServerClock(testClock(1000)))
	ctx := context.Background()

	err := s.Insert(ctx, Doc{
		Collection: "itinerary",
		ID:         "item-1",
		Fields:     map[string]any{"title": "Louvre", OrderField: 1.0},
	})
	require.NoError(t, err)

	doc, err := s.Fetch(ctx, "itinerary", "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Louvre", doc.Fields["title"])
	assert.Equal(t, int64(1001), doc.CreatedAt)
	assert.Equal(t, int64(1001), doc.UpdatedAt)

	key, ok := doc.OrderKey()
	require.True(t, ok)
	assert.Equal(t, 1.0, key)
}

func TestMemStore_ReinsertKeepsCreatedAt(t *testing.T) {
	s := NewMemStore(WithServerClock(testClock(0)))
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, Doc{Collection: "c", ID: "x", Fields: map[string]any{"v": 1}}))
	require.NoError(t, s.Insert(ctx, Doc{Collection: "c", ID: "x", Fields: map[string]any{"v": 2}}))

	doc, err := s.Fetch(ctx, "c", "x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.CreatedAt)
	assert.Equal(t, int64(2), doc.UpdatedAt)
	assert.Equal(t, 2, doc.Fields["v"])
}

func TestMemStore_Fetch_NotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.Fetch(context.Background(), "trips", "nope")
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestMemStore_MergeFields(t *testing.T) {
	s := NewMemStore(WithServerClock(testClock(0)))
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, Doc{
		Collection: "trips",
		ID:         "trip-1",
		Fields:     map[string]any{"title": "Paris", "days": 3},
	}))

	require.NoError(t, s.MergeFields(ctx, "trips", "trip-1", map[string]any{"days": 5}))

	doc, err := s.Fetch(ctx, "trips", "trip-1")
	require.NoError(t, err)
	assert.Equal(t, "Paris", doc.Fields["title"], "unnamed fields untouched")
	assert.Equal(t, 5, doc.Fields["days"])
	assert.Greater(t, doc.UpdatedAt, doc.CreatedAt)
}

func TestMemStore_MergeFields_NotFound(t *testing.T) {
	s := NewMemStore()
	err := s.MergeFields(context.Background(), "trips", "nope", map[string]any{"x": 1})
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestMemStore_Delete_Idempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, Doc{Collection: "itinerary", ID: "item-1", Fields: map[string]any{}}))
	require.NoError(t, s.Delete(ctx, "itinerary", "item-1"))
	require.NoError(t, s.Delete(ctx, "itinerary", "item-1"), "second delete converges")

	_, err := s.Fetch(ctx, "itinerary", "item-1")
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestMemStore_ArrayUnion_IdempotentAndCommutative(t *testing.T) {
	ctx := context.Background()

	members := func(s *MemStore) []string {
		doc, err := s.Fetch(ctx, "trips", "trip-1")
		require.NoError(t, err)
		set, err := stringSet(doc.Fields["collaborators"])
		require.NoError(t, err)
		return set
	}

	newTrip := func() *MemStore {
		s := NewMemStore(WithServerClock(testClock(0)))
		require.NoError(t, s.Insert(ctx, Doc{Collection: "trips", ID: "trip-1", Fields: map[string]any{}}))
		return s
	}

	// union(S, x) twice equals once
	s := newTrip()
	require.NoError(t, s.ArrayUnion(ctx, "trips", "trip-1", "collaborators", []string{"a"}))
	require.NoError(t, s.ArrayUnion(ctx, "trips", "trip-1", "collaborators", []string{"a"}))
	assert.Equal(t, []string{"a"}, members(s))

	// union x then y equals union y then x
	s1 := newTrip()
	require.NoError(t, s1.ArrayUnion(ctx, "trips", "trip-1", "collaborators", []string{"a"}))
	require.NoError(t, s1.ArrayUnion(ctx, "trips", "trip-1", "collaborators", []string{"b"}))

	s2 := newTrip()
	require.NoError(t, s2.ArrayUnion(ctx, "trips", "trip-1", "collaborators", []string{"b"}))
	require.NoError(t, s2.ArrayUnion(ctx, "trips", "trip-1", "collaborators", []string{"a"}))

	assert.ElementsMatch(t, members(s1), members(s2))
}

func TestMemStore_ArrayRemove(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, Doc{
		Collection: "trips",
		ID:         "trip-1",
		Fields:     map[string]any{"collaborators": []string{"a", "b", "c"}},
	}))

	require.NoError(t, s.ArrayRemove(ctx, "trips", "trip-1", "collaborators", []string{"b", "zz"}))

	doc, err := s.Fetch(ctx, "trips", "trip-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, doc.Fields["collaborators"])
}

func TestMemStore_ArrayOp_NotFound(t *testing.T) {
	s := NewMemStore()
	err := s.ArrayUnion(context.Background(), "trips", "nope", "collaborators", []string{"a"})
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestMemStore_List_OrderedByKey(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, Doc{Collection: "itinerary", ID: "b", Fields: map[string]any{OrderField: 2.0}}))
	require.NoError(t, s.Insert(ctx, Doc{Collection: "itinerary", ID: "a", Fields: map[string]any{OrderField: 0.5}}))
	require.NoError(t, s.Insert(ctx, Doc{Collection: "itinerary", ID: "c", Fields: map[string]any{OrderField: 1.0}}))
	require.NoError(t, s.Insert(ctx, Doc{Collection: "other", ID: "x", Fields: map[string]any{OrderField: 0.0}}))

	docs, err := s.List(ctx, "itinerary", OrderField)
	require.NoError(t, err)

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"a", "c", "b"}, ids)
}

func TestMemStore_FetchReturnsCopy(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, Doc{Collection: "c", ID: "x", Fields: map[string]any{"tags": []string{"t1"}}}))

	doc, err := s.Fetch(ctx, "c", "x")
	require.NoError(t, err)
	doc.Fields["tags"].([]string)[0] = "mutated"

	again, err := s.Fetch(ctx, "c", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, again.Fields["tags"])
}

func TestDoc_LastModified(t *testing.T) {
	assert.Equal(t, int64(200), Doc{CreatedAt: 100, UpdatedAt: 200}.LastModified())
	assert.Equal(t, int64(100), Doc{CreatedAt: 100}.LastModified(), "falls back to created")
}
