package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadbook/roadbook/internal/mutation"
)

func TestExecutor_AddListItem(t *testing.T) {
	s := NewMemStore(WithServerClock(testClock(0)))
	x := NewExecutor(s)
	ctx := context.Background()

	m := mutation.NewAddListItem(mutation.AddListItemPayload{
		Collection: "itinerary",
		ItemID:     "item-1",
		Fields:     map[string]any{"title": "Louvre"},
		OrderKey:   1.5,
	}, 100)

	require.NoError(t, x.Apply(ctx, m))

	doc, err := s.Fetch(ctx, "itinerary", "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Louvre", doc.Fields["title"])
	assert.Equal(t, 1.5, doc.Fields[OrderField])
	assert.NotZero(t, doc.CreatedAt, "server stamps creation time")
}

func TestExecutor_UpdateEntityFields(t *testing.T) {
	s := NewMemStore(WithServerClock(testClock(0)))
	x := NewExecutor(s)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, Doc{
		Collection: "trips", ID: "trip-1",
		Fields: map[string]any{"title": "Paris", "days": 3},
	}))

	m := mutation.NewUpdateEntityFields(mutation.UpdateEntityFieldsPayload{
		Collection: "trips",
		EntityID:   "trip-1",
		Fields:     map[string]any{"title": "Paris in spring"},
	}, 100)
	require.NoError(t, x.Apply(ctx, m))

	doc, err := s.Fetch(ctx, "trips", "trip-1")
	require.NoError(t, err)
	assert.Equal(t, "Paris in spring", doc.Fields["title"])
	assert.Equal(t, 3, doc.Fields["days"], "merge, not replace")
}

func TestExecutor_RemoveListItem(t *testing.T) {
	s := NewMemStore()
	x := NewExecutor(s)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, Doc{Collection: "itinerary", ID: "item-1", Fields: map[string]any{}}))

	m := mutation.NewRemoveListItem(mutation.RemoveListItemPayload{
		Collection: "itinerary",
		ItemID:     "item-1",
	}, 100)
	require.NoError(t, x.Apply(ctx, m))

	_, err := s.Fetch(ctx, "itinerary", "item-1")
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestExecutor_SetMembershipChange(t *testing.T) {
	s := NewMemStore()
	x := NewExecutor(s)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, Doc{
		Collection: "trips", ID: "trip-1",
		Fields: map[string]any{"collaborators": []string{"a"}},
	}))

	union := mutation.NewSetMembershipChange(mutation.SetMembershipPayload{
		Collection: "trips", EntityID: "trip-1", Field: "collaborators",
		Op: mutation.MembershipUnion, Members: []string{"b"},
	}, 100)
	require.NoError(t, x.Apply(ctx, union))

	remove := mutation.NewSetMembershipChange(mutation.SetMembershipPayload{
		Collection: "trips", EntityID: "trip-1", Field: "collaborators",
		Op: mutation.MembershipRemove, Members: []string{"a"},
	}, 101)
	require.NoError(t, x.Apply(ctx, remove))

	doc, err := s.Fetch(ctx, "trips", "trip-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, doc.Fields["collaborators"])
}

func TestExecutor_UnknownKind(t *testing.T) {
	x := NewExecutor(NewMemStore())
	err := x.Apply(context.Background(), mutation.Mutation{ID: "m-1", Kind: mutation.Kind(99)})
	assert.Equal(t, KindInvalidArgument, Classify(err))
}
