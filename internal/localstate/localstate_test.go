package localstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadbook/roadbook/internal/remote"
)

func TestMemory_ApplyRemoteAndGet(t *testing.T) {
	m := NewMemory()

	m.ApplyRemote(remote.Doc{Collection: "trips", ID: "t-1", Fields: map[string]any{"title": "Paris"}})

	doc, ok := m.Get("trips", "t-1")
	require.True(t, ok)
	assert.Equal(t, "Paris", doc.Fields["title"])

	// Overwrite with a newer remote version.
	m.ApplyRemote(remote.Doc{Collection: "trips", ID: "t-1", Fields: map[string]any{"title": "Paris in spring"}})
	doc, _ = m.Get("trips", "t-1")
	assert.Equal(t, "Paris in spring", doc.Fields["title"])
}

func TestMemory_Remove(t *testing.T) {
	m := NewMemory()

	m.ApplyRemote(remote.Doc{Collection: "itinerary", ID: "i-1"})
	m.ApplyRemote(remote.Doc{Collection: "itinerary", ID: "i-2"})
	m.Remove("itinerary", "i-1")

	_, ok := m.Get("itinerary", "i-1")
	assert.False(t, ok)

	list := m.List("itinerary")
	require.Len(t, list, 1)
	assert.Equal(t, "i-2", list[0].ID)
}

func TestMemory_Remove_Absent(t *testing.T) {
	m := NewMemory()
	m.Remove("itinerary", "ghost") // must not panic
	assert.Empty(t, m.List("itinerary"))
}

func TestMemory_ReplaceList(t *testing.T) {
	m := NewMemory()

	m.ApplyRemote(remote.Doc{Collection: "itinerary", ID: "stale"})
	m.ReplaceList("itinerary", []remote.Doc{
		{Collection: "itinerary", ID: "i-2"},
		{Collection: "itinerary", ID: "i-1"},
	})

	_, ok := m.Get("itinerary", "stale")
	assert.False(t, ok, "replace drops entries absent from the remote snapshot")

	list := m.List("itinerary")
	require.Len(t, list, 2)
	assert.Equal(t, "i-2", list[0].ID, "remote snapshot order preserved")
	assert.Equal(t, "i-1", list[1].ID)
}
