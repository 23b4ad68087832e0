// Package localstate holds the client's optimistic view of shared trip data.
//
// The surrounding application writes optimistic edits here before they are
// confirmed remotely; the conflict resolver overwrites or removes entries
// when a write is rejected. This package is the rollback target, nothing
// more — queries for rendering and so on live with the application.
package localstate

import (
	"sync"

	"github.com/roadbook/roadbook/internal/remote"
)

// Store is the local cache the resolver rolls back into.
type Store interface {
	// ApplyRemote overwrites the local copy of a document with the remote
	// authoritative version.
	ApplyRemote(doc remote.Doc)

	// Remove drops a local document entirely (optimistic entity whose remote
	// counterpart does not exist).
	Remove(collection, id string)

	// ReplaceList replaces the full local contents of a collection with the
	// remote snapshot, in the given order.
	ReplaceList(collection string, docs []remote.Doc)
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]map[string]remote.Doc
	order map[string][]string // collection -> ids in list order
}

// NewMemory creates an empty local cache.
func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string]map[string]remote.Doc),
		order: make(map[string][]string),
	}
}

// ApplyRemote implements Store.
func (m *Memory) ApplyRemote(doc remote.Doc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.docs[doc.Collection]
	if coll == nil {
		coll = make(map[string]remote.Doc)
		m.docs[doc.Collection] = coll
	}
	if _, exists := coll[doc.ID]; !exists {
		m.order[doc.Collection] = append(m.order[doc.Collection], doc.ID)
	}
	coll[doc.ID] = doc
}

// Remove implements Store.
func (m *Memory) Remove(collection, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if coll, ok := m.docs[collection]; ok {
		delete(coll, id)
	}
	ids := m.order[collection]
	for i, v := range ids {
		if v == id {
			m.order[collection] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// ReplaceList implements Store.
func (m *Memory) ReplaceList(collection string, docs []remote.Doc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := make(map[string]remote.Doc, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		coll[doc.ID] = doc
		ids = append(ids, doc.ID)
	}
	m.docs[collection] = coll
	m.order[collection] = ids
}

// Get returns the local copy of a document, if present.
func (m *Memory) Get(collection, id string) (remote.Doc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[collection][id]
	return doc, ok
}

// List returns the local documents of a collection in list order.
func (m *Memory) List(collection string) []remote.Doc {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.order[collection]
	out := make([]remote.Doc, 0, len(ids))
	for _, id := range ids {
		if doc, ok := m.docs[collection][id]; ok {
			out = append(out, doc)
		}
	}
	return out
}
