package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and the dev server.
//
// Server timestamps come from an injectable clock so tests can pin them.
// All operations are safe for concurrent use.
type MemStore struct {
	mu   sync.Mutex
	docs map[string]map[string]Doc // collection -> id -> doc
	now  func() int64
}

// MemOption configures a MemStore.
type MemOption func(*MemStore)

// WithServerClock overrides the server timestamp source (ms since epoch).
func WithServerClock(now func() int64) MemOption {
	return func(s *MemStore) {
		s.now = now
	}
}

// NewMemStore creates an empty MemStore stamping wall-clock time.
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		docs: make(map[string]map[string]Doc),
		now:  func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert writes a document, stamping creation and modification time.
// Re-inserting an existing identifier overwrites the fields but keeps the
// original creation time, so a retried insert after a lost acknowledgement
// converges to the same state.
func (s *MemStore) Insert(_ context.Context, doc Doc) error {
	if doc.Collection == "" || doc.ID == "" {
		return NewError(KindInvalidArgument, "insert", "collection and id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := Doc{
		Collection: doc.Collection,
		ID:         doc.ID,
		Fields:     cloneFields(doc.Fields),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	coll := s.docs[doc.Collection]
	if coll == nil {
		coll = make(map[string]Doc)
		s.docs[doc.Collection] = coll
	}
	if prev, ok := coll[doc.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	coll[doc.ID] = stored
	return nil
}

// Fetch reads one document.
func (s *MemStore) Fetch(_ context.Context, collection, id string) (Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return Doc{}, NewError(KindNotFound, "fetch", fmt.Sprintf("%s/%s not found", collection, id))
	}
	doc.Fields = cloneFields(doc.Fields)
	return doc, nil
}

// MergeFields merges the named fields into an existing document and stamps
// its modification time.
func (s *MemStore) MergeFields(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return NewError(KindNotFound, "merge_fields", fmt.Sprintf("%s/%s not found", collection, id))
	}
	merged := cloneFields(doc.Fields)
	if merged == nil {
		merged = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		merged[k] = cloneValue(v)
	}
	doc.Fields = merged
	doc.UpdatedAt = s.now()
	s.docs[collection][id] = doc
	return nil
}

// Delete removes a document. Deleting an absent document succeeds, so a
// retried delete after a lost acknowledgement converges.
func (s *MemStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if coll, ok := s.docs[collection]; ok {
		delete(coll, id)
	}
	return nil
}

// ArrayUnion adds members to a set-valued field, ignoring duplicates.
func (s *MemStore) ArrayUnion(_ context.Context, collection, id, field string, members []string) error {
	return s.mutateSet("array_union", collection, id, field, func(set []string) []string {
		for _, m := range members {
			if !containsString(set, m) {
				set = append(set, m)
			}
		}
		return set
	})
}

// ArrayRemove removes members from a set-valued field, ignoring absentees.
func (s *MemStore) ArrayRemove(_ context.Context, collection, id, field string, members []string) error {
	return s.mutateSet("array_remove", collection, id, field, func(set []string) []string {
		out := set[:0]
		for _, v := range set {
			if !containsString(members, v) {
				out = append(out, v)
			}
		}
		return out
	})
}

func (s *MemStore) mutateSet(op, collection, id, field string, apply func([]string) []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return NewError(KindNotFound, op, fmt.Sprintf("%s/%s not found", collection, id))
	}

	set, err := stringSet(doc.Fields[field])
	if err != nil {
		return WrapError(KindFailedPrecondition, op, fmt.Sprintf("field %q is not a string array", field), err)
	}

	fields := cloneFields(doc.Fields)
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields[field] = apply(set)
	doc.Fields = fields
	doc.UpdatedAt = s.now()
	s.docs[collection][id] = doc
	return nil
}

// List returns every document in a collection ordered by the named numeric
// field ascending. Documents without the field sort last, then by identifier
// so the order is total.
func (s *MemStore) List(_ context.Context, collection, orderField string) ([]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.docs[collection]
	out := make([]Doc, 0, len(coll))
	for _, doc := range coll {
		doc.Fields = cloneFields(doc.Fields)
		out = append(out, doc)
	}
	sort.Slice(out, func(a, b int) bool {
		ka, aok := orderValue(out[a].Fields, orderField)
		kb, bok := orderValue(out[b].Fields, orderField)
		switch {
		case aok && bok && ka != kb:
			return ka < kb
		case aok != bok:
			return aok
		default:
			return out[a].ID < out[b].ID
		}
	})
	return out, nil
}

func orderValue(fields map[string]any, field string) (float64, bool) {
	switch v := fields[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func stringSet(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("array element %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value %v is not an array", v)
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneFields(val)
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
