// Package remote defines the backing-store collaborator boundary: the narrow
// set of document primitives the sync engine needs, a closed error taxonomy
// shared by the sync manager and the conflict resolver, and the executor that
// maps each mutation kind onto exactly one primitive.
//
// Two Store implementations live here: MemStore (tests, dev server) and
// HTTPStore (the dev server's REST API).
package remote

import "context"

// OrderField is the document field carrying the fractional order key for
// items in an ordered collection.
const OrderField = "order"

// Doc is a stored document. CreatedAt and UpdatedAt are server-stamped
// milliseconds since epoch; clients never set them.
type Doc struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// LastModified returns the authoritative timestamp for Last-Write-Wins
// comparisons: the modification time when present, else the creation time.
func (d Doc) LastModified() int64 {
	if d.UpdatedAt != 0 {
		return d.UpdatedAt
	}
	return d.CreatedAt
}

// OrderKey returns the document's fractional order key, or false if the
// order field is missing or not numeric.
func (d Doc) OrderKey() (float64, bool) {
	switch v := d.Fields[OrderField].(type) {
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

// Store is the remote backing store collaborator.
//
// Implementations stamp CreatedAt/UpdatedAt server-side and report failures
// as *StoreError so callers can classify them (see errors.go). All writes are
// point operations; ArrayUnion and ArrayRemove are atomic set operations on
// a named array field, never a full-array overwrite.
type Store interface {
	// Insert writes a new document, stamping creation and modification time.
	Insert(ctx context.Context, doc Doc) error

	// Fetch reads one document by identifier.
	Fetch(ctx context.Context, collection, id string) (Doc, error)

	// MergeFields merges only the named fields into an existing document and
	// stamps its modification time. Unnamed fields are untouched.
	MergeFields(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes one document by identifier.
	Delete(ctx context.Context, collection, id string) error

	// ArrayUnion adds members to a set-valued field, ignoring duplicates.
	ArrayUnion(ctx context.Context, collection, id, field string, members []string) error

	// ArrayRemove removes members from a set-valued field, ignoring absentees.
	ArrayRemove(ctx context.Context, collection, id, field string, members []string) error

	// List returns every document in a collection ordered by the named
	// numeric field ascending.
	List(ctx context.Context, collection, orderField string) ([]Doc, error)
}
