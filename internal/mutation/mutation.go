// Package mutation defines the unit of synchronization: a typed, queueable
// description of one local edit to shared trip data.
//
// A Mutation is a tagged union. Kind selects exactly one payload pointer;
// the others must be nil. The executor and resolver switch exhaustively on
// Kind, so adding a new kind is a compile-visible change rather than a
// runtime shape assumption.
package mutation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates the closed set of mutation types.
type Kind int

const (
	// KindAddListItem inserts a new item into an ordered list.
	KindAddListItem Kind = iota + 1
	// KindUpdateEntityFields merges named fields into an entity.
	KindUpdateEntityFields
	// KindRemoveListItem deletes a list item by identifier.
	KindRemoveListItem
	// KindSetMembershipChange adds or removes members of a set-valued field.
	KindSetMembershipChange
)

// String returns the wire/display name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAddListItem:
		return "add_list_item"
	case KindUpdateEntityFields:
		return "update_entity_fields"
	case KindRemoveListItem:
		return "remove_list_item"
	case KindSetMembershipChange:
		return "set_membership_change"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MembershipOp selects set-union or set-removal for membership changes.
type MembershipOp string

const (
	MembershipUnion  MembershipOp = "union"
	MembershipRemove MembershipOp = "remove"
)

// AddListItemPayload describes an optimistic insertion into an ordered list.
// OrderKey is the fractional index assigned at insertion time.
type AddListItemPayload struct {
	Collection string         `json:"collection"`
	ItemID     string         `json:"item_id"`
	Fields     map[string]any `json:"fields"`
	OrderKey   float64        `json:"order_key"`
}

// UpdateEntityFieldsPayload describes a field-level merge into an entity.
// Only the named fields are written; the remote store performs the merge.
type UpdateEntityFieldsPayload struct {
	Collection string         `json:"collection"`
	EntityID   string         `json:"entity_id"`
	Fields     map[string]any `json:"fields"`
}

// RemoveListItemPayload describes deletion of a list item by identifier.
type RemoveListItemPayload struct {
	Collection string `json:"collection"`
	ItemID     string `json:"item_id"`
}

// SetMembershipPayload describes an atomic set-union or set-removal on a
// named array field. Never a full-array overwrite, so concurrent membership
// changes from different actors compose.
type SetMembershipPayload struct {
	Collection string       `json:"collection"`
	EntityID   string       `json:"entity_id"`
	Field      string       `json:"field"`
	Op         MembershipOp `json:"op"`
	Members    []string     `json:"members"`
}

// Mutation is one queued local edit.
//
// Exactly one payload pointer is set, matching Kind. CreatedAt is the client
// clock in milliseconds since epoch and is the local side of Last-Write-Wins
// comparisons. RetryCount increments only when a non-terminal failure is
// retried.
type Mutation struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	CreatedAt  int64  `json:"created_at"`
	RetryCount int    `json:"retry_count,omitempty"`

	AddListItem        *AddListItemPayload        `json:"add_list_item,omitempty"`
	UpdateEntityFields *UpdateEntityFieldsPayload `json:"update_entity_fields,omitempty"`
	RemoveListItem     *RemoveListItemPayload     `json:"remove_list_item,omitempty"`
	SetMembership      *SetMembershipPayload      `json:"set_membership,omitempty"`
}

// NewAddListItem builds an AddListItem mutation with a fresh identifier.
// String fields are NFC-normalized so timestamp comparisons across devices
// are not confused by encoding variants of the same text.
func NewAddListItem(p AddListItemPayload, createdAt int64) Mutation {
	p.Fields = NormalizeFields(p.Fields)
	return Mutation{
		ID:          uuid.NewString(),
		Kind:        KindAddListItem,
		CreatedAt:   createdAt,
		AddListItem: &p,
	}
}

// NewUpdateEntityFields builds an UpdateEntityFields mutation.
func NewUpdateEntityFields(p UpdateEntityFieldsPayload, createdAt int64) Mutation {
	p.Fields = NormalizeFields(p.Fields)
	return Mutation{
		ID:                 uuid.NewString(),
		Kind:               KindUpdateEntityFields,
		CreatedAt:          createdAt,
		UpdateEntityFields: &p,
	}
}

// NewRemoveListItem builds a RemoveListItem mutation.
func NewRemoveListItem(p RemoveListItemPayload, createdAt int64) Mutation {
	return Mutation{
		ID:             uuid.NewString(),
		Kind:           KindRemoveListItem,
		CreatedAt:      createdAt,
		RemoveListItem: &p,
	}
}

// NewSetMembershipChange builds a SetMembershipChange mutation.
func NewSetMembershipChange(p SetMembershipPayload, createdAt int64) Mutation {
	p.Members = normalizeStrings(p.Members)
	return Mutation{
		ID:            uuid.NewString(),
		Kind:          KindSetMembershipChange,
		CreatedAt:     createdAt,
		SetMembership: &p,
	}
}

// TargetRef returns the collection and document identifier the mutation
// writes to. For list insertions and removals this is the item itself; for
// field merges and membership changes it is the owning entity.
func (m Mutation) TargetRef() (collection, id string) {
	switch m.Kind {
	case KindAddListItem:
		return m.AddListItem.Collection, m.AddListItem.ItemID
	case KindUpdateEntityFields:
		return m.UpdateEntityFields.Collection, m.UpdateEntityFields.EntityID
	case KindRemoveListItem:
		return m.RemoveListItem.Collection, m.RemoveListItem.ItemID
	case KindSetMembershipChange:
		return m.SetMembership.Collection, m.SetMembership.EntityID
	default:
		return "", ""
	}
}

// Validate checks that the mutation is well-formed: a known kind, a non-empty
// identifier, and exactly the payload matching the kind.
func (m Mutation) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("mutation missing id")
	}

	set := 0
	for _, p := range []bool{
		m.AddListItem != nil,
		m.UpdateEntityFields != nil,
		m.RemoveListItem != nil,
		m.SetMembership != nil,
	} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("mutation %s: expected exactly one payload, got %d", m.ID, set)
	}

	switch m.Kind {
	case KindAddListItem:
		if m.AddListItem == nil {
			return fmt.Errorf("mutation %s: kind %s without matching payload", m.ID, m.Kind)
		}
		if m.AddListItem.Collection == "" || m.AddListItem.ItemID == "" {
			return fmt.Errorf("mutation %s: add_list_item requires collection and item_id", m.ID)
		}
	case KindUpdateEntityFields:
		if m.UpdateEntityFields == nil {
			return fmt.Errorf("mutation %s: kind %s without matching payload", m.ID, m.Kind)
		}
		if m.UpdateEntityFields.Collection == "" || m.UpdateEntityFields.EntityID == "" {
			return fmt.Errorf("mutation %s: update_entity_fields requires collection and entity_id", m.ID)
		}
		if len(m.UpdateEntityFields.Fields) == 0 {
			return fmt.Errorf("mutation %s: update_entity_fields requires at least one field", m.ID)
		}
	case KindRemoveListItem:
		if m.RemoveListItem == nil {
			return fmt.Errorf("mutation %s: kind %s without matching payload", m.ID, m.Kind)
		}
		if m.RemoveListItem.Collection == "" || m.RemoveListItem.ItemID == "" {
			return fmt.Errorf("mutation %s: remove_list_item requires collection and item_id", m.ID)
		}
	case KindSetMembershipChange:
		p := m.SetMembership
		if p == nil {
			return fmt.Errorf("mutation %s: kind %s without matching payload", m.ID, m.Kind)
		}
		if p.Collection == "" || p.EntityID == "" || p.Field == "" {
			return fmt.Errorf("mutation %s: set_membership_change requires collection, entity_id and field", m.ID)
		}
		if p.Op != MembershipUnion && p.Op != MembershipRemove {
			return fmt.Errorf("mutation %s: invalid membership op %q", m.ID, p.Op)
		}
		if len(p.Members) == 0 {
			return fmt.Errorf("mutation %s: set_membership_change requires at least one member", m.ID)
		}
	default:
		return fmt.Errorf("mutation %s: unknown kind %d", m.ID, int(m.Kind))
	}
	return nil
}

// Marshal serializes the mutation to its durable JSON form.
func Marshal(m Mutation) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal mutation %s: %w", m.ID, err)
	}
	return data, nil
}

// Unmarshal restores a mutation from its durable JSON form and validates it.
func Unmarshal(data []byte) (Mutation, error) {
	var m Mutation
	if err := json.Unmarshal(data, &m); err != nil {
		return Mutation{}, fmt.Errorf("unmarshal mutation: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Mutation{}, err
	}
	return m, nil
}
