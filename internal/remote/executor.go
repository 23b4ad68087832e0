package remote

import (
	"context"

	"github.com/roadbook/roadbook/internal/mutation"
)

// Executor translates each mutation kind into exactly one store primitive.
//
// The mapping is fixed:
//
//	AddListItem         -> Insert (order key written into the order field)
//	UpdateEntityFields  -> MergeFields
//	RemoveListItem      -> Delete
//	SetMembershipChange -> ArrayUnion / ArrayRemove
//
// The switch is exhaustive over mutation.Kind; an unknown kind is an
// invalid-argument failure, not a silent no-op.
type Executor struct {
	store Store
}

// NewExecutor creates an Executor over the given store.
func NewExecutor(store Store) *Executor {
	return &Executor{store: store}
}

// Apply dispatches one mutation to the remote store.
func (x *Executor) Apply(ctx context.Context, m mutation.Mutation) error {
	switch m.Kind {
	case mutation.KindAddListItem:
		p := m.AddListItem
		fields := make(map[string]any, len(p.Fields)+1)
		for k, v := range p.Fields {
			fields[k] = v
		}
		fields[OrderField] = p.OrderKey
		return x.store.Insert(ctx, Doc{
			Collection: p.Collection,
			ID:         p.ItemID,
			Fields:     fields,
		})

	case mutation.KindUpdateEntityFields:
		p := m.UpdateEntityFields
		return x.store.MergeFields(ctx, p.Collection, p.EntityID, p.Fields)

	case mutation.KindRemoveListItem:
		p := m.RemoveListItem
		return x.store.Delete(ctx, p.Collection, p.ItemID)

	case mutation.KindSetMembershipChange:
		p := m.SetMembership
		switch p.Op {
		case mutation.MembershipUnion:
			return x.store.ArrayUnion(ctx, p.Collection, p.EntityID, p.Field, p.Members)
		case mutation.MembershipRemove:
			return x.store.ArrayRemove(ctx, p.Collection, p.EntityID, p.Field, p.Members)
		default:
			return NewError(KindInvalidArgument, "apply", "unknown membership op "+string(p.Op))
		}

	default:
		return NewError(KindInvalidArgument, "apply", "unknown mutation kind "+m.Kind.String())
	}
}
