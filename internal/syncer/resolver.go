package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roadbook/roadbook/internal/localstate"
	"github.com/roadbook/roadbook/internal/mutation"
	"github.com/roadbook/roadbook/internal/remote"
)

// Resolution is the resolver's verdict on a failed write.
//
// Resolved means the mutation's lifecycle is over: either the remote version
// was accepted (RolledBack false) or the local optimistic edit was undone
// (RolledBack true). An unresolved verdict leaves the mutation in the queue
// for the manager's backoff retry — it is the only outcome that does.
type Resolution struct {
	Resolved   bool
	RolledBack bool
	Reason     string
}

// Resolver decides, for a failed or contested write, whether to accept the
// remote version, keep retrying, or roll the local edit back.
//
// Both collaborators are injected: the remote store supplies authoritative
// versions, the local store is the rollback target.
type Resolver struct {
	store  remote.Store
	local  localstate.Store
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(store remote.Store, local localstate.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, local: local, logger: logger}
}

// Resolve applies the conflict policy to a failed mutation.
//
// Terminal failures always roll back; the write can never succeed as-is.
// Non-terminal failures fetch the current remote version and compare its
// authoritative timestamp against the mutation's creation time:
//
//   - remote strictly newer: Last-Write-Wins, the remote version overwrites
//     local state and the mutation is resolved without rollback;
//   - otherwise: the rejection is unresolvable at this layer and the local
//     edit is rolled back defensively, even though its timestamp looked
//     newer. (This can discard a legitimate local edit; the behavior is
//     deliberate and kept as-is.)
//
// A failure during resolution itself falls back to rollback; if even the
// rollback cannot complete (typically because the network is still down),
// the verdict is unresolved and the manager retries with backoff.
func (r *Resolver) Resolve(ctx context.Context, m mutation.Mutation, cause error) Resolution {
	if remote.IsTerminal(cause) {
		if err := r.rollback(ctx, m); err != nil {
			// Terminal failures are never retried, so the verdict stands
			// even when the rollback fetch fails; local state catches up on
			// the next full refresh.
			r.logger.Error("rollback after terminal failure incomplete",
				"mutation", m.ID, "error", err)
		}
		return Resolution{
			Resolved:   true,
			RolledBack: true,
			Reason:     fmt.Sprintf("terminal %s", remote.Classify(cause)),
		}
	}

	collection, id := m.TargetRef()
	doc, err := r.store.Fetch(ctx, collection, id)
	if err != nil {
		if remote.IsNotFound(err) {
			return r.rollbackVerdict(ctx, m, "no remote version")
		}
		return r.rollbackVerdict(ctx, m, "resolution fetch failed")
	}

	if doc.LastModified() > m.CreatedAt {
		r.local.ApplyRemote(doc)
		return Resolution{Resolved: true, Reason: "remote version newer"}
	}

	return r.rollbackVerdict(ctx, m, "rejected write rolled back")
}

// rollbackVerdict attempts the rollback and reports resolved on success,
// unresolved on failure.
func (r *Resolver) rollbackVerdict(ctx context.Context, m mutation.Mutation, reason string) Resolution {
	if err := r.rollback(ctx, m); err != nil {
		r.logger.Warn("rollback incomplete, leaving mutation queued",
			"mutation", m.ID, "error", err)
		return Resolution{Reason: fmt.Sprintf("%s; rollback failed: %v", reason, err)}
	}
	return Resolution{Resolved: true, RolledBack: true, Reason: reason}
}

// rollback undoes the local optimistic effect of a mutation, per kind:
// entity-field updates are replaced (or removed) from the remote version;
// list insertions drop the optimistic item and refresh the list; list
// removals refresh the list so a wrongly-removed item reappears; membership
// changes refresh the owning entity.
func (r *Resolver) rollback(ctx context.Context, m mutation.Mutation) error {
	switch m.Kind {
	case mutation.KindUpdateEntityFields:
		p := m.UpdateEntityFields
		return r.restoreEntity(ctx, p.Collection, p.EntityID)

	case mutation.KindAddListItem:
		p := m.AddListItem
		r.local.Remove(p.Collection, p.ItemID)
		return r.refreshList(ctx, p.Collection)

	case mutation.KindRemoveListItem:
		return r.refreshList(ctx, m.RemoveListItem.Collection)

	case mutation.KindSetMembershipChange:
		p := m.SetMembership
		return r.restoreEntity(ctx, p.Collection, p.EntityID)

	default:
		return fmt.Errorf("rollback: unknown mutation kind %s", m.Kind)
	}
}

// restoreEntity overwrites the local entity with the remote version, or
// removes it when no remote version exists.
func (r *Resolver) restoreEntity(ctx context.Context, collection, id string) error {
	doc, err := r.store.Fetch(ctx, collection, id)
	if err != nil {
		if remote.IsNotFound(err) {
			r.local.Remove(collection, id)
			return nil
		}
		return fmt.Errorf("restore %s/%s: %w", collection, id, err)
	}
	r.local.ApplyRemote(doc)
	return nil
}

// refreshList replaces the local list with the remote ordered snapshot.
func (r *Resolver) refreshList(ctx context.Context, collection string) error {
	docs, err := r.store.List(ctx, collection, remote.OrderField)
	if err != nil {
		return fmt.Errorf("refresh list %s: %w", collection, err)
	}
	r.local.ReplaceList(collection, docs)
	return nil
}
