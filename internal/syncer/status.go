package syncer

// Status is the process-wide synchronization state. There is exactly one
// authoritative value, owned and changed only by the Manager.
type Status string

const (
	// StatusIdle: network reachable, nothing pending.
	StatusIdle Status = "idle"
	// StatusOffline: network unreachable; edits queue locally.
	StatusOffline Status = "offline"
	// StatusPendingWrites: queued edits waiting for a drain to begin.
	StatusPendingWrites Status = "pending_writes"
	// StatusSyncing: a drain pass is dispatching queued edits.
	StatusSyncing Status = "syncing"
	// StatusError: a dispatch failed non-terminally; a retry is scheduled.
	StatusError Status = "error"
)
