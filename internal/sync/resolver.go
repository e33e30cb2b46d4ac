package sync

import (
	"github.com/njoerd114/remindsync/internal/model"
)

// Action is the mutation the resolver wants for one logical reminder.
type Action int

const (
	// ActionNone means both replicas already agree.
	ActionNone Action = iota
	// ActionCreateRemote pushes a reminder the remote store has never seen.
	ActionCreateRemote
	// ActionCreateLocal inserts a remote-only reminder into the replica.
	ActionCreateLocal
	// ActionUpdateRemote pushes the local version (local is newer).
	ActionUpdateRemote
	// ActionUpdateLocal overwrites local content with the remote version.
	ActionUpdateLocal
	// ActionDeleteRemote propagates a local tombstone to the remote store.
	ActionDeleteRemote
)

// String returns the action's label for logging.
func (a Action) String() string {
	switch a {
	case ActionCreateRemote:
		return "create-remote"
	case ActionCreateLocal:
		return "create-local"
	case ActionUpdateRemote:
		return "update-remote"
	case ActionUpdateLocal:
		return "update-local"
	case ActionDeleteRemote:
		return "delete-remote"
	default:
		return "none"
	}
}

// Decide is the pure conflict-resolution rule for one logical reminder,
// given its local and remote versions (either may be nil for "absent").
//
// A local tombstone always wins, even over a newer remote edit: the user's
// explicit delete must not be resurrected by a stale remote update. For
// surviving pairs the greater LastModified wins; exactly equal timestamps
// are a no-op rather than an arbitrary pick, which keeps repeated runs of
// the protocol idempotent.
func Decide(local, remote *model.Reminder) Action {
	switch {
	case local == nil && remote == nil:
		return ActionNone
	case local == nil:
		return ActionCreateLocal
	case local.Deleted:
		return ActionDeleteRemote
	case remote == nil:
		return ActionCreateRemote
	case local.LastModified.After(remote.LastModified):
		return ActionUpdateRemote
	case remote.LastModified.After(local.LastModified):
		return ActionUpdateLocal
	default:
		return ActionNone
	}
}
