// Package sync implements the reconciliation engine between the local
// reminder replica and the remote authoritative store. It runs a strict
// three-phase protocol (push, pull, deletion reconciliation) with
// last-writer-wins conflict resolution, tombstone dominance, and id
// reconciliation for reminders created offline.
//
// The package contains three main components:
//
//   - [Decide] is the pure conflict-resolution rule.
//   - [Engine] executes one full three-phase pass per [Engine.Sync] call.
//   - [Scheduler] decides when passes run and coalesces triggers.
package sync

import (
	"context"

	"github.com/njoerd114/remindsync/internal/model"
)

// LocalStore provides CRUD access to the local reminder replica.
// Implemented by [store.Store].
type LocalStore interface {
	All(ctx context.Context) ([]*model.Reminder, error)
	DeletedUnsynced(ctx context.Context) ([]*model.Reminder, error)
	Insert(ctx context.Context, r *model.Reminder) error
	Update(ctx context.Context, r *model.Reminder) error
	// Replace atomically swaps the row under oldLocalID for r. Used when the
	// server assigns an authoritative id to an offline-created reminder.
	Replace(ctx context.Context, oldLocalID int64, r *model.Reminder) error
	Purge(ctx context.Context, localID int64) error
}

// RemoteClient provides access to the authoritative reminder service.
// Implemented by [api.Client].
type RemoteClient interface {
	List(ctx context.Context) ([]*model.Reminder, error)
	Create(ctx context.Context, r *model.Reminder) (*model.Reminder, error)
	Update(ctx context.Context, r *model.Reminder) (*model.Reminder, error)
	Delete(ctx context.Context, id int64) error
}
