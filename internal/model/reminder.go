// Package model defines shared types used across the sync engine, the local
// store, and the remote API client.
package model

import (
	"time"
)

// SentinelID is the reserved identifier meaning "not yet assigned by the
// remote store". A reminder created offline carries it until the first
// successful remote create returns an authoritative id.
const SentinelID int64 = 0

// PayloadKind tags an attachment payload on the wire so the receiver never
// has to sniff whether the data is an encoded blob or an opaque reference.
type PayloadKind string

const (
	// PayloadInline marks base64-encoded file content embedded in the payload.
	PayloadInline PayloadKind = "inline"
	// PayloadReference marks an opaque server-issued reference string.
	PayloadReference PayloadKind = "reference"
)

// Reminder is the single domain entity. The local store and the remote API
// client both map their representations onto it.
type Reminder struct {
	// LocalID is the local store's row key. It is assigned on insert and
	// never leaves the device; several offline-created reminders can coexist
	// under distinct LocalIDs while their ID is still [SentinelID].
	LocalID int64

	// ID is the remote store's identifier, [SentinelID] until the first
	// successful remote create.
	ID int64

	Title       string
	Description string

	// Date is the reminder's target timestamp. Required, never zero.
	Date time.Time

	// Notify enables notification delivery; NotifyDate is meaningful only
	// when Notify is true.
	Notify     bool
	NotifyDate *time.Time

	// VoiceNotes and Attachments map a local file path (or a remote-issued
	// reference string) to a user-facing display name. Paths are unique
	// within one reminder; insertion order is not significant.
	VoiceNotes  map[string]string
	Attachments map[string]string

	// SortOrder is local manual ordering only. It never crosses the wire
	// and plays no part in conflict resolution.
	SortOrder int

	// Synced is false while the reminder has local edits the remote store
	// has not confirmed.
	Synced bool

	// Deleted is the local tombstone. A tombstoned reminder stays in local
	// storage until the remote deletion is confirmed (or immediately purged
	// if the remote never knew it).
	Deleted bool

	// LastModified advances strictly on every local mutation and is the
	// sole basis for last-writer-wins conflict resolution. It is only ever
	// set from remote data when a pull overwrites local state.
	LastModified time.Time
}

// Touch records a local mutation: it clears Synced and advances LastModified
// to now, clamping to the previous value plus one millisecond if the wall
// clock did not move forward. This keeps LastModified strictly increasing
// even across clock regressions.
func (r *Reminder) Touch(now time.Time) {
	now = now.UTC()
	if !now.After(r.LastModified) {
		now = r.LastModified.Add(time.Millisecond)
	}
	r.LastModified = now
	r.Synced = false
}

// Clone returns a deep copy. The engine hands copies across phase boundaries
// so a failed store write cannot leak partial mutations into a shared value.
func (r *Reminder) Clone() *Reminder {
	cp := *r
	if r.NotifyDate != nil {
		t := *r.NotifyDate
		cp.NotifyDate = &t
	}
	cp.VoiceNotes = cloneMap(r.VoiceNotes)
	cp.Attachments = cloneMap(r.Attachments)
	return &cp
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
