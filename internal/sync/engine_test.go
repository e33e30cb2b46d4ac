package sync

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/njoerd114/remindsync/internal/model"
)

var testLogger = slog.Default()

func newReminder(id int64, title string, modified time.Time) *model.Reminder {
	return &model.Reminder{
		ID:           id,
		Title:        title,
		Date:         modified.Add(24 * time.Hour),
		LastModified: modified,
	}
}

func newTestEngine(store *mockStore, remote *mockRemote) *Engine {
	return NewEngine(store, remote, testLogger)
}

// ---------------------------------------------------------------------------
// Scenario: brand-new local reminder → created remotely, id swapped
// ---------------------------------------------------------------------------

func TestSync_NewLocalReminder_IDReconciled(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()

	store := newMockStore()
	local := newReminder(model.SentinelID, "Buy milk", t100)
	local.Synced = false
	store.seed(local)
	remote := newMockRemote()

	res := newTestEngine(store, remote).Sync(context.Background())
	if !res.Success {
		t.Fatalf("Sync failed: %s", res.Message)
	}
	if res.Created != 1 {
		t.Errorf("Created = %d, want 1", res.Created)
	}

	// Remote now holds the record.
	if remote.count() != 1 {
		t.Fatalf("remote rows = %d, want 1", remote.count())
	}

	// Locally the record exists exactly once, under the server-assigned id.
	if store.count() != 1 {
		t.Fatalf("local rows = %d, want 1", store.count())
	}
	got := store.byTitle("Buy milk")
	if got == nil {
		t.Fatal("local record vanished")
	}
	if got.ID == model.SentinelID {
		t.Error("local record still carries the sentinel id")
	}
	if !got.Synced {
		t.Error("local record not marked synced")
	}
}

// ---------------------------------------------------------------------------
// Scenario: local newer than remote → push wins
// ---------------------------------------------------------------------------

func TestSync_LocalNewer_PushedToRemote(t *testing.T) {
	t150 := time.UnixMilli(150).UTC()
	t200 := time.UnixMilli(200).UTC()

	store := newMockStore()
	local := newReminder(5, "v2", t200)
	local.Synced = false
	store.seed(local)
	remote := newMockRemote(newReminder(5, "v1", t150))

	res := newTestEngine(store, remote).Sync(context.Background())
	if !res.Success {
		t.Fatalf("Sync failed: %s", res.Message)
	}
	if res.Updated != 1 {
		t.Errorf("Updated = %d, want 1", res.Updated)
	}

	if got := remote.get(5); got == nil || got.Title != "v2" {
		t.Errorf("remote record = %+v, want title v2", got)
	}
	got := store.byRemoteID(5)
	if got == nil || got.Title != "v2" {
		t.Fatalf("local record = %+v, want unchanged content", got)
	}
	if !got.Synced {
		t.Error("local record not marked synced")
	}
}

// ---------------------------------------------------------------------------
// Scenario: tombstone dominance, delete wins over a newer remote edit
// ---------------------------------------------------------------------------

func TestSync_TombstoneDominance(t *testing.T) {
	t300 := time.UnixMilli(300).UTC()
	t400 := time.UnixMilli(400).UTC()

	store := newMockStore()
	tomb := newReminder(5, "old title", t300)
	tomb.Deleted = true
	store.seed(tomb)
	remote := newMockRemote(newReminder(5, "newer edit", t400))

	res := newTestEngine(store, remote).Sync(context.Background())
	if !res.Success {
		t.Fatalf("Sync failed: %s", res.Message)
	}
	if res.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", res.Deleted)
	}

	if remote.get(5) != nil {
		t.Error("remote record survived a local delete")
	}
	if store.count() != 0 {
		t.Errorf("local rows = %d, want tombstone purged", store.count())
	}
}

// ---------------------------------------------------------------------------
// Scenario: remote-only record → pulled into the replica
// ---------------------------------------------------------------------------

func TestSync_RemoteOnly_PulledLocally(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()

	store := newMockStore()
	remote := newMockRemote(newReminder(9, "Team meeting", t100))

	res := newTestEngine(store, remote).Sync(context.Background())
	if !res.Success {
		t.Fatalf("Sync failed: %s", res.Message)
	}
	if res.Created != 1 {
		t.Errorf("Created = %d, want 1", res.Created)
	}

	got := store.byRemoteID(9)
	if got == nil {
		t.Fatal("remote record was not pulled")
	}
	if got.Title != "Team meeting" || !got.Synced {
		t.Errorf("pulled record = %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Scenario: connectivity failure → nothing touched
// ---------------------------------------------------------------------------

func TestSync_ConnectivityFailure_NoLocalMutation(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()

	store := newMockStore()
	local := newReminder(model.SentinelID, "Buy milk", t100)
	local.Synced = false
	store.seed(local)
	remote := newMockRemote()
	remote.listErr = errors.New("connection refused")

	res := newTestEngine(store, remote).Sync(context.Background())
	if res.Success {
		t.Fatal("Sync reported success despite unreachable remote")
	}
	if res.Created+res.Updated+res.Deleted != 0 {
		t.Errorf("counts = %+v, want all zero", res)
	}

	// The replica is untouched and the record still pending.
	got := store.byTitle("Buy milk")
	if got == nil || got.Synced || got.ID != model.SentinelID {
		t.Errorf("local record changed under a failed pass: %+v", got)
	}
	if remote.createCalls != 0 {
		t.Errorf("createCalls = %d, want 0", remote.createCalls)
	}
}

// ---------------------------------------------------------------------------
// Convergence: both replicas hold max(T1, T2) after one pass
// ---------------------------------------------------------------------------

func TestSync_RemoteNewer_PulledOverwrite(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()
	t200 := time.UnixMilli(200).UTC()

	store := newMockStore()
	local := newReminder(5, "stale", t100)
	local.SortOrder = 7
	store.seed(local)
	remote := newMockRemote(newReminder(5, "current", t200))

	res := newTestEngine(store, remote).Sync(context.Background())
	if !res.Success {
		t.Fatalf("Sync failed: %s", res.Message)
	}
	if res.Updated != 1 {
		t.Errorf("Updated = %d, want 1", res.Updated)
	}

	got := store.byRemoteID(5)
	if got == nil {
		t.Fatal("local record gone")
	}
	if got.Title != "current" {
		t.Errorf("Title = %q, want the remote version", got.Title)
	}
	if !got.LastModified.Equal(t200) {
		t.Errorf("LastModified = %v, want remote's %v", got.LastModified, t200)
	}
	if got.SortOrder != 7 {
		t.Errorf("SortOrder = %d, want local ordering preserved", got.SortOrder)
	}
	if !got.Synced {
		t.Error("pulled record not marked synced")
	}
}

// ---------------------------------------------------------------------------
// Idempotence: a second pass over stable replicas is a no-op
// ---------------------------------------------------------------------------

func TestSync_Idempotent(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()
	t200 := time.UnixMilli(200).UTC()

	store := newMockStore()
	fresh := newReminder(model.SentinelID, "offline note", t100)
	fresh.Synced = false
	edited := newReminder(5, "edited", t200)
	edited.Synced = false
	tomb := newReminder(6, "obsolete", t100)
	tomb.Deleted = true
	store.seed(fresh, edited, tomb)
	remote := newMockRemote(
		newReminder(5, "original", t100),
		newReminder(6, "obsolete", t100),
		newReminder(9, "server only", t100),
	)

	engine := newTestEngine(store, remote)

	first := engine.Sync(context.Background())
	if !first.Success || first.Failed != 0 {
		t.Fatalf("first pass: %+v", first)
	}

	second := engine.Sync(context.Background())
	if !second.Success {
		t.Fatalf("second pass failed: %s", second.Message)
	}
	if second.Created+second.Updated+second.Deleted+second.Failed != 0 {
		t.Errorf("second pass performed work: %+v", second)
	}
	if store.count() != 3 || remote.count() != 3 {
		t.Errorf("replicas diverged: local %d remote %d, want 3/3", store.count(), remote.count())
	}
}

// ---------------------------------------------------------------------------
// Partial-failure isolation: one failing record does not poison the pass
// ---------------------------------------------------------------------------

func TestSync_PartialFailureIsolation(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()

	store := newMockStore()
	a := newReminder(model.SentinelID, "record A", t100)
	a.Synced = false
	b := newReminder(model.SentinelID, "record B", t100)
	b.Synced = false
	store.seed(a, b)

	remote := newMockRemote()
	remote.createErr["record A"] = errors.New("500 internal server error")

	res := newTestEngine(store, remote).Sync(context.Background())
	if !res.Success {
		t.Fatalf("per-record failure must not fail the pass: %s", res.Message)
	}
	if res.Created != 1 || res.Failed != 1 {
		t.Errorf("Created = %d Failed = %d, want 1/1", res.Created, res.Failed)
	}

	// B is synced under a real id; A keeps its pre-sync state for retry.
	gotB := store.byTitle("record B")
	if gotB == nil || !gotB.Synced || gotB.ID == model.SentinelID {
		t.Errorf("record B = %+v, want synced under a server id", gotB)
	}
	gotA := store.byTitle("record A")
	if gotA == nil || gotA.Synced || gotA.ID != model.SentinelID {
		t.Errorf("record A = %+v, want untouched and unsynced", gotA)
	}
}

// ---------------------------------------------------------------------------
// Re-entrant create: a real local id the server does not know
// ---------------------------------------------------------------------------

func TestSync_RealIDUnknownRemotely_CreatedWithoutSwap(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()

	store := newMockStore()
	local := newReminder(5, "lost upstream", t100)
	local.Synced = false
	store.seed(local)
	remote := newMockRemote()

	res := newTestEngine(store, remote).Sync(context.Background())
	if !res.Success {
		t.Fatalf("Sync failed: %s", res.Message)
	}
	if res.Created != 1 {
		t.Errorf("Created = %d, want 1", res.Created)
	}

	got := store.byRemoteID(5)
	if got == nil {
		t.Fatal("local record lost its id")
	}
	if !got.Synced {
		t.Error("local record not marked synced")
	}
	if remote.get(5) == nil {
		t.Error("remote did not gain the record under its existing id")
	}
}

// ---------------------------------------------------------------------------
// Deletion edge cases
// ---------------------------------------------------------------------------

func TestSync_NeverSyncedTombstone_PurgedWithoutNetwork(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()

	store := newMockStore()
	tomb := newReminder(model.SentinelID, "created and deleted offline", t100)
	tomb.Deleted = true
	store.seed(tomb)
	remote := newMockRemote()

	res := newTestEngine(store, remote).Sync(context.Background())
	if !res.Success {
		t.Fatalf("Sync failed: %s", res.Message)
	}
	if store.count() != 0 {
		t.Error("never-synced tombstone not purged")
	}
	if remote.deleteCalls != 0 {
		t.Errorf("deleteCalls = %d, want 0 (nothing to delete remotely)", remote.deleteCalls)
	}
}

func TestSync_DeleteFailure_TombstoneRetained(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()

	store := newMockStore()
	tomb := newReminder(5, "stubborn", t100)
	tomb.Deleted = true
	store.seed(tomb)
	remote := newMockRemote(newReminder(5, "stubborn", t100))
	remote.deleteErr[5] = errors.New("timeout")

	res := newTestEngine(store, remote).Sync(context.Background())
	if !res.Success {
		t.Fatalf("per-record failure must not fail the pass: %s", res.Message)
	}
	if res.Failed != 1 || res.Deleted != 0 {
		t.Errorf("Failed = %d Deleted = %d, want 1/0", res.Failed, res.Deleted)
	}

	// The tombstone survives for the next attempt.
	got := store.byRemoteID(5)
	if got == nil || !got.Deleted {
		t.Errorf("tombstone = %+v, want retained", got)
	}
}

func TestSync_TombstoneNotResurrectedByPull(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()
	t200 := time.UnixMilli(200).UTC()

	store := newMockStore()
	tomb := newReminder(5, "deleted here", t100)
	tomb.Deleted = true
	store.seed(tomb)
	remote := newMockRemote(newReminder(5, "edited there", t200))
	// Deletion cannot complete this pass; the pull must still not insert a
	// second copy of id 5.
	remote.deleteErr[5] = errors.New("timeout")

	_ = newTestEngine(store, remote).Sync(context.Background())

	if store.count() != 1 {
		t.Fatalf("local rows = %d, want only the tombstone", store.count())
	}
	got := store.byRemoteID(5)
	if got == nil || !got.Deleted {
		t.Errorf("row = %+v, want the tombstone intact", got)
	}
}

// ---------------------------------------------------------------------------
// Fatal local store failure
// ---------------------------------------------------------------------------

func TestSync_StoreFailure_Fatal(t *testing.T) {
	store := newMockStore()
	store.readErr = errors.New("database is locked")
	remote := newMockRemote()

	res := newTestEngine(store, remote).Sync(context.Background())
	if res.Success {
		t.Fatal("Sync reported success despite a failing local store")
	}
}

// ---------------------------------------------------------------------------
// Equal timestamps are a no-op
// ---------------------------------------------------------------------------

func TestSync_EqualTimestamps_NoOp(t *testing.T) {
	t100 := time.UnixMilli(100).UTC()

	store := newMockStore()
	store.seed(newReminder(5, "same", t100))
	remote := newMockRemote(newReminder(5, "same", t100))

	res := newTestEngine(store, remote).Sync(context.Background())
	if !res.Success {
		t.Fatalf("Sync failed: %s", res.Message)
	}
	if res.Created+res.Updated+res.Deleted+res.Failed != 0 {
		t.Errorf("pass performed work on identical replicas: %+v", res)
	}
	if remote.updateCalls != 0 {
		t.Errorf("updateCalls = %d, want 0", remote.updateCalls)
	}
}
