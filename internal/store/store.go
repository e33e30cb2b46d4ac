// Package store manages the SQLite database holding the local reminder
// replica, including tombstones awaiting remote deletion.
//
// Only this package may open or query the database. All other packages
// receive a [*Store] and call its methods.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/remindsync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS reminders (
    local_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_id     INTEGER NOT NULL DEFAULT 0,
    title         TEXT    NOT NULL,
    description   TEXT    NOT NULL DEFAULT '',
    due           TEXT    NOT NULL,
    notify        INTEGER NOT NULL DEFAULT 0,
    notify_at     TEXT    NOT NULL DEFAULT '',
    voice_notes   TEXT    NOT NULL DEFAULT '{}',
    attachments   TEXT    NOT NULL DEFAULT '{}',
    sort_order    INTEGER NOT NULL DEFAULT 0,
    synced        INTEGER NOT NULL DEFAULT 0,
    deleted       INTEGER NOT NULL DEFAULT 0,
    last_modified TEXT    NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_remote_id ON reminders (remote_id) WHERE remote_id != 0;
CREATE INDEX        IF NOT EXISTS idx_deleted   ON reminders (deleted);
`

// Store is the SQLite-backed local reminder replica.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the replica database:
// ~/.local/share/remindsync/reminders.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "remindsync", "reminders.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema,
// and configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

const selectCols = `
	SELECT local_id, remote_id, title, description, due, notify, notify_at,
	       voice_notes, attachments, sort_order, synced, deleted, last_modified
	FROM reminders`

// All returns every reminder in the replica, tombstones included. The sync
// engine and its phase-boundary re-reads use this.
func (s *Store) All(ctx context.Context) ([]*model.Reminder, error) {
	return s.query(ctx, selectCols+` ORDER BY local_id`)
}

// Active returns reminders visible to the user: tombstones are excluded,
// ordered by the manual sort order.
func (s *Store) Active(ctx context.Context) ([]*model.Reminder, error) {
	return s.query(ctx, selectCols+` WHERE deleted = 0 ORDER BY sort_order, local_id`)
}

// DeletedUnsynced returns tombstoned reminders whose deletion has not been
// confirmed remotely yet.
func (s *Store) DeletedUnsynced(ctx context.Context) ([]*model.Reminder, error) {
	return s.query(ctx, selectCols+` WHERE deleted = 1 AND synced = 0 ORDER BY local_id`)
}

// GetByRemoteID returns the reminder with the given remote id, or (nil, nil)
// if no such reminder exists. The sentinel id is not a valid lookup key.
func (s *Store) GetByRemoteID(ctx context.Context, id int64) (*model.Reminder, error) {
	if id == model.SentinelID {
		return nil, fmt.Errorf("remote id %d is the unassigned sentinel", id)
	}
	row := s.db.QueryRowContext(ctx, selectCols+` WHERE remote_id = ?`, id)
	return scanReminder(row)
}

// GetByLocalID returns the reminder with the given local row key, or
// (nil, nil) if no such reminder exists.
func (s *Store) GetByLocalID(ctx context.Context, localID int64) (*model.Reminder, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` WHERE local_id = ?`, localID)
	return scanReminder(row)
}

// Insert adds a reminder and stores the assigned row key in r.LocalID.
func (s *Store) Insert(ctx context.Context, r *model.Reminder) error {
	const q = `
		INSERT INTO reminders
		    (remote_id, title, description, due, notify, notify_at,
		     voice_notes, attachments, sort_order, synced, deleted, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args, err := insertArgs(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("inserting reminder %q: %w", r.Title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading row key for %q: %w", r.Title, err)
	}
	r.LocalID = id
	return nil
}

// Update overwrites the reminder identified by r.LocalID.
func (s *Store) Update(ctx context.Context, r *model.Reminder) error {
	const q = `
		UPDATE reminders SET
		    remote_id = ?, title = ?, description = ?, due = ?, notify = ?,
		    notify_at = ?, voice_notes = ?, attachments = ?, sort_order = ?,
		    synced = ?, deleted = ?, last_modified = ?
		WHERE local_id = ?`

	args, err := insertArgs(r)
	if err != nil {
		return err
	}
	args = append(args, r.LocalID)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("updating reminder %q: %w", r.Title, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("updating reminder %q: row %d not found", r.Title, r.LocalID)
	}
	return nil
}

// Replace atomically removes the row under oldLocalID and inserts r as a new
// row, storing the fresh row key in r.LocalID. The sync engine uses this for
// the id swap after the server assigns an authoritative id; the transaction
// guarantees the replica never holds two copies of the same logical reminder.
func (s *Store) Replace(ctx context.Context, oldLocalID int64, r *model.Reminder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE local_id = ?`, oldLocalID); err != nil {
		return fmt.Errorf("removing row %d: %w", oldLocalID, err)
	}

	const q = `
		INSERT INTO reminders
		    (remote_id, title, description, due, notify, notify_at,
		     voice_notes, attachments, sort_order, synced, deleted, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args, err := insertArgs(r)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("inserting replacement for %q: %w", r.Title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading replacement row key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replace: %w", err)
	}
	r.LocalID = id
	return nil
}

// MarkDeleted tombstones the reminder under localID: sets the deleted flag,
// clears synced, and advances last_modified via [model.Reminder.Touch].
func (s *Store) MarkDeleted(ctx context.Context, localID int64, now time.Time) error {
	r, err := s.GetByLocalID(ctx, localID)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("marking deleted: row %d not found", localID)
	}
	r.Deleted = true
	r.Touch(now)
	return s.Update(ctx, r)
}

// Purge removes the row under localID permanently. Called once a remote
// deletion is confirmed, or immediately for reminders the remote never knew.
func (s *Store) Purge(ctx context.Context, localID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("purging row %d: %w", localID, err)
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reminders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func insertArgs(r *model.Reminder) ([]any, error) {
	voice, err := encodeMap(r.VoiceNotes)
	if err != nil {
		return nil, fmt.Errorf("encoding voice notes for %q: %w", r.Title, err)
	}
	att, err := encodeMap(r.Attachments)
	if err != nil {
		return nil, fmt.Errorf("encoding attachments for %q: %w", r.Title, err)
	}

	var notifyAt string
	if r.NotifyDate != nil {
		notifyAt = formatTime(*r.NotifyDate)
	}

	return []any{
		r.ID,
		r.Title,
		r.Description,
		formatTime(r.Date),
		boolToInt(r.Notify),
		notifyAt,
		voice,
		att,
		r.SortOrder,
		boolToInt(r.Synced),
		boolToInt(r.Deleted),
		formatTime(r.LastModified),
	}, nil
}

// scanner matches both *sql.Row and *sql.Rows so scanReminder can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(s scanner) (*model.Reminder, error) {
	var r model.Reminder
	var due, notifyAt, voice, att, lastMod string
	var notify, synced, deleted int

	err := s.Scan(
		&r.LocalID,
		&r.ID,
		&r.Title,
		&r.Description,
		&due,
		&notify,
		&notifyAt,
		&voice,
		&att,
		&r.SortOrder,
		&synced,
		&deleted,
		&lastMod,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning reminder row: %w", err)
	}

	r.Date, _ = parseTime(due)
	r.LastModified, _ = parseTime(lastMod)
	if notifyAt != "" {
		t, err := parseTime(notifyAt)
		if err == nil {
			r.NotifyDate = &t
		}
	}
	r.Notify = notify != 0
	r.Synced = synced != 0
	r.Deleted = deleted != 0

	if r.VoiceNotes, err = decodeMap(voice); err != nil {
		return nil, fmt.Errorf("decoding voice notes for %q: %w", r.Title, err)
	}
	if r.Attachments, err = decodeMap(att); err != nil {
		return nil, fmt.Errorf("decoding attachments for %q: %w", r.Title, err)
	}

	return &r, nil
}

func encodeMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMap(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
