package dispatcher

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oakbyte/labpanel/internal/backend"
)

// Store persists action records to SQLite so outcome handles survive a
// restart. Action records are the only thing persisted here; no metrics
// history is kept.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at the given path.
func NewStore(dbPath string) (*Store, error) {
	// Set pragmas via DSN so EVERY connection in the pool gets them.
	// database/sql pools connections; a PRAGMA run via db.Exec only
	// applies to one connection, leaving others without busy_timeout.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite supports only one writer at a time. Limit the pool so
	// goroutines queue at the Go level instead of fighting over the lock.
	db.SetMaxOpenConns(4)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS actions (
			id           TEXT PRIMARY KEY,
			resource_id  TEXT NOT NULL,
			backend      TEXT NOT NULL,
			verb         TEXT NOT NULL,
			state        TEXT NOT NULL,
			attempts     INTEGER NOT NULL DEFAULT 0,
			reason       TEXT DEFAULT '',
			error        TEXT DEFAULT '',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			completed_at TEXT DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_actions_created_at ON actions(created_at);
	`)
	return err
}

// Put inserts or replaces an action record.
func (s *Store) Put(a *Action) error {
	completed := ""
	if a.CompletedAt != nil {
		completed = a.CompletedAt.Format(time.RFC3339Nano)
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO actions
		(id, resource_id, backend, verb, state, attempts, reason, error, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ResourceID, string(a.Backend), string(a.Verb), a.State, a.Attempts,
		a.Reason, a.Error,
		a.CreatedAt.Format(time.RFC3339Nano),
		a.UpdatedAt.Format(time.RFC3339Nano),
		completed,
	)
	if err != nil {
		return fmt.Errorf("storing action %s: %w", a.ID, err)
	}
	return nil
}

// Get returns the action with the given id, or nil if unknown.
func (s *Store) Get(id string) (*Action, error) {
	row := s.db.QueryRow(`
		SELECT id, resource_id, backend, verb, state, attempts, reason, error, created_at, updated_at, completed_at
		FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// Recent returns the most recently created actions, newest first.
func (s *Store) Recent(limit int) ([]*Action, error) {
	rows, err := s.db.Query(`
		SELECT id, resource_id, backend, verb, state, attempts, reason, error, created_at, updated_at, completed_at
		FROM actions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	defer rows.Close()

	var out []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*Action, error) {
	var a Action
	var bk, verb, created, updated, completed string
	if err := row.Scan(&a.ID, &a.ResourceID, &bk, &verb, &a.State, &a.Attempts,
		&a.Reason, &a.Error, &created, &updated, &completed); err != nil {
		return nil, err
	}
	a.Backend = backend.Name(bk)
	a.Verb = backend.Verb(verb)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if completed != "" {
		t, err := time.Parse(time.RFC3339Nano, completed)
		if err == nil {
			a.CompletedAt = &t
		}
	}
	return &a, nil
}
