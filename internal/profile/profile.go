// ABOUTME: Read-only profile lookup capability consumed by the reconciler
// ABOUTME: Defines the Snapshot projection and the SQLite-backed store

package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no profile exists for the requested user
var ErrNotFound = errors.New("profile not found")

// Snapshot is a read-only projection of a user's profile, resolved
// externally and cached onto conversations for display. Any field may be
// empty.
type Snapshot struct {
	Name     string
	Role     string
	PhotoURL string
	Location string
}

// Store resolves display profiles. Implementations are externally owned and
// read-only from this library's point of view; a lookup may fail or report
// absence independently per call.
type Store interface {
	Lookup(ctx context.Context, userID string) (*Snapshot, error)
}

// SQLiteStore reads profiles from a users table in a shared SQLite handle.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a database handle, creating the users table if it
// does not exist. The messaging library only ever reads from it; writes
// belong to the surrounding application.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			photo_url TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT ''
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating users schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Lookup resolves the profile for userID. The display name falls back from
// name to username; absence of the row is ErrNotFound.
func (s *SQLiteStore) Lookup(ctx context.Context, userID string) (*Snapshot, error) {
	var name, username string
	snap := &Snapshot{}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, username, role, photo_url, location FROM users WHERE id = ?`, userID).
		Scan(&name, &username, &snap.Role, &snap.PhotoURL, &snap.Location)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	snap.Name = name
	if snap.Name == "" {
		snap.Name = username
	}
	return snap, nil
}

// Upsert writes a profile row. Only the demo tooling and tests use this;
// the engine itself never writes profiles.
func (s *SQLiteStore) Upsert(ctx context.Context, userID string, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, username, role, photo_url, location)
		VALUES (?, ?, '', ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			photo_url = excluded.photo_url,
			location = excluded.location
	`, userID, snap.Name, snap.Role, snap.PhotoURL, snap.Location)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}
