// Package sqlite provides a SQLite-backed play client store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	sqlitemigrate "github.com/louisbranch/storyloom/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/storyloom/internal/services/play/storage"
	"github.com/louisbranch/storyloom/internal/services/play/storage/sqlite/migrations"
)

// Store persists play client state in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

var _ storage.IdentityStore = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// GetSessionIdentity returns the remembered session for worldID.
func (s *Store) GetSessionIdentity(ctx context.Context, worldID string) (storage.SessionIdentity, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SessionIdentity{}, err
	}
	worldID = strings.TrimSpace(worldID)
	if worldID == "" {
		return storage.SessionIdentity{}, fmt.Errorf("world id is required")
	}

	var (
		identity  storage.SessionIdentity
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT world_id, session_id, updated_at FROM session_identities WHERE world_id = ?`,
		worldID,
	).Scan(&identity.WorldID, &identity.SessionID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SessionIdentity{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SessionIdentity{}, fmt.Errorf("get session identity: %w", err)
	}
	identity.UpdatedAt = fromMillis(updatedAt)
	return identity, nil
}

// PutSessionIdentity remembers identity, replacing any previous session for
// the same world. A zero UpdatedAt is stamped with the current time.
func (s *Store) PutSessionIdentity(ctx context.Context, identity storage.SessionIdentity) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	worldID := strings.TrimSpace(identity.WorldID)
	sessionID := strings.TrimSpace(identity.SessionID)
	if worldID == "" {
		return fmt.Errorf("world id is required")
	}
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	updatedAt := identity.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.clock()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO session_identities (world_id, session_id, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(world_id) DO UPDATE SET
    session_id = excluded.session_id,
    updated_at = excluded.updated_at
`, worldID, sessionID, toMillis(updatedAt))
	if err != nil {
		return fmt.Errorf("put session identity: %w", err)
	}
	return nil
}

// DeleteSessionIdentity forgets the session for worldID. Deleting a missing
// identity returns storage.ErrNotFound.
func (s *Store) DeleteSessionIdentity(ctx context.Context, worldID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM session_identities WHERE world_id = ?`, strings.TrimSpace(worldID))
	if err != nil {
		return fmt.Errorf("delete session identity: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session identity rows: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListSessionIdentities returns every remembered identity, most recent first.
func (s *Store) ListSessionIdentities(ctx context.Context) ([]storage.SessionIdentity, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT world_id, session_id, updated_at FROM session_identities ORDER BY updated_at DESC, world_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list session identities: %w", err)
	}
	defer rows.Close()

	var out []storage.SessionIdentity
	for rows.Next() {
		var (
			identity  storage.SessionIdentity
			updatedAt int64
		)
		if err := rows.Scan(&identity.WorldID, &identity.SessionID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session identity: %w", err)
		}
		identity.UpdatedAt = fromMillis(updatedAt)
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session identities: %w", err)
	}
	return out, nil
}
