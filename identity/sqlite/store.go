// Package sqlite persists identity records in a single SQLite file.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lifeapp/authbridge/identity"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	email      TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store implements identity.Store over SQLite.
//
// The UNIQUE constraint on subject is what makes concurrent reconciliation
// safe: the upsert resolves insert conflicts inside the database instead of
// in application code.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the store at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func newUserID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// FindBySubject implements identity.Store.
func (s *Store) FindBySubject(ctx context.Context, subject string) (identity.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, subject, name, email, created_at, updated_at
FROM users WHERE subject = ?`, subject)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, fmt.Errorf("find user by subject: %w", err)
	}
	return u, nil
}

// Upsert implements identity.Store. The conflict clause turns a concurrent
// insert for the same subject into an update, so double-submitted callbacks
// converge on one record.
func (s *Store) Upsert(ctx context.Context, subject string, profile identity.Profile) (identity.User, error) {
	id, err := newUserID()
	if err != nil {
		return identity.User{}, err
	}
	now := toMillis(time.Now())

	var email any
	if profile.Email != "" {
		email = profile.Email
	}

	row := s.db.QueryRowContext(ctx, `
INSERT INTO users (id, subject, name, email, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(subject) DO UPDATE SET
	name = excluded.name,
	email = excluded.email,
	updated_at = excluded.updated_at
RETURNING id, subject, name, email, created_at, updated_at`,
		id, subject, profile.Name, email, now, now)

	u, err := scanUser(row)
	if err != nil {
		return identity.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (identity.User, error) {
	var (
		u         identity.User
		email     sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Subject, &u.Name, &email, &createdAt, &updatedAt); err != nil {
		return identity.User{}, err
	}
	if email.Valid {
		u.Email = email.String
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

var _ identity.Store = (*Store)(nil)
