package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Dialect selects placeholder syntax for SQLStorage.
type Dialect string

// Supported dialects. Values match the database/sql driver names.
const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

const createSessionsTable = `CREATE TABLE IF NOT EXISTS auth_sessions (
	storage_key TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	updated_at  BIGINT NOT NULL
)`

// SQLStorage implements Storage on a SQL database so several hosts can share
// one session row.
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time

	upsertSQL string
	selectSQL string
	deleteSQL string
}

// NewSQLStorage wraps db. Call EnsureSchema before first use on a new database.
func NewSQLStorage(db *sql.DB, dialect Dialect) *SQLStorage {
	s := &SQLStorage{db: db, dialect: dialect, now: time.Now}
	s.upsertSQL = fmt.Sprintf(`INSERT INTO auth_sessions (storage_key, payload, updated_at)
VALUES (%s, %s, %s)
ON CONFLICT (storage_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3))
	s.selectSQL = fmt.Sprintf(`SELECT payload FROM auth_sessions WHERE storage_key = %s`, s.placeholder(1))
	s.deleteSQL = fmt.Sprintf(`DELETE FROM auth_sessions WHERE storage_key = %s`, s.placeholder(1))
	return s
}

// EnsureSchema creates the sessions table if it does not exist.
func (s *SQLStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSessionsTable); err != nil {
		return fmt.Errorf("failed to create auth_sessions table: %w", err)
	}
	return nil
}

// Persist upserts the row for key.
func (s *SQLStorage) Persist(ctx context.Context, key string, sess *Session) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if sess == nil {
		return fmt.Errorf("session cannot be nil")
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.upsertSQL, key, string(payload), s.now().Unix()); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Load reads the row for key. A missing row yields (nil, nil).
func (s *SQLStorage) Load(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, fmt.Errorf("session key cannot be empty")
	}

	var payload string
	err := s.db.QueryRowContext(ctx, s.selectSQL, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}
	return &sess, nil
}

// Remove deletes the row for key.
func (s *SQLStorage) Remove(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if _, err := s.db.ExecContext(ctx, s.deleteSQL, key); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) placeholder(position int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", position)
	}
	return "?"
}
