package session

import "context"

// Storage persists sessions by key. Implementations are called while the
// coordinator holds its lock and must never take that lock themselves.
type Storage interface {
	// Persist saves s under key, replacing any previous value.
	Persist(ctx context.Context, key string, s *Session) error

	// Load returns the session stored under key, or (nil, nil) if there is none.
	Load(ctx context.Context, key string) (*Session, error)

	// Remove deletes the session under key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases storage resources.
	Close() error
}
