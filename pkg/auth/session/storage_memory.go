package session

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStorage implements Storage in memory.
// It is suitable for tests and single-process tools; data is lost on exit.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]*Session
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string]*Session),
	}
}

// Persist saves a copy of s under key.
func (m *MemoryStorage) Persist(_ context.Context, key string, s *Session) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if s == nil {
		return fmt.Errorf("session cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = s.Clone()
	return nil
}

// Load returns a copy of the session under key.
func (m *MemoryStorage) Load(_ context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, fmt.Errorf("session key cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key].Clone(), nil
}

// Remove deletes the session under key.
func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close drops all stored sessions.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]*Session)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
