package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	sessionFileExt     = ".json"
	sessionDirPerm     = 0o700
	sessionFilePerm    = 0o600
	sessionTempPattern = ".session-*"
)

// FileStorage implements Storage with one JSON file per key.
// Sessions survive restarts and can be shared by processes on one host.
type FileStorage struct {
	baseDir string
}

// NewFileStorage creates a file storage rooted at baseDir. The directory is
// created on first write.
func NewFileStorage(baseDir string) *FileStorage {
	return &FileStorage{baseDir: baseDir}
}

// Persist writes s to the key's file. The file is replaced atomically so a
// concurrent reader in another process never sees a partial session.
func (f *FileStorage) Persist(_ context.Context, key string, s *Session) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if s == nil {
		return fmt.Errorf("session cannot be nil")
	}

	if err := os.MkdirAll(f.baseDir, sessionDirPerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	tmp, err := os.CreateTemp(f.baseDir, sessionTempPattern)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if err := tmp.Chmod(sessionFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpName, f.Path(key)); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Load reads the key's file. A missing file yields (nil, nil).
func (f *FileStorage) Load(_ context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, fmt.Errorf("session key cannot be empty")
	}

	data, err := os.ReadFile(f.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}
	return &s, nil
}

// Remove deletes the key's file, ignoring a missing file.
func (f *FileStorage) Remove(_ context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}

	if err := os.Remove(f.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Close is a no-op; FileStorage holds no open handles.
func (f *FileStorage) Close() error {
	return nil
}

// Path returns the file that holds key.
func (f *FileStorage) Path(key string) string {
	return filepath.Join(f.baseDir, sanitizeKey(key)+sessionFileExt)
}

// sanitizeKey keeps keys from escaping the base directory.
func sanitizeKey(key string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_").Replace(key)
}
