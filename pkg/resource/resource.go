// Package resource reads and writes the shared state file guarded by the
// lock. The store never coordinates access itself: callers mutate only
// while holding the corresponding lock.
package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Read returns the current content. A missing file reads as empty,
// matching a resource that has not been initialized yet.
func (s *Store) Read() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read resource %s: %w", s.path, err)
	}
	return string(data), nil
}

// WriteAtomic replaces the content with a whole-or-nothing update:
// the new content lands in a temp file in the same directory, is synced,
// then renamed over the resource. Readers never observe a partial write.
func (s *Store) WriteAtomic(content string) error {
	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, ".resource-*.tmp")
	if err != nil {
		return fmt.Errorf("write resource %s: %w", s.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write resource %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync resource %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close resource temp %s: %w", s.path, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace resource %s: %w", s.path, err)
	}
	return nil
}

// AppendLine appends one newline-terminated line and flushes it to disk.
func (s *Store) AppendLine(line string) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("append resource %s: %w", s.path, err)
	}

	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return fmt.Errorf("append resource %s: %w", s.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync resource %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close resource %s: %w", s.path, err)
	}
	return nil
}
