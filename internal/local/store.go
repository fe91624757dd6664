// Package local persists device-scoped state as small JSON files: the guest
// profile and the authenticated session.
package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Store holds at most one value of T.
type Store[T any] interface {
	// Load returns the stored value, or nil when nothing is stored.
	Load() (*T, error)
	Save(v T) error
	// Clear removes the stored value. Clearing an empty store is not an error.
	Clear() error
}

// File is a Store backed by a JSON file. Writes go through a temp file and a
// rename so a crash never leaves a torn file.
type File[T any] struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a file store at path. The parent directory is created on
// the first Save.
func NewFile[T any](path string) *File[T] {
	return &File[T]{path: path}
}

// Path returns the backing file path.
func (f *File[T]) Path() string { return f.path }

func (f *File[T]) Load() (*T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	return &v, nil
}

func (f *File[T]) Save(v T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", f.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}

func (f *File[T]) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", f.path, err)
	}
	return nil
}

// Memory is an in-process Store, used in tests and for ephemeral runs.
type Memory[T any] struct {
	mu sync.Mutex
	v  *T
}

// NewMemory returns an empty in-memory store.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{}
}

func (m *Memory[T]) Load() (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.v == nil {
		return nil, nil
	}
	cp := *m.v
	return &cp, nil
}

func (m *Memory[T]) Save(v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v = &v
	return nil
}

func (m *Memory[T]) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v = nil
	return nil
}
