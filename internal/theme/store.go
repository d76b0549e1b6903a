package theme

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotStored is returned by Store.Load when nothing has been persisted.
var ErrNotStored = errors.New("theme: settings not stored")

// Store persists the encoded settings blob for a single owner.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// FileStore keeps one JSON file per owner inside a directory.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing <dir>/<owner>/<StorageKey>.json.
func NewFileStore(dir, owner string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("theme: file store directory is required")
	}
	if owner == "" || owner != filepath.Base(owner) || owner == "." || owner == ".." {
		return nil, fmt.Errorf("theme: invalid owner %q", owner)
	}
	return &FileStore{path: filepath.Join(dir, owner, StorageKey+".json")}, nil
}

// Path is the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotStored
	}
	return data, err
}

func (s *FileStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create preferences directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
	ok   bool
}

func (s *MemoryStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return nil, ErrNotStored
	}
	return append([]byte(nil), s.data...), nil
}

func (s *MemoryStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.ok = true
	return nil
}

func (s *MemoryStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data, s.ok = nil, false
	return nil
}
