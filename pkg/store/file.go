package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

const lockFileName = ".gatekeeper.lock"

// FileStore keeps one <name>.json file per document under a directory.
// The directory is held under an exclusive lock while the store is open.
type FileStore struct {
	baseDir string
	lock    *flock.Flock

	mu     sync.Mutex
	onSave func(path string, data []byte)
}

func OpenFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, unavailable("create", baseDir, err)
	}
	lock := flock.New(filepath.Join(baseDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, unavailable("lock", baseDir, err)
	}
	if !locked {
		return nil, fmt.Errorf("state directory %s is in use by another process", baseDir)
	}
	return &FileStore{baseDir: baseDir, lock: lock}, nil
}

// Dir returns the directory holding the documents.
func (s *FileStore) Dir() string {
	return s.baseDir
}

// Path returns the file backing the named document.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.baseDir, name+".json")
}

// OnSave registers fn to be called after every successful save.
func (s *FileStore) OnSave(fn func(path string, data []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSave = fn
}

func (s *FileStore) Load(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, unavailable("read", name, err)
	}
	return data, nil
}

func (s *FileStore) Save(name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	path := s.Path(name)
	tmp, err := os.CreateTemp(s.baseDir, "."+name+"-*.tmp")
	if err != nil {
		return unavailable("write", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return unavailable("write", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return unavailable("sync", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return unavailable("write", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return unavailable("chmod", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return unavailable("rename", name, err)
	}

	s.mu.Lock()
	hook := s.onSave
	s.mu.Unlock()
	if hook != nil {
		hook(path, data)
	}
	return nil
}

func (s *FileStore) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}
