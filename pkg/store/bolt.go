package store

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	boltFileName   = "state.db"
	documentBucket = "documents"
)

// BoltStore keeps documents in a single bbolt database file.
type BoltStore struct {
	path string
	db   *bolt.DB
}

func OpenBoltStore(baseDir string) (*BoltStore, error) {
	if baseDir == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, unavailable("create", baseDir, err)
	}
	path := filepath.Join(baseDir, boltFileName)
	// bbolt holds an exclusive flock on the file; a second process times out.
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, unavailable("open", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(documentBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, unavailable("init", path, err)
	}
	return &BoltStore{path: path, db: db}, nil
}

func (s *BoltStore) Load(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(documentBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(name)); v != nil {
			// values are only valid for the life of the transaction
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("read", name, err)
	}
	return out, nil
}

func (s *BoltStore) Save(name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(documentBucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
	if err != nil {
		return unavailable("write", name, err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
