package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable marks failures of the durable storage itself (unwritable
// directory, full disk, closed database). Callers treat it as fatal for the
// mutation that triggered it.
var ErrUnavailable = errors.New("storage unavailable")

const (
	DriverJSON   = "json"
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Backend persists named documents as whole snapshots.
//
// Load returns nil data and a nil error for a name that was never saved.
// Save replaces the previous snapshot entirely.
type Backend interface {
	Load(name string) ([]byte, error)
	Save(name string, data []byte) error
	Close() error
}

// Open returns the backend for driver rooted at dir.
func Open(driver, dir string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverJSON:
		return OpenFileStore(dir)
	case DriverBolt:
		return OpenBoltStore(dir)
	case DriverSQLite:
		return OpenSQLiteStore(dir)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

func unavailable(op, name string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, name, ErrUnavailable, err)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid document name %q", name)
	}
	return nil
}
