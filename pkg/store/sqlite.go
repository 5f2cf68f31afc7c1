package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteFileName = "state.sqlite"

const createDocumentsTable = `CREATE TABLE IF NOT EXISTS documents (
	name TEXT PRIMARY KEY,
	body BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps documents as rows of a single SQLite table.
type SQLiteStore struct {
	sqlDB *sql.DB
}

func OpenSQLiteStore(baseDir string) (*SQLiteStore, error) {
	if baseDir == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, unavailable("create", baseDir, err)
	}
	path := filepath.Join(filepath.Clean(baseDir), sqliteFileName)
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open", path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, unavailable("ping", path, err)
	}
	if _, err := sqlDB.Exec(createDocumentsTable); err != nil {
		_ = sqlDB.Close()
		return nil, unavailable("migrate", path, err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) Load(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	var body []byte
	err := s.sqlDB.QueryRow(`SELECT body FROM documents WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("read", name, err)
	}
	return body, nil
}

func (s *SQLiteStore) Save(name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	_, err := s.sqlDB.Exec(
		`INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		name, data, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return unavailable("write", name, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
