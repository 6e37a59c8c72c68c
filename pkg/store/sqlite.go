package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/aura-comms/aura/pkg/fault"
)

// SQLite is the durable Store used by the production interpreter. A single
// kv table holds every namespaced entry; WAL mode lets readers and the
// writer operate simultaneously.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the key-value store at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fault.New(fault.Storage, "KV_OPEN", "open sqlite store").WithCause(err)
	}

	// Serialize writers at the driver level; readers proceed via WAL.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fault.New(fault.Storage, "KV_PRAGMA", "configure sqlite store").WithCause(err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fault.New(fault.Storage, "KV_SCHEMA", "create kv table").WithCause(err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Store(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fault.Newf(fault.Storage, "KV_WRITE", "store %q", key).WithCause(err)
	}
	return nil
}

func (s *SQLite) Retrieve(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fault.Newf(fault.Storage, "KV_READ", "retrieve %q", key).WithCause(err)
	}
	return value, true, nil
}

func (s *SQLite) Remove(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fault.Newf(fault.Storage, "KV_DELETE", "remove %q", key).WithCause(err)
	}
	return nil
}

func (s *SQLite) ListKeys(prefix string) ([]string, error) {
	// Range scan on the primary key; lexicographic by construction.
	rows, err := s.db.Query(
		`SELECT key FROM kv WHERE key >= ? AND key < ? ORDER BY key`,
		prefix, prefix+"\xff")
	if err != nil {
		return nil, fault.Newf(fault.Storage, "KV_SCAN", "list %q", prefix).WithCause(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fault.New(fault.Storage, "KV_SCAN", "scan key").WithCause(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.New(fault.Storage, "KV_SCAN", "iterate keys").WithCause(err)
	}
	return keys, nil
}

func (s *SQLite) Exists(key string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM kv WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fault.Newf(fault.Storage, "KV_READ", "exists %q", key).WithCause(err)
	}
	return true, nil
}

func (s *SQLite) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(LENGTH(value)), 0) FROM kv`).
		Scan(&st.KeyCount, &st.TotalSize)
	if err != nil {
		return Stats{}, fault.New(fault.Storage, "KV_STATS", "collect stats").WithCause(err)
	}
	return st, nil
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite store: %w", err)
	}
	return nil
}
