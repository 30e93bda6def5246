package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the optional backing store, used when persistence.backend
// is "sqlite" (the persistence.sqlite_row_threshold setting is not
// consulted), grounded on the teacher's cmd/query-kb/main.go's
// database/sql + modernc.org/sqlite driver-registration pattern. Snapshot
// is stored as one row per logical array, each a JSON blob — the same
// shape JSONFileStore writes as a single file, just split across rows.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) a sqlite database at path
// and ensures the snapshot table exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshot_part (
		name TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: create table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Save(snap Snapshot) error {
	parts := map[string]any{
		"notes":      snap.Notes,
		"assertions": snap.Assertions,
		"rules":      snap.Rules,
		"config":     snap.Config,
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("persistence: begin tx: %w", err)
	}
	for name, v := range parts {
		data, err := json.Marshal(v)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("persistence: marshal %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO snapshot_part(name, data) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET data = excluded.data`, name, string(data)); err != nil {
			tx.Rollback()
			return fmt.Errorf("persistence: write %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Load() (Snapshot, error) {
	var snap Snapshot
	rows, err := s.db.Query(`SELECT name, data FROM snapshot_part`)
	if err != nil {
		return snap, fmt.Errorf("persistence: query snapshot_part: %w", err)
	}
	defer rows.Close()

	found := make(map[string][]byte)
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return snap, fmt.Errorf("persistence: scan: %w", err)
		}
		found[name] = []byte(data)
	}

	unmarshal := func(name string, dst any) error {
		data, ok := found[name]
		if !ok {
			return nil
		}
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		return dec.Decode(dst)
	}
	if err := unmarshal("notes", &snap.Notes); err != nil {
		return snap, err
	}
	if err := unmarshal("assertions", &snap.Assertions); err != nil {
		return snap, err
	}
	if err := unmarshal("rules", &snap.Rules); err != nil {
		return snap, err
	}
	if err := unmarshal("config", &snap.Config); err != nil {
		return snap, err
	}
	return snap, nil
}
