// Package history records a append-only log of mtdu runs to a local
// SQLite database, so repeated scans of the same tree can be compared
// over time without re-walking it.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const scansTableDDL = `
CREATE TABLE IF NOT EXISTS scans (
    id TEXT PRIMARY KEY,
    root TEXT NOT NULL,
    apparent_size INTEGER NOT NULL,
    disk_usage INTEGER NOT NULL,
    file_count INTEGER NOT NULL,
    dir_count INTEGER NOT NULL,
    error_count INTEGER NOT NULL,
    started_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL
);
`

const scansRootIndexDDL = `CREATE INDEX IF NOT EXISTS idx_scans_root ON scans(root);`

const insertScanSQL = `
INSERT INTO scans (id, root, apparent_size, disk_usage, file_count, dir_count, error_count, started_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Scan is one recorded run of mtdu against a root path.
type Scan struct {
	ID           string
	Root         string
	ApparentSize int64
	DiskUsage    int64
	FileCount    int64
	DirCount     int64
	ErrorCount   int64
	StartedAt    time.Time
	Duration     time.Duration
}

// Store is a handle on one history database, one file per --history path.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path and ensures its
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.Exec(scansTableDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	if _, err := db.Exec(scansRootIndexDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create index: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply pragma: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one scan to the history log, assigning it a fresh ID if
// one was not already set, and returns the ID actually used.
func (s *Store) Record(sc Scan) (string, error) {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	_, err := s.db.Exec(insertScanSQL,
		sc.ID, sc.Root, sc.ApparentSize, sc.DiskUsage,
		sc.FileCount, sc.DirCount, sc.ErrorCount,
		sc.StartedAt.Unix(), sc.Duration.Milliseconds(),
	)
	if err != nil {
		return "", fmt.Errorf("history: record scan: %w", err)
	}
	return sc.ID, nil
}

// Recent returns the most recent n scans recorded against root, newest
// first.
func (s *Store) Recent(root string, n int) ([]Scan, error) {
	rows, err := s.db.Query(`
		SELECT id, root, apparent_size, disk_usage, file_count, dir_count, error_count, started_at, duration_ms
		FROM scans WHERE root = ? ORDER BY started_at DESC LIMIT ?`, root, n)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		var sc Scan
		var startedAt, durationMs int64
		if err := rows.Scan(&sc.ID, &sc.Root, &sc.ApparentSize, &sc.DiskUsage,
			&sc.FileCount, &sc.DirCount, &sc.ErrorCount, &startedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		sc.StartedAt = time.Unix(startedAt, 0)
		sc.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, sc)
	}
	return out, rows.Err()
}
