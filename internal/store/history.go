// Package store persists check runs to a local SQLite database so past
// results can be listed and reported on without refetching the datasheet.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one completed comparison run.
type Run struct {
	ID             string
	Datasheet      string
	StartedAt      time.Time
	FinishedAt     time.Time
	RecordsChecked int
	Flagged        int
	Findings       []Finding
}

// Finding is one flagged field of one record.
type Finding struct {
	RecordID   string
	RecordName string
	FieldName  string
	Parameters []int
}

// HistoryStore is the run-history database. Safe for concurrent use; the
// connection pool is capped at one because sqlite serializes writers anyway.
type HistoryStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open initializes the history database at path, creating directories and
// schema as needed.
func Open(path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &HistoryStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *HistoryStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		datasheet TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		records_checked INTEGER NOT NULL,
		flagged INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS findings (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		record_id TEXT NOT NULL,
		record_name TEXT NOT NULL,
		field_name TEXT NOT NULL,
		parameters TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// SaveRun persists a run and its findings in one transaction. A missing ID
// is assigned.
func (s *HistoryStore) SaveRun(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, datasheet, started_at, finished_at, records_checked, flagged)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Datasheet, run.StartedAt, run.FinishedAt, run.RecordsChecked, run.Flagged,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, f := range run.Findings {
		params, err := json.Marshal(f.Parameters)
		if err != nil {
			return fmt.Errorf("marshal parameters: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO findings (run_id, record_id, record_name, field_name, parameters)
			 VALUES (?, ?, ?, ?, ?)`,
			run.ID, f.RecordID, f.RecordName, f.FieldName, string(params),
		)
		if err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, without findings.
func (s *HistoryStore) ListRuns(limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, datasheet, started_at, finished_at, records_checked, flagged
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Datasheet, &r.StartedAt, &r.FinishedAt, &r.RecordsChecked, &r.Flagged); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = fmt.Errorf("run not found")

// GetRun returns one run with its findings. An empty id returns the most
// recent run.
func (s *HistoryStore) GetRun(id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, datasheet, started_at, finished_at, records_checked, flagged FROM runs WHERE id = ?`
	args := []interface{}{id}
	if id == "" {
		query = `SELECT id, datasheet, started_at, finished_at, records_checked, flagged
		         FROM runs ORDER BY started_at DESC LIMIT 1`
		args = nil
	}

	var r Run
	err := s.db.QueryRow(query, args...).Scan(
		&r.ID, &r.Datasheet, &r.StartedAt, &r.FinishedAt, &r.RecordsChecked, &r.Flagged)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT record_id, record_name, field_name, parameters FROM findings WHERE run_id = ? ORDER BY rowid`,
		r.ID)
	if err != nil {
		return nil, fmt.Errorf("load findings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f Finding
		var params string
		if err := rows.Scan(&f.RecordID, &f.RecordName, &f.FieldName, &params); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &f.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
		r.Findings = append(r.Findings, f)
	}
	return &r, rows.Err()
}
