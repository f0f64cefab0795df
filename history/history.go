// Package history keeps a SQLite ledger of pipeline runs and the changes
// each transformer made in them.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/scour/transform"
)

// ErrRunNotFound indicates the requested run doesn't exist
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	classes     INTEGER NOT NULL,
	passes      INTEGER NOT NULL,
	changes     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS transformer_changes (
	run_id      INTEGER NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	runs        INTEGER NOT NULL,
	changes     INTEGER NOT NULL,
	failures    INTEGER NOT NULL,
	duration_us INTEGER NOT NULL,
	PRIMARY KEY (run_id, name)
);`

// Run is one recorded pipeline execution.
type Run struct {
	ID       int64
	Started  time.Time
	Finished time.Time
	Classes  int
	Passes   int
	Changes  int
	Err      string
	Stats    []transform.Stat
}

// Ledger handles SQLite storage for runs
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Record stores a run and its per-transformer stats in one transaction and
// returns the run's ID.
func (l *Ledger) Record(r *Run) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO runs (started_at, finished_at, classes, passes, changes, error) VALUES (?, ?, ?, ?, ?, ?)",
		r.Started.UTC().Format(time.RFC3339Nano), r.Finished.UTC().Format(time.RFC3339Nano),
		r.Classes, r.Passes, r.Changes, r.Err,
	)
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}

	for _, st := range r.Stats {
		_, err := tx.Exec(
			"INSERT INTO transformer_changes (run_id, name, runs, changes, failures, duration_us) VALUES (?, ?, ?, ?, ?, ?)",
			id, st.Name, st.Runs, st.Changes, st.Failures, st.Duration.Microseconds(),
		)
		if err != nil {
			return 0, fmt.Errorf("recording stats for %s: %w", st.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	r.ID = id
	return id, nil
}

// Get loads a run with its stats.
func (l *Ledger) Get(id int64) (*Run, error) {
	row := l.db.QueryRow(
		"SELECT id, started_at, finished_at, classes, passes, changes, error FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}

	rows, err := l.db.Query(
		"SELECT name, runs, changes, failures, duration_us FROM transformer_changes WHERE run_id = ? ORDER BY rowid", id)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st transform.Stat
		var us int64
		if err := rows.Scan(&st.Name, &st.Runs, &st.Changes, &st.Failures, &us); err != nil {
			return nil, fmt.Errorf("scanning stats: %w", err)
		}
		st.Duration = time.Duration(us) * time.Microsecond
		r.Stats = append(r.Stats, st)
	}
	return r, rows.Err()
}

// Recent returns up to limit runs, newest first, without stats.
func (l *Ledger) Recent(limit int) ([]*Run, error) {
	rows, err := l.db.Query(
		"SELECT id, started_at, finished_at, classes, passes, changes, error FROM runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var started, finished string
	if err := s.Scan(&r.ID, &started, &finished, &r.Classes, &r.Passes, &r.Changes, &r.Err); err != nil {
		return nil, err
	}
	var err error
	if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parsing start time: %w", err)
	}
	if r.Finished, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return nil, fmt.Errorf("parsing finish time: %w", err)
	}
	return &r, nil
}
