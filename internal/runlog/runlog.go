// Package runlog keeps the history of harvest runs in SQLite.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/02loveslollipop/sensorthings-metadata/internal/harvest"
)

// timeLayout has a fixed width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded run. Created, Updated and Unchanged are nil when the
// run was not incremental or failed.
type Entry struct {
	ID         string    `json:"id"`
	Endpoint   string    `json:"endpoint"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Status     string    `json:"status"`
	Pages      int       `json:"pages"`
	Skipped    int       `json:"skipped"`
	Records    int       `json:"records"`
	Created    *int      `json:"created,omitempty"`
	Updated    *int      `json:"updated,omitempty"`
	Unchanged  *int      `json:"unchanged,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Store is the SQLite run history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create runlog dir: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open runlog db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate runlog db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Name() string { return "runlog" }

// Publish records run. It implements harvest.Publisher.
func (s *Store) Publish(ctx context.Context, run harvest.Run) error {
	var records int
	var created, updated, unchanged sql.NullInt64
	if snap := run.Snapshot; snap != nil {
		records = len(snap.Records)
		if sum := snap.Incremental; sum != nil {
			created = sql.NullInt64{Int64: int64(sum.Created), Valid: true}
			updated = sql.NullInt64{Int64: int64(sum.Updated), Valid: true}
			unchanged = sql.NullInt64{Int64: int64(sum.Unchanged), Valid: true}
		}
	}
	var errText string
	if run.Err != nil {
		errText = run.Err.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO harvest_runs (id, endpoint, started_at, duration_ms, status, pages, skipped, records, created, updated, unchanged, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Endpoint, run.StartedAt.UTC().Format(timeLayout), run.Duration.Milliseconds(),
		run.Status(), run.Pages, run.Skipped, records, created, updated, unchanged, errText,
	)
	if err != nil {
		return fmt.Errorf("insert harvest run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint, started_at, duration_ms, status, pages, skipped, records, created, updated, unchanged, error
		 FROM harvest_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query harvest runs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var started string
		var created, updated, unchanged sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Endpoint, &started, &e.DurationMS, &e.Status, &e.Pages,
			&e.Skipped, &e.Records, &created, &updated, &unchanged, &e.Error); err != nil {
			return nil, fmt.Errorf("scan harvest run: %w", err)
		}
		e.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", started, err)
		}
		e.Created = intPtr(created)
		e.Updated = intPtr(updated)
		e.Unchanged = intPtr(unchanged)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
