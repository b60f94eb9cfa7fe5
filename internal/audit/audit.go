// Package audit persists the apply-phase trail: one row per processed
// intent record, queryable after the run. The sink is optional; runs
// without a database configured simply skip it.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Entry is one audited outcome.
type Entry struct {
	RunID      string
	Index      int
	OutputType string
	Outcome    string // ok, skipped, error
	Detail     string
	URL        string
	At         time.Time
}

// Sink records audit entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// PostgresSink writes entries to the audit_entries table.
type PostgresSink struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

// NewPostgresSink wraps an existing connection, for tests.
func NewPostgresSink(db *sql.DB) *PostgresSink { return &PostgresSink{db: db} }

func (s *PostgresSink) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (run_id, item_index, output_type, outcome, detail, url, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.RunID, e.Index, e.OutputType, e.Outcome, e.Detail, e.URL, e.At)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error { return s.db.Close() }

// RunEntries returns the audit trail for one run, in item order.
func (s *PostgresSink) RunEntries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, item_index, output_type, outcome, detail, url, recorded_at
		 FROM audit_entries WHERE run_id = $1 ORDER BY item_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.Index, &e.OutputType, &e.Outcome, &e.Detail, &e.URL, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Migrate applies the audit schema migrations.
// dir example: file://migrations
func Migrate(dir, dsn string) error {
	if dir == "" {
		dir = "file://migrations"
	}
	m, err := migrate.New(dir, dsn)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// NopSink drops every entry. Used when auditing is not configured.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) error { return nil }
func (NopSink) Close() error                        { return nil }

var (
	_ Sink = (*PostgresSink)(nil)
	_ Sink = NopSink{}
)
