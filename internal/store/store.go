// Package store loads workload vulnerability reports into SQLite and
// computes image remediation metrics from them.
package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/buemura/sectools/internal/report/workload"
	_ "github.com/mattn/go-sqlite3"
)

// ErrDatabaseExists is returned by Create when the file is already present.
var ErrDatabaseExists = errors.New("database file already exists")

// DefaultPath is the database file used when none is given.
const DefaultPath = "vulns.db"

// Store wraps a SQLite database holding the vulns table.
type Store struct {
	db      *sql.DB
	columns []string
}

// ColumnName converts a report title to its SQL column, e.g.
// "K8S POD count" -> "K8S_POD_count".
func ColumnName(title string) string {
	return strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
}

func schemaColumns() []string {
	cols := make([]string, len(workload.Columns))
	for i, c := range workload.Columns {
		cols[i] = ColumnName(c.Title)
	}
	return cols
}

// Create makes a new database at path with an empty vulns table.
func Create(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking database file %s: %w", path, err)
	}

	s, err := open(path, "rwc")
	if err != nil {
		return nil, err
	}

	defs := make([]string, len(s.columns))
	for i, c := range s.columns {
		defs[i] = c + " TEXT"
	}
	schema := fmt.Sprintf("CREATE TABLE vulns (%s)", strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create vulns table: %w", err)
	}
	return s, nil
}

// Open opens an existing database read-write.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	return open(path, "rw")
}

func open(path, mode string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path, mode))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return &Store{db: db, columns: schemaColumns()}, nil
}

// dsn builds a sqlite URI filename; the path is escaped so '?' and '#' in
// it are not read as URI parameters or fragment.
func dsn(path, mode string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=" + mode + "&_busy_timeout=3000"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadCSV inserts every row of a workload report CSV. The header row maps
// CSV fields to table columns; unknown headers are rejected. All rows are
// written in one transaction.
func (s *Store) LoadCSV(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return 0, errors.New("CSV input is empty")
	}
	if err != nil {
		return 0, fmt.Errorf("reading CSV header: %w", err)
	}

	known := make(map[string]string, len(s.columns))
	for _, c := range s.columns {
		known[strings.ToLower(c)] = c
	}
	targets := make([]string, len(header))
	for i, h := range header {
		col, ok := known[strings.ToLower(ColumnName(h))]
		if !ok {
			return 0, fmt.Errorf("unknown CSV column %q", h)
		}
		targets[i] = col
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(targets)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO vulns (%s) VALUES (%s)",
		strings.Join(targets, ", "), placeholders))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading CSV row %d: %w", count+2, err)
		}
		args := make([]any, len(rec))
		for i, v := range rec {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("inserting CSV row %d: %w", count+2, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return count, nil
}

// Count returns the number of rows in the vulns table.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM vulns").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return n, nil
}
