// Package storage persists Taskhub documents in an embedded SQLite database.
//
// Each collection is a table of JSON documents keyed by UUID. Filters run
// against the documents with json_extract and json_each, and unique
// constraints are expression indexes over document fields.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Collection table names.
const (
	tableUsers      = "users"
	tableRoles      = "roles"
	tableStates     = "states"
	tableCategories = "categories"
	tableProjects   = "projects"
	tableTasks      = "tasks"
	tableComments   = "comments"
)

var collections = []string{
	tableUsers, tableRoles, tableStates, tableCategories,
	tableProjects, tableTasks, tableComments,
}

// Store provides document storage backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	for _, table := range collections {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			doc        TEXT    NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`, table)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}

	indexes := `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email   ON users(json_extract(doc, '$.email'));
		CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_name    ON roles(json_extract(doc, '$.name'));
		CREATE UNIQUE INDEX IF NOT EXISTS idx_states_name   ON states(json_extract(doc, '$.type'), json_extract(doc, '$.name'));
		CREATE INDEX IF NOT EXISTS idx_projects_owner       ON projects(json_extract(doc, '$.owner'));
		CREATE INDEX IF NOT EXISTS idx_projects_updated     ON projects(updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_tasks_project        ON tasks(json_extract(doc, '$.project'));
		CREATE INDEX IF NOT EXISTS idx_tasks_assignee       ON tasks(json_extract(doc, '$.assignedTo'));
		CREATE INDEX IF NOT EXISTS idx_comments_project     ON comments(json_extract(doc, '$.project'));
		CREATE INDEX IF NOT EXISTS idx_comments_task        ON comments(json_extract(doc, '$.task'));
	`
	if _, err := s.db.Exec(indexes); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// ─── Pagination ──────────────────────────────────────────────────────────────

// MaxPageSize caps the limit of any list query.
const MaxPageSize = 100

// Page selects a window of a list query. Page numbers start at 1.
type Page struct {
	Page  int
	Limit int
}

// Normalize applies defaults and bounds.
func (p Page) Normalize(defaultLimit int) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// Offset is the number of rows skipped before the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Result is one page of a list query plus the total match count.
type Result[T any] struct {
	Items []*T
	Total int
}

// ─── Document helpers ────────────────────────────────────────────────────────

func newID() string {
	return uuid.New().String()
}

func (s *Store) insertDoc(ctx context.Context, table, id string, doc any, at time.Time) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", table, err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)`, table),
		id, string(data), at.UnixNano(), at.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (s *Store) updateDoc(ctx context.Context, table, id string, doc any, at time.Time) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", table, err)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = ?, updated_at = ? WHERE id = ?`, table),
		string(data), at.UnixNano(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func getDoc[T any](ctx context.Context, s *Store, table, id string) (*T, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = ?`, table), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", table, err)
	}
	return &v, nil
}

func queryDocs[T any](ctx context.Context, s *Store, query string, args ...any) ([]*T, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// where accumulates SQL predicates and their arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) addIf(value, clause string) {
	if value != "" {
		w.add(clause, value)
	}
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	out := " WHERE " + w.clauses[0]
	for _, c := range w.clauses[1:] {
		out += " AND " + c
	}
	return out
}

// page runs a count and a windowed select over the same predicate.
func page[T any](ctx context.Context, s *Store, table string, w *where, orderBy string, p Page) (Result[T], error) {
	total, err := s.count(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, table, w.String()), w.args...)
	if err != nil {
		return Result[T]{}, err
	}
	args := append(append([]any{}, w.args...), p.Limit, p.Offset())
	items, err := queryDocs[T](ctx, s,
		fmt.Sprintf(`SELECT doc FROM %s%s ORDER BY %s LIMIT ? OFFSET ?`, table, w.String(), orderBy),
		args...)
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{Items: items, Total: total}, nil
}
