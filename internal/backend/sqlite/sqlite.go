// Package sqlite is the embedded backend: a single SQLite file in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/backend/sqlbuild"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Declared column types with special handling.
const (
	typeBoolean   = "BOOLEAN"
	typeJSON      = "JSON"
	typeTimestamp = "TIMESTAMP"
)

// Store implements backend.Backend, backend.Caller and backend.Incrementer.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	dialect sqlbuild.Dialect
	columns map[string]map[string]string // table -> column -> declared type
	now     func() time.Time
}

var (
	_ backend.Backend     = (*Store)(nil)
	_ backend.Caller      = (*Store)(nil)
	_ backend.Incrementer = (*Store)(nil)
)

// Open creates or opens the database at path, applies pragmas and the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if s.columns, err = loadColumnTypes(db); err != nil {
		db.Close()
		return nil, err
	}

	s.dialect = sqlbuild.SQLite
	s.dialect.Convert = s.toSQL
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

func loadColumnTypes(db *sql.DB) (map[string]map[string]string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]map[string]string, len(tables))
	for _, table := range tables {
		// Table names come from sqlite_master, not user input.
		info, err := db.Query(fmt.Sprintf(`SELECT name, type FROM pragma_table_info('%s')`, table))
		if err != nil {
			return nil, fmt.Errorf("table info %s: %w", table, err)
		}
		cols := make(map[string]string)
		for info.Next() {
			var name, declared string
			if err := info.Scan(&name, &declared); err != nil {
				info.Close()
				return nil, fmt.Errorf("scan column info: %w", err)
			}
			cols[name] = strings.ToUpper(declared)
		}
		info.Close()
		out[table] = cols
	}
	return out, nil
}

func (s *Store) hasColumn(table, column string) bool {
	_, ok := s.columns[table][column]
	return ok
}

// toSQL converts a Go value for binding according to the column's declared type.
func (s *Store) toSQL(table, column string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch s.columns[table][column] {
	case typeBoolean:
		if b, ok := v.(bool); ok {
			if b {
				return 1, nil
			}
			return 0, nil
		}
	case typeJSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	case typeTimestamp:
		if t, ok := v.(time.Time); ok {
			return formatTime(t), nil
		}
	}
	if t, ok := v.(time.Time); ok {
		return formatTime(t), nil
	}
	return v, nil
}

// fromSQL converts a scanned value back according to the column's declared type.
func (s *Store) fromSQL(table, column string, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	switch s.columns[table][column] {
	case typeBoolean:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case typeJSON:
		if str, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(str), &out); err == nil {
				return out
			}
		}
	case typeTimestamp:
		if str, ok := v.(string); ok {
			if t, err := parseTime(str); err == nil {
				return t
			}
		}
	}
	return v
}

func (s *Store) known(table string) error {
	if _, ok := s.columns[table]; !ok {
		return fmt.Errorf("collection %q: %w", table, backend.ErrNotFound)
	}
	return nil
}

// Insert implements backend.Backend.
func (s *Store) Insert(ctx context.Context, collection string, rec backend.Record) (backend.Record, error) {
	if err := s.known(collection); err != nil {
		return nil, err
	}

	row := make(backend.Record, len(rec)+3)
	for k, v := range rec {
		row[k] = v
	}
	if row.String("id") == "" {
		row["id"] = uuid.NewString()
	}
	now := s.now()
	for _, col := range []string{"created_at", "updated_at"} {
		if _, set := row[col]; !set && s.hasColumn(collection, col) {
			row[col] = now
		}
	}

	q, err := s.dialect.Insert(collection, row)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s: no row returned", collection)
	}
	return rows[0], nil
}

// Delete implements backend.Backend.
func (s *Store) Delete(ctx context.Context, collection string, match backend.Match) (int, error) {
	if err := s.known(collection); err != nil {
		return 0, err
	}
	q, err := s.dialect.Delete(collection, match)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, q)
}

// Select implements backend.Backend.
func (s *Store) Select(ctx context.Context, collection string, match backend.Match, order ...backend.Order) ([]backend.Record, error) {
	if err := s.known(collection); err != nil {
		return nil, err
	}
	q, err := s.dialect.Select(collection, match, order...)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, collection, q)
}

// Update implements backend.Backend.
func (s *Store) Update(ctx context.Context, collection string, match backend.Match, fields backend.Record) (int, error) {
	if err := s.known(collection); err != nil {
		return 0, err
	}
	set := make(backend.Record, len(fields)+1)
	for k, v := range fields {
		set[k] = v
	}
	if _, ok := set["updated_at"]; !ok && s.hasColumn(collection, "updated_at") {
		set["updated_at"] = s.now()
	}
	q, err := s.dialect.Update(collection, match, set)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, q)
}

// Increment implements backend.Incrementer.
func (s *Store) Increment(ctx context.Context, collection string, match backend.Match, column string, delta int) (int, error) {
	if err := s.known(collection); err != nil {
		return 0, err
	}
	q, err := s.dialect.Increment(collection, match, column, delta)
	if err != nil {
		return 0, err
	}
	var next int
	if err := s.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, backend.ErrNotFound
		}
		return 0, fmt.Errorf("increment %s.%s: %w", collection, column, err)
	}
	return next, nil
}

// Call implements backend.Caller.
func (s *Store) Call(ctx context.Context, fn string, args backend.Record) error {
	switch fn {
	case backend.ProcDeleteCommunityPost:
		return s.deleteCommunityPost(ctx, args.String("post_id"), args.String("user_id"))
	default:
		return fmt.Errorf("procedure %s: %w", fn, backend.ErrUnsupported)
	}
}

func (s *Store) deleteCommunityPost(ctx context.Context, postID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM community_posts WHERE id = ?`, postID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load post: %w", err)
	}

	if owner != userID {
		var role string
		err = tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, userID).Scan(&role)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load caller: %w", err)
		}
		if role != "admin" {
			return backend.ErrForbidden
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("delete likes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM community_posts WHERE id = ?`, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return tx.Commit()
}

func (s *Store) exec(ctx context.Context, q sqlbuild.Query) (int, error) {
	res, err := s.db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *Store) query(ctx context.Context, table string, q sqlbuild.Query) ([]backend.Record, error) {
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []backend.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := make(backend.Record, len(cols))
		for i, col := range cols {
			rec[col] = s.fromSQL(table, col, values[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", backend.ErrDuplicate, err)
	}
	return err
}

// timeLayout is RFC3339 with fixed-width nanoseconds so stored values sort
// lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime formats a time.Time for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a RFC3339Nano string back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
