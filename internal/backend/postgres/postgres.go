// Package postgres is the hosted backend built on a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/backend/sqlbuild"
)

//go:embed schema.sql
var schemaSQL string

// Postgres error codes we translate.
const (
	codeUniqueViolation     = "23505"
	codeNoDataFound         = "P0002"
	codeInsufficientPrivRPC = "42501"
)

var nowUTC = func() time.Time { return time.Now().UTC() }

// Store implements backend.Backend, backend.Caller and backend.Incrementer.
type Store struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	columns map[string]map[string]bool
}

var (
	_ backend.Backend     = (*Store)(nil)
	_ backend.Caller      = (*Store)(nil)
	_ backend.Incrementer = (*Store)(nil)
)

// Open connects to url, applies the schema and loads the column catalog.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if s.columns, err = loadColumns(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func loadColumns(ctx context.Context, pool *pgxpool.Pool) (map[string]map[string]bool, error) {
	rows, err := pool.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema()`)
	if err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if out[table] == nil {
			out[table] = make(map[string]bool)
		}
		out[table][column] = true
	}
	return out, rows.Err()
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
	row := make(backend.Record, len(rec)+1)
	for k, v := range rec {
		row[k] = v
	}
	if row.String("id") == "" {
		row["id"] = uuid.NewString()
	}

	q, err := sqlbuild.Postgres.Insert(collection, row)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, q)
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
	q, err := sqlbuild.Postgres.Delete(collection, match)
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
	q, err := sqlbuild.Postgres.Select(collection, match, order...)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, q)
}

// Update implements backend.Backend.
func (s *Store) Update(ctx context.Context, collection string, match backend.Match, fields backend.Record) (int, error) {
	if err := s.known(collection); err != nil {
		return 0, err
	}
	q, err := sqlbuild.Postgres.Update(collection, match, withUpdatedAt(fields, s.columns[collection]["updated_at"]))
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
	q, err := sqlbuild.Postgres.Increment(collection, match, column, delta)
	if err != nil {
		return 0, err
	}
	var next int
	if err := s.pool.QueryRow(ctx, q.SQL, q.Args...).Scan(&next); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, backend.ErrNotFound
		}
		return 0, mapError(err)
	}
	return next, nil
}

// Call implements backend.Caller by invoking a stored function.
func (s *Store) Call(ctx context.Context, fn string, args backend.Record) error {
	switch fn {
	case backend.ProcDeleteCommunityPost:
		_, err := s.pool.Exec(ctx, `SELECT delete_community_post($1, $2)`, args.String("post_id"), args.String("user_id"))
		return mapError(err)
	default:
		return fmt.Errorf("procedure %s: %w", fn, backend.ErrUnsupported)
	}
}

func (s *Store) exec(ctx context.Context, q sqlbuild.Query) (int, error) {
	tag, err := s.pool.Exec(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, mapError(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) query(ctx context.Context, q sqlbuild.Query) ([]backend.Record, error) {
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []backend.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rec := make(backend.Record, len(fields))
		for i, f := range fields {
			rec[f.Name] = values[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func withUpdatedAt(fields backend.Record, hasColumn bool) backend.Record {
	if !hasColumn {
		return fields
	}
	if _, set := fields["updated_at"]; set {
		return fields
	}
	out := make(backend.Record, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["updated_at"] = nowUTC()
	return out
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", backend.ErrDuplicate, pgErr.ConstraintName)
		case codeNoDataFound:
			return backend.ErrNotFound
		case codeInsufficientPrivRPC:
			return backend.ErrForbidden
		}
	}
	return err
}
