// Package sqlbuild renders backend operations as parameterized SQL for the sqlite
// and postgres adapters.
package sqlbuild

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/townsquareapp/townsquare-server/internal/backend"
)

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidIdentifier reports whether s is safe to splice into SQL as a table or
// column name.
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// Dialect captures the differences between SQL engines.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Greatest is the two-argument maximum function.
	Greatest string
	// Convert adapts a Go value for binding to table.column. Nil passes values through.
	Convert func(table, column string, v any) (any, error)
}

// SQLite uses ? placeholders and scalar MAX.
var SQLite = Dialect{
	Placeholder: func(int) string { return "?" },
	Greatest:    "MAX",
}

// Postgres uses $n placeholders and GREATEST.
var Postgres = Dialect{
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Greatest:    "GREATEST",
}

// Query is rendered SQL plus its bind arguments.
type Query struct {
	SQL  string
	Args []any
}

type builder struct {
	d     Dialect
	table string
	sb    strings.Builder
	args  []any
}

func (d Dialect) start(table string) (*builder, error) {
	if !ValidIdentifier(table) {
		return nil, fmt.Errorf("table %q: %w", table, backend.ErrInvalidIdentifier)
	}
	return &builder{d: d, table: table}, nil
}

func (b *builder) bind(column string, v any) (string, error) {
	if b.d.Convert != nil {
		var err error
		if v, err = b.d.Convert(b.table, column, v); err != nil {
			return "", fmt.Errorf("column %s: %w", column, err)
		}
	}
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args)), nil
}

func (b *builder) where(match backend.Match) error {
	if len(match) == 0 {
		return nil
	}
	b.sb.WriteString(" WHERE ")
	for i, cond := range match {
		if !ValidIdentifier(cond.Column) {
			return fmt.Errorf("column %q: %w", cond.Column, backend.ErrInvalidIdentifier)
		}
		if i > 0 {
			b.sb.WriteString(" AND ")
		}
		switch cond.Op {
		case backend.OpEq:
			if cond.Value == nil {
				b.sb.WriteString(quote(cond.Column) + " IS NULL")
				continue
			}
			ph, err := b.bind(cond.Column, cond.Value)
			if err != nil {
				return err
			}
			b.sb.WriteString(quote(cond.Column) + " = " + ph)
		case backend.OpIn:
			if len(cond.Values) == 0 {
				b.sb.WriteString("1 = 0")
				continue
			}
			phs := make([]string, len(cond.Values))
			for j, v := range cond.Values {
				ph, err := b.bind(cond.Column, v)
				if err != nil {
					return err
				}
				phs[j] = ph
			}
			b.sb.WriteString(quote(cond.Column) + " IN (" + strings.Join(phs, ", ") + ")")
		default:
			return fmt.Errorf("operator %q: %w", cond.Op, backend.ErrUnsupported)
		}
	}
	return nil
}

func (b *builder) query() Query {
	return Query{SQL: b.sb.String(), Args: b.args}
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func sortedColumns(rec backend.Record) ([]string, error) {
	cols := make([]string, 0, len(rec))
	for c := range rec {
		if !ValidIdentifier(c) {
			return nil, fmt.Errorf("column %q: %w", c, backend.ErrInvalidIdentifier)
		}
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return cols, nil
}

// Insert renders INSERT ... RETURNING *.
func (d Dialect) Insert(table string, rec backend.Record) (Query, error) {
	b, err := d.start(table)
	if err != nil {
		return Query{}, err
	}
	cols, err := sortedColumns(rec)
	if err != nil {
		return Query{}, err
	}
	if len(cols) == 0 {
		b.sb.WriteString("INSERT INTO " + quote(table) + " DEFAULT VALUES RETURNING *")
		return b.query(), nil
	}

	quoted := make([]string, len(cols))
	phs := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		if phs[i], err = b.bind(c, rec[c]); err != nil {
			return Query{}, err
		}
	}
	b.sb.WriteString("INSERT INTO " + quote(table) + " (" + strings.Join(quoted, ", ") + ") VALUES (" +
		strings.Join(phs, ", ") + ") RETURNING *")
	return b.query(), nil
}

// Select renders SELECT * with optional WHERE and ORDER BY.
func (d Dialect) Select(table string, match backend.Match, order ...backend.Order) (Query, error) {
	b, err := d.start(table)
	if err != nil {
		return Query{}, err
	}
	b.sb.WriteString("SELECT * FROM " + quote(table))
	if err := b.where(match); err != nil {
		return Query{}, err
	}
	if len(order) > 0 {
		parts := make([]string, len(order))
		for i, o := range order {
			if !ValidIdentifier(o.Column) {
				return Query{}, fmt.Errorf("order column %q: %w", o.Column, backend.ErrInvalidIdentifier)
			}
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			parts[i] = quote(o.Column) + " " + dir
		}
		b.sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	return b.query(), nil
}

// Delete renders DELETE with optional WHERE.
func (d Dialect) Delete(table string, match backend.Match) (Query, error) {
	b, err := d.start(table)
	if err != nil {
		return Query{}, err
	}
	b.sb.WriteString("DELETE FROM " + quote(table))
	if err := b.where(match); err != nil {
		return Query{}, err
	}
	return b.query(), nil
}

// Update renders UPDATE ... SET with optional WHERE.
func (d Dialect) Update(table string, match backend.Match, fields backend.Record) (Query, error) {
	b, err := d.start(table)
	if err != nil {
		return Query{}, err
	}
	cols, err := sortedColumns(fields)
	if err != nil {
		return Query{}, err
	}
	if len(cols) == 0 {
		return Query{}, fmt.Errorf("update %s: no fields", table)
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		ph, err := b.bind(c, fields[c])
		if err != nil {
			return Query{}, err
		}
		sets[i] = quote(c) + " = " + ph
	}
	b.sb.WriteString("UPDATE " + quote(table) + " SET " + strings.Join(sets, ", "))
	if err := b.where(match); err != nil {
		return Query{}, err
	}
	return b.query(), nil
}

// Increment renders an UPDATE that adds delta to column, clamped at zero, and
// returns the new value.
func (d Dialect) Increment(table string, match backend.Match, column string, delta int) (Query, error) {
	b, err := d.start(table)
	if err != nil {
		return Query{}, err
	}
	if !ValidIdentifier(column) {
		return Query{}, fmt.Errorf("column %q: %w", column, backend.ErrInvalidIdentifier)
	}
	b.args = append(b.args, delta)
	q := quote(column)
	b.sb.WriteString("UPDATE " + quote(table) + " SET " + q + " = " + d.Greatest + "(" + q + " + " +
		d.Placeholder(1) + ", 0)")
	if err := b.where(match); err != nil {
		return Query{}, err
	}
	b.sb.WriteString(" RETURNING " + q)
	return b.query(), nil
}
