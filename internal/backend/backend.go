// Package backend defines the storage port the membership, counter and list-cache
// components talk to. Adapters live in the subpackages: memory, sqlite, postgres
// and rest.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Record is one row, keyed by column name.
type Record map[string]any

// String returns the column as a string, or "" if absent or not a string.
func (r Record) String(column string) string {
	s, _ := r[column].(string)
	return s
}

// Op is a comparison operator in a match condition.
type Op string

// Operators.
const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

// Cond is a single column predicate.
type Cond struct {
	Column string
	Op     Op
	Value  any   // OpEq
	Values []any // OpIn
}

// Eq matches rows whose column equals v.
func Eq(column string, v any) Cond {
	return Cond{Column: column, Op: OpEq, Value: v}
}

// In matches rows whose column is one of values.
func In[T any](column string, values ...T) Cond {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Cond{Column: column, Op: OpIn, Values: vs}
}

// Match is a conjunction of conditions. An empty Match selects every row.
type Match []Cond

// Where builds a Match.
func Where(conds ...Cond) Match { return Match(conds) }

// Order sorts a selection.
type Order struct {
	Column     string
	Descending bool
}

// Asc orders by column ascending.
func Asc(column string) Order { return Order{Column: column} }

// Desc orders by column descending.
func Desc(column string) Order { return Order{Column: column, Descending: true} }

// Backend is the remote data store.
type Backend interface {
	// Insert stores rec and returns the stored row including generated columns
	// (id, created_at and column defaults).
	Insert(ctx context.Context, collection string, rec Record) (Record, error)
	// Delete removes every row satisfying match and returns how many were removed.
	Delete(ctx context.Context, collection string, match Match) (int, error)
	// Select returns the rows satisfying match in the given order.
	Select(ctx context.Context, collection string, match Match, order ...Order) ([]Record, error)
	// Update sets fields on every row satisfying match and returns the row count.
	Update(ctx context.Context, collection string, match Match, fields Record) (int, error)
}

// Caller is implemented by backends that expose server-side procedures.
type Caller interface {
	Call(ctx context.Context, fn string, args Record) error
}

// Incrementer is implemented by backends that can adjust a counter column
// atomically. The result is clamped at zero.
type Incrementer interface {
	Increment(ctx context.Context, collection string, match Match, column string, delta int) (int, error)
}

// Errors returned by adapters.
var (
	ErrNotFound          = errors.New("backend: not found")
	ErrDuplicate         = errors.New("backend: duplicate key")
	ErrUnsupported       = errors.New("backend: unsupported operation")
	ErrInvalidIdentifier = errors.New("backend: invalid identifier")
	ErrForbidden         = errors.New("backend: forbidden")
)

// Procedure names understood by the adapters.
const (
	// ProcDeleteCommunityPost deletes a post and its likes if the caller owns it
	// or is an admin. Args: post_id, user_id.
	ProcDeleteCommunityPost = "delete_community_post"
)

// Encode converts a struct into a Record through its JSON tags.
func Encode(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return rec, nil
}

// Decode converts a Record into T through T's JSON tags.
func Decode[T any](rec Record) (T, error) {
	var out T
	raw, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}

// DecodeAll converts every record, failing on the first malformed one.
func DecodeAll[T any](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := Decode[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
