// Package memory is an in-process backend. It enforces the same unique keys and
// column defaults as the SQL schema and can be told to fail or stall, which makes
// it the remote-store fake for tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/townsquareapp/townsquare-server/internal/backend"
)

// Operation names an adapter method for failure injection and call counting.
type Operation string

// Operations.
const (
	OpInsert    Operation = "insert"
	OpDelete    Operation = "delete"
	OpSelect    Operation = "select"
	OpUpdate    Operation = "update"
	OpCall      Operation = "call"
	OpIncrement Operation = "increment"
)

// uniqueKeys mirrors the UNIQUE constraints in the SQL schema.
var uniqueKeys = map[string][][]string{
	"users":              {{"email"}},
	"profiles":           {{"user_id"}},
	"post_likes":         {{"user_id", "post_id"}},
	"event_attendance":   {{"user_id", "event_id"}},
	"user_favorites":     {{"user_id", "vendor_id"}},
	"announcement_reads": {{"user_id", "announcement_id"}},
}

// columnDefaults mirrors the DEFAULT clauses in the SQL schema.
var columnDefaults = map[string]backend.Record{
	"reports":          {"status": "submitted", "priority": "medium"},
	"announcements":    {"type": "general", "priority": "medium"},
	"vendors":          {"rating": 0.0, "reviews_count": 0, "verified": false, "services": []any{}},
	"community_posts":  {"type": "text", "tags": []any{}, "likes_count": 0, "comments_count": 0},
	"community_events": {"attendees_count": 0},
	"users":            {"role": "member"},
}

// Backend stores collections in maps guarded by a mutex.
type Backend struct {
	mu          sync.Mutex
	collections map[string][]backend.Record
	failures    map[string]error
	delay       time.Duration
	calls       map[string]int
	now         func() time.Time
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		collections: make(map[string][]backend.Record),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes every op on collection return err until ClearFailures. An empty
// collection matches all collections.
func (b *Backend) FailOn(op Operation, collection string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[failureKey(op, collection)] = err
}

// ClearFailures removes all injected failures.
func (b *Backend) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.failures)
}

// SetDelay makes every operation wait d (or until its context ends) before running.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// Calls returns how many times op was attempted on collection.
func (b *Backend) Calls(op Operation, collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[failureKey(op, collection)]
}

// Rows returns a copy of every row in collection.
func (b *Backend) Rows(collection string) []backend.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.Record, 0, len(b.collections[collection]))
	for _, rec := range b.collections[collection] {
		out = append(out, maps.Clone(rec))
	}
	return out
}

func failureKey(op Operation, collection string) string {
	return string(op) + ":" + collection
}

// enter records the call, applies the delay and returns an injected failure.
func (b *Backend) enter(ctx context.Context, op Operation, collection string) error {
	b.mu.Lock()
	b.calls[failureKey(op, collection)]++
	delay := b.delay
	err := b.failures[failureKey(op, collection)]
	if err == nil {
		err = b.failures[failureKey(op, "")]
	}
	b.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Insert implements backend.Backend.
func (b *Backend) Insert(ctx context.Context, collection string, rec backend.Record) (backend.Record, error) {
	if err := b.enter(ctx, OpInsert, collection); err != nil {
		return nil, err
	}

	row := maps.Clone(columnDefaults[collection])
	if row == nil {
		row = backend.Record{}
	}
	maps.Copy(row, rec)
	if row.String("id") == "" {
		row["id"] = uuid.NewString()
	}
	now := b.now()
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	if _, ok := row["updated_at"]; !ok && hasUpdatedAt(collection) {
		row["updated_at"] = now
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.collections[collection] {
		if existing.String("id") == row.String("id") {
			return nil, fmt.Errorf("%s id %s: %w", collection, row.String("id"), backend.ErrDuplicate)
		}
		for _, key := range uniqueKeys[collection] {
			if sameKey(existing, row, key) {
				return nil, fmt.Errorf("%s %s: %w", collection, strings.Join(key, ","), backend.ErrDuplicate)
			}
		}
	}

	b.collections[collection] = append(b.collections[collection], row)
	return maps.Clone(row), nil
}

// Delete implements backend.Backend.
func (b *Backend) Delete(ctx context.Context, collection string, match backend.Match) (int, error) {
	if err := b.enter(ctx, OpDelete, collection); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteLocked(collection, match), nil
}

func (b *Backend) deleteLocked(collection string, match backend.Match) int {
	rows := b.collections[collection]
	kept := rows[:0]
	removed := 0
	for _, row := range rows {
		if matches(row, match) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	b.collections[collection] = kept
	return removed
}

// Select implements backend.Backend.
func (b *Backend) Select(ctx context.Context, collection string, match backend.Match, order ...backend.Order) ([]backend.Record, error) {
	if err := b.enter(ctx, OpSelect, collection); err != nil {
		return nil, err
	}

	b.mu.Lock()
	var out []backend.Record
	for _, row := range b.collections[collection] {
		if matches(row, match) {
			out = append(out, maps.Clone(row))
		}
	}
	b.mu.Unlock()

	if len(order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range order {
				c := compareValues(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	return out, nil
}

// Update implements backend.Backend.
func (b *Backend) Update(ctx context.Context, collection string, match backend.Match, fields backend.Record) (int, error) {
	if err := b.enter(ctx, OpUpdate, collection); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, row := range b.collections[collection] {
		if !matches(row, match) {
			continue
		}
		maps.Copy(row, fields)
		if hasUpdatedAt(collection) {
			if _, set := fields["updated_at"]; !set {
				row["updated_at"] = b.now()
			}
		}
		n++
	}
	return n, nil
}

// Increment implements backend.Incrementer.
func (b *Backend) Increment(ctx context.Context, collection string, match backend.Match, column string, delta int) (int, error) {
	if err := b.enter(ctx, OpIncrement, collection); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, row := range b.collections[collection] {
		if !matches(row, match) {
			continue
		}
		cur, _ := toFloat(row[column])
		next := max(0, int(cur)+delta)
		row[column] = next
		return next, nil
	}
	return 0, backend.ErrNotFound
}

// Call implements backend.Caller.
func (b *Backend) Call(ctx context.Context, fn string, args backend.Record) error {
	if err := b.enter(ctx, OpCall, fn); err != nil {
		return err
	}

	switch fn {
	case backend.ProcDeleteCommunityPost:
		postID, userID := args.String("post_id"), args.String("user_id")

		b.mu.Lock()
		defer b.mu.Unlock()

		var post backend.Record
		for _, row := range b.collections["community_posts"] {
			if row.String("id") == postID {
				post = row
				break
			}
		}
		if post == nil {
			return backend.ErrNotFound
		}
		if post.String("user_id") != userID && !b.isAdminLocked(userID) {
			return backend.ErrForbidden
		}
		b.deleteLocked("post_likes", backend.Where(backend.Eq("post_id", postID)))
		b.deleteLocked("community_posts", backend.Where(backend.Eq("id", postID)))
		return nil
	default:
		return fmt.Errorf("procedure %s: %w", fn, backend.ErrUnsupported)
	}
}

func (b *Backend) isAdminLocked(userID string) bool {
	for _, row := range b.collections["users"] {
		if row.String("id") == userID {
			return row.String("role") == "admin"
		}
	}
	return false
}

func hasUpdatedAt(collection string) bool {
	switch collection {
	case "users", "reports", "announcements", "community_posts":
		return true
	}
	return false
}

func sameKey(a, b backend.Record, columns []string) bool {
	for _, c := range columns {
		if !equalValues(a[c], b[c]) {
			return false
		}
	}
	return true
}

func matches(row backend.Record, match backend.Match) bool {
	for _, cond := range match {
		switch cond.Op {
		case backend.OpEq:
			if !equalValues(row[cond.Column], cond.Value) {
				return false
			}
		case backend.OpIn:
			found := false
			for _, v := range cond.Values {
				if equalValues(row[cond.Column], v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareValues(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
