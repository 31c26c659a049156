package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/backend"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertUser(t *testing.T, s *Store, id, role string) {
	t.Helper()
	_, err := s.Insert(context.Background(), "users", backend.Record{
		"id":            id,
		"email":         id + "@example.com",
		"name":          id,
		"password_hash": "x",
		"role":          role,
	})
	require.NoError(t, err)
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"users", "reports", "vendors", "post_likes", "announcement_reads"} {
		assert.Contains(t, s.columns, table)
	}
	assert.Equal(t, typeJSON, s.columns["community_posts"]["tags"])
	assert.Equal(t, typeBoolean, s.columns["vendors"]["verified"])
}

func TestInsert_ReturnsDefaultsAndTypedValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "u1", "member")

	row, err := s.Insert(ctx, "community_posts", backend.Record{
		"user_id": "u1",
		"content": "Pothole on Main St",
		"tags":    []string{"roads", "safety"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, row.String("id"))
	assert.Equal(t, "text", row["type"])
	assert.Equal(t, int64(0), row["likes_count"])
	assert.Equal(t, []any{"roads", "safety"}, row["tags"])
	assert.IsType(t, time.Time{}, row["created_at"])
}

func TestVendorBooleans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "vendors", backend.Record{"name": "Bakery", "category": "food", "verified": true})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "vendors", backend.Record{"name": "Plumber", "category": "home"})
	require.NoError(t, err)

	rows, err := s.Select(ctx, "vendors", backend.Where(backend.Eq("verified", true)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bakery", rows[0]["name"])
	assert.Equal(t, true, rows[0]["verified"])
}

func TestMembershipUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "u1", "member")

	post, err := s.Insert(ctx, "community_posts", backend.Record{"user_id": "u1", "content": "hello"})
	require.NoError(t, err)

	like := backend.Record{"user_id": "u1", "post_id": post.String("id")}
	_, err = s.Insert(ctx, "post_likes", like)
	require.NoError(t, err)

	_, err = s.Insert(ctx, "post_likes", like)
	assert.ErrorIs(t, err, backend.ErrDuplicate)

	n, err := s.Delete(ctx, "post_likes", backend.Where(backend.Eq("user_id", "u1"), backend.Eq("post_id", post.String("id"))))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSelect_OrdersByCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, title := range []string{"first", "second", "third"} {
		_, err := s.Insert(ctx, "announcements", backend.Record{
			"title":      title,
			"content":    "body",
			"authority":  "City Council",
			"created_at": base.Add(time.Duration(i) * 500 * time.Millisecond),
		})
		require.NoError(t, err)
	}

	rows, err := s.Select(ctx, "announcements", nil, backend.Desc("created_at"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "third", rows[0]["title"])
	assert.Equal(t, "first", rows[2]["title"])
}

func TestUpdateAndIncrement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev, err := s.Insert(ctx, "community_events", backend.Record{"title": "Cleanup", "event_date": "2025-06-01"})
	require.NoError(t, err)
	match := backend.Where(backend.Eq("id", ev.String("id")))

	n, err := s.Update(ctx, "community_events", match, backend.Record{"attendees_count": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	next, err := s.Increment(ctx, "community_events", match, "attendees_count", -5)
	require.NoError(t, err)
	assert.Equal(t, 0, next)

	_, err = s.Increment(ctx, "community_events", backend.Where(backend.Eq("id", "missing")), "attendees_count", 1)
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestCall_DeleteCommunityPost(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertUser(t, s, "author", "member")
	insertUser(t, s, "other", "member")
	insertUser(t, s, "admin", "admin")

	post, err := s.Insert(ctx, "community_posts", backend.Record{"user_id": "author", "content": "sale"})
	require.NoError(t, err)
	postID := post.String("id")

	err = s.Call(ctx, backend.ProcDeleteCommunityPost, backend.Record{"post_id": postID, "user_id": "other"})
	assert.ErrorIs(t, err, backend.ErrForbidden)

	err = s.Call(ctx, backend.ProcDeleteCommunityPost, backend.Record{"post_id": postID, "user_id": "admin"})
	require.NoError(t, err)

	rows, err := s.Select(ctx, "community_posts", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	err = s.Call(ctx, backend.ProcDeleteCommunityPost, backend.Record{"post_id": postID, "user_id": "admin"})
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestUnknownCollection(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Select(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, backend.ErrNotFound)
}
