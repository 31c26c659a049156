package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/backend"
)

func TestInsert_AppliesDefaultsAndGeneratesID(t *testing.T) {
	b := New()

	row, err := b.Insert(context.Background(), "reports", backend.Record{"title": "Pothole", "user_id": "u1"})
	require.NoError(t, err)

	assert.NotEmpty(t, row.String("id"))
	assert.Equal(t, "submitted", row["status"])
	assert.Equal(t, "medium", row["priority"])
	assert.IsType(t, time.Time{}, row["created_at"])
}

func TestInsert_UniqueMembership(t *testing.T) {
	b := New()
	ctx := context.Background()

	_, err := b.Insert(ctx, "post_likes", backend.Record{"user_id": "u1", "post_id": "p1"})
	require.NoError(t, err)

	_, err = b.Insert(ctx, "post_likes", backend.Record{"user_id": "u1", "post_id": "p1"})
	assert.ErrorIs(t, err, backend.ErrDuplicate)

	_, err = b.Insert(ctx, "post_likes", backend.Record{"user_id": "u2", "post_id": "p1"})
	assert.NoError(t, err)
}

func TestSelect_MatchAndOrder(t *testing.T) {
	b := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, title := range []string{"old", "middle", "new"} {
		_, err := b.Insert(ctx, "announcements", backend.Record{
			"title":      title,
			"priority":   []string{"low", "high", "high"}[i],
			"created_at": base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	rows, err := b.Select(ctx, "announcements", backend.Where(backend.Eq("priority", "high")), backend.Desc("created_at"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "new", rows[0]["title"])
	assert.Equal(t, "middle", rows[1]["title"])

	rows, err = b.Select(ctx, "announcements", backend.Where(backend.In("title", "old", "new")))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestUpdateAndDelete(t *testing.T) {
	b := New()
	ctx := context.Background()

	row, err := b.Insert(ctx, "community_posts", backend.Record{"user_id": "u1", "content": "hi"})
	require.NoError(t, err)
	id := row.String("id")

	n, err := b.Update(ctx, "community_posts", backend.Where(backend.Eq("id", id)), backend.Record{"likes_count": 3})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows := b.Rows("community_posts")
	assert.Equal(t, 3, rows[0]["likes_count"])

	n, err = b.Delete(ctx, "community_posts", backend.Where(backend.Eq("id", id)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, b.Rows("community_posts"))
}

func TestIncrement_ClampsAtZero(t *testing.T) {
	b := New()
	ctx := context.Background()

	row, err := b.Insert(ctx, "community_events", backend.Record{"title": "Cleanup"})
	require.NoError(t, err)
	match := backend.Where(backend.Eq("id", row.String("id")))

	got, err := b.Increment(ctx, "community_events", match, "attendees_count", -1)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	got, err = b.Increment(ctx, "community_events", match, "attendees_count", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestCall_DeleteCommunityPost(t *testing.T) {
	b := New()
	ctx := context.Background()

	post, err := b.Insert(ctx, "community_posts", backend.Record{"user_id": "author", "content": "x"})
	require.NoError(t, err)
	_, err = b.Insert(ctx, "post_likes", backend.Record{"user_id": "fan", "post_id": post.String("id")})
	require.NoError(t, err)

	err = b.Call(ctx, backend.ProcDeleteCommunityPost, backend.Record{"post_id": post.String("id"), "user_id": "someone"})
	assert.ErrorIs(t, err, backend.ErrForbidden)

	err = b.Call(ctx, backend.ProcDeleteCommunityPost, backend.Record{"post_id": post.String("id"), "user_id": "author"})
	require.NoError(t, err)
	assert.Empty(t, b.Rows("community_posts"))
	assert.Empty(t, b.Rows("post_likes"))
}

func TestFailureInjection(t *testing.T) {
	b := New()
	ctx := context.Background()
	boom := errors.New("boom")

	b.FailOn(OpInsert, "post_likes", boom)
	_, err := b.Insert(ctx, "post_likes", backend.Record{"user_id": "u", "post_id": "p"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, b.Calls(OpInsert, "post_likes"))

	b.ClearFailures()
	_, err = b.Insert(ctx, "post_likes", backend.Record{"user_id": "u", "post_id": "p"})
	assert.NoError(t, err)
}

func TestDelay_RespectsContext(t *testing.T) {
	b := New()
	b.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Select(ctx, "vendors", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
