package counter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/backend/memory"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
)

func insertPost(t *testing.T, b *memory.Backend, likes int) string {
	t.Helper()
	row, err := b.Insert(context.Background(), "community_posts", backend.Record{
		"user_id": "author", "content": "hello", "likes_count": likes,
	})
	require.NoError(t, err)
	return row.String("id")
}

func fixedSnapshot(values map[string]int) Snapshot {
	return SnapshotFunc(func(id, _ string) (int, bool) {
		v, ok := values[id]
		return v, ok
	})
}

func likesOf(t *testing.T, b *memory.Backend, id string) int {
	t.Helper()
	for _, row := range b.Rows("community_posts") {
		if row.String("id") == id {
			return row["likes_count"].(int)
		}
	}
	t.Fatalf("post %s not found", id)
	return 0
}

func TestApplyDelta_ReadModifyWrite(t *testing.T) {
	b := memory.New()
	id := insertPost(t, b, 4)
	r := New(b, PostLikes, fixedSnapshot(map[string]int{id: 4}))

	got, err := r.ApplyDelta(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, got)
	assert.Equal(t, 5, likesOf(t, b, id))
}

func TestApplyDelta_ClampsAtZero(t *testing.T) {
	b := memory.New()
	id := insertPost(t, b, 0)
	r := New(b, PostLikes, fixedSnapshot(map[string]int{id: 0}))

	got, err := r.ApplyDelta(context.Background(), id, -1)
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.Zero(t, likesOf(t, b, id))
}

func TestApplyDelta_MissingSnapshotCountsFromZero(t *testing.T) {
	b := memory.New()
	id := insertPost(t, b, 9)
	r := New(b, PostLikes, fixedSnapshot(nil))

	got, err := r.ApplyDelta(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestApplyDelta_StaleSnapshotLosesUpdate(t *testing.T) {
	b := memory.New()
	id := insertPost(t, b, 0)
	stale := fixedSnapshot(map[string]int{id: 0})

	// Two clients that both fetched likes_count=0 each add a like.
	_, err := New(b, PostLikes, stale).ApplyDelta(context.Background(), id, 1)
	require.NoError(t, err)
	_, err = New(b, PostLikes, stale).ApplyDelta(context.Background(), id, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, likesOf(t, b, id))
}

func TestApplyDelta_AtomicMode(t *testing.T) {
	b := memory.New()
	id := insertPost(t, b, 0)
	stale := fixedSnapshot(map[string]int{id: 0})

	for range 2 {
		_, err := New(b, PostLikes, stale, WithMode(ModeAtomic)).ApplyDelta(context.Background(), id, 1)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, likesOf(t, b, id))
	assert.Equal(t, 2, b.Calls(memory.OpIncrement, "community_posts"))
}

func TestApplyDelta_Failure(t *testing.T) {
	b := memory.New()
	id := insertPost(t, b, 3)
	r := New(b, PostLikes, fixedSnapshot(map[string]int{id: 3}))

	b.FailOn(memory.OpUpdate, "community_posts", errors.New("timeout"))
	_, err := r.ApplyDelta(context.Background(), id, 1)

	assert.ErrorIs(t, err, domainerrors.ErrRemoteMutationFailed)
	assert.Equal(t, 3, likesOf(t, b, id))
}

func TestApplyDelta_UnknownTarget(t *testing.T) {
	r := New(memory.New(), EventAttendees, fixedSnapshot(nil))

	_, err := r.ApplyDelta(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, domainerrors.ErrRemoteMutationFailed)
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestApplyDelta_ZeroDeltaWritesNothing(t *testing.T) {
	b := memory.New()
	id := insertPost(t, b, 2)
	r := New(b, PostLikes, fixedSnapshot(map[string]int{id: 2}))

	got, err := r.ApplyDelta(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Zero(t, b.Calls(memory.OpUpdate, "community_posts"))
}
