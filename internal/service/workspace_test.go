package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/backend/memory"
	"github.com/townsquareapp/townsquare-server/internal/domain"
)

func TestWorkspaces_LoadsMemberships(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "post_likes", backend.Record{"user_id": "alice", "post_id": "p1"})
	f.insert(t, "event_attendance", backend.Record{"user_id": "alice", "event_id": "e1"})
	f.insert(t, "user_favorites", backend.Record{"user_id": "bob", "vendor_id": "v1"})

	ws, err := f.workspaces.Get(context.Background(), alice)
	require.NoError(t, err)

	assert.Equal(t, "alice", ws.UserID)
	assert.True(t, ws.Likes.IsMember("p1"))
	assert.True(t, ws.Attendance.IsMember("e1"))
	assert.Zero(t, ws.Favorites.Len())
	assert.True(t, ws.Reads.Loaded())
	assert.NotNil(t, ws.Reports)
}

func TestWorkspaces_Anonymous(t *testing.T) {
	f := newFixture(t)

	ws, err := f.workspaces.Get(context.Background(), domain.Anonymous())
	require.NoError(t, err)

	assert.Empty(t, ws.UserID)
	assert.Nil(t, ws.Reports)
	assert.False(t, ws.Likes.Loaded())
	assert.Zero(t, f.b.Calls(memory.OpSelect, "post_likes"))
}

func TestWorkspaces_BuiltOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*Workspace, 8)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := f.workspaces.Get(ctx, alice)
			assert.NoError(t, err)
			got[i] = ws
		}()
	}
	wg.Wait()

	for _, ws := range got {
		assert.Same(t, got[0], ws)
	}
	assert.Equal(t, 1, f.b.Calls(memory.OpSelect, "post_likes"))
	assert.Equal(t, 1, f.workspaces.Len())
}

func TestWorkspaces_FailedLoadLeavesMirrorEmpty(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "post_likes", backend.Record{"user_id": "alice", "post_id": "p1"})
	f.insert(t, "event_attendance", backend.Record{"user_id": "alice", "event_id": "e1"})
	f.b.FailOn(memory.OpSelect, "post_likes", errors.New("offline"))

	ws, err := f.workspaces.Get(context.Background(), alice)
	require.NoError(t, err)

	assert.False(t, ws.Likes.Loaded())
	assert.False(t, ws.Likes.IsMember("p1"))
	assert.True(t, ws.Attendance.IsMember("e1"))
}

func TestWorkspaces_RetriesFailedLoadOnNextGet(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "post_likes", backend.Record{"user_id": "alice", "post_id": "p1"})
	f.b.FailOn(memory.OpSelect, "post_likes", errors.New("offline"))

	first, err := f.workspaces.Get(context.Background(), alice)
	require.NoError(t, err)
	require.False(t, first.Likes.Loaded())

	f.b.ClearFailures()
	second, err := f.workspaces.Get(context.Background(), alice)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.True(t, second.Likes.Loaded())
	assert.True(t, second.Likes.IsMember("p1"))
	assert.Equal(t, 1, f.b.Calls(memory.OpSelect, "event_attendance"), "loaded mirrors are not refetched")
}

func TestWorkspaces_CancelledFirstRequestStillLoads(t *testing.T) {
	f := newFixture(t)
	postID := f.post(t, "bob", "hello", 1, 1)
	f.insert(t, "post_likes", backend.Record{"user_id": "alice", "post_id": postID})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.community.ListPosts(cancelled, alice, PostQuery{})
	require.Error(t, err)

	list, err := f.community.ListPosts(context.Background(), alice, PostQuery{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.True(t, list.Items[0].IsLiked)
}

func TestWorkspaces_Evict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.workspaces.Get(ctx, alice)
	require.NoError(t, err)
	f.workspaces.Evict(alice.UserID)

	second, err := f.workspaces.Get(ctx, alice)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
