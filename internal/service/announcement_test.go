package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/backend/memory"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
	"github.com/townsquareapp/townsquare-server/internal/logger"
	"github.com/townsquareapp/townsquare-server/internal/snapshot"
)

func seedAnnouncements(t *testing.T, f *fixture) (water, fair string) {
	t.Helper()
	water = f.insert(t, "announcements", backend.Record{
		"title": "Water outage", "content": "Mains repair on Elm St", "type": "emergency", "priority": "high",
		"authority": "Water Board", "created_at": at(2),
	})
	fair = f.insert(t, "announcements", backend.Record{
		"title": "Street fair", "content": "Saturday on the square", "type": "event",
		"authority": "Council", "created_at": at(1),
	})
	return water, fair
}

func TestAnnouncements_ReadState(t *testing.T) {
	f := newFixture(t)
	water, fair := seedAnnouncements(t, f)
	ctx := context.Background()

	list, err := f.announcements.List(ctx, alice, AnnouncementQuery{})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, water, list.Items[0].ID)
	assert.Equal(t, 2, list.UnreadCount)
	assert.False(t, list.Stale)

	res, err := f.announcements.MarkRead(ctx, alice, fair)
	require.NoError(t, err)
	assert.True(t, res.Member)

	// Marking again is a no-op.
	_, err = f.announcements.MarkRead(ctx, alice, fair)
	require.NoError(t, err)
	assert.Equal(t, 1, f.b.Calls(memory.OpInsert, "announcement_reads"))

	list, err = f.announcements.List(ctx, alice, AnnouncementQuery{Read: ReadFilterUnread})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, water, list.Items[0].ID)
	assert.Equal(t, 1, list.UnreadCount)
	assert.Equal(t, 1, list.ReadCount)

	list, err = f.announcements.List(ctx, alice, AnnouncementQuery{Read: ReadFilterRead})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.True(t, list.Items[0].IsRead)

	list, err = f.announcements.List(ctx, alice, AnnouncementQuery{Priority: "high"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Water outage", list.Items[0].Title)

	_, err = f.announcements.MarkUnread(ctx, alice, fair)
	require.NoError(t, err)
	assert.Empty(t, f.b.Rows("announcement_reads"))

	_, err = f.announcements.List(ctx, alice, AnnouncementQuery{Read: "sometimes"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = f.announcements.MarkRead(ctx, alice, "missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestAnnouncements_StaleInMemory(t *testing.T) {
	f := newFixture(t)
	seedAnnouncements(t, f)
	ctx := context.Background()

	_, err := f.announcements.List(ctx, alice, AnnouncementQuery{})
	require.NoError(t, err)

	f.b.FailOn(memory.OpSelect, "announcements", errors.New("offline"))
	list, err := f.announcements.List(ctx, alice, AnnouncementQuery{Refresh: true})
	require.NoError(t, err)

	assert.True(t, list.Stale)
	assert.Len(t, list.Items, 2)
	assert.Nil(t, list.SavedAt)
}

func TestAnnouncements_OfflineSnapshot(t *testing.T) {
	store, err := snapshot.OpenInMemory(logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := newFixture(t, func(o *WorkspaceOptions) { o.Snapshots = store })
	seedAnnouncements(t, f)
	ctx := context.Background()

	_, err = f.announcements.List(ctx, alice, AnnouncementQuery{})
	require.NoError(t, err)

	f.b.FailOn(memory.OpSelect, "announcements", errors.New("offline"))

	// Bob's workspace has never fetched; only the saved copy is available.
	list, err := f.announcements.List(ctx, bob, AnnouncementQuery{})
	require.NoError(t, err)
	assert.True(t, list.Stale)
	assert.Len(t, list.Items, 2)
	require.NotNil(t, list.SavedAt)
	assert.False(t, list.SavedAt.IsZero())
}

func TestAnnouncements_NoFallback(t *testing.T) {
	f := newFixture(t)
	f.b.FailOn(memory.OpSelect, "announcements", errors.New("offline"))

	_, err := f.announcements.List(context.Background(), alice, AnnouncementQuery{})
	assert.ErrorIs(t, err, domainerrors.ErrRemoteFetchFailed)
}
