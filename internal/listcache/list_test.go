package listcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
	"github.com/townsquareapp/townsquare-server/internal/snapshot"
)

type fakeRemote struct {
	mu    sync.Mutex
	posts []domain.Post
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeRemote) fetch(ctx context.Context) ([]domain.Post, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Post(nil), f.posts...), nil
}

func (f *fakeRemote) set(posts []domain.Post, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts, f.err = posts, err
}

func TestList_StateMachine(t *testing.T) {
	remote := &fakeRemote{posts: []domain.Post{{ID: "p1", LikesCount: 3}}}
	l := New("posts", remote.fetch)
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, l.State())

	require.NoError(t, l.FetchAll(ctx))
	assert.Equal(t, StateReady, l.State())
	assert.Equal(t, 1, l.Len())
	assert.False(t, l.FetchedAt().IsZero())

	remote.set(nil, errors.New("connection refused"))
	err := l.FetchAll(ctx)
	assert.ErrorIs(t, err, domainerrors.ErrRemoteFetchFailed)
	assert.Equal(t, StateError, l.State())
	assert.ErrorIs(t, l.Err(), domainerrors.ErrRemoteFetchFailed)
	assert.Equal(t, 1, l.Len(), "items survive a failed refresh")

	remote.set([]domain.Post{{ID: "p2"}, {ID: "p1"}}, nil)
	require.NoError(t, l.FetchAll(ctx))
	assert.Equal(t, StateReady, l.State())
	assert.NoError(t, l.Err())
	assert.Equal(t, []string{"p2", "p1"}, keys(l.Items()))
}

func TestList_LoadingWhileFetching(t *testing.T) {
	remote := &fakeRemote{delay: 50 * time.Millisecond}
	l := New("posts", remote.fetch)

	done := make(chan error, 1)
	go func() { done <- l.FetchAll(context.Background()) }()

	assert.Eventually(t, func() bool { return l.State() == StateLoading }, time.Second, time.Millisecond)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, l.State())
}

func TestList_ConcurrentFetchesShareOneCall(t *testing.T) {
	remote := &fakeRemote{delay: 50 * time.Millisecond, posts: []domain.Post{{ID: "p1"}}}
	l := New("posts", remote.fetch)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.FetchAll(context.Background()))
		}()
	}
	wg.Wait()

	assert.Less(t, remote.calls.Load(), int32(5))
}

func TestList_Timeout(t *testing.T) {
	remote := &fakeRemote{delay: time.Second}
	l := New("posts", remote.fetch, WithTimeout(20*time.Millisecond))

	err := l.FetchAll(context.Background())
	assert.ErrorIs(t, err, domainerrors.ErrRemoteFetchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateError, l.State())
}

func TestList_EnsureLoaded(t *testing.T) {
	remote := &fakeRemote{posts: []domain.Post{{ID: "p1"}}}
	l := New("posts", remote.fetch)
	ctx := context.Background()

	require.NoError(t, l.EnsureLoaded(ctx))
	require.NoError(t, l.EnsureLoaded(ctx))
	assert.Equal(t, int32(1), remote.calls.Load())
}

func TestList_FindAndCounter(t *testing.T) {
	remote := &fakeRemote{posts: []domain.Post{{ID: "p1", LikesCount: 7}}}
	l := New("posts", remote.fetch)
	require.NoError(t, l.FetchAll(context.Background()))

	p, ok := l.Find("p1")
	require.True(t, ok)
	assert.Equal(t, 7, p.LikesCount)

	n, ok := l.Counter("p1", domain.ColumnLikesCount)
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = l.Counter("missing", domain.ColumnLikesCount)
	assert.False(t, ok)
}

func TestList_Filter(t *testing.T) {
	remote := &fakeRemote{posts: []domain.Post{
		{ID: "p1", Content: "Garage sale", Type: domain.PostText},
		{ID: "p2", Content: "Photo of the sunset", Type: domain.PostImage},
	}}
	l := New("posts", remote.fetch)
	require.NoError(t, l.FetchAll(context.Background()))

	got := l.Filter(Query{Facets: map[string]string{"type": "image"}})
	assert.Equal(t, []string{"p2"}, keys(got))

	got = l.Filter(Query{Text: "SUNSET"})
	assert.Equal(t, []string{"p2"}, keys(got))
}

func TestList_FilterAfterRefetch(t *testing.T) {
	remote := &fakeRemote{posts: []domain.Post{{ID: "p1", Content: "Café opening"}}}
	l := New("posts", remote.fetch)
	require.NoError(t, l.FetchAll(context.Background()))
	assert.Equal(t, []string{"p1"}, keys(l.Filter(Query{Text: "CAFÉ"})))

	remote.set([]domain.Post{{ID: "p2", Content: "Bake sale"}}, nil)
	require.NoError(t, l.FetchAll(context.Background()))
	assert.Empty(t, l.Filter(Query{Text: "café"}))
	assert.Equal(t, []string{"p2"}, keys(l.Filter(Query{Text: "bake"})))
}

func TestList_OfflineSnapshot(t *testing.T) {
	store, err := snapshot.OpenInMemory(nil)
	require.NoError(t, err)
	defer store.Close()

	remote := &fakeRemote{posts: []domain.Post{{ID: "p1", Content: "cached"}}}
	l := New("posts", remote.fetch, WithSnapshot(store, "posts:u1"))
	require.NoError(t, l.FetchAll(context.Background()))

	// A fresh list, as after a restart, with the remote down.
	remote.set(nil, errors.New("offline"))
	fresh := New("posts", remote.fetch, WithSnapshot(store, "posts:u1"))
	require.Error(t, fresh.FetchAll(context.Background()))

	items, savedAt, ok := fresh.Offline()
	require.True(t, ok)
	assert.False(t, savedAt.IsZero())
	assert.Equal(t, []string{"p1"}, keys(items))
	assert.Equal(t, "cached", items[0].Content)
}

func TestList_OfflineWithoutSnapshot(t *testing.T) {
	l := New("posts", (&fakeRemote{}).fetch)
	_, _, ok := l.Offline()
	assert.False(t, ok)
}
