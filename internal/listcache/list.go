// Package listcache holds per-entity in-memory lists fetched wholesale from the
// remote store, with local filtering and sorting.
package listcache

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
)

// State is the lifecycle state of a List.
type State string

// States. Ready and Error both move back to Loading on refresh.
const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateError         State = "error"
)

// DefaultTimeout bounds each fetch.
const DefaultTimeout = 10 * time.Second

// Fetcher loads the full list from the remote store.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// SnapshotStore persists the last good list.
type SnapshotStore interface {
	Save(key string, items any) error
	Load(key string, dest any) (time.Time, error)
}

type options struct {
	timeout     time.Duration
	logger      *slog.Logger
	snapshots   SnapshotStore
	snapshotKey string
}

// Option configures a List.
type Option func(*options)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSnapshot saves every successful fetch to store under key and enables
// Offline.
func WithSnapshot(store SnapshotStore, key string) Option {
	return func(o *options) {
		o.snapshots = store
		o.snapshotKey = key
	}
}

// List caches one entity list.
type List[T Item] struct {
	name  string
	fetch Fetcher[T]
	opts  options
	group singleflight.Group

	mu        sync.RWMutex
	state     State
	items     []T
	folded    [][]string // folded search fields, parallel to items
	err       error
	fetchedAt time.Time
}

// New creates an uninitialized list.
func New[T Item](name string, fetch Fetcher[T], opts ...Option) *List[T] {
	o := options{
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("list", name)

	return &List[T]{name: name, fetch: fetch, opts: o, state: StateUninitialized}
}

// Name returns the list name.
func (l *List[T]) Name() string { return l.name }

// FetchAll replaces the list with a fresh copy from the remote store.
// Concurrent calls share one fetch. On failure the list moves to Error and
// keeps the items it had.
func (l *List[T]) FetchAll(ctx context.Context) error {
	_, err, _ := l.group.Do("fetch", func() (any, error) {
		return nil, l.fetchAll(ctx)
	})
	return err
}

func (l *List[T]) fetchAll(ctx context.Context) error {
	l.mu.Lock()
	l.state = StateLoading
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.opts.timeout)
	defer cancel()

	items, err := l.fetch(ctx)
	if err != nil {
		err = domainerrors.RemoteFetchFailed(err, "fetch %s", l.name)
		l.mu.Lock()
		l.state = StateError
		l.err = err
		l.mu.Unlock()
		l.opts.logger.Warn("list fetch failed", "error", err)
		return err
	}

	folded := foldFields(items)

	l.mu.Lock()
	l.state = StateReady
	l.items = items
	l.folded = folded
	l.err = nil
	l.fetchedAt = time.Now()
	l.mu.Unlock()

	l.opts.logger.Debug("list fetched", "count", len(items))

	if l.opts.snapshots != nil {
		if err := l.opts.snapshots.Save(l.opts.snapshotKey, items); err != nil {
			l.opts.logger.Warn("snapshot save failed", "error", err)
		}
	}
	return nil
}

// EnsureLoaded fetches the list unless it is already Ready.
func (l *List[T]) EnsureLoaded(ctx context.Context) error {
	if l.State() == StateReady {
		return nil
	}
	return l.FetchAll(ctx)
}

// State returns the current state.
func (l *List[T]) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the error of the last failed fetch, or nil.
func (l *List[T]) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// FetchedAt returns when the list was last fetched successfully.
func (l *List[T]) FetchedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fetchedAt
}

// Items returns a copy of the cached items in fetch order.
func (l *List[T]) Items() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.items)
}

// Len returns the number of cached items.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Find returns the cached item with the given key.
func (l *List[T]) Find(key string) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, item := range l.items {
		if item.Key() == key {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Counter returns a counter column of a cached item.
func (l *List[T]) Counter(key, column string) (int, bool) {
	item, ok := l.Find(key)
	if !ok {
		return 0, false
	}
	c, ok := any(item).(Counted)
	if !ok {
		return 0, false
	}
	return c.Counter(column)
}

// Filter applies q to the cached items.
func (l *List[T]) Filter(q Query) []T {
	l.mu.RLock()
	items, folded := slices.Clone(l.items), l.folded
	l.mu.RUnlock()
	return filter(items, folded, q)
}

// Offline returns the last saved snapshot and when it was saved.
func (l *List[T]) Offline() ([]T, time.Time, bool) {
	if l.opts.snapshots == nil {
		return nil, time.Time{}, false
	}
	var items []T
	savedAt, err := l.opts.snapshots.Load(l.opts.snapshotKey, &items)
	if err != nil {
		return nil, time.Time{}, false
	}
	return items, savedAt, true
}
