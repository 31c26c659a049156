package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/counter"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	"github.com/townsquareapp/townsquare-server/internal/listcache"
	"github.com/townsquareapp/townsquare-server/internal/membership"
)

const anonymousKey = ""

// Workspace holds one user's membership mirrors and entity lists.
// The anonymous workspace has empty mirrors and no report list.
type Workspace struct {
	UserID string

	Likes      *membership.Set
	Attendance *membership.Set
	Favorites  *membership.Set
	Reads      *membership.Set

	Posts         *listcache.List[domain.Post]
	Events        *listcache.List[domain.Event]
	Vendors       *listcache.List[domain.Vendor]
	Announcements *listcache.List[domain.Announcement]
	Reports       *listcache.List[domain.Report]

	LikeCounter      *counter.Reconciler
	AttendeesCounter *counter.Reconciler
}

// WorkspaceOptions configures workspace construction and caching.
type WorkspaceOptions struct {
	TTL            time.Duration
	MaxWorkspaces  int
	RequestTimeout time.Duration
	CounterMode    counter.Mode
	// Snapshots enables offline announcement lists when set.
	Snapshots listcache.SnapshotStore
}

// Workspaces creates and caches workspaces per user.
type Workspaces struct {
	backend backend.Backend
	opts    WorkspaceOptions
	logger  *slog.Logger
	cache   *expirable.LRU[string, *Workspace]
	group   singleflight.Group
}

// NewWorkspaces creates the workspace cache.
func NewWorkspaces(b backend.Backend, opts WorkspaceOptions, logger *slog.Logger) *Workspaces {
	if opts.MaxWorkspaces <= 0 {
		opts.MaxWorkspaces = 1024
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.CounterMode == "" {
		opts.CounterMode = counter.ModeReadModifyWrite
	}

	w := &Workspaces{backend: b, opts: opts, logger: logger}
	w.cache = expirable.NewLRU[string, *Workspace](opts.MaxWorkspaces, func(key string, _ *Workspace) {
		logger.Debug("workspace evicted", "user_id", key)
	}, opts.TTL)
	return w
}

// Get returns the actor's workspace, building it on first use. Building loads
// the four membership mirrors concurrently; a failed load is logged and leaves
// that mirror empty until a later Get retries it.
//
// Loads are detached from ctx cancellation so a dropped request cannot leave a
// cached workspace with empty mirrors.
func (w *Workspaces) Get(ctx context.Context, actor domain.Actor) (*Workspace, error) {
	key := anonymousKey
	if actor.Authenticated() {
		key = actor.UserID
	}
	if ws, ok := w.cache.Get(key); ok {
		w.reloadMissing(ctx, ws)
		return ws, nil
	}

	v, err, _ := w.group.Do(key, func() (any, error) {
		if ws, ok := w.cache.Get(key); ok {
			return ws, nil
		}
		ws := w.build(key)
		w.loadMemberships(context.WithoutCancel(ctx), ws, ws.sets())
		w.cache.Add(key, ws)
		return ws, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workspace), nil
}

// Peek returns a cached workspace without creating one.
func (w *Workspaces) Peek(userID string) (*Workspace, bool) {
	return w.cache.Peek(userID)
}

// Evict drops a user's workspace, for example after sign-out.
func (w *Workspaces) Evict(userID string) {
	w.cache.Remove(userID)
}

// Len returns the number of cached workspaces.
func (w *Workspaces) Len() int {
	return w.cache.Len()
}

// Shutdown drops every cached workspace.
func (w *Workspaces) Shutdown() error {
	w.cache.Purge()
	return nil
}

func (w *Workspaces) build(userID string) *Workspace {
	b := w.backend
	timeout := w.opts.RequestTimeout
	logger := w.logger.With("user_id", userID)

	setOpts := []membership.Option{membership.WithTimeout(timeout), membership.WithLogger(logger)}
	listOpts := []listcache.Option{listcache.WithTimeout(timeout), listcache.WithLogger(logger)}

	ws := &Workspace{
		UserID:     userID,
		Likes:      membership.New(b, membership.PostLikes, setOpts...),
		Attendance: membership.New(b, membership.EventAttendance, setOpts...),
		Favorites:  membership.New(b, membership.VendorFavorites, setOpts...),
		Reads:      membership.New(b, membership.AnnouncementReads, setOpts...),

		Posts:   listcache.New("posts", fetchPosts(b), listOpts...),
		Events:  listcache.New("events", fetchEvents(b), listOpts...),
		Vendors: listcache.New("vendors", fetchVendors(b), listOpts...),
	}

	annOpts := listOpts
	if w.opts.Snapshots != nil {
		annOpts = append(append([]listcache.Option(nil), listOpts...), listcache.WithSnapshot(w.opts.Snapshots, "announcements"))
	}
	ws.Announcements = listcache.New("announcements", fetchAnnouncements(b), annOpts...)

	if userID != anonymousKey {
		ws.Reports = listcache.New("reports", fetchReports(b, backend.Where(backend.Eq("user_id", userID))), listOpts...)
	}

	counterOpts := []counter.Option{counter.WithMode(w.opts.CounterMode), counter.WithTimeout(timeout), counter.WithLogger(logger)}
	ws.LikeCounter = counter.New(b, counter.PostLikes, ws.Posts, counterOpts...)
	ws.AttendeesCounter = counter.New(b, counter.EventAttendees, ws.Events, counterOpts...)

	return ws
}

func (ws *Workspace) sets() []*membership.Set {
	return []*membership.Set{ws.Likes, ws.Attendance, ws.Favorites, ws.Reads}
}

// reloadMissing retries the mirrors whose initial load failed.
func (w *Workspaces) reloadMissing(ctx context.Context, ws *Workspace) {
	if ws.UserID == anonymousKey {
		return
	}
	var missing []*membership.Set
	for _, set := range ws.sets() {
		if !set.Loaded() {
			missing = append(missing, set)
		}
	}
	if len(missing) == 0 {
		return
	}

	_, _, _ = w.group.Do("reload:"+ws.UserID, func() (any, error) {
		w.loadMemberships(context.WithoutCancel(ctx), ws, missing)
		return nil, nil
	})
}

func (w *Workspaces) loadMemberships(ctx context.Context, ws *Workspace, sets []*membership.Set) {
	if ws.UserID == anonymousKey {
		return
	}

	// Each load reports its own failure; the group never cancels siblings.
	var g errgroup.Group
	for _, set := range sets {
		g.Go(func() error {
			if err := set.LoadInitial(ctx, ws.UserID); err != nil {
				w.logger.Warn("membership load failed",
					"user_id", ws.UserID, "collection", set.Config().Collection, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
