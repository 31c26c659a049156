// Package membership keeps a local mirror of which targets a user has joined
// (liked posts, attended events, favorite vendors, read announcements) and
// applies changes to the remote store before the mirror.
package membership

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
)

// DefaultTimeout bounds every remote call made by a Set.
const DefaultTimeout = 10 * time.Second

// Config binds a Set to a membership collection.
type Config struct {
	Collection   string            // e.g. "post_likes"
	TargetColumn string            // e.g. "post_id"
	Kind         domain.TargetKind // e.g. domain.TargetPost
}

// The four membership collections.
var (
	PostLikes         = Config{Collection: "post_likes", TargetColumn: "post_id", Kind: domain.TargetPost}
	EventAttendance   = Config{Collection: "event_attendance", TargetColumn: "event_id", Kind: domain.TargetEvent}
	VendorFavorites   = Config{Collection: "user_favorites", TargetColumn: "vendor_id", Kind: domain.TargetVendor}
	AnnouncementReads = Config{Collection: "announcement_reads", TargetColumn: "announcement_id", Kind: domain.TargetAnnouncement}
)

// Change describes the outcome of a successful mutation.
type Change struct {
	TargetID string
	Kind     domain.TargetKind
	Member   bool // state after the call
	Delta    int  // +1 joined, -1 left, 0 when the remote already agreed
}

// Option configures a Set.
type Option func(*Set)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Set) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Set) {
		if l != nil {
			s.logger = l
		}
	}
}

// Set is the local mirror of one user's memberships in one collection.
//
// Mutations are pessimistic: the remote write happens first and the mirror
// changes only once it succeeds. Mutations on the same target run one at a
// time; a second toggle waits for the first and then flips the new state.
type Set struct {
	backend backend.Backend
	cfg     Config
	timeout time.Duration
	logger  *slog.Logger
	locks   *keyLock

	mu      sync.RWMutex
	owner   string
	loaded  bool
	members map[string]struct{}
}

// New creates an empty, unloaded set.
func New(b backend.Backend, cfg Config, opts ...Option) *Set {
	s := &Set{
		backend: b,
		cfg:     cfg,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		locks:   newKeyLock(),
		members: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("collection", cfg.Collection)
	return s
}

// Config returns the collection binding.
func (s *Set) Config() Config { return s.cfg }

// Owner returns the user the mirror was loaded for.
func (s *Set) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Loaded reports whether LoadInitial has completed successfully.
func (s *Set) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// IsMember reports whether targetID is in the mirror.
func (s *Set) IsMember(targetID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[targetID]
	return ok
}

// Len returns the mirror size.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Members returns the mirrored target IDs in sorted order.
func (s *Set) Members() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}

// LoadInitial replaces the mirror with the user's records from the remote
// store. Calling it again simply replaces the mirror again. An empty userID
// clears the mirror. On failure the mirror is left as it was.
func (s *Set) LoadInitial(ctx context.Context, userID string) error {
	if userID == "" {
		s.Reset()
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.backend.Select(ctx, s.cfg.Collection, backend.Where(backend.Eq("user_id", userID)))
	if err != nil {
		s.logger.Warn("membership load failed", "user_id", userID, "error", err)
		return domainerrors.RemoteFetchFailed(err, "load %s", s.cfg.Collection)
	}

	next := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if id := row.String(s.cfg.TargetColumn); id != "" {
			next[id] = struct{}{}
		}
	}

	s.mu.Lock()
	s.owner = userID
	s.loaded = true
	s.members = next
	s.mu.Unlock()

	s.logger.Debug("membership loaded", "user_id", userID, "count", len(next))
	return nil
}

// Reset empties the mirror, for example after sign-out.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = ""
	s.loaded = false
	s.members = make(map[string]struct{})
}

// AfterFunc runs once a mutation has been committed, while the target is still
// locked. Follow-up writes for the same target (counters, list refetches)
// belong here so the next mutation of that target observes them.
type AfterFunc func(ctx context.Context, change Change)

// Toggle flips membership of targetID for the actor.
func (s *Set) Toggle(ctx context.Context, actor domain.Actor, targetID string) (Change, error) {
	return s.ToggleThen(ctx, actor, targetID, nil)
}

// ToggleThen is Toggle with then run under the target lock after the commit.
func (s *Set) ToggleThen(ctx context.Context, actor domain.Actor, targetID string, then AfterFunc) (Change, error) {
	return s.mutate(ctx, actor, targetID, func(current bool) bool { return !current }, then)
}

// Ensure makes the actor's membership of targetID equal to member. It is a
// no-op without remote calls when the mirror already agrees.
func (s *Set) Ensure(ctx context.Context, actor domain.Actor, targetID string, member bool) (Change, error) {
	return s.EnsureThen(ctx, actor, targetID, member, nil)
}

// EnsureThen is Ensure with then run under the target lock, including when
// the mirror already agreed.
func (s *Set) EnsureThen(ctx context.Context, actor domain.Actor, targetID string, member bool, then AfterFunc) (Change, error) {
	return s.mutate(ctx, actor, targetID, func(bool) bool { return member }, then)
}

func (s *Set) mutate(ctx context.Context, actor domain.Actor, targetID string, decide func(current bool) bool, then AfterFunc) (Change, error) {
	if !actor.Authenticated() {
		return Change{}, domainerrors.ErrUnauthenticated
	}
	if targetID == "" {
		return Change{}, domainerrors.Validation("target id is required")
	}

	s.mu.Lock()
	switch s.owner {
	case "":
		s.owner = actor.UserID
	case actor.UserID:
	default:
		s.mu.Unlock()
		return Change{}, domainerrors.Forbidden("membership set belongs to another user")
	}
	s.mu.Unlock()

	release, err := s.locks.lock(ctx, targetID)
	if err != nil {
		return Change{}, domainerrors.RemoteMutationFailed(err, "waiting for pending %s change", s.cfg.Kind)
	}
	defer release()

	current := s.IsMember(targetID)
	want := decide(current)
	if want == current {
		change := Change{TargetID: targetID, Kind: s.cfg.Kind, Member: current}
		if then != nil {
			then(ctx, change)
		}
		return change, nil
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	delta, err := s.apply(rctx, actor.UserID, targetID, want)
	if err != nil {
		s.logger.Warn("membership mutation failed",
			"user_id", actor.UserID, "target_id", targetID, "join", want, "error", err)
		return Change{}, domainerrors.RemoteMutationFailed(err, "update %s %s", s.cfg.Kind, targetID)
	}

	s.mu.Lock()
	if want {
		s.members[targetID] = struct{}{}
	} else {
		delete(s.members, targetID)
	}
	s.mu.Unlock()

	s.logger.Debug("membership changed", "user_id", actor.UserID, "target_id", targetID, "member", want, "delta", delta)
	change := Change{TargetID: targetID, Kind: s.cfg.Kind, Member: want, Delta: delta}
	if then != nil {
		then(ctx, change)
	}
	return change, nil
}

// apply performs the remote write and returns the effective counter delta.
func (s *Set) apply(ctx context.Context, userID, targetID string, join bool) (int, error) {
	if join {
		_, err := s.backend.Insert(ctx, s.cfg.Collection, backend.Record{
			"user_id":          userID,
			s.cfg.TargetColumn: targetID,
		})
		if errors.Is(err, backend.ErrDuplicate) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return 1, nil
	}

	n, err := s.backend.Delete(ctx, s.cfg.Collection, backend.Where(
		backend.Eq("user_id", userID),
		backend.Eq(s.cfg.TargetColumn, targetID),
	))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return -1, nil
}
