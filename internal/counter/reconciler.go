// Package counter keeps denormalized counters (likes_count, attendees_count) in
// step with membership changes.
//
// The default mode reads the current value from the last-fetched list snapshot,
// computes max(0, current+delta) and writes that value back. Two users toggling
// the same target at once can therefore lose an update; the next full refresh
// shows whatever the store holds and the count converges as later toggles land.
// Backends that support atomic increments can be used instead with ModeAtomic.
package counter

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
)

// Mode selects how counters are written.
type Mode string

// Modes.
const (
	ModeReadModifyWrite Mode = "read-modify-write"
	ModeAtomic          Mode = "atomic"
)

// DefaultTimeout bounds each remote update.
const DefaultTimeout = 10 * time.Second

// Snapshot exposes counter values from the last fetched list.
type Snapshot interface {
	Counter(targetID, column string) (int, bool)
}

// SnapshotFunc adapts a function to Snapshot.
type SnapshotFunc func(targetID, column string) (int, bool)

// Counter implements Snapshot.
func (f SnapshotFunc) Counter(targetID, column string) (int, bool) { return f(targetID, column) }

// Config names the counter column and the collection holding it.
type Config struct {
	Collection string
	Column     string
}

// The two maintained counters.
var (
	PostLikes      = Config{Collection: "community_posts", Column: domain.ColumnLikesCount}
	EventAttendees = Config{Collection: "community_events", Column: domain.ColumnAttendeesCount}
)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMode selects the write mode.
func WithMode(m Mode) Option {
	return func(r *Reconciler) { r.mode = m }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// Reconciler writes counter deltas for one column.
type Reconciler struct {
	backend  backend.Backend
	cfg      Config
	snapshot Snapshot
	mode     Mode
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a reconciler reading current values from snapshot.
func New(b backend.Backend, cfg Config, snapshot Snapshot, opts ...Option) *Reconciler {
	r := &Reconciler{
		backend:  b,
		cfg:      cfg,
		snapshot: snapshot,
		mode:     ModeReadModifyWrite,
		timeout:  DefaultTimeout,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the counter binding.
func (r *Reconciler) Config() Config { return r.cfg }

// ApplyDelta adjusts the counter of targetID by delta and returns the value
// written. A zero delta writes nothing.
func (r *Reconciler) ApplyDelta(ctx context.Context, targetID string, delta int) (int, error) {
	current, _ := r.snapshot.Counter(targetID, r.cfg.Column)
	if delta == 0 {
		return current, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	match := backend.Where(backend.Eq("id", targetID))

	if inc, ok := r.backend.(backend.Incrementer); ok && r.mode == ModeAtomic {
		next, err := inc.Increment(ctx, r.cfg.Collection, match, r.cfg.Column, delta)
		if err != nil {
			return 0, r.failed(targetID, err)
		}
		return next, nil
	}

	next := max(0, current+delta)
	n, err := r.backend.Update(ctx, r.cfg.Collection, match, backend.Record{r.cfg.Column: next})
	if err != nil {
		return 0, r.failed(targetID, err)
	}
	if n == 0 {
		return 0, r.failed(targetID, backend.ErrNotFound)
	}

	r.logger.Debug("counter updated", "collection", r.cfg.Collection, "column", r.cfg.Column,
		"target_id", targetID, "from", current, "to", next)
	return next, nil
}

func (r *Reconciler) failed(targetID string, err error) error {
	r.logger.Warn("counter update failed", "collection", r.cfg.Collection, "column", r.cfg.Column,
		"target_id", targetID, "error", err)
	return domainerrors.RemoteMutationFailed(err, "update %s.%s", r.cfg.Collection, r.cfg.Column)
}
