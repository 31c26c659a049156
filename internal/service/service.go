// Package service implements the resident and administrator operations on top of
// the backend port, the per-user workspaces and the event publisher.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/listcache"
)

// Validator checks request structs.
type Validator interface {
	Validate(s any) error
}

// ListMeta describes the cache state behind a list response.
type ListMeta struct {
	State listcache.State `json:"state"`
	// Stale is set when the remote fetch failed and older data is returned.
	Stale bool `json:"stale"`
}

func requireActor(actor domain.Actor) error {
	if !actor.Authenticated() {
		return domainerrors.ErrUnauthenticated
	}
	return nil
}

func requireAdmin(actor domain.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return domainerrors.Forbidden("administrator role required")
	}
	return nil
}

// writeError converts a backend write failure into the error taxonomy.
func writeError(err error, what string) error {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return domainerrors.NotFoundf("%s not found", what)
	case errors.Is(err, backend.ErrDuplicate):
		return domainerrors.AlreadyExists(what + " already exists")
	case errors.Is(err, backend.ErrForbidden):
		return domainerrors.Forbidden("not allowed to modify " + what)
	}
	return domainerrors.RemoteMutationFailed(err, "write %s", what)
}

// readError converts a backend read failure into the error taxonomy.
func readError(err error, what string) error {
	return domainerrors.RemoteFetchFailed(err, "read %s", what)
}

// publish sends an event. Failures are logged and never reach the caller.
func publish(ctx context.Context, p events.Publisher, logger *slog.Logger, eventType string, payload any) {
	if err := p.Publish(ctx, events.New(eventType, payload)); err != nil {
		logger.Warn("event publish failed", "type", eventType, "error", err)
	}
}

// loadList fetches l when refresh is set or it has never loaded.
func loadList[T listcache.Item](ctx context.Context, l *listcache.List[T], refresh bool) error {
	if refresh {
		return l.FetchAll(ctx)
	}
	return l.EnsureLoaded(ctx)
}

// findTarget looks id up in l, refetching once when it is missing.
func findTarget[T listcache.Item](ctx context.Context, l *listcache.List[T], id, what string) (T, error) {
	var zero T
	if err := l.EnsureLoaded(ctx); err != nil {
		return zero, err
	}
	if item, ok := l.Find(id); ok {
		return item, nil
	}
	if err := l.FetchAll(ctx); err != nil {
		return zero, err
	}
	if item, ok := l.Find(id); ok {
		return item, nil
	}
	return zero, domainerrors.NotFoundf("%s not found", what)
}

func stringPtrField(rec backend.Record, column string, v *string) {
	if v != nil {
		rec[column] = *v
	}
}
