package providers

import (
	"context"
	"fmt"
	"io"

	"github.com/samber/do/v2"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/backend/memory"
	"github.com/townsquareapp/townsquare-server/internal/backend/postgres"
	"github.com/townsquareapp/townsquare-server/internal/backend/rest"
	"github.com/townsquareapp/townsquare-server/internal/backend/sqlite"
	"github.com/townsquareapp/townsquare-server/internal/config"
	"github.com/townsquareapp/townsquare-server/internal/logger"
)

// BackendHandle wraps the remote store selected by configuration.
type BackendHandle struct {
	backend.Backend
	closer io.Closer
}

// Shutdown implements do.Shutdownable.
func (h *BackendHandle) Shutdown() error {
	if h.closer == nil {
		return nil
	}
	return h.closer.Close()
}

// ProvideBackend opens the configured backend driver.
func ProvideBackend(i do.Injector) (*BackendHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	switch cfg.Backend.Driver {
	case config.DriverMemory:
		log.Warn("Using in-memory backend; data is lost on restart")
		return &BackendHandle{Backend: memory.New()}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Backend.SQLitePath, log.Logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		log.Info("SQLite backend opened", "path", cfg.Backend.SQLitePath)
		return &BackendHandle{Backend: store, closer: store}, nil

	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.RequestTimeout)
		defer cancel()
		store, err := postgres.Open(ctx, cfg.Backend.PostgresURL, log.Logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres backend: %w", err)
		}
		log.Info("Postgres backend connected")
		return &BackendHandle{Backend: store, closer: store}, nil

	case config.DriverREST:
		client := rest.New(rest.Config{
			BaseURL:           cfg.Backend.RESTURL,
			APIKey:            cfg.Backend.RESTAPIKey,
			RequestsPerSecond: cfg.Backend.RESTRate,
		}, log.Logger)
		log.Info("REST backend configured", "url", cfg.Backend.RESTURL)
		return &BackendHandle{Backend: client, closer: client}, nil
	}

	return nil, fmt.Errorf("unknown backend driver %q", cfg.Backend.Driver)
}
