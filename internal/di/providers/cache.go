package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/townsquareapp/townsquare-server/internal/config"
	"github.com/townsquareapp/townsquare-server/internal/counter"
	"github.com/townsquareapp/townsquare-server/internal/logger"
	"github.com/townsquareapp/townsquare-server/internal/service"
	"github.com/townsquareapp/townsquare-server/internal/snapshot"
)

// SnapshotHandle wraps the offline snapshot store. Store is nil when
// snapshots are disabled.
type SnapshotHandle struct {
	Store *snapshot.Store
}

// Shutdown implements do.Shutdownable.
func (h *SnapshotHandle) Shutdown() error {
	if h.Store == nil {
		return nil
	}
	return h.Store.Close()
}

// ProvideSnapshots opens the snapshot store unless it is disabled.
func ProvideSnapshots(i do.Injector) (*SnapshotHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Cache.SnapshotPath == "" {
		log.Info("Offline snapshots disabled")
		return &SnapshotHandle{}, nil
	}

	store, err := snapshot.Open(cfg.Cache.SnapshotPath, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	log.Info("Snapshot store opened", "path", cfg.Cache.SnapshotPath)
	return &SnapshotHandle{Store: store}, nil
}

// ProvideWorkspaces provides the per-user workspace cache.
func ProvideWorkspaces(i do.Injector) (*service.Workspaces, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	b := do.MustInvoke[*BackendHandle](i)
	snapshots := do.MustInvoke[*SnapshotHandle](i)

	opts := service.WorkspaceOptions{
		TTL:            cfg.Cache.WorkspaceTTL,
		MaxWorkspaces:  cfg.Cache.MaxWorkspaces,
		RequestTimeout: cfg.Backend.RequestTimeout,
		CounterMode:    counter.Mode(cfg.Backend.CounterMode),
	}
	if snapshots.Store != nil {
		opts.Snapshots = snapshots.Store
	}

	return service.NewWorkspaces(b.Backend, opts, log.Logger), nil
}
