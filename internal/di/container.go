// Package di provides dependency injection configuration for the TownSquare server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/townsquareapp/townsquare-server/internal/auth"
	"github.com/townsquareapp/townsquare-server/internal/config"
	"github.com/townsquareapp/townsquare-server/internal/di/providers"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/logger"
	"github.com/townsquareapp/townsquare-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Data layer
	do.Provide(injector, providers.ProvideBackend)
	do.Provide(injector, providers.ProvideSnapshots)
	do.Provide(injector, providers.ProvideEventPublisher)
	do.Provide(injector, providers.ProvideWorkspaces)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideValidator)

	// Business services
	do.Provide(injector, providers.ProvideAuthService)
	do.Provide(injector, providers.ProvideCommunityService)
	do.Provide(injector, providers.ProvideVendorService)
	do.Provide(injector, providers.ProvideAnnouncementService)
	do.Provide(injector, providers.ProvideReportService)
	do.Provide(injector, providers.ProvideAdminService)
	do.Provide(injector, providers.ProvideAdminBootstrap)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and starts the HTTP server.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)

	if _, err := do.Invoke[*providers.BackendHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SnapshotHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[events.Publisher](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*service.Workspaces](injector)

	_ = do.MustInvoke[*service.AuthService](injector)
	_ = do.MustInvoke[*service.CommunityService](injector)
	_ = do.MustInvoke[*service.VendorService](injector)
	_ = do.MustInvoke[*service.AnnouncementService](injector)
	_ = do.MustInvoke[*service.ReportService](injector)
	_ = do.MustInvoke[*service.AdminService](injector)
	if _, err := do.Invoke[*providers.AdminBootstrap](injector); err != nil {
		return err
	}

	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	return nil
}
