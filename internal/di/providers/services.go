package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/townsquareapp/townsquare-server/internal/auth"
	"github.com/townsquareapp/townsquare-server/internal/config"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/logger"
	"github.com/townsquareapp/townsquare-server/internal/service"
	"github.com/townsquareapp/townsquare-server/internal/validation"
)

// ProvideValidator provides the request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideAuthService provides the authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	b := do.MustInvoke[*BackendHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	workspaces := do.MustInvoke[*service.Workspaces](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(b.Backend, tokens, workspaces, v, log.Logger), nil
}

// ProvideCommunityService provides the posts and events service.
func ProvideCommunityService(i do.Injector) (*service.CommunityService, error) {
	b := do.MustInvoke[*BackendHandle](i)
	workspaces := do.MustInvoke[*service.Workspaces](i)
	pub := do.MustInvoke[events.Publisher](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCommunityService(b.Backend, workspaces, pub, v, log.Logger), nil
}

// ProvideVendorService provides the vendor directory service.
func ProvideVendorService(i do.Injector) (*service.VendorService, error) {
	workspaces := do.MustInvoke[*service.Workspaces](i)
	pub := do.MustInvoke[events.Publisher](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewVendorService(workspaces, pub, log.Logger), nil
}

// ProvideAnnouncementService provides the announcement service.
func ProvideAnnouncementService(i do.Injector) (*service.AnnouncementService, error) {
	workspaces := do.MustInvoke[*service.Workspaces](i)
	pub := do.MustInvoke[events.Publisher](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAnnouncementService(workspaces, pub, log.Logger), nil
}

// ProvideReportService provides the civic report service.
func ProvideReportService(i do.Injector) (*service.ReportService, error) {
	b := do.MustInvoke[*BackendHandle](i)
	workspaces := do.MustInvoke[*service.Workspaces](i)
	pub := do.MustInvoke[events.Publisher](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewReportService(b.Backend, workspaces, pub, v, log.Logger), nil
}

// ProvideAdminService provides the moderation service.
func ProvideAdminService(i do.Injector) (*service.AdminService, error) {
	b := do.MustInvoke[*BackendHandle](i)
	community := do.MustInvoke[*service.CommunityService](i)
	pub := do.MustInvoke[events.Publisher](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAdminService(b.Backend, community, pub, v, log.Logger), nil
}

// AdminBootstrap records whether the bootstrap administrator was ensured.
type AdminBootstrap struct {
	Email string
}

// ProvideAdminBootstrap creates or promotes the configured administrator.
// It is a no-op when ADMIN_EMAIL is unset.
func ProvideAdminBootstrap(i do.Injector) (*AdminBootstrap, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authService := do.MustInvoke[*service.AuthService](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Auth.AdminEmail == "" {
		return &AdminBootstrap{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.RequestTimeout)
	defer cancel()
	if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return nil, err
	}
	log.Info("Bootstrap administrator ready", "email", cfg.Auth.AdminEmail)
	return &AdminBootstrap{Email: cfg.Auth.AdminEmail}, nil
}
