package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/townsquareapp/townsquare-server/internal/api"
	"github.com/townsquareapp/townsquare-server/internal/config"
	"github.com/townsquareapp/townsquare-server/internal/logger"
	"github.com/townsquareapp/townsquare-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.api.Close()
	return err
}

// ProvideHTTPServer builds the API handler and starts serving in the
// background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	b := do.MustInvoke[*BackendHandle](i)

	services := &api.Services{
		Auth:          do.MustInvoke[*service.AuthService](i),
		Community:     do.MustInvoke[*service.CommunityService](i),
		Vendors:       do.MustInvoke[*service.VendorService](i),
		Announcements: do.MustInvoke[*service.AnnouncementService](i),
		Reports:       do.MustInvoke[*service.ReportService](i),
		Admin:         do.MustInvoke[*service.AdminService](i),
	}

	handler := api.NewServer(services, api.Options{
		Version:        Version,
		CORSOrigins:    cfg.Server.CORSOrigins,
		LoginPerMinute: cfg.Auth.LoginPerMinute,
		LoginBurst:     cfg.Auth.LoginBurst,
		Backend:        b.Backend,
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
