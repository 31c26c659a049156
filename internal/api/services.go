package api

import (
	"context"

	"github.com/townsquareapp/townsquare-server/internal/service"
)

// Services groups the application services served over HTTP.
type Services struct {
	Auth          *service.AuthService
	Community     *service.CommunityService
	Vendors       *service.VendorService
	Announcements *service.AnnouncementService
	Reports       *service.ReportService
	Admin         *service.AdminService
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
