package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/townsquareapp/townsquare-server/internal/domain"
	"github.com/townsquareapp/townsquare-server/internal/service"
)

func (s *Server) registerAdminRoutes() {
	tags := []string{"Admin"}

	huma.Register(s.api, huma.Operation{
		OperationID: "adminDashboard",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/dashboard",
		Summary:     "Dashboard",
		Description: "Returns moderation totals (admin only)",
		Tags:        tags,
		Security:    bearerAuth,
	}, s.handleAdminDashboard)

	huma.Register(s.api, huma.Operation{
		OperationID: "adminListReports",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/reports",
		Summary:     "List all reports",
		Description: "Returns every resident's reports with reporter names (admin only)",
		Tags:        tags,
		Security:    bearerAuth,
	}, s.handleAdminListReports)

	huma.Register(s.api, huma.Operation{
		OperationID: "adminUpdateReportStatus",
		Method:      http.MethodPatch,
		Path:        "/api/v1/admin/reports/{id}/status",
		Summary:     "Update report status",
		Description: "Moves a report through its workflow (admin only)",
		Tags:        tags,
		Security:    bearerAuth,
	}, s.handleAdminUpdateReportStatus)

	huma.Register(s.api, huma.Operation{
		OperationID:   "adminCreateVendor",
		Method:        http.MethodPost,
		Path:          "/api/v1/admin/vendors",
		Summary:       "Create vendor",
		Description:   "Adds a vendor to the directory (admin only)",
		Tags:          tags,
		Security:      bearerAuth,
		DefaultStatus: http.StatusCreated,
	}, s.handleAdminCreateVendor)

	huma.Register(s.api, huma.Operation{
		OperationID: "adminUpdateVendor",
		Method:      http.MethodPatch,
		Path:        "/api/v1/admin/vendors/{id}",
		Summary:     "Update vendor",
		Description: "Edits a vendor (admin only)",
		Tags:        tags,
		Security:    bearerAuth,
	}, s.handleAdminUpdateVendor)

	huma.Register(s.api, huma.Operation{
		OperationID: "adminDeleteVendor",
		Method:      http.MethodDelete,
		Path:        "/api/v1/admin/vendors/{id}",
		Summary:     "Delete vendor",
		Description: "Removes a vendor from the directory (admin only)",
		Tags:        tags,
		Security:    bearerAuth,
	}, s.handleAdminDeleteVendor)

	huma.Register(s.api, huma.Operation{
		OperationID:   "adminCreateAnnouncement",
		Method:        http.MethodPost,
		Path:          "/api/v1/admin/announcements",
		Summary:       "Create announcement",
		Description:   "Publishes an announcement. HTML content is stored as Markdown (admin only).",
		Tags:          tags,
		Security:      bearerAuth,
		DefaultStatus: http.StatusCreated,
	}, s.handleAdminCreateAnnouncement)

	huma.Register(s.api, huma.Operation{
		OperationID: "adminUpdateAnnouncement",
		Method:      http.MethodPatch,
		Path:        "/api/v1/admin/announcements/{id}",
		Summary:     "Update announcement",
		Description: "Edits an announcement (admin only)",
		Tags:        tags,
		Security:    bearerAuth,
	}, s.handleAdminUpdateAnnouncement)

	huma.Register(s.api, huma.Operation{
		OperationID: "adminDeleteAnnouncement",
		Method:      http.MethodDelete,
		Path:        "/api/v1/admin/announcements/{id}",
		Summary:     "Delete announcement",
		Description: "Removes an announcement (admin only)",
		Tags:        tags,
		Security:    bearerAuth,
	}, s.handleAdminDeleteAnnouncement)

	huma.Register(s.api, huma.Operation{
		OperationID: "adminListPosts",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/posts",
		Summary:     "List posts for moderation",
		Description: "Returns every community post (admin only)",
		Tags:        tags,
		Security:    bearerAuth,
	}, s.handleAdminListPosts)

	huma.Register(s.api, huma.Operation{
		OperationID: "adminDeletePost",
		Method:      http.MethodDelete,
		Path:        "/api/v1/admin/posts/{id}",
		Summary:     "Delete post",
		Description: "Removes a post and its likes (admin only)",
		Tags:        tags,
		Security:    bearerAuth,
	}, s.handleAdminDeletePost)
}

// === DTOs ===

// DashboardOutput wraps the dashboard for Huma.
type DashboardOutput struct {
	Body service.Dashboard
}

// UpdateReportStatusRequest is the body of a status change.
type UpdateReportStatusRequest struct {
	Status string `json:"status" enum:"submitted,in_progress,resolved,rejected" doc:"New status"`
}

// UpdateReportStatusInput wraps the status change for Huma.
type UpdateReportStatusInput struct {
	ID   string `path:"id" doc:"Report ID"`
	Body UpdateReportStatusRequest
}

// VendorInput wraps a vendor body for Huma.
type VendorInput struct {
	Body service.VendorRequest
}

// UpdateVendorInput wraps a vendor edit for Huma.
type UpdateVendorInput struct {
	ID   string `path:"id" doc:"Vendor ID"`
	Body service.VendorRequest
}

// VendorOutput wraps a vendor for Huma.
type VendorOutput struct {
	Body domain.Vendor
}

// AnnouncementInput wraps an announcement body for Huma.
type AnnouncementInput struct {
	Body service.AnnouncementRequest
}

// UpdateAnnouncementInput wraps an announcement edit for Huma.
type UpdateAnnouncementInput struct {
	ID   string `path:"id" doc:"Announcement ID"`
	Body service.AnnouncementRequest
}

// AnnouncementOutput wraps an announcement for Huma.
type AnnouncementOutput struct {
	Body domain.Announcement
}

// === Handlers ===

func (s *Server) handleAdminDashboard(ctx context.Context, _ *struct{}) (*DashboardOutput, error) {
	dash, err := s.services.Admin.Dashboard(ctx, ActorFrom(ctx))
	if err != nil {
		return nil, err
	}
	return &DashboardOutput{Body: *dash}, nil
}

func (s *Server) handleAdminListReports(ctx context.Context, input *ListReportsInput) (*ReportListOutput, error) {
	list, err := s.services.Admin.ListReports(ctx, ActorFrom(ctx), input.query())
	if err != nil {
		return nil, err
	}
	return &ReportListOutput{Body: *list}, nil
}

func (s *Server) handleAdminUpdateReportStatus(ctx context.Context, input *UpdateReportStatusInput) (*ReportOutput, error) {
	report, err := s.services.Admin.UpdateReportStatus(ctx, ActorFrom(ctx), input.ID, domain.ReportStatus(input.Body.Status))
	if err != nil {
		return nil, err
	}
	return &ReportOutput{Body: *report}, nil
}

func (s *Server) handleAdminCreateVendor(ctx context.Context, input *VendorInput) (*VendorOutput, error) {
	vendor, err := s.services.Admin.CreateVendor(ctx, ActorFrom(ctx), input.Body)
	if err != nil {
		return nil, err
	}
	return &VendorOutput{Body: *vendor}, nil
}

func (s *Server) handleAdminUpdateVendor(ctx context.Context, input *UpdateVendorInput) (*VendorOutput, error) {
	vendor, err := s.services.Admin.UpdateVendor(ctx, ActorFrom(ctx), input.ID, input.Body)
	if err != nil {
		return nil, err
	}
	return &VendorOutput{Body: *vendor}, nil
}

func (s *Server) handleAdminDeleteVendor(ctx context.Context, input *IDInput) (*MessageOutput, error) {
	if err := s.services.Admin.DeleteVendor(ctx, ActorFrom(ctx), input.ID); err != nil {
		return nil, err
	}
	return message("Vendor deleted"), nil
}

func (s *Server) handleAdminCreateAnnouncement(ctx context.Context, input *AnnouncementInput) (*AnnouncementOutput, error) {
	a, err := s.services.Admin.CreateAnnouncement(ctx, ActorFrom(ctx), input.Body)
	if err != nil {
		return nil, err
	}
	return &AnnouncementOutput{Body: *a}, nil
}

func (s *Server) handleAdminUpdateAnnouncement(ctx context.Context, input *UpdateAnnouncementInput) (*AnnouncementOutput, error) {
	a, err := s.services.Admin.UpdateAnnouncement(ctx, ActorFrom(ctx), input.ID, input.Body)
	if err != nil {
		return nil, err
	}
	return &AnnouncementOutput{Body: *a}, nil
}

func (s *Server) handleAdminDeleteAnnouncement(ctx context.Context, input *IDInput) (*MessageOutput, error) {
	if err := s.services.Admin.DeleteAnnouncement(ctx, ActorFrom(ctx), input.ID); err != nil {
		return nil, err
	}
	return message("Announcement deleted"), nil
}

func (s *Server) handleAdminListPosts(ctx context.Context, input *ListPostsInput) (*PostListOutput, error) {
	list, err := s.services.Admin.ListPosts(ctx, ActorFrom(ctx), service.PostQuery{
		Text:    input.Q,
		Type:    input.Type,
		Refresh: input.Refresh,
	})
	if err != nil {
		return nil, err
	}
	return &PostListOutput{Body: *list}, nil
}

func (s *Server) handleAdminDeletePost(ctx context.Context, input *IDInput) (*MessageOutput, error) {
	if err := s.services.Admin.DeletePost(ctx, ActorFrom(ctx), input.ID); err != nil {
		return nil, err
	}
	return message("Post deleted"), nil
}
