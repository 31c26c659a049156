package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/townsquareapp/townsquare-server/internal/domain"
	"github.com/townsquareapp/townsquare-server/internal/service"
)

func (s *Server) registerReportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listReports",
		Method:      http.MethodGet,
		Path:        "/api/v1/reports",
		Summary:     "List my reports",
		Description: "Returns the caller's civic reports newest first",
		Tags:        []string{"Reports"},
		Security:    bearerAuth,
	}, s.handleListReports)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createReport",
		Method:        http.MethodPost,
		Path:          "/api/v1/reports",
		Summary:       "File report",
		Description:   "Files a civic issue report. New reports start as submitted.",
		Tags:          []string{"Reports"},
		Security:      bearerAuth,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateReport)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateReport",
		Method:      http.MethodPatch,
		Path:        "/api/v1/reports/{id}",
		Summary:     "Update report",
		Description: "Edits one of the caller's reports",
		Tags:        []string{"Reports"},
		Security:    bearerAuth,
	}, s.handleUpdateReport)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteReport",
		Method:      http.MethodDelete,
		Path:        "/api/v1/reports/{id}",
		Summary:     "Delete report",
		Description: "Deletes one of the caller's reports",
		Tags:        []string{"Reports"},
		Security:    bearerAuth,
	}, s.handleDeleteReport)
}

// ListReportsInput contains report filters.
type ListReportsInput struct {
	Q        string `query:"q" doc:"Text search over title, description and address"`
	Category string `query:"category" doc:"Category filter"`
	Status   string `query:"status" doc:"Status filter (submitted, in_progress, resolved, rejected)"`
	Priority string `query:"priority" doc:"Priority filter (low, medium, high)"`
	Refresh  bool   `query:"refresh" doc:"Refetch from the remote store before filtering"`
}

func (in *ListReportsInput) query() service.ReportQuery {
	return service.ReportQuery{
		Text:     in.Q,
		Category: in.Category,
		Status:   in.Status,
		Priority: in.Priority,
		Refresh:  in.Refresh,
	}
}

// ReportListOutput wraps a report list for Huma.
type ReportListOutput struct {
	Body service.ReportList
}

// CreateReportInput wraps the report body for Huma.
type CreateReportInput struct {
	Body service.CreateReportRequest
}

// UpdateReportInput wraps the report edit for Huma.
type UpdateReportInput struct {
	ID   string `path:"id" doc:"Report ID"`
	Body service.UpdateReportRequest
}

// ReportOutput wraps a report for Huma.
type ReportOutput struct {
	Body domain.Report
}

func (s *Server) handleListReports(ctx context.Context, input *ListReportsInput) (*ReportListOutput, error) {
	list, err := s.services.Reports.List(ctx, ActorFrom(ctx), input.query())
	if err != nil {
		return nil, err
	}
	return &ReportListOutput{Body: *list}, nil
}

func (s *Server) handleCreateReport(ctx context.Context, input *CreateReportInput) (*ReportOutput, error) {
	report, err := s.services.Reports.Create(ctx, ActorFrom(ctx), input.Body)
	if err != nil {
		return nil, err
	}
	return &ReportOutput{Body: *report}, nil
}

func (s *Server) handleUpdateReport(ctx context.Context, input *UpdateReportInput) (*ReportOutput, error) {
	report, err := s.services.Reports.Update(ctx, ActorFrom(ctx), input.ID, input.Body)
	if err != nil {
		return nil, err
	}
	return &ReportOutput{Body: *report}, nil
}

func (s *Server) handleDeleteReport(ctx context.Context, input *IDInput) (*MessageOutput, error) {
	if err := s.services.Reports.Delete(ctx, ActorFrom(ctx), input.ID); err != nil {
		return nil, err
	}
	return message("Report deleted"), nil
}
