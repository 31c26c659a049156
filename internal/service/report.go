package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/listcache"
)

// ReportService lets residents file and manage civic issue reports.
type ReportService struct {
	backend    backend.Backend
	workspaces *Workspaces
	publisher  events.Publisher
	validator  Validator
	logger     *slog.Logger
}

// NewReportService creates a new report service.
func NewReportService(b backend.Backend, workspaces *Workspaces, p events.Publisher, v Validator, logger *slog.Logger) *ReportService {
	return &ReportService{backend: b, workspaces: workspaces, publisher: p, validator: v, logger: logger}
}

// ReportQuery filters a report list.
type ReportQuery struct {
	Text     string
	Category string
	Status   string
	Priority string
	Refresh  bool
}

func (q ReportQuery) filter() listcache.Query {
	return listcache.Query{
		Text:   q.Text,
		Facets: map[string]string{"category": q.Category, "status": q.Status, "priority": q.Priority},
	}
}

// ReportList is a filtered report list.
type ReportList struct {
	ListMeta
	Items []domain.Report `json:"items"`
}

// CreateReportRequest contains the fields of a new report.
type CreateReportRequest struct {
	Title           string   `json:"title" validate:"required,max=200"`
	Description     string   `json:"description" validate:"required,max=5000"`
	Category        string   `json:"category" validate:"required,max=60"`
	LocationAddress string   `json:"location_address,omitempty" validate:"max=300"`
	LocationLat     *float64 `json:"location_lat,omitempty" validate:"omitempty,latitude"`
	LocationLng     *float64 `json:"location_lng,omitempty" validate:"omitempty,longitude"`
	ImageURL        string   `json:"image_url,omitempty" validate:"omitempty,url"`
	Priority        string   `json:"priority,omitempty" validate:"omitempty,priority"`
}

// UpdateReportRequest contains the editable fields of a report. Nil fields are
// left unchanged.
type UpdateReportRequest struct {
	Title           *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description     *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	Category        *string `json:"category,omitempty" validate:"omitempty,min=1,max=60"`
	LocationAddress *string `json:"location_address,omitempty" validate:"omitempty,max=300"`
	ImageURL        *string `json:"image_url,omitempty" validate:"omitempty,url"`
}

// List returns the actor's own reports, newest first.
func (s *ReportService) List(ctx context.Context, actor domain.Actor, q ReportQuery) (*ReportList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ws, err := s.workspaces.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := loadList(ctx, ws.Reports, q.Refresh); err != nil {
		return nil, err
	}
	return &ReportList{ListMeta: ListMeta{State: ws.Reports.State()}, Items: ws.Reports.Filter(q.filter())}, nil
}

// Create files a report as the actor. New reports start as submitted.
func (s *ReportService) Create(ctx context.Context, actor domain.Actor, req CreateReportRequest) (*domain.Report, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	priority := domain.Priority(req.Priority)
	if priority == "" {
		priority = domain.PriorityMedium
	}
	rec := backend.Record{
		"user_id":     actor.UserID,
		"title":       strings.TrimSpace(req.Title),
		"description": req.Description,
		"category":    req.Category,
		"status":      string(domain.ReportSubmitted),
		"priority":    string(priority),
	}
	stringPtrField(rec, "location_address", nonEmpty(req.LocationAddress))
	stringPtrField(rec, "image_url", nonEmpty(req.ImageURL))
	if req.LocationLat != nil && req.LocationLng != nil {
		rec["location_lat"] = *req.LocationLat
		rec["location_lng"] = *req.LocationLng
	}

	row, err := s.backend.Insert(ctx, collReports, rec)
	if err != nil {
		return nil, writeError(err, "report")
	}
	report, err := backend.Decode[domain.Report](row)
	if err != nil {
		return nil, domainerrors.Internal("decode report").WithCause(err)
	}

	s.refreshReports(ctx, actor)
	publish(ctx, s.publisher, s.logger, events.TypeReportCreated, events.ReportCreated{
		ID: report.ID, UserID: report.UserID, Category: report.Category, Priority: report.Priority,
	})
	s.logger.Info("Report created", "report_id", report.ID, "user_id", actor.UserID)
	return &report, nil
}

// Update edits one of the actor's reports.
func (s *ReportService) Update(ctx context.Context, actor domain.Actor, reportID string, req UpdateReportRequest) (*domain.Report, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	fields := backend.Record{}
	stringPtrField(fields, "title", req.Title)
	stringPtrField(fields, "description", req.Description)
	stringPtrField(fields, "category", req.Category)
	stringPtrField(fields, "location_address", req.LocationAddress)
	stringPtrField(fields, "image_url", req.ImageURL)
	if len(fields) == 0 {
		return nil, domainerrors.Validation("nothing to update")
	}

	own := backend.Where(backend.Eq("id", reportID), backend.Eq("user_id", actor.UserID))
	n, err := s.backend.Update(ctx, collReports, own, fields)
	if err != nil {
		return nil, writeError(err, "report")
	}
	if n == 0 {
		return nil, domainerrors.NotFound("report not found")
	}

	report, err := selectOne[domain.Report](ctx, s.backend, collReports, reportID)
	if err != nil {
		return nil, readError(err, "report")
	}
	s.refreshReports(ctx, actor)
	return &report, nil
}

// Delete removes one of the actor's reports.
func (s *ReportService) Delete(ctx context.Context, actor domain.Actor, reportID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	n, err := s.backend.Delete(ctx, collReports, backend.Where(backend.Eq("id", reportID), backend.Eq("user_id", actor.UserID)))
	if err != nil {
		return writeError(err, "report")
	}
	if n == 0 {
		return domainerrors.NotFound("report not found")
	}
	s.refreshReports(ctx, actor)
	s.logger.Info("Report deleted", "report_id", reportID, "user_id", actor.UserID)
	return nil
}

func (s *ReportService) refreshReports(ctx context.Context, actor domain.Actor) {
	ws, ok := s.workspaces.Peek(actor.UserID)
	if !ok || ws.Reports == nil {
		return
	}
	if err := ws.Reports.FetchAll(ctx); err != nil {
		s.logger.Warn("report list refresh failed", "user_id", actor.UserID, "error", err)
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
