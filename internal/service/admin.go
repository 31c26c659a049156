package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/sync/errgroup"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/listcache"
)

// AdminService implements the moderation dashboard. Every operation requires
// the admin role.
type AdminService struct {
	backend   backend.Backend
	community *CommunityService
	publisher events.Publisher
	validator Validator
	logger    *slog.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(b backend.Backend, community *CommunityService, p events.Publisher, v Validator, logger *slog.Logger) *AdminService {
	return &AdminService{backend: b, community: community, publisher: p, validator: v, logger: logger}
}

// Dashboard holds moderation totals.
type Dashboard struct {
	ReportsByStatus map[domain.ReportStatus]int `json:"reports_by_status"`
	TotalReports    int                         `json:"total_reports"`
	Posts           int                         `json:"posts"`
	Vendors         int                         `json:"vendors"`
	Announcements   int                         `json:"announcements"`
	Events          int                         `json:"events"`
}

// VendorRequest contains vendor fields. On update nil fields are unchanged.
type VendorRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Category    *string  `json:"category,omitempty" validate:"omitempty,min=1,max=60"`
	Phone       *string  `json:"phone,omitempty" validate:"omitempty,max=40"`
	Email       *string  `json:"email,omitempty" validate:"omitempty,email"`
	Address     *string  `json:"address,omitempty" validate:"omitempty,max=300"`
	Hours       *string  `json:"hours,omitempty" validate:"omitempty,max=200"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=5000"`
	Services    []string `json:"services,omitempty" validate:"max=30,dive,max=60"`
	ImageURL    *string  `json:"image_url,omitempty" validate:"omitempty,url"`
	Latitude    *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Rating      *float64 `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	Verified    *bool    `json:"verified,omitempty"`
}

// AnnouncementRequest contains announcement fields. Content may be HTML; it is
// stored as Markdown. On update nil fields are unchanged.
type AnnouncementRequest struct {
	Title         *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Content       *string `json:"content,omitempty" validate:"omitempty,min=1,max=20000"`
	Type          *string `json:"type,omitempty" validate:"omitempty,announcement_type"`
	Priority      *string `json:"priority,omitempty" validate:"omitempty,priority"`
	Authority     *string `json:"authority,omitempty" validate:"omitempty,min=1,max=200"`
	Location      *string `json:"location,omitempty" validate:"omitempty,max=300"`
	AttachmentURL *string `json:"attachment_url,omitempty" validate:"omitempty,url"`
}

// Dashboard returns moderation totals.
func (s *AdminService) Dashboard(ctx context.Context, actor domain.Actor) (*Dashboard, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var (
		reports                         []domain.Report
		posts, vendors, anns, eventRows []backend.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		reports, err = selectAll[domain.Report](gctx, s.backend, collReports, nil)
		return err
	})
	for coll, dst := range map[string]*[]backend.Record{
		collPosts: &posts, collVendors: &vendors, collAnnouncements: &anns, collEvents: &eventRows,
	} {
		g.Go(func() (err error) {
			*dst, err = s.backend.Select(gctx, coll, nil)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, readError(err, "dashboard")
	}

	d := &Dashboard{
		ReportsByStatus: make(map[domain.ReportStatus]int, len(domain.ReportStatuses)),
		TotalReports:    len(reports),
		Posts:           len(posts),
		Vendors:         len(vendors),
		Announcements:   len(anns),
		Events:          len(eventRows),
	}
	for _, st := range domain.ReportStatuses {
		d.ReportsByStatus[st] = 0
	}
	for _, r := range reports {
		d.ReportsByStatus[r.Status]++
	}
	return d, nil
}

// ListReports returns every report with the reporter's name, newest first.
func (s *AdminService) ListReports(ctx context.Context, actor domain.Actor, q ReportQuery) (*ReportList, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reports, err := fetchReports(s.backend, nil)(ctx)
	if err != nil {
		return nil, readError(err, "reports")
	}
	return &ReportList{ListMeta: ListMeta{State: listcache.StateReady}, Items: listcache.Filter(reports, q.filter())}, nil
}

// UpdateReportStatus moves a report to a new triage status.
func (s *AdminService) UpdateReportStatus(ctx context.Context, actor domain.Actor, reportID string, status domain.ReportStatus) (*domain.Report, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, domainerrors.ValidationWithDetails("validation failed",
			map[string]string{"status": "must be one of: submitted in_progress resolved rejected"})
	}

	before, err := selectOne[domain.Report](ctx, s.backend, collReports, reportID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, domainerrors.NotFound("report not found")
	}
	if err != nil {
		return nil, readError(err, "report")
	}

	if _, err := s.backend.Update(ctx, collReports, backend.Where(backend.Eq("id", reportID)),
		backend.Record{"status": string(status)}); err != nil {
		return nil, writeError(err, "report")
	}

	after := before
	after.Status = status
	if before.Status != status {
		publish(ctx, s.publisher, s.logger, events.TypeReportStatusChanged, events.ReportStatusChanged{
			ID: reportID, From: before.Status, To: status, ChangedBy: actor.UserID,
		})
	}
	s.logger.Info("Report status updated", "report_id", reportID, "from", before.Status, "to", status)
	return &after, nil
}

// CreateVendor adds a vendor. Vendors added by administrators are verified
// unless the request says otherwise.
func (s *AdminService) CreateVendor(ctx context.Context, actor domain.Actor, req VendorRequest) (*domain.Vendor, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.Name == nil || req.Category == nil {
		return nil, domainerrors.ValidationWithDetails("validation failed", requiredFields(map[string]bool{"name": req.Name == nil, "category": req.Category == nil}))
	}

	rec := vendorFields(req)
	if _, ok := rec["verified"]; !ok {
		rec["verified"] = true
	}
	row, err := s.backend.Insert(ctx, collVendors, rec)
	if err != nil {
		return nil, writeError(err, "vendor")
	}
	v, err := backend.Decode[domain.Vendor](row)
	if err != nil {
		return nil, domainerrors.Internal("decode vendor").WithCause(err)
	}
	s.logger.Info("Vendor created", "vendor_id", v.ID)
	return &v, nil
}

// UpdateVendor edits a vendor.
func (s *AdminService) UpdateVendor(ctx context.Context, actor domain.Actor, vendorID string, req VendorRequest) (*domain.Vendor, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.update(ctx, collVendors, "vendor", vendorID, vendorFields(req)); err != nil {
		return nil, err
	}
	v, err := selectOne[domain.Vendor](ctx, s.backend, collVendors, vendorID)
	if err != nil {
		return nil, readError(err, "vendor")
	}
	return &v, nil
}

// DeleteVendor removes a vendor.
func (s *AdminService) DeleteVendor(ctx context.Context, actor domain.Actor, vendorID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	return s.delete(ctx, collVendors, "vendor", vendorID)
}

// CreateAnnouncement publishes an announcement.
func (s *AdminService) CreateAnnouncement(ctx context.Context, actor domain.Actor, req AnnouncementRequest) (*domain.Announcement, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.Title == nil || req.Content == nil || req.Authority == nil {
		return nil, domainerrors.ValidationWithDetails("validation failed",
			requiredFields(map[string]bool{"title": req.Title == nil, "content": req.Content == nil, "authority": req.Authority == nil}))
	}

	row, err := s.backend.Insert(ctx, collAnnouncements, announcementFields(req))
	if err != nil {
		return nil, writeError(err, "announcement")
	}
	a, err := backend.Decode[domain.Announcement](row)
	if err != nil {
		return nil, domainerrors.Internal("decode announcement").WithCause(err)
	}
	s.logger.Info("Announcement created", "announcement_id", a.ID, "type", a.Type)
	return &a, nil
}

// UpdateAnnouncement edits an announcement.
func (s *AdminService) UpdateAnnouncement(ctx context.Context, actor domain.Actor, announcementID string, req AnnouncementRequest) (*domain.Announcement, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.update(ctx, collAnnouncements, "announcement", announcementID, announcementFields(req)); err != nil {
		return nil, err
	}
	a, err := selectOne[domain.Announcement](ctx, s.backend, collAnnouncements, announcementID)
	if err != nil {
		return nil, readError(err, "announcement")
	}
	return &a, nil
}

// DeleteAnnouncement removes an announcement.
func (s *AdminService) DeleteAnnouncement(ctx context.Context, actor domain.Actor, announcementID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	return s.delete(ctx, collAnnouncements, "announcement", announcementID)
}

// ListPosts returns every post for moderation.
func (s *AdminService) ListPosts(ctx context.Context, actor domain.Actor, q PostQuery) (*PostList, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	posts, err := fetchPosts(s.backend)(ctx)
	if err != nil {
		return nil, readError(err, "posts")
	}
	filtered := listcache.Filter(posts, listcache.Query{Text: q.Text, Facets: map[string]string{"type": q.Type}})
	out := &PostList{ListMeta: ListMeta{State: listcache.StateReady}, Items: make([]PostView, len(filtered))}
	for i, p := range filtered {
		out.Items[i] = PostView{Post: p}
	}
	return out, nil
}

// DeletePost removes any post.
func (s *AdminService) DeletePost(ctx context.Context, actor domain.Actor, postID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	return s.community.DeletePost(ctx, actor, postID)
}

func (s *AdminService) update(ctx context.Context, collection, what, id string, fields backend.Record) error {
	if len(fields) == 0 {
		return domainerrors.Validation("nothing to update")
	}
	n, err := s.backend.Update(ctx, collection, backend.Where(backend.Eq("id", id)), fields)
	if err != nil {
		return writeError(err, what)
	}
	if n == 0 {
		return domainerrors.NotFoundf("%s not found", what)
	}
	return nil
}

func (s *AdminService) delete(ctx context.Context, collection, what, id string) error {
	n, err := s.backend.Delete(ctx, collection, backend.Where(backend.Eq("id", id)))
	if err != nil {
		return writeError(err, what)
	}
	if n == 0 {
		return domainerrors.NotFoundf("%s not found", what)
	}
	s.logger.Info("Deleted "+what, "id", id)
	return nil
}

func vendorFields(req VendorRequest) backend.Record {
	rec := backend.Record{}
	stringPtrField(rec, "name", req.Name)
	stringPtrField(rec, "category", req.Category)
	stringPtrField(rec, "phone", req.Phone)
	stringPtrField(rec, "email", req.Email)
	stringPtrField(rec, "address", req.Address)
	stringPtrField(rec, "hours", req.Hours)
	stringPtrField(rec, "description", req.Description)
	stringPtrField(rec, "image_url", req.ImageURL)
	if req.Services != nil {
		rec["services"] = req.Services
	}
	if req.Latitude != nil && req.Longitude != nil {
		rec["latitude"] = *req.Latitude
		rec["longitude"] = *req.Longitude
	}
	if req.Rating != nil {
		rec["rating"] = *req.Rating
	}
	if req.Verified != nil {
		rec["verified"] = *req.Verified
	}
	return rec
}

func announcementFields(req AnnouncementRequest) backend.Record {
	rec := backend.Record{}
	stringPtrField(rec, "title", req.Title)
	if req.Content != nil {
		rec["content"] = htmlToMarkdown(*req.Content)
	}
	stringPtrField(rec, "type", req.Type)
	stringPtrField(rec, "priority", req.Priority)
	stringPtrField(rec, "authority", req.Authority)
	stringPtrField(rec, "location", req.Location)
	stringPtrField(rec, "attachment_url", req.AttachmentURL)
	return rec
}

// requiredFields builds validation details for the missing fields.
func requiredFields(missing map[string]bool) map[string]string {
	out := make(map[string]string, len(missing))
	for name, m := range missing {
		if m {
			out[name] = "is required"
		}
	}
	return out
}

var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|u|strong|em|a|ul|ol|li|h[1-6]|blockquote|table)[\s>/]`)

// htmlToMarkdown converts rich-text editor output to Markdown. Plain text and
// content that fails to convert are returned unchanged.
func htmlToMarkdown(s string) string {
	if s == "" || !htmlTagPattern.MatchString(strings.ToLower(s)) {
		return s
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(md)
}
