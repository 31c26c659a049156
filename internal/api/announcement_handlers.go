package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/townsquareapp/townsquare-server/internal/service"
)

func (s *Server) registerAnnouncementRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listAnnouncements",
		Method:      http.MethodGet,
		Path:        "/api/v1/announcements",
		Summary:     "List announcements",
		Description: "Returns official announcements newest first with the caller's read state. " +
			"When the remote store is unreachable the last saved copy is returned with stale set.",
		Tags:     []string{"Announcements"},
		Security: bearerAuth,
	}, s.handleListAnnouncements)

	huma.Register(s.api, huma.Operation{
		OperationID: "markAnnouncementRead",
		Method:      http.MethodPut,
		Path:        "/api/v1/announcements/{id}/read",
		Summary:     "Mark as read",
		Description: "Marks the announcement read for the caller. Idempotent.",
		Tags:        []string{"Announcements"},
		Security:    bearerAuth,
	}, s.handleMarkRead)

	huma.Register(s.api, huma.Operation{
		OperationID: "markAnnouncementUnread",
		Method:      http.MethodDelete,
		Path:        "/api/v1/announcements/{id}/read",
		Summary:     "Mark as unread",
		Description: "Clears the caller's read mark. Idempotent.",
		Tags:        []string{"Announcements"},
		Security:    bearerAuth,
	}, s.handleMarkUnread)
}

// ListAnnouncementsInput contains announcement filters.
type ListAnnouncementsInput struct {
	Q        string `query:"q" doc:"Text search over title, content and authority"`
	Type     string `query:"type" doc:"Announcement type filter; all or empty for every type"`
	Priority string `query:"priority" doc:"Priority filter; all or empty for every priority"`
	Read     string `query:"read" enum:"all,read,unread" doc:"Read state filter"`
	Refresh  bool   `query:"refresh" doc:"Refetch from the remote store before filtering"`
}

// AnnouncementListOutput wraps an announcement list for Huma.
type AnnouncementListOutput struct {
	Body service.AnnouncementList
}

func (s *Server) handleListAnnouncements(ctx context.Context, input *ListAnnouncementsInput) (*AnnouncementListOutput, error) {
	list, err := s.services.Announcements.List(ctx, ActorFrom(ctx), service.AnnouncementQuery{
		Text:     input.Q,
		Type:     input.Type,
		Priority: input.Priority,
		Read:     input.Read,
		Refresh:  input.Refresh,
	})
	if err != nil {
		return nil, err
	}
	return &AnnouncementListOutput{Body: *list}, nil
}

func (s *Server) handleMarkRead(ctx context.Context, input *IDInput) (*ToggleOutput, error) {
	result, err := s.services.Announcements.MarkRead(ctx, ActorFrom(ctx), input.ID)
	if err != nil {
		return nil, err
	}
	return &ToggleOutput{Body: *result}, nil
}

func (s *Server) handleMarkUnread(ctx context.Context, input *IDInput) (*ToggleOutput, error) {
	result, err := s.services.Announcements.MarkUnread(ctx, ActorFrom(ctx), input.ID)
	if err != nil {
		return nil, err
	}
	return &ToggleOutput{Body: *result}, nil
}
