package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/townsquareapp/townsquare-server/internal/domain"
	"github.com/townsquareapp/townsquare-server/internal/service"
)

func (s *Server) registerPostRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listPosts",
		Method:      http.MethodGet,
		Path:        "/api/v1/posts",
		Summary:     "List posts",
		Description: "Returns community posts newest first with the caller's like state",
		Tags:        []string{"Community"},
		Security:    bearerAuth,
	}, s.handleListPosts)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createPost",
		Method:        http.MethodPost,
		Path:          "/api/v1/posts",
		Summary:       "Create post",
		Description:   "Publishes a post as the caller",
		Tags:          []string{"Community"},
		Security:      bearerAuth,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreatePost)

	huma.Register(s.api, huma.Operation{
		OperationID: "deletePost",
		Method:      http.MethodDelete,
		Path:        "/api/v1/posts/{id}",
		Summary:     "Delete post",
		Description: "Deletes a post with its likes. Only the author or an admin may delete.",
		Tags:        []string{"Community"},
		Security:    bearerAuth,
	}, s.handleDeletePost)

	huma.Register(s.api, huma.Operation{
		OperationID: "togglePostLike",
		Method:      http.MethodPost,
		Path:        "/api/v1/posts/{id}/like",
		Summary:     "Toggle like",
		Description: "Likes the post if the caller has not, otherwise removes the like",
		Tags:        []string{"Community"},
		Security:    bearerAuth,
	}, s.handleToggleLike)
}

func (s *Server) registerEventRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "List events",
		Description: "Returns community events by date with the caller's RSVP state",
		Tags:        []string{"Community"},
		Security:    bearerAuth,
	}, s.handleListEvents)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createEvent",
		Method:        http.MethodPost,
		Path:          "/api/v1/events",
		Summary:       "Create event",
		Description:   "Creates an event organized by the caller",
		Tags:          []string{"Community"},
		Security:      bearerAuth,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateEvent)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleEventAttendance",
		Method:      http.MethodPost,
		Path:        "/api/v1/events/{id}/attendance",
		Summary:     "Toggle attendance",
		Description: "RSVPs to the event if the caller has not, otherwise withdraws",
		Tags:        []string{"Community"},
		Security:    bearerAuth,
	}, s.handleToggleAttendance)
}

// === DTOs ===

// ListPostsInput contains post list filters.
type ListPostsInput struct {
	Q       string `query:"q" doc:"Text search over content and author"`
	Type    string `query:"type" doc:"Post type filter (text, image, poll, event); all or empty for every type"`
	Refresh bool   `query:"refresh" doc:"Refetch from the remote store before filtering"`
}

// PostListOutput wraps a post list for Huma.
type PostListOutput struct {
	Body service.PostList
}

// CreatePostInput wraps the post body for Huma.
type CreatePostInput struct {
	Body service.CreatePostRequest
}

// PostOutput wraps a post for Huma.
type PostOutput struct {
	Body domain.Post
}

// ListEventsInput contains event list filters.
type ListEventsInput struct {
	Q       string `query:"q" doc:"Text search over title, description and location"`
	Refresh bool   `query:"refresh" doc:"Refetch from the remote store before filtering"`
}

// EventListOutput wraps an event list for Huma.
type EventListOutput struct {
	Body service.EventList
}

// CreateEventInput wraps the event body for Huma.
type CreateEventInput struct {
	Body service.CreateEventRequest
}

// EventOutput wraps an event for Huma.
type EventOutput struct {
	Body domain.Event
}

// ToggleOutput wraps a membership toggle result.
type ToggleOutput struct {
	Body service.ToggleResult
}

// === Handlers ===

func (s *Server) handleListPosts(ctx context.Context, input *ListPostsInput) (*PostListOutput, error) {
	list, err := s.services.Community.ListPosts(ctx, ActorFrom(ctx), service.PostQuery{
		Text:    input.Q,
		Type:    input.Type,
		Refresh: input.Refresh,
	})
	if err != nil {
		return nil, err
	}
	return &PostListOutput{Body: *list}, nil
}

func (s *Server) handleCreatePost(ctx context.Context, input *CreatePostInput) (*PostOutput, error) {
	post, err := s.services.Community.CreatePost(ctx, ActorFrom(ctx), input.Body)
	if err != nil {
		return nil, err
	}
	return &PostOutput{Body: *post}, nil
}

func (s *Server) handleDeletePost(ctx context.Context, input *IDInput) (*MessageOutput, error) {
	if err := s.services.Community.DeletePost(ctx, ActorFrom(ctx), input.ID); err != nil {
		return nil, err
	}
	return message("Post deleted"), nil
}

func (s *Server) handleToggleLike(ctx context.Context, input *IDInput) (*ToggleOutput, error) {
	result, err := s.services.Community.ToggleLike(ctx, ActorFrom(ctx), input.ID)
	if err != nil {
		return nil, err
	}
	return &ToggleOutput{Body: *result}, nil
}

func (s *Server) handleListEvents(ctx context.Context, input *ListEventsInput) (*EventListOutput, error) {
	list, err := s.services.Community.ListEvents(ctx, ActorFrom(ctx), service.EventQuery{
		Text:    input.Q,
		Refresh: input.Refresh,
	})
	if err != nil {
		return nil, err
	}
	return &EventListOutput{Body: *list}, nil
}

func (s *Server) handleCreateEvent(ctx context.Context, input *CreateEventInput) (*EventOutput, error) {
	event, err := s.services.Community.CreateEvent(ctx, ActorFrom(ctx), input.Body)
	if err != nil {
		return nil, err
	}
	return &EventOutput{Body: *event}, nil
}

func (s *Server) handleToggleAttendance(ctx context.Context, input *IDInput) (*ToggleOutput, error) {
	result, err := s.services.Community.ToggleAttendance(ctx, ActorFrom(ctx), input.ID)
	if err != nil {
		return nil, err
	}
	return &ToggleOutput{Body: *result}, nil
}
