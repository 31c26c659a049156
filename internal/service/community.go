package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/listcache"
)

// CommunityService manages the community board: posts, likes, events and RSVPs.
type CommunityService struct {
	backend    backend.Backend
	workspaces *Workspaces
	publisher  events.Publisher
	validator  Validator
	logger     *slog.Logger
}

// NewCommunityService creates a new community service.
func NewCommunityService(b backend.Backend, workspaces *Workspaces, p events.Publisher, v Validator, logger *slog.Logger) *CommunityService {
	return &CommunityService{backend: b, workspaces: workspaces, publisher: p, validator: v, logger: logger}
}

// PostQuery filters the post list.
type PostQuery struct {
	Text    string
	Type    string
	Refresh bool
}

// PostView is a post with the viewer's like state.
type PostView struct {
	domain.Post
	IsLiked bool `json:"is_liked"`
}

// PostList is a filtered post list.
type PostList struct {
	ListMeta
	Items []PostView `json:"items"`
}

// CreatePostRequest contains the fields of a new post.
type CreatePostRequest struct {
	Content  string   `json:"content" validate:"required,max=5000"`
	Type     string   `json:"type,omitempty" validate:"omitempty,post_type"`
	Tags     []string `json:"tags,omitempty" validate:"max=10,dive,max=40"`
	ImageURL string   `json:"image_url,omitempty" validate:"omitempty,url"`
}

// EventQuery filters the event list.
type EventQuery struct {
	Text    string
	Refresh bool
}

// EventView is an event with the viewer's RSVP state.
type EventView struct {
	domain.Event
	IsAttending bool `json:"is_attending"`
}

// EventList is a filtered event list.
type EventList struct {
	ListMeta
	Items []EventView `json:"items"`
}

// CreateEventRequest contains the fields of a new event.
type CreateEventRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=5000"`
	EventDate   string `json:"event_date" validate:"required,datetime=2006-01-02"`
	EventTime   string `json:"event_time,omitempty" validate:"omitempty,datetime=15:04"`
	Location    string `json:"location,omitempty" validate:"max=300"`
}

// ListPosts returns posts newest first, filtered by text and type.
func (s *CommunityService) ListPosts(ctx context.Context, actor domain.Actor, q PostQuery) (*PostList, error) {
	ws, err := s.workspaces.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := loadList(ctx, ws.Posts, q.Refresh); err != nil {
		return nil, err
	}

	posts := ws.Posts.Filter(listcache.Query{Text: q.Text, Facets: map[string]string{"type": q.Type}})
	out := &PostList{ListMeta: ListMeta{State: ws.Posts.State()}, Items: make([]PostView, len(posts))}
	for i, p := range posts {
		out.Items[i] = PostView{Post: p, IsLiked: ws.Likes.IsMember(p.ID)}
	}
	return out, nil
}

// CreatePost publishes a post as the actor.
func (s *CommunityService) CreatePost(ctx context.Context, actor domain.Actor, req CreatePostRequest) (*domain.Post, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	postType := domain.PostType(req.Type)
	if postType == "" {
		postType = domain.PostText
	}
	tags := make([]string, 0, len(req.Tags))
	for _, t := range req.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	rec := backend.Record{
		"user_id": actor.UserID,
		"content": strings.TrimSpace(req.Content),
		"type":    string(postType),
		"tags":    tags,
	}
	if req.ImageURL != "" {
		rec["image_url"] = req.ImageURL
	}

	row, err := s.backend.Insert(ctx, collPosts, rec)
	if err != nil {
		return nil, writeError(err, "post")
	}
	post, err := backend.Decode[domain.Post](row)
	if err != nil {
		return nil, domainerrors.Internal("decode post").WithCause(err)
	}

	s.refresh(ctx, actor, func(ws *Workspace) error { return ws.Posts.FetchAll(ctx) })
	publish(ctx, s.publisher, s.logger, events.TypePostCreated, events.PostCreated{ID: post.ID, AuthorID: post.UserID, Type: post.Type})
	s.logger.Info("Post created", "post_id", post.ID, "user_id", actor.UserID)
	return &post, nil
}

// DeletePost removes a post and its likes. Only the author or an administrator
// may delete a post.
func (s *CommunityService) DeletePost(ctx context.Context, actor domain.Actor, postID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}

	if caller, ok := s.backend.(backend.Caller); ok {
		err := caller.Call(ctx, backend.ProcDeleteCommunityPost, backend.Record{"post_id": postID, "user_id": actor.UserID})
		if err != nil && !errors.Is(err, backend.ErrUnsupported) {
			return writeError(err, "post")
		}
		if err == nil {
			s.afterDelete(ctx, actor, postID)
			return nil
		}
	}

	post, err := selectOne[domain.Post](ctx, s.backend, collPosts, postID)
	if errors.Is(err, backend.ErrNotFound) {
		return domainerrors.NotFound("post not found")
	}
	if err != nil {
		return readError(err, "post")
	}
	if post.UserID != actor.UserID && !actor.IsAdmin() {
		return domainerrors.Forbidden("only the author can delete this post")
	}
	if _, err := s.backend.Delete(ctx, collPostLikes, backend.Where(backend.Eq("post_id", postID))); err != nil {
		return writeError(err, "post likes")
	}
	if _, err := s.backend.Delete(ctx, collPosts, backend.Where(backend.Eq("id", postID))); err != nil {
		return writeError(err, "post")
	}

	s.afterDelete(ctx, actor, postID)
	return nil
}

func (s *CommunityService) afterDelete(ctx context.Context, actor domain.Actor, postID string) {
	s.refresh(ctx, actor, func(ws *Workspace) error { return ws.Posts.FetchAll(ctx) })
	publish(ctx, s.publisher, s.logger, events.TypePostDeleted, events.PostDeleted{ID: postID, DeletedBy: actor.UserID})
	s.logger.Info("Post deleted", "post_id", postID, "user_id", actor.UserID)
}

// ToggleLike likes or unlikes a post and adjusts its likes_count.
func (s *CommunityService) ToggleLike(ctx context.Context, actor domain.Actor, postID string) (*ToggleResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ws, err := s.workspaces.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if _, err := findTarget(ctx, ws.Posts, postID, "post"); err != nil {
		return nil, err
	}

	return interaction[domain.Post]{set: ws.Likes, counter: ws.LikeCounter, list: ws.Posts}.
		toggle(ctx, actor, postID, s.publisher, s.logger)
}

// ListEvents returns upcoming events ordered by date.
func (s *CommunityService) ListEvents(ctx context.Context, actor domain.Actor, q EventQuery) (*EventList, error) {
	ws, err := s.workspaces.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := loadList(ctx, ws.Events, q.Refresh); err != nil {
		return nil, err
	}

	evs := ws.Events.Filter(listcache.Query{Text: q.Text})
	out := &EventList{ListMeta: ListMeta{State: ws.Events.State()}, Items: make([]EventView, len(evs))}
	for i, e := range evs {
		out.Items[i] = EventView{Event: e, IsAttending: ws.Attendance.IsMember(e.ID)}
	}
	return out, nil
}

// CreateEvent schedules a community event.
func (s *CommunityService) CreateEvent(ctx context.Context, actor domain.Actor, req CreateEventRequest) (*domain.Event, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	row, err := s.backend.Insert(ctx, collEvents, backend.Record{
		"user_id":     actor.UserID,
		"title":       strings.TrimSpace(req.Title),
		"description": req.Description,
		"event_date":  req.EventDate,
		"event_time":  req.EventTime,
		"location":    req.Location,
	})
	if err != nil {
		return nil, writeError(err, "event")
	}
	ev, err := backend.Decode[domain.Event](row)
	if err != nil {
		return nil, domainerrors.Internal("decode event").WithCause(err)
	}

	s.refresh(ctx, actor, func(ws *Workspace) error { return ws.Events.FetchAll(ctx) })
	s.logger.Info("Event created", "event_id", ev.ID, "user_id", actor.UserID)
	return &ev, nil
}

// ToggleAttendance RSVPs to or withdraws from an event and adjusts its
// attendees_count.
func (s *CommunityService) ToggleAttendance(ctx context.Context, actor domain.Actor, eventID string) (*ToggleResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ws, err := s.workspaces.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if _, err := findTarget(ctx, ws.Events, eventID, "event"); err != nil {
		return nil, err
	}

	return interaction[domain.Event]{set: ws.Attendance, counter: ws.AttendeesCounter, list: ws.Events}.
		toggle(ctx, actor, eventID, s.publisher, s.logger)
}

// refresh refetches a list in the actor's workspace after a write. Failures
// only mean the list stays stale until the next refresh.
func (s *CommunityService) refresh(ctx context.Context, actor domain.Actor, fn func(*Workspace) error) {
	ws, ok := s.workspaces.Peek(actor.UserID)
	if !ok {
		return
	}
	if err := fn(ws); err != nil {
		s.logger.Warn("list refresh after write failed", "user_id", actor.UserID, "error", err)
	}
}
