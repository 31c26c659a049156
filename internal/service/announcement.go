package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/listcache"
	"github.com/townsquareapp/townsquare-server/internal/membership"
)

// Read filters for announcements.
const (
	ReadFilterAll    = "all"
	ReadFilterRead   = "read"
	ReadFilterUnread = "unread"
)

// AnnouncementService serves official announcements and per-user read state.
type AnnouncementService struct {
	workspaces *Workspaces
	publisher  events.Publisher
	logger     *slog.Logger
}

// NewAnnouncementService creates a new announcement service.
func NewAnnouncementService(workspaces *Workspaces, p events.Publisher, logger *slog.Logger) *AnnouncementService {
	return &AnnouncementService{workspaces: workspaces, publisher: p, logger: logger}
}

// AnnouncementQuery filters the announcement list.
type AnnouncementQuery struct {
	Text     string
	Type     string
	Priority string
	Read     string // all, read or unread
	Refresh  bool
}

// AnnouncementView is an announcement with the viewer's read state.
type AnnouncementView struct {
	domain.Announcement
	IsRead bool `json:"is_read"`
}

// AnnouncementList is a filtered announcement list. Counts cover every
// announcement, not only the filtered ones.
type AnnouncementList struct {
	ListMeta
	Items       []AnnouncementView `json:"items"`
	UnreadCount int                `json:"unread_count"`
	ReadCount   int                `json:"read_count"`
	// SavedAt is when the offline copy was taken, set only when Stale.
	SavedAt *time.Time `json:"saved_at,omitempty"`
}

// List returns announcements newest first. When the remote store cannot be
// reached the last good copy is returned marked stale.
func (s *AnnouncementService) List(ctx context.Context, actor domain.Actor, q AnnouncementQuery) (*AnnouncementList, error) {
	if q.Read != "" && q.Read != ReadFilterAll && q.Read != ReadFilterRead && q.Read != ReadFilterUnread {
		return nil, domainerrors.Validationf("read must be one of: all read unread")
	}

	ws, err := s.workspaces.Get(ctx, actor)
	if err != nil {
		return nil, err
	}

	out := &AnnouncementList{}
	all, err := s.items(ctx, ws, q.Refresh, out)
	if err != nil {
		return nil, err
	}
	out.State = ws.Announcements.State()

	for _, a := range all {
		if ws.Reads.IsMember(a.ID) {
			out.ReadCount++
		} else {
			out.UnreadCount++
		}
	}

	filtered := listcache.Filter(all, listcache.Query{
		Text:   q.Text,
		Facets: map[string]string{"type": q.Type, "priority": q.Priority},
	})
	out.Items = make([]AnnouncementView, 0, len(filtered))
	for _, a := range filtered {
		read := ws.Reads.IsMember(a.ID)
		if (q.Read == ReadFilterRead && !read) || (q.Read == ReadFilterUnread && read) {
			continue
		}
		out.Items = append(out.Items, AnnouncementView{Announcement: a, IsRead: read})
	}
	return out, nil
}

// items returns the live list, or a stale copy when fetching fails.
func (s *AnnouncementService) items(ctx context.Context, ws *Workspace, refresh bool, out *AnnouncementList) ([]domain.Announcement, error) {
	err := loadList(ctx, ws.Announcements, refresh)
	if err == nil {
		return ws.Announcements.Items(), nil
	}

	if ws.Announcements.Len() > 0 {
		out.Stale = true
		return ws.Announcements.Items(), nil
	}
	if items, savedAt, ok := ws.Announcements.Offline(); ok {
		s.logger.Info("serving offline announcements", "saved_at", savedAt, "error", err)
		out.Stale = true
		out.SavedAt = &savedAt
		return items, nil
	}
	return nil, err
}

// MarkRead records that the actor has read an announcement. Marking an
// already-read announcement is a no-op.
func (s *AnnouncementService) MarkRead(ctx context.Context, actor domain.Actor, announcementID string) (*ToggleResult, error) {
	return s.setRead(ctx, actor, announcementID, true)
}

// MarkUnread clears the actor's read receipt for an announcement.
func (s *AnnouncementService) MarkUnread(ctx context.Context, actor domain.Actor, announcementID string) (*ToggleResult, error) {
	return s.setRead(ctx, actor, announcementID, false)
}

func (s *AnnouncementService) setRead(ctx context.Context, actor domain.Actor, announcementID string, read bool) (*ToggleResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ws, err := s.workspaces.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if _, err := findTarget(ctx, ws.Announcements, announcementID, "announcement"); err != nil {
		return nil, err
	}

	reads := interaction[domain.Announcement]{set: ws.Reads}
	var res *ToggleResult
	_, err = ws.Reads.EnsureThen(ctx, actor, announcementID, read, func(ctx context.Context, change membership.Change) {
		if change.Delta == 0 {
			res = &ToggleResult{TargetID: announcementID, Member: change.Member, CounterSynced: true}
			return
		}
		res = reads.settle(ctx, actor, change, s.publisher, s.logger)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
