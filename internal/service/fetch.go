package service

import (
	"context"
	"fmt"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/domain"
)

// Collections.
const (
	collUsers         = "users"
	collProfiles      = "profiles"
	collReports       = "reports"
	collAnnouncements = "announcements"
	collVendors       = "vendors"
	collPosts         = "community_posts"
	collPostLikes     = "post_likes"
	collEvents        = "community_events"
)

func selectAll[T any](ctx context.Context, b backend.Backend, collection string, match backend.Match, order ...backend.Order) ([]T, error) {
	rows, err := b.Select(ctx, collection, match, order...)
	if err != nil {
		return nil, err
	}
	out, err := backend.DecodeAll[T](rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", collection, err)
	}
	return out, nil
}

func selectOne[T any](ctx context.Context, b backend.Backend, collection, id string) (T, error) {
	var zero T
	rows, err := b.Select(ctx, collection, backend.Where(backend.Eq("id", id)))
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, backend.ErrNotFound
	}
	return backend.Decode[T](rows[0])
}

// profilesByUser resolves display profiles for a set of users in one query.
func profilesByUser(ctx context.Context, b backend.Backend, userIDs []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	profiles, err := selectAll[domain.Profile](ctx, b, collProfiles, backend.Where(backend.In("user_id", userIDs...)))
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.UserID] = p
	}
	return out, nil
}

func uniqueUserIDs[T any](items []T, userID func(T) string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		id := userID(item)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func fetchPosts(b backend.Backend) func(context.Context) ([]domain.Post, error) {
	return func(ctx context.Context) ([]domain.Post, error) {
		posts, err := selectAll[domain.Post](ctx, b, collPosts, nil, backend.Desc("created_at"))
		if err != nil {
			return nil, err
		}
		profiles, err := profilesByUser(ctx, b, uniqueUserIDs(posts, func(p domain.Post) string { return p.UserID }))
		if err != nil {
			return nil, err
		}
		for i := range posts {
			if p, ok := profiles[posts[i].UserID]; ok {
				posts[i].AuthorName = p.Name
				posts[i].AuthorAvatar = p.AvatarURL
			}
		}
		return posts, nil
	}
}

func fetchEvents(b backend.Backend) func(context.Context) ([]domain.Event, error) {
	return func(ctx context.Context) ([]domain.Event, error) {
		return selectAll[domain.Event](ctx, b, collEvents, nil, backend.Asc("event_date"), backend.Asc("event_time"))
	}
}

func fetchVendors(b backend.Backend) func(context.Context) ([]domain.Vendor, error) {
	return func(ctx context.Context) ([]domain.Vendor, error) {
		return selectAll[domain.Vendor](ctx, b, collVendors, nil, backend.Asc("name"))
	}
}

func fetchAnnouncements(b backend.Backend) func(context.Context) ([]domain.Announcement, error) {
	return func(ctx context.Context) ([]domain.Announcement, error) {
		return selectAll[domain.Announcement](ctx, b, collAnnouncements, nil, backend.Desc("created_at"))
	}
}

func fetchReports(b backend.Backend, match backend.Match) func(context.Context) ([]domain.Report, error) {
	return func(ctx context.Context) ([]domain.Report, error) {
		reports, err := selectAll[domain.Report](ctx, b, collReports, match, backend.Desc("created_at"))
		if err != nil {
			return nil, err
		}
		profiles, err := profilesByUser(ctx, b, uniqueUserIDs(reports, func(r domain.Report) string { return r.UserID }))
		if err != nil {
			return nil, err
		}
		for i := range reports {
			if p, ok := profiles[reports[i].UserID]; ok {
				reports[i].ReporterName = p.Name
			}
		}
		return reports, nil
	}
}
