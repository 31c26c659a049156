package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/auth"
	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/backend/memory"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/logger"
	"github.com/townsquareapp/townsquare-server/internal/validation"
)

var (
	alice = domain.Actor{UserID: "alice", Role: domain.RoleMember}
	bob   = domain.Actor{UserID: "bob", Role: domain.RoleMember}
	admin = domain.Actor{UserID: "admin", Role: domain.RoleAdmin}
)

type fixture struct {
	b          *memory.Backend
	workspaces *Workspaces
	events     *events.Recorder

	auth          *AuthService
	community     *CommunityService
	vendors       *VendorService
	announcements *AnnouncementService
	reports       *ReportService
	admin         *AdminService
}

func newFixture(t *testing.T, opts ...func(*WorkspaceOptions)) *fixture {
	t.Helper()

	b := memory.New()
	log := logger.Discard()
	v := validation.New()
	rec := &events.Recorder{}

	wsOpts := WorkspaceOptions{TTL: time.Minute, MaxWorkspaces: 16, RequestTimeout: time.Second}
	for _, o := range opts {
		o(&wsOpts)
	}
	ws := NewWorkspaces(b, wsOpts, log)
	t.Cleanup(func() { _ = ws.Shutdown() })

	tokens, err := auth.NewTokenService([]byte(strings.Repeat("k", 32)), time.Hour)
	require.NoError(t, err)

	community := NewCommunityService(b, ws, rec, v, log)
	f := &fixture{
		b:             b,
		workspaces:    ws,
		events:        rec,
		auth:          NewAuthService(b, tokens, ws, v, log),
		community:     community,
		vendors:       NewVendorService(ws, rec, log),
		announcements: NewAnnouncementService(ws, rec, log),
		reports:       NewReportService(b, ws, rec, v, log),
		admin:         NewAdminService(b, community, rec, v, log),
	}

	for _, a := range []domain.Actor{alice, bob, admin} {
		f.insert(t, "users", backend.Record{
			"id": a.UserID, "email": a.UserID + "@example.com", "name": strings.ToUpper(a.UserID[:1]) + a.UserID[1:],
			"password_hash": "x", "role": string(a.Role),
		})
		f.insert(t, "profiles", backend.Record{"user_id": a.UserID, "name": strings.ToUpper(a.UserID[:1]) + a.UserID[1:]})
	}
	return f
}

func (f *fixture) insert(t *testing.T, collection string, rec backend.Record) string {
	t.Helper()
	row, err := f.b.Insert(context.Background(), collection, rec)
	require.NoError(t, err)
	return row.String("id")
}

// at returns a timestamp minutes after a fixed base, for deterministic ordering.
func at(minutes int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func (f *fixture) post(t *testing.T, author, content string, likes, minutes int) string {
	t.Helper()
	return f.insert(t, "community_posts", backend.Record{
		"user_id": author, "content": content, "likes_count": likes, "created_at": at(minutes),
	})
}

func (f *fixture) column(t *testing.T, collection, id, column string) any {
	t.Helper()
	for _, row := range f.b.Rows(collection) {
		if row.String("id") == id {
			return row[column]
		}
	}
	t.Fatalf("%s %s not found", collection, id)
	return nil
}

func ptr[T any](v T) *T { return &v }
