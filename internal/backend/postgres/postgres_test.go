package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/townsquareapp/townsquare-server/internal/backend"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "post_likes_user_id_post_id_key"}, backend.ErrDuplicate},
		{"missing post", &pgconn.PgError{Code: "P0002"}, backend.ErrNotFound},
		{"not owner", &pgconn.PgError{Code: "42501"}, backend.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))
	assert.NoError(t, mapError(nil))
}

func TestWithUpdatedAt(t *testing.T) {
	fixed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	orig := nowUTC
	nowUTC = func() time.Time { return fixed }
	t.Cleanup(func() { nowUTC = orig })

	fields := backend.Record{"status": "resolved"}

	got := withUpdatedAt(fields, true)
	assert.Equal(t, fixed, got["updated_at"])
	assert.NotContains(t, fields, "updated_at")

	assert.Equal(t, fields, withUpdatedAt(fields, false))

	explicit := backend.Record{"updated_at": "keep"}
	assert.Equal(t, "keep", withUpdatedAt(explicit, true)["updated_at"])
}

func TestKnown(t *testing.T) {
	s := &Store{columns: map[string]map[string]bool{"vendors": {"id": true}}}

	assert.NoError(t, s.known("vendors"))
	assert.ErrorIs(t, s.known("books"), backend.ErrNotFound)
}
