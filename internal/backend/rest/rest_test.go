package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/backend"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, APIKey: "anon-key"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSelect_RendersFiltersAndOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/community_posts", r.URL.Path)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("user_id"))
		assert.Equal(t, `in.("text","poll")`, r.URL.Query().Get("type"))
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`[{"id":"p1","likes_count":2}]`))
	})

	rows, err := c.Select(context.Background(), "community_posts",
		backend.Where(backend.Eq("user_id", "u1"), backend.In("type", "text", "poll")),
		backend.Desc("created_at"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0]["id"])
}

func TestInsert_RequestsRepresentation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p1", body["post_id"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"like-1","user_id":"u1","post_id":"p1"}]`))
	})

	row, err := c.Insert(context.Background(), "post_likes", backend.Record{"user_id": "u1", "post_id": "p1"})
	require.NoError(t, err)
	assert.Equal(t, "like-1", row["id"])
}

func TestDuplicateMapsToErrDuplicate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
	})

	_, err := c.Insert(context.Background(), "post_likes", backend.Record{"user_id": "u1", "post_id": "p1"})
	assert.ErrorIs(t, err, backend.ErrDuplicate)
}

func TestUpdateAndDeleteCountRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.p1", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`[{"id":"p1"}]`))
	})

	n, err := c.Update(context.Background(), "community_posts", backend.Where(backend.Eq("id", "p1")), backend.Record{"likes_count": 3})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Delete(context.Background(), "community_posts", backend.Where(backend.Eq("id", "p1")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCall_PrefixesArguments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/delete_community_post", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p1", body["p_post_id"])
		assert.Equal(t, "u1", body["p_user_id"])
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Call(context.Background(), backend.ProcDeleteCommunityPost, backend.Record{"post_id": "p1", "user_id": "u1"})
	assert.NoError(t, err)
}

func TestServerErrorCarriesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"database is down"}`))
	})

	_, err := c.Select(context.Background(), "vendors", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is down")
}

func TestFilters_NullAndInvalidColumn(t *testing.T) {
	q, err := filters(backend.Where(backend.Eq("image_url", nil)))
	require.NoError(t, err)
	assert.Equal(t, "is.null", q.Get("image_url"))

	_, err = filters(backend.Where(backend.Eq("id;drop", "x")))
	assert.ErrorIs(t, err, backend.ErrInvalidIdentifier)
}
