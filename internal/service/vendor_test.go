package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
	"github.com/townsquareapp/townsquare-server/internal/listcache"
)

func seedVendors(t *testing.T, f *fixture) map[string]string {
	t.Helper()
	ids := map[string]string{}
	for _, v := range []backend.Record{
		{"name": "Ace Plumbing", "category": "plumbing", "rating": 4.8, "reviews_count": 10, "verified": true, "latitude": 40.75, "longitude": -73.99},
		{"name": "Bright Electric", "category": "electrical", "rating": 3.2, "reviews_count": 40, "verified": false, "latitude": 40.70, "longitude": -74.01},
		{"name": "City Movers", "category": "moving", "rating": 4.1, "reviews_count": 5, "verified": true},
	} {
		ids[v["name"].(string)] = f.insert(t, "vendors", v)
	}
	return ids
}

func vendorNames(list *VendorList) []string {
	out := make([]string, len(list.Items))
	for i, v := range list.Items {
		out[i] = v.Name
	}
	return out
}

func TestListVendors_SortAndFilter(t *testing.T) {
	f := newFixture(t)
	seedVendors(t, f)
	ctx := context.Background()

	list, err := f.vendors.ListVendors(ctx, alice, VendorQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ace Plumbing", "Bright Electric", "City Movers"}, vendorNames(list))

	list, err = f.vendors.ListVendors(ctx, alice, VendorQuery{Sort: domain.SortRating, Order: listcache.Desc})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ace Plumbing", "City Movers", "Bright Electric"}, vendorNames(list))

	list, err = f.vendors.ListVendors(ctx, alice, VendorQuery{Sort: domain.SortReviews, Order: listcache.Desc})
	require.NoError(t, err)
	assert.Equal(t, "Bright Electric", list.Items[0].Name)

	list, err = f.vendors.ListVendors(ctx, alice, VendorQuery{Verified: "true"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ace Plumbing", "City Movers"}, vendorNames(list))

	list, err = f.vendors.ListVendors(ctx, alice, VendorQuery{Category: "electrical", Verified: "all"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bright Electric"}, vendorNames(list))

	list, err = f.vendors.ListVendors(ctx, alice, VendorQuery{Text: "plumb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ace Plumbing"}, vendorNames(list))
}

func TestListVendors_Distance(t *testing.T) {
	f := newFixture(t)
	seedVendors(t, f)

	// Origin next to Bright Electric.
	list, err := f.vendors.ListVendors(context.Background(), alice, VendorQuery{
		Sort: domain.SortDistance, Lat: ptr(40.70), Lng: ptr(-74.0),
	})
	require.NoError(t, err)

	require.Len(t, list.Items, 3)
	assert.Equal(t, "City Movers", list.Items[0].Name, "vendors without coordinates sort as zero")
	assert.Nil(t, list.Items[0].DistanceKm)
	assert.Equal(t, "Bright Electric", list.Items[1].Name)
	require.NotNil(t, list.Items[1].DistanceKm)
	assert.InDelta(t, 0.84, *list.Items[1].DistanceKm, 0.05)
	assert.Equal(t, "Ace Plumbing", list.Items[2].Name)
}

func TestToggleFavorite(t *testing.T) {
	f := newFixture(t)
	ids := seedVendors(t, f)
	ctx := context.Background()

	res, err := f.vendors.ToggleFavorite(ctx, alice, ids["City Movers"])
	require.NoError(t, err)
	assert.True(t, res.Member)
	assert.Nil(t, res.Count)
	assert.Len(t, f.b.Rows("user_favorites"), 1)

	favs, err := f.vendors.Favorites(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"City Movers"}, vendorNames(favs))
	assert.True(t, favs.Items[0].IsFavorite)

	list, err := f.vendors.ListVendors(ctx, bob, VendorQuery{})
	require.NoError(t, err)
	for _, v := range list.Items {
		assert.False(t, v.IsFavorite)
	}

	res, err = f.vendors.ToggleFavorite(ctx, alice, ids["City Movers"])
	require.NoError(t, err)
	assert.False(t, res.Member)
	assert.Empty(t, f.b.Rows("user_favorites"))

	_, err = f.vendors.ToggleFavorite(ctx, alice, "nope")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = f.vendors.Favorites(ctx, domain.Anonymous())
	assert.ErrorIs(t, err, domainerrors.ErrUnauthenticated)
}
