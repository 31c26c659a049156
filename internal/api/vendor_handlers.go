package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
	"github.com/townsquareapp/townsquare-server/internal/listcache"
	"github.com/townsquareapp/townsquare-server/internal/service"
)

func (s *Server) registerVendorRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listVendors",
		Method:      http.MethodGet,
		Path:        "/api/v1/vendors",
		Summary:     "List vendors",
		Description: "Returns the vendor directory filtered and sorted, with the caller's favorite state",
		Tags:        []string{"Vendors"},
		Security:    bearerAuth,
	}, s.handleListVendors)

	huma.Register(s.api, huma.Operation{
		OperationID: "listFavoriteVendors",
		Method:      http.MethodGet,
		Path:        "/api/v1/vendors/favorites",
		Summary:     "List favorite vendors",
		Description: "Returns the vendors the caller has marked as favorite",
		Tags:        []string{"Vendors"},
		Security:    bearerAuth,
	}, s.handleListFavorites)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleVendorFavorite",
		Method:      http.MethodPost,
		Path:        "/api/v1/vendors/{id}/favorite",
		Summary:     "Toggle favorite",
		Description: "Adds the vendor to the caller's favorites, or removes it",
		Tags:        []string{"Vendors"},
		Security:    bearerAuth,
	}, s.handleToggleFavorite)
}

// ListVendorsInput contains vendor directory filters.
type ListVendorsInput struct {
	Q        string `query:"q" doc:"Text search over name, description and services"`
	Category string `query:"category" doc:"Category filter; all or empty for every category"`
	Verified string `query:"verified" enum:"all,true,false" doc:"Verification filter"`
	Sort     string `query:"sort" enum:"rating,reviews,distance" doc:"Sort key"`
	Order    string `query:"order" enum:"asc,desc" doc:"Sort direction"`
	Lat      string `query:"lat" doc:"Latitude of the caller, enables distance"`
	Lng      string `query:"lng" doc:"Longitude of the caller, enables distance"`
	Refresh  bool   `query:"refresh" doc:"Refetch from the remote store before filtering"`
}

// VendorListOutput wraps a vendor list for Huma.
type VendorListOutput struct {
	Body service.VendorList
}

func (s *Server) handleListVendors(ctx context.Context, input *ListVendorsInput) (*VendorListOutput, error) {
	q := service.VendorQuery{
		Text:     input.Q,
		Category: input.Category,
		Verified: input.Verified,
		Sort:     input.Sort,
		Order:    listcache.ParseDirection(input.Order),
		Refresh:  input.Refresh,
	}
	if input.Lat != "" || input.Lng != "" {
		lat, lng, err := parseOrigin(input.Lat, input.Lng)
		if err != nil {
			return nil, err
		}
		q.Lat, q.Lng = &lat, &lng
	}

	list, err := s.services.Vendors.ListVendors(ctx, ActorFrom(ctx), q)
	if err != nil {
		return nil, err
	}
	return &VendorListOutput{Body: *list}, nil
}

func (s *Server) handleListFavorites(ctx context.Context, _ *struct{}) (*VendorListOutput, error) {
	list, err := s.services.Vendors.Favorites(ctx, ActorFrom(ctx))
	if err != nil {
		return nil, err
	}
	return &VendorListOutput{Body: *list}, nil
}

func (s *Server) handleToggleFavorite(ctx context.Context, input *IDInput) (*ToggleOutput, error) {
	result, err := s.services.Vendors.ToggleFavorite(ctx, ActorFrom(ctx), input.ID)
	if err != nil {
		return nil, err
	}
	return &ToggleOutput{Body: *result}, nil
}

// parseOrigin requires both coordinates and checks their range.
func parseOrigin(latText, lngText string) (float64, float64, error) {
	lat, latErr := strconv.ParseFloat(latText, 64)
	lng, lngErr := strconv.ParseFloat(lngText, 64)
	details := map[string]string{}
	if latErr != nil || lat < -90 || lat > 90 {
		details["lat"] = "must be a latitude between -90 and 90"
	}
	if lngErr != nil || lng < -180 || lng > 180 {
		details["lng"] = "must be a longitude between -180 and 180"
	}
	if len(details) > 0 {
		return 0, 0, domainerrors.ValidationWithDetails("invalid location", details)
	}
	return lat, lng, nil
}
