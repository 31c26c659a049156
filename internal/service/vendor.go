package service

import (
	"context"
	"log/slog"

	"github.com/townsquareapp/townsquare-server/internal/domain"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/listcache"
)

// VendorService serves the local vendor directory and favorites.
type VendorService struct {
	workspaces *Workspaces
	publisher  events.Publisher
	logger     *slog.Logger
}

// NewVendorService creates a new vendor service.
func NewVendorService(workspaces *Workspaces, p events.Publisher, logger *slog.Logger) *VendorService {
	return &VendorService{workspaces: workspaces, publisher: p, logger: logger}
}

// VendorQuery filters and sorts the vendor directory.
type VendorQuery struct {
	Text     string
	Category string
	Verified string // "", "all", "true" or "false"
	Sort     string // rating, reviews or distance
	Order    listcache.Direction
	// Origin for distance calculation; both must be set.
	Lat, Lng *float64
	Refresh  bool
}

// VendorView is a vendor with the viewer's favorite state.
type VendorView struct {
	domain.Vendor
	IsFavorite bool `json:"is_favorite"`
}

// VendorList is a filtered vendor list.
type VendorList struct {
	ListMeta
	Items []VendorView `json:"items"`
}

// ListVendors returns vendors filtered by text, category and verification,
// sorted by the requested key.
func (s *VendorService) ListVendors(ctx context.Context, actor domain.Actor, q VendorQuery) (*VendorList, error) {
	ws, err := s.workspaces.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := loadList(ctx, ws.Vendors, q.Refresh); err != nil {
		return nil, err
	}

	vendors := ws.Vendors.Filter(listcache.Query{
		Text:   q.Text,
		Facets: map[string]string{"category": q.Category, "verified": q.Verified},
	})
	if q.Lat != nil && q.Lng != nil {
		for i := range vendors {
			vendors[i] = vendors[i].WithDistanceFrom(*q.Lat, *q.Lng)
		}
	}
	vendors = listcache.SortBy(vendors, q.Sort, q.Order)

	return s.view(ws, vendors), nil
}

// Favorites returns the actor's favorite vendors in directory order.
func (s *VendorService) Favorites(ctx context.Context, actor domain.Actor) (*VendorList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ws, err := s.workspaces.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := ws.Vendors.EnsureLoaded(ctx); err != nil {
		return nil, err
	}

	var favorites []domain.Vendor
	for _, v := range ws.Vendors.Items() {
		if ws.Favorites.IsMember(v.ID) {
			favorites = append(favorites, v)
		}
	}
	return s.view(ws, favorites), nil
}

// ToggleFavorite adds or removes a vendor from the actor's favorites.
func (s *VendorService) ToggleFavorite(ctx context.Context, actor domain.Actor, vendorID string) (*ToggleResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ws, err := s.workspaces.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if _, err := findTarget(ctx, ws.Vendors, vendorID, "vendor"); err != nil {
		return nil, err
	}

	return interaction[domain.Vendor]{set: ws.Favorites}.toggle(ctx, actor, vendorID, s.publisher, s.logger)
}

func (s *VendorService) view(ws *Workspace, vendors []domain.Vendor) *VendorList {
	out := &VendorList{ListMeta: ListMeta{State: ws.Vendors.State()}, Items: make([]VendorView, len(vendors))}
	for i, v := range vendors {
		out.Items[i] = VendorView{Vendor: v, IsFavorite: ws.Favorites.IsMember(v.ID)}
	}
	return out
}
