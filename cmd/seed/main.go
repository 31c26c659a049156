// Package main seeds a backend with demo vendors, announcements and events.
//
// It reads the same configuration as the server, so the target backend is
// selected with BACKEND and friends:
//
//	BACKEND=sqlite ADMIN_EMAIL=admin@example.com ADMIN_PASSWORD=changeme123 go run ./cmd/seed
//
// Seeding is skipped when the vendor directory is not empty.
package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/samber/do/v2"

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/config"
	"github.com/townsquareapp/townsquare-server/internal/di"
	"github.com/townsquareapp/townsquare-server/internal/di/providers"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	"github.com/townsquareapp/townsquare-server/internal/service"
)

const (
	defaultAdminEmail    = "admin@townsquare.local"
	defaultAdminPassword = "changeme123"
)

func main() {
	injector := di.NewContainer()
	defer func() { _ = injector.Shutdown() }()

	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Auth.AdminEmail == "" {
		cfg.Auth.AdminEmail = defaultAdminEmail
		cfg.Auth.AdminPassword = defaultAdminPassword
		fmt.Printf("ADMIN_EMAIL not set, using %s / %s\n", defaultAdminEmail, defaultAdminPassword)
	}

	b, err := do.Invoke[*providers.BackendHandle](injector)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	if _, err := do.Invoke[*providers.AdminBootstrap](injector); err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}
	adminService := do.MustInvoke[*service.AdminService](injector)
	community := do.MustInvoke[*service.CommunityService](injector)

	ctx := context.Background()

	existing, err := b.Select(ctx, "vendors", nil)
	if err != nil {
		log.Fatalf("Failed to read vendors: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("Backend already has %d vendors, skipping seed\n", len(existing))
		return
	}

	admin, err := adminActor(ctx, b, cfg.Auth.AdminEmail)
	if err != nil {
		log.Fatalf("Failed to load admin: %v", err)
	}

	for _, v := range demoVendors() {
		vendor, err := adminService.CreateVendor(ctx, admin, v)
		if err != nil {
			log.Fatalf("Failed to create vendor %s: %v", *v.Name, err)
		}
		fmt.Printf("  vendor       %s\n", vendor.Name)
	}

	for _, a := range demoAnnouncements() {
		ann, err := adminService.CreateAnnouncement(ctx, admin, a)
		if err != nil {
			log.Fatalf("Failed to create announcement %s: %v", *a.Title, err)
		}
		fmt.Printf("  announcement %s\n", ann.Title)
	}

	for _, e := range demoEvents(time.Now()) {
		event, err := community.CreateEvent(ctx, admin, e)
		if err != nil {
			log.Fatalf("Failed to create event %s: %v", e.Title, err)
		}
		fmt.Printf("  event        %s (%s)\n", event.Title, e.EventDate)
	}

	fmt.Println("Seed complete")
}

func adminActor(ctx context.Context, b backend.Backend, email string) (domain.Actor, error) {
	rows, err := b.Select(ctx, "users", backend.Where(backend.Eq("email", strings.ToLower(strings.TrimSpace(email)))))
	if err != nil {
		return domain.Actor{}, err
	}
	if len(rows) == 0 {
		return domain.Actor{}, fmt.Errorf("admin %s not found", email)
	}
	user, err := backend.Decode[domain.User](rows[0])
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{UserID: user.ID, Role: user.Role}, nil
}

func str(s string) *string { return &s }

func num(f float64) *float64 { return &f }

func demoVendors() []service.VendorRequest {
	return []service.VendorRequest{
		{
			Name: str("Ace Plumbing"), Category: str("plumbing"), Phone: str("555-0101"),
			Address: str("12 Elm St"), Hours: str("Mon-Fri 8-18"),
			Description: str("Leaks, drains and water heaters"),
			Services:    []string{"repairs", "installation", "emergency"},
			Latitude:    num(40.7128), Longitude: num(-74.0060), Rating: num(4.8),
		},
		{
			Name: str("Bright Electric"), Category: str("electrical"), Phone: str("555-0102"),
			Address: str("48 Oak Ave"), Hours: str("Mon-Sat 7-19"),
			Description: str("Licensed electricians for homes and shops"),
			Services:    []string{"wiring", "panels", "lighting"},
			Latitude:    num(40.7306), Longitude: num(-73.9866), Rating: num(4.5),
		},
		{
			Name: str("Green Thumb Gardens"), Category: str("landscaping"), Phone: str("555-0103"),
			Description: str("Lawn care and seasonal planting"),
			Services:    []string{"mowing", "planting"},
			Latitude:    num(40.7580), Longitude: num(-73.9855), Rating: num(4.2),
		},
		{
			Name: str("City Movers"), Category: str("moving"), Phone: str("555-0104"),
			Description: str("Local moves and storage"),
			Services:    []string{"packing", "storage"}, Rating: num(3.9),
		},
	}
}

func demoAnnouncements() []service.AnnouncementRequest {
	return []service.AnnouncementRequest{
		{
			Title:     str("Water main maintenance"),
			Content:   str("<p>Water service on <strong>Elm St</strong> will be interrupted Tuesday 9am to noon.</p>"),
			Type:      str(string(domain.AnnouncementMaintenance)),
			Priority:  str(string(domain.PriorityHigh)),
			Authority: str("Department of Public Works"),
			Location:  str("Elm St"),
		},
		{
			Title:     str("Farmers market returns"),
			Content:   str("The Saturday farmers market is back in Central Square from 8am."),
			Type:      str(string(domain.AnnouncementEvent)),
			Authority: str("Parks and Recreation"),
		},
		{
			Title:     str("Heat advisory"),
			Content:   str("<p>Cooling centers are open at the library and community center.</p>"),
			Type:      str(string(domain.AnnouncementEmergency)),
			Priority:  str(string(domain.PriorityHigh)),
			Authority: str("Office of Emergency Management"),
		},
	}
}

func demoEvents(now time.Time) []service.CreateEventRequest {
	day := func(offset int) string { return now.AddDate(0, 0, offset).Format(time.DateOnly) }
	return []service.CreateEventRequest{
		{Title: "Neighborhood cleanup", Description: "Gloves and bags provided", EventDate: day(3), EventTime: "09:00", Location: "Central Square"},
		{Title: "Block party", Description: "Bring a dish to share", EventDate: day(10), EventTime: "16:00", Location: "Oak Ave"},
		{Title: "Town hall", Description: "Budget priorities for next year", EventDate: day(17), EventTime: "19:00", Location: "Community Center"},
	}
}
