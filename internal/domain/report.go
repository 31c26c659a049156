package domain

import "time"

// ReportStatus tracks a civic issue report through triage.
type ReportStatus string

// Report statuses.
const (
	ReportSubmitted  ReportStatus = "submitted"
	ReportInProgress ReportStatus = "in_progress"
	ReportResolved   ReportStatus = "resolved"
	ReportRejected   ReportStatus = "rejected"
)

// ReportStatuses lists every status in display order.
var ReportStatuses = []ReportStatus{ReportSubmitted, ReportInProgress, ReportResolved, ReportRejected}

// Valid reports whether s is a known status.
func (s ReportStatus) Valid() bool {
	for _, known := range ReportStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Report is an issue (pothole, broken light, dumping) filed by a resident.
type Report struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Category        string       `json:"category"`
	LocationAddress string       `json:"location_address,omitempty"`
	LocationLat     *float64     `json:"location_lat,omitempty"`
	LocationLng     *float64     `json:"location_lng,omitempty"`
	ImageURL        string       `json:"image_url,omitempty"`
	Status          ReportStatus `json:"status"`
	Priority        Priority     `json:"priority"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	// Resolved from profiles for the admin view.
	ReporterName string `json:"reporter_name,omitempty"`
}

// Key returns the report ID.
func (r Report) Key() string { return r.ID }

// SearchFields returns the text matched by free-text search.
func (r Report) SearchFields() []string {
	return []string{r.Title, r.Description, r.LocationAddress, r.Category, r.ReporterName}
}

// Facet returns the value of a filterable attribute.
func (r Report) Facet(name string) string {
	switch name {
	case "category":
		return r.Category
	case "status":
		return string(r.Status)
	case "priority":
		return string(r.Priority)
	}
	return ""
}
