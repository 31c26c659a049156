package domain

import "time"

// AnnouncementType classifies an official announcement.
type AnnouncementType string

// Announcement types.
const (
	AnnouncementGeneral     AnnouncementType = "general"
	AnnouncementEmergency   AnnouncementType = "emergency"
	AnnouncementMaintenance AnnouncementType = "maintenance"
	AnnouncementEvent       AnnouncementType = "event"
	AnnouncementPolicy      AnnouncementType = "policy"
)

// Valid reports whether t is a known announcement type.
func (t AnnouncementType) Valid() bool {
	switch t {
	case AnnouncementGeneral, AnnouncementEmergency, AnnouncementMaintenance, AnnouncementEvent, AnnouncementPolicy:
		return true
	}
	return false
}

// Priority is shared by announcements and reports.
type Priority string

// Priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Announcement is an official notice from a local authority.
type Announcement struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Content       string           `json:"content"` // markdown
	Type          AnnouncementType `json:"type"`
	Priority      Priority         `json:"priority"`
	Authority     string           `json:"authority"`
	Location      string           `json:"location,omitempty"`
	AttachmentURL string           `json:"attachment_url,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Key returns the announcement ID.
func (a Announcement) Key() string { return a.ID }

// SearchFields returns the text matched by free-text search.
func (a Announcement) SearchFields() []string {
	return []string{a.Title, a.Content, a.Authority}
}

// Facet returns the value of a filterable attribute.
func (a Announcement) Facet(name string) string {
	switch name {
	case "type":
		return string(a.Type)
	case "priority":
		return string(a.Priority)
	}
	return ""
}
