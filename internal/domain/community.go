package domain

import "time"

// PostType is the kind of community post.
type PostType string

// Post types.
const (
	PostText  PostType = "text"
	PostImage PostType = "image"
	PostPoll  PostType = "poll"
	PostEvent PostType = "event"
)

// Valid reports whether t is a known post type.
func (t PostType) Valid() bool {
	switch t {
	case PostText, PostImage, PostPoll, PostEvent:
		return true
	}
	return false
}

// Counter columns maintained by the reconciler.
const (
	ColumnLikesCount     = "likes_count"
	ColumnAttendeesCount = "attendees_count"
)

// Post is a message on the community board.
type Post struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Content       string    `json:"content"`
	Type          PostType  `json:"type"`
	Tags          []string  `json:"tags"`
	ImageURL      string    `json:"image_url,omitempty"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Resolved from profiles, not stored on the post.
	AuthorName   string `json:"author_name,omitempty"`
	AuthorAvatar string `json:"author_avatar,omitempty"`
}

// Key returns the post ID.
func (p Post) Key() string { return p.ID }

// SearchFields returns the text matched by free-text search.
func (p Post) SearchFields() []string {
	fields := make([]string, 0, 2+len(p.Tags))
	fields = append(fields, p.Content, p.AuthorName)
	return append(fields, p.Tags...)
}

// Facet returns the value of a filterable attribute.
func (p Post) Facet(name string) string {
	if name == "type" {
		return string(p.Type)
	}
	return ""
}

// Counter returns a denormalized counter column.
func (p Post) Counter(column string) (int, bool) {
	if column == ColumnLikesCount {
		return p.LikesCount, true
	}
	return 0, false
}

// Event is a community gathering residents can RSVP to.
type Event struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id,omitempty"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	EventDate      string    `json:"event_date"` // YYYY-MM-DD
	EventTime      string    `json:"event_time"` // HH:MM
	Location       string    `json:"location"`
	AttendeesCount int       `json:"attendees_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Key returns the event ID.
func (e Event) Key() string { return e.ID }

// SearchFields returns the text matched by free-text search.
func (e Event) SearchFields() []string {
	return []string{e.Title, e.Description, e.Location}
}

// Facet returns the value of a filterable attribute. Events have none.
func (e Event) Facet(string) string { return "" }

// Counter returns a denormalized counter column.
func (e Event) Counter(column string) (int, bool) {
	if column == ColumnAttendeesCount {
		return e.AttendeesCount, true
	}
	return 0, false
}
