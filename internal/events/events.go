// Package events publishes domain events to a message broker.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/townsquareapp/townsquare-server/internal/domain"
)

// Event types. The published subject is "<prefix>.<type>".
const (
	TypeMembershipToggled   = "membership.toggled"
	TypePostCreated         = "post.created"
	TypePostDeleted         = "post.deleted"
	TypeReportCreated       = "report.created"
	TypeReportStatusChanged = "report.status_changed"
)

// Event is a domain event.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// New creates an event stamped with the current time.
func New(eventType string, payload any) Event {
	return Event{Type: eventType, OccurredAt: time.Now().UTC(), Payload: payload}
}

// MembershipToggled is published after a successful like, attendance,
// favorite or read-state change.
type MembershipToggled struct {
	UserID   string            `json:"user_id"`
	TargetID string            `json:"target_id"`
	Kind     domain.TargetKind `json:"kind"`
	Member   bool              `json:"member"`
	Delta    int               `json:"delta"`
}

// PostCreated is published when a community post is created.
type PostCreated struct {
	ID       string          `json:"id"`
	AuthorID string          `json:"author_id"`
	Type     domain.PostType `json:"type"`
}

// PostDeleted is published when a community post is deleted.
type PostDeleted struct {
	ID        string `json:"id"`
	DeletedBy string `json:"deleted_by"`
}

// ReportCreated is published when a citizen submits a report.
type ReportCreated struct {
	ID       string          `json:"id"`
	UserID   string          `json:"user_id"`
	Category string          `json:"category"`
	Priority domain.Priority `json:"priority"`
}

// ReportStatusChanged is published when an administrator moves a report.
type ReportStatusChanged struct {
	ID        string              `json:"id"`
	From      domain.ReportStatus `json:"from"`
	To        domain.ReportStatus `json:"to"`
	ChangedBy string              `json:"changed_by"`
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop discards events.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
