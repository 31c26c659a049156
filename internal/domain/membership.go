package domain

// TargetKind names the entity type a membership record points at.
type TargetKind string

// Target kinds.
const (
	TargetPost         TargetKind = "post"
	TargetEvent        TargetKind = "event"
	TargetVendor       TargetKind = "vendor"
	TargetAnnouncement TargetKind = "announcement"
)

// MembershipRecord links a user to a target: a like, an RSVP, a favorite or a
// read receipt. At most one record exists per (user, target) pair.
type MembershipRecord struct {
	UserID   string     `json:"user_id"`
	TargetID string     `json:"target_id"`
	Kind     TargetKind `json:"kind"`
}
