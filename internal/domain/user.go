package domain

import "time"

// Role represents the user's permission level in the system.
type Role string

const (
	// RoleAdmin grants access to the moderation and content management endpoints.
	RoleAdmin Role = "admin"
	// RoleMember grants standard resident access.
	RoleMember Role = "member"
)

// User is a resident or administrator account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Role         Role      `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin returns true if the user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Profile is the public face of a user shown next to posts and reports.
type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor identifies who is performing an operation. It is passed explicitly into
// every call that reads or writes user-scoped data; the zero value is a signed-out
// visitor.
type Actor struct {
	UserID string
	Role   Role
}

// Anonymous returns the signed-out actor.
func Anonymous() Actor { return Actor{} }

// Authenticated reports whether the actor has a session.
func (a Actor) Authenticated() bool { return a.UserID != "" }

// IsAdmin reports whether the actor may use administrative operations.
func (a Actor) IsAdmin() bool { return a.Authenticated() && a.Role == RoleAdmin }
