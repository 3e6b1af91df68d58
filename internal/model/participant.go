package model

import "time"

// Role determines what a participant may do inside a session
type Role string

const (
	RoleOwner     Role = "owner"
	RolePresenter Role = "presenter"
	RoleViewer    Role = "viewer"
)

// CanEditSettings reports whether the role may change session settings
func (r Role) CanEditSettings() bool { return r == RoleOwner }

// CanModerate reports whether the role may kick participants or change roles
func (r Role) CanModerate() bool { return r == RoleOwner }

// CanRequestCamera reports whether the role may request camera leadership
func (r Role) CanRequestCamera() bool { return r == RoleOwner || r == RolePresenter }

// CanAnnotate reports whether the role may add or edit its own annotations
func (r Role) CanAnnotate() bool { return r == RoleOwner || r == RolePresenter }

// PresenceStatus is connectivity inferred from heartbeat recency
type PresenceStatus string

const (
	PresenceActive  PresenceStatus = "active"
	PresenceIdle    PresenceStatus = "idle"
	PresenceOffline PresenceStatus = "offline"
)

// Participant represents a user inside a session
type Participant struct {
	ID           string         `json:"id" bson:"_id"`
	SessionID    string         `json:"sessionId" bson:"sessionId"`
	Name         string         `json:"name" bson:"name"`
	Color        string         `json:"color" bson:"color"`
	Role         Role           `json:"role" bson:"role"`
	Status       PresenceStatus `json:"status" bson:"status"`
	Cursor       *CursorState   `json:"cursor,omitempty" bson:"cursor,omitempty"`
	LastActiveAt time.Time      `json:"lastActiveAt" bson:"lastActiveAt"`
	JoinedAt     time.Time      `json:"joinedAt" bson:"joinedAt"`
}

// JoinResponse is returned when a user joins a session
type JoinResponse struct {
	Participant Participant `json:"participant"`
	Token       string      `json:"token"`
	Session     Session     `json:"session"`
}
