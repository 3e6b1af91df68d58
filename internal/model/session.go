package model

import "time"

// FollowMode controls whether follower cameras mirror the leader
type FollowMode string

const (
	FollowOff FollowMode = "off"
	FollowOn  FollowMode = "on"
)

// SessionSettings are owner-editable knobs for a session
type SessionSettings struct {
	AllowAnnotations   bool       `json:"allowAnnotations" bson:"allowAnnotations"`
	AllowCameraControl bool       `json:"allowCameraControl" bson:"allowCameraControl"`
	RequireApproval    bool       `json:"requireApproval" bson:"requireApproval"`
	MaxParticipants    int        `json:"maxParticipants" bson:"maxParticipants"`
	FollowMode         FollowMode `json:"followMode" bson:"followMode"`
	LeaderID           string     `json:"leaderId,omitempty" bson:"leaderId,omitempty"`
}

// DefaultSettings returns the settings a freshly created session starts with
func DefaultSettings() SessionSettings {
	return SessionSettings{
		AllowAnnotations:   true,
		AllowCameraControl: true,
		RequireApproval:    false,
		MaxParticipants:    12,
		FollowMode:         FollowOff,
	}
}

// Session is a bounded-lifetime collaborative context over a shared 3D scene
type Session struct {
	ID              string          `json:"id" bson:"_id"`
	Name            string          `json:"name" bson:"name"`
	OwnerID         string          `json:"ownerId" bson:"ownerId"`
	StructureID     string          `json:"structureId,omitempty" bson:"structureId,omitempty"`
	InviteCode      string          `json:"inviteCode" bson:"inviteCode"`
	Settings        SessionSettings `json:"settings" bson:"settings"`
	Active          bool            `json:"active" bson:"active"`
	NeedsModeration bool            `json:"needsModeration" bson:"needsModeration"` // set when the owner departs without a successor
	CreatedAt       time.Time       `json:"createdAt" bson:"createdAt"`
	ExpiresAt       time.Time       `json:"expiresAt" bson:"expiresAt"`
}

// Expired reports whether the session lifetime has elapsed
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionMeta is the Redis-cached subset used for invite code lookup
type SessionMeta struct {
	SessionID string    `json:"sessionId"`
	OwnerID   string    `json:"ownerId"`
	Active    bool      `json:"active"`
	ExpiresAt time.Time `json:"expiresAt"`
}
