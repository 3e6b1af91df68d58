package model

import "github.com/golang-jwt/jwt/v5"

// ParticipantClaims is the session-scoped JWT issued on join
type ParticipantClaims struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Role      Role   `json:"role"`
	jwt.RegisteredClaims
}
