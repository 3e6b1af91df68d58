package service

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"scenesync/internal/model"
)

// ErrInvalidToken is returned for malformed, forged or expired tokens
var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService issues and validates session-scoped participant tokens
type AuthService struct {
	jwtSecret []byte
}

// NewAuthService creates an auth service using JWT_SECRET from the env
func NewAuthService() *AuthService {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "super-secret-key-change-in-production"
	}
	return &AuthService{jwtSecret: []byte(secret)}
}

// GenerateParticipantToken creates a token scoped to one session.
// It expires with the session lifetime.
func (s *AuthService) GenerateParticipantToken(sessionID, userID string, role model.Role) (string, error) {
	claims := &model.ParticipantClaims{
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateParticipantToken validates a participant JWT and returns claims
func (s *AuthService) ValidateParticipantToken(tokenString string) (*model.ParticipantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.ParticipantClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.ParticipantClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
