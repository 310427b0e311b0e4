package jwttoken

import (
	"github.com/golang-jwt/jwt/v5"

	"authority/internal/auth/models"
	id "authority/pkg/domain"
)

// SchemaVersion is stamped into every token as "ver". Tokens with another
// version are rejected as malformed.
const SchemaVersion = 1

// TokenClaims are shared by all three kinds. "type" pins a token to one
// schema so a refresh token can never be decoded as an access token.
type TokenClaims struct {
	Type      models.TokenKind `json:"type"`
	SessionID string           `json:"session_id"`
	Origin    string           `json:"origin,omitempty"`
	Version   int              `json:"ver"`
	jwt.RegisteredClaims
}

func (c *TokenClaims) UserID() (id.UserID, error) {
	return id.ParseUserID(c.Subject)
}

func (c *TokenClaims) Session() (id.SessionID, error) {
	return id.ParseSessionID(c.SessionID)
}

// AccessClaims carry just enough to authorize a request.
type AccessClaims struct {
	TokenClaims
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
}

// RefreshClaims carry nothing beyond the shared claims.
type RefreshClaims struct {
	TokenClaims
}

// SessionProfile is the denormalized profile snapshot in a session token.
type SessionProfile struct {
	FirstName   string            `json:"first_name,omitempty"`
	LastName    string            `json:"last_name,omitempty"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
	Status      string            `json:"status,omitempty"`
}

type SessionFlags struct {
	IsActive   bool `json:"is_active"`
	IsVerified bool `json:"is_verified"`
}

// SessionClaims let a client render the signed-in user without a lookup.
type SessionClaims struct {
	TokenClaims
	Email   string         `json:"email,omitempty"`
	Phone   string         `json:"phone,omitempty"`
	Profile SessionProfile `json:"profile"`
	Flags   SessionFlags   `json:"flags"`
}

// Snapshot rebuilds the principal as it was when the session token was minted.
func (c *SessionClaims) Snapshot() (*models.User, error) {
	userID, err := c.UserID()
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:          userID,
		Email:       c.Email,
		Phone:       c.Phone,
		FirstName:   c.Profile.FirstName,
		LastName:    c.Profile.LastName,
		Preferences: c.Profile.Preferences,
		Status:      models.UserStatus(c.Profile.Status),
		IsActive:    c.Flags.IsActive,
		IsVerified:  c.Flags.IsVerified,
	}, nil
}
