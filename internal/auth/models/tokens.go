package models

import (
	"time"

	id "authority/pkg/domain"
)

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
	TokenKindSession TokenKind = "session"
)

func (k TokenKind) Valid() bool {
	switch k {
	case TokenKindAccess, TokenKindRefresh, TokenKindSession:
		return true
	}
	return false
}

// CredentialTuple is the access, refresh and session token minted together
// at login. All three share SessionID.
type CredentialTuple struct {
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	SessionToken     string       `json:"session_token"`
	SessionID        id.SessionID `json:"session_id"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	SessionExpiresAt time.Time    `json:"session_expires_at"`
}

// LoginResult is returned by a successful AuthenticateWithTokens.
type LoginResult struct {
	User   *User            `json:"user"`
	Tokens *CredentialTuple `json:"tokens"`
}

// TokenRef identifies a presented token for revocation lookups.
type TokenRef struct {
	Raw       string
	Kind      TokenKind
	JTI       string
	SessionID id.SessionID
	UserID    id.UserID
}

// ResolvedPrincipal is the outcome of validating a request token.
type ResolvedPrincipal struct {
	User        *User
	SessionID   id.SessionID
	Kind        TokenKind
	Permissions []string
	ExpiresAt   time.Time
}
