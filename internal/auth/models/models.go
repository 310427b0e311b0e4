package models

import (
	"strings"
	"time"

	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusDisabled  UserStatus = "disabled"
)

// User is the principal an identifier and secret authenticate as. Users are
// never deleted; deactivation flips IsActive.
type User struct {
	ID           id.UserID         `json:"id"`
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	PasswordHash string            `json:"-"`
	FirstName    string            `json:"first_name,omitempty"`
	LastName     string            `json:"last_name,omitempty"`
	Preferences  map[string]string `json:"preferences,omitempty"`
	Status       UserStatus        `json:"status"`
	IsActive     bool              `json:"is_active"`
	IsVerified   bool              `json:"is_verified"`

	LastLogin    *time.Time `json:"last_login,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`

	ActiveSessions []ActiveSession `json:"active_sessions"`
	LoginHistory   []LoginRecord   `json:"login_history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the invariants a stored user must hold.
func (u *User) Validate() error {
	if u.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "user id is required")
	}
	if strings.TrimSpace(u.Email) == "" && strings.TrimSpace(u.Phone) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "user needs an email or a phone")
	}
	return nil
}

// HasSecret reports whether a password has ever been set.
func (u *User) HasSecret() bool {
	return u.PasswordHash != ""
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ActiveSession describes one logged-in device.
type ActiveSession struct {
	SessionID    id.SessionID `json:"session_id"`
	Device       string       `json:"device"`
	Browser      string       `json:"browser"`
	OS           string       `json:"os"`
	IPAddress    string       `json:"ip_address,omitempty"`
	UserAgent    string       `json:"user_agent,omitempty"`
	Origin       string       `json:"origin,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
}

// LoginRecord is one entry of the bounded, newest-first login history.
type LoginRecord struct {
	SessionID id.SessionID `json:"session_id"`
	IPAddress string       `json:"ip_address,omitempty"`
	Device    string       `json:"device"`
	Browser   string       `json:"browser"`
	OS        string       `json:"os"`
	At        time.Time    `json:"at"`
}
