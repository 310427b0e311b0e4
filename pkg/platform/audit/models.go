package audit

import (
	"context"
	"time"

	id "authority/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// route security signals separately from routine activity.
type EventCategory string

const (
	// CategorySecurity covers events relevant to security monitoring and forensics.
	// Examples: failed logins, global logout, OTP bypass usage.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for operational visibility.
	// Examples: successful logins, token refresh, single-session logout.
	CategoryOperations EventCategory = "operations"
)

type EventType string

const (
	EventLoginSucceeded   EventType = "login_succeeded"
	EventLoginFailed      EventType = "login_failed"
	EventLogoutSession    EventType = "logout_session"
	EventLogoutEverywhere EventType = "logout_everywhere"
	EventTokenRefreshed   EventType = "token_refreshed"
	EventOTPBypassUsed    EventType = "otp_bypass_used"
	EventOTPLockout       EventType = "otp_lockout_triggered"
)

var eventCategories = map[EventType]EventCategory{
	EventLoginFailed:      CategorySecurity,
	EventLogoutEverywhere: CategorySecurity,
	EventOTPBypassUsed:    CategorySecurity,
	EventOTPLockout:       CategorySecurity,

	EventLoginSucceeded: CategoryOperations,
	EventLogoutSession:  CategoryOperations,
	EventTokenRefreshed: CategoryOperations,
}

// Category returns the EventCategory for this event type.
// Unknown types default to CategoryOperations.
func (t EventType) Category() EventCategory {
	if cat, ok := eventCategories[t]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from the auth core to capture key actions. It stays
// transport-agnostic so sinks can fan out to logs or a broker.
type Event struct {
	Type      EventType     `json:"type"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    id.UserID     `json:"user_id"`
	SessionID id.SessionID  `json:"session_id"`
	// Identifier is the login identifier as presented, only set when no
	// user could be resolved (failed logins, OTP flows).
	Identifier string `json:"identifier,omitempty"`
	IP         string `json:"ip,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Sink receives events from a publisher.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
