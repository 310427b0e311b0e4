// Package domain holds typed identifiers shared across the auth core.
//
// Each identifier wraps a uuid.UUID so the compiler rejects passing a
// session ID where a user ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "authority/pkg/domain-errors"
)

type (
	UserID       uuid.UUID
	SessionID    uuid.UUID
	GroupID      uuid.UUID
	PermissionID uuid.UUID
)

// maxIDLength guards uuid.Parse against oversized input at trust boundaries.
const maxIDLength = 64

func parseUUID(kind, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(raw) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return parsed, nil
}

func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID("user_id", raw)
	return UserID(parsed), err
}

func ParseSessionID(raw string) (SessionID, error) {
	parsed, err := parseUUID("session_id", raw)
	return SessionID(parsed), err
}

func ParseGroupID(raw string) (GroupID, error) {
	parsed, err := parseUUID("group_id", raw)
	return GroupID(parsed), err
}

func ParsePermissionID(raw string) (PermissionID, error) {
	parsed, err := parseUUID("permission_id", raw)
	return PermissionID(parsed), err
}

func NewSessionID() SessionID { return SessionID(uuid.New()) }

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id SessionID) String() string    { return uuid.UUID(id).String() }
func (id GroupID) String() string      { return uuid.UUID(id).String() }
func (id PermissionID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id GroupID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs serialize as plain UUID strings in JSON payloads
// (session lists, cached records, audit events).
func (id UserID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}

func (id SessionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *SessionID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}
