package handler

import (
	"strings"
	"time"

	"authority/internal/auth/models"
	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
)

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Identifier) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "identifier is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeBadRequest, "password is required")
	}
	return nil
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type OTPRequest struct {
	Identifier string `json:"identifier"`
}

type OTPVerifyRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
	// Consume defaults to true; false only checks the code.
	Consume *bool `json:"consume,omitempty"`
}

type UserResponse struct {
	ID          id.UserID         `json:"id"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	FirstName   string            `json:"first_name,omitempty"`
	LastName    string            `json:"last_name,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
	Status      string            `json:"status,omitempty"`
	IsActive    bool              `json:"is_active"`
	IsVerified  bool              `json:"is_verified"`
	LastLogin   *time.Time        `json:"last_login,omitempty"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Phone:       u.Phone,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Preferences: u.Preferences,
		Status:      string(u.Status),
		IsActive:    u.IsActive,
		IsVerified:  u.IsVerified,
		LastLogin:   u.LastLogin,
	}
}

type LoginResponse struct {
	User   UserResponse            `json:"user"`
	Tokens *models.CredentialTuple `json:"tokens"`
}

type MeResponse struct {
	User           UserResponse           `json:"user"`
	SessionID      id.SessionID           `json:"session_id"`
	ActiveSessions []models.ActiveSession `json:"active_sessions"`
	Permissions    []string               `json:"permissions"`
}

type PermissionsResponse struct {
	Permissions []string `json:"permissions"`
}

type OTPResponse struct {
	ExpiresIn int `json:"expires_in"`
	// Code is only returned when code echo is enabled (never in production).
	Code string `json:"code,omitempty"`
}

type OTPVerifyResponse struct {
	Valid bool `json:"valid"`
}
