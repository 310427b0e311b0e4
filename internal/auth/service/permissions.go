package service

import (
	"context"
	"errors"

	"authority/internal/auth/models"
	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
	"authority/pkg/platform/sentinel"
)

func (s *Service) GetPermissions(ctx context.Context, userID id.UserID, forceRefresh bool) ([]string, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	return s.permissions.GetUserPermissions(ctx, userID, forceRefresh)
}

func (s *Service) CheckPermission(ctx context.Context, userID id.UserID, codename string) (bool, error) {
	return s.permissions.HasPermission(ctx, userID, codename)
}

// CheckAny is false for an empty list.
func (s *Service) CheckAny(ctx context.Context, userID id.UserID, codenames []string) (bool, error) {
	return s.permissions.HasAnyPermission(ctx, userID, codenames)
}

// CheckAll is true for an empty list.
func (s *Service) CheckAll(ctx context.Context, userID id.UserID, codenames []string) (bool, error) {
	return s.permissions.HasAllPermissions(ctx, userID, codenames)
}

// GetUser returns the stored principal for userID.
func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}
