package service

import (
	"context"
	"errors"

	"authority/internal/auth/models"
	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
	"authority/pkg/platform/audit"
	"authority/pkg/platform/sentinel"
	"authority/pkg/requestcontext"
)

// LogoutEverywhere revokes every credential of userID. Tracked sessions are
// also blacklisted one by one so a later login, which clears the user-wide
// marker, does not bring them back.
func (s *Service) LogoutEverywhere(ctx context.Context, userID id.UserID) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if err := s.revocations.BlacklistAllForUser(ctx, userID, 0); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke user tokens")
	}
	if err := s.revocations.RevokeAllRefreshTokens(ctx, userID, 0); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke refresh tokens")
	}
	if ids := sessionIDs(user.ActiveSessions); len(ids) > 0 {
		if err := s.revocations.BlacklistSessions(ctx, ids, 0); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke sessions")
		}
	}

	s.trackSession(ctx, userID, sessionChange{clear: true})

	s.logger.InfoContext(ctx, "logged out everywhere",
		"user_id", userID.String(),
		"sessions", len(user.ActiveSessions),
	)
	s.emit(ctx, audit.Event{Type: audit.EventLogoutEverywhere, UserID: userID})
	return nil
}

// LogoutSession revokes every token of one session. When the caller is
// authenticated the session is also dropped from their tracked sessions.
func (s *Service) LogoutSession(ctx context.Context, sessionID id.SessionID) error {
	if sessionID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "session ID required")
	}
	if err := s.revocations.BlacklistSession(ctx, sessionID, 0); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
	}

	userID := requestcontext.UserID(ctx)
	if !userID.IsNil() {
		s.trackSession(ctx, userID, sessionChange{remove: sessionID})
	}

	s.emit(ctx, audit.Event{
		Type:      audit.EventLogoutSession,
		UserID:    userID,
		SessionID: sessionID,
	})
	return nil
}

func sessionIDs(sessions []models.ActiveSession) []id.SessionID {
	ids := make([]id.SessionID, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.SessionID)
	}
	return ids
}
