package service

import (
	"context"
	"time"

	"authority/internal/auth/models"
	jwttoken "authority/internal/jwt_token"
	dErrors "authority/pkg/domain-errors"
	"authority/pkg/platform/audit"
	"authority/pkg/requestcontext"
)

// Refresh exchanges a refresh token for a brand-new credential tuple under a
// new session_id. The presented refresh token and its whole session are
// revoked, so each refresh token is single use.
func (s *Service) Refresh(ctx context.Context, refreshToken, origin string) (*models.LoginResult, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	ref, err := jwttoken.ToTokenRef(refreshToken, &claims.TokenClaims)
	if err != nil {
		return nil, err
	}
	if err := s.revocations.CheckToken(ctx, ref); err != nil {
		return nil, err
	}

	user, err := s.activeUser(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !user.IsVerified {
		return nil, dErrors.New(dErrors.CodeAccountUnverified, "account is not verified")
	}

	if origin == "" {
		origin = claims.Origin
	}
	tokens, err := s.tokens.IssueAll(user, origin)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue tokens")
	}

	// Revoke the old credentials only once the replacements exist.
	now := requestcontext.Now(ctx)
	remaining := s.tokens.TTL(models.TokenKindRefresh)
	if claims.ExpiresAt != nil {
		if left := claims.ExpiresAt.Sub(now); left > 0 {
			remaining = left
		}
	}
	if err := s.revocations.BlacklistByJTI(ctx, claims.ID, user.ID, remaining); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke refresh token")
	}
	if err := s.revocations.BlacklistSession(ctx, ref.SessionID, maxDuration(remaining, s.tokens.TTL(models.TokenKindSession))); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke previous session")
	}
	s.metrics.IncrementTokensIssued()

	s.trackSession(ctx, user.ID, sessionChange{
		add:     tokens.SessionID,
		replace: ref.SessionID,
		origin:  origin,
	})

	s.emit(ctx, audit.Event{
		Type:      audit.EventTokenRefreshed,
		UserID:    user.ID,
		SessionID: tokens.SessionID,
	})
	return &models.LoginResult{User: user, Tokens: tokens}, nil
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
