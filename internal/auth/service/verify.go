package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"authority/internal/auth/models"
	jwttoken "authority/internal/jwt_token"
	dErrors "authority/pkg/domain-errors"
	authmw "authority/pkg/platform/middleware/auth"
	"authority/pkg/platform/sentinel"
	"authority/pkg/requestcontext"
)

// VerifyAndResolve validates a raw token and resolves the principal it speaks
// for. Checks run in a fixed order: signature and expiry, origin pinning,
// revocation (user, refresh-wide, session, jti), then account state. A token
// that fails parsing never reaches the revocation registry.
func (s *Service) VerifyAndResolve(ctx context.Context, raw string) (*models.ResolvedPrincipal, error) {
	ctx, span := tracer.Start(ctx, "VerifyAndResolve")
	defer span.End()

	principal, err := s.verifyAndResolve(ctx, raw)
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("token_kind", string(principal.Kind)),
		attribute.String("user_id", principal.User.ID.String()),
	)
	return principal, nil
}

func (s *Service) verifyAndResolve(ctx context.Context, raw string) (*models.ResolvedPrincipal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing token")
	}

	parsed, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	claims := parsed.Claims

	if s.cfg.EnforceTokenOrigin && claims.Origin != "" {
		if got := requestcontext.Origin(ctx); got != claims.Origin {
			s.logger.WarnContext(ctx, "token origin mismatch",
				"token_origin", claims.Origin,
				"request_origin", got,
			)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token origin mismatch")
		}
	}

	ref, err := jwttoken.ToTokenRef(raw, claims)
	if err != nil {
		return nil, err
	}
	if err := s.revocations.CheckToken(ctx, ref); err != nil {
		return nil, err
	}

	var user *models.User
	if parsed.Kind == models.TokenKindSession {
		user, err = parsed.Session.Snapshot()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTokenMalformed, "invalid session snapshot")
		}
	} else {
		user, err = s.activeUser(ctx, ref)
		if err != nil {
			return nil, err
		}
	}

	perms, err := s.permissions.GetUserPermissions(ctx, user.ID, false)
	if err != nil {
		return nil, err
	}

	principal := &models.ResolvedPrincipal{
		User:        user,
		SessionID:   ref.SessionID,
		Kind:        parsed.Kind,
		Permissions: perms,
	}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	return principal, nil
}

// activeUser loads the token's subject and rejects deactivated accounts.
func (s *Service) activeUser(ctx context.Context, ref models.TokenRef) (*models.User, error) {
	user, err := s.users.FindByID(ctx, ref.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !user.IsActive {
		return nil, dErrors.New(dErrors.CodeAccountInactive, "account is inactive")
	}
	return user, nil
}

// ValidateRequestToken adapts VerifyAndResolve to the HTTP middleware.
func (s *Service) ValidateRequestToken(ctx context.Context, raw string) (*authmw.ResolvedToken, error) {
	principal, err := s.VerifyAndResolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &authmw.ResolvedToken{
		UserID:      principal.User.ID,
		SessionID:   principal.SessionID,
		Kind:        string(principal.Kind),
		Permissions: principal.Permissions,
	}, nil
}
