package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"authority/internal/auth/models"
	dErrors "authority/pkg/domain-errors"
	"authority/pkg/platform/audit"
	"authority/pkg/platform/sentinel"
	"authority/pkg/requestcontext"
)

const (
	failureNotFound   = "not_found"
	failureInactive   = "inactive"
	failureUnverified = "unverified"
	failureNoSecret   = "no_secret"
	failureMismatch   = "mismatch"
	failureLookup     = "lookup_error"
)

// Authenticate verifies identifier and secret and performs the login
// bookkeeping that must precede token issuance. It does not mint tokens.
func (s *Service) Authenticate(ctx context.Context, identifier, secret string) (*models.User, error) {
	user, err := s.authenticate(ctx, identifier, secret)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{Type: audit.EventLoginSucceeded, UserID: user.ID})
	return user, nil
}

// AuthenticateWithTokens authenticates and then mints a credential tuple.
// Nothing is issued and no session is recorded unless authentication succeeds.
func (s *Service) AuthenticateWithTokens(ctx context.Context, identifier, secret, origin string) (*models.LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AuthenticateWithTokens",
		trace.WithAttributes(attribute.Bool("has_origin", origin != "")),
	)
	defer span.End()

	user, err := s.authenticate(ctx, identifier, secret)
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}

	tokens, err := s.tokens.IssueAll(user, origin)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to issue tokens")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue tokens")
	}
	s.metrics.IncrementTokensIssued()
	span.SetAttributes(attribute.String("session_id", tokens.SessionID.String()))

	s.trackSession(ctx, user.ID, sessionChange{
		add:    tokens.SessionID,
		origin: origin,
		login:  true,
	})

	s.emit(ctx, audit.Event{
		Type:      audit.EventLoginSucceeded,
		UserID:    user.ID,
		SessionID: tokens.SessionID,
	})

	return &models.LoginResult{User: user, Tokens: tokens}, nil
}

func (s *Service) authenticate(ctx context.Context, identifier, secret string) (*models.User, error) {
	user, err := s.lookup(ctx, identifier)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			s.authFailure(ctx, identifier, failureLookup, "error", err)
			return nil, err
		}
		s.hasher.VerifyDummy(ctx, secret)
		s.authFailure(ctx, identifier, failureNotFound)
		return nil, err
	}

	// Rejection order is fixed: inactive, unverified, no secret, mismatch.
	switch {
	case !user.IsActive:
		s.authFailure(ctx, identifier, failureInactive, "user_id", user.ID.String())
		return nil, dErrors.New(dErrors.CodeAccountInactive, "account is inactive")
	case !user.IsVerified:
		s.authFailure(ctx, identifier, failureUnverified, "user_id", user.ID.String())
		return nil, dErrors.New(dErrors.CodeAccountUnverified, "account is not verified")
	case !user.HasSecret():
		s.hasher.VerifyDummy(ctx, secret)
		s.authFailure(ctx, identifier, failureNoSecret, "user_id", user.ID.String())
		return nil, dErrors.New(dErrors.CodeNoSecretSet, "no password set for this account")
	case !s.hasher.Verify(ctx, secret, user.PasswordHash):
		s.authFailure(ctx, identifier, failureMismatch, "user_id", user.ID.String())
		return nil, invalidCredentials()
	}

	now := requestcontext.Now(ctx)
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login",
			"user_id", user.ID.String(),
			"error", err,
		)
	} else {
		user.LastLogin = &now
	}

	// A user who logged out everywhere regains access by logging in again.
	if err := s.revocations.ClearUserBlacklist(ctx, user.ID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear revocation marker")
	}
	if err := s.revocations.ClearUserRefreshBlacklist(ctx, user.ID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear refresh revocation marker")
	}

	s.metrics.IncrementLogin("success")
	return user, nil
}

// lookup resolves an identifier to a principal. Anything containing '@' is
// an email; everything else is matched as a phone number by its digits.
func (s *Service) lookup(ctx context.Context, identifier string) (*models.User, error) {
	norm := models.NormalizeIdentifier(identifier)
	if !norm.Searchable() {
		return nil, invalidCredentials()
	}

	var (
		user *models.User
		err  error
	)
	if norm.Email {
		user, err = s.users.FindByEmail(ctx, norm.Value)
	} else {
		user, err = s.users.FindByPhoneSubstring(ctx, norm.Value)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	return user, nil
}

func invalidCredentials() error {
	return dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
}

// authFailure logs a rejected login, counts it and records the audit event.
func (s *Service) authFailure(ctx context.Context, identifier, reason string, attrs ...any) {
	s.metrics.IncrementLogin(reason)
	args := append([]any{
		"reason", reason,
		"client_ip", requestcontext.ClientIP(ctx),
		"request_id", requestcontext.RequestID(ctx),
	}, attrs...)
	s.logger.WarnContext(ctx, "login rejected", args...)
	s.emit(ctx, audit.Event{
		Type:       audit.EventLoginFailed,
		Identifier: identifier,
		Reason:     reason,
	})
}
