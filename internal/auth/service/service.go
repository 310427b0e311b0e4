// Package service is the authority facade: it authenticates principals, mints
// credential tuples, tracks sessions, validates request tokens and answers
// permission checks.
//
// Collaborators are injected as interfaces so every external dependency
// (user store, token issuer, revocation registry, permission resolver, OTP,
// audit) can be replaced in tests.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"authority/internal/auth/models"
	jwttoken "authority/internal/jwt_token"
	"authority/internal/platform/metrics"
	id "authority/pkg/domain"
	"authority/pkg/platform/audit"
	"authority/pkg/requestcontext"
)

var tracer = otel.Tracer("authority/auth/service")

type UserStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByPhoneSubstring(ctx context.Context, digits string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, userID id.UserID, at time.Time) error
	UpdateSessions(ctx context.Context, userID id.UserID, sessions []models.ActiveSession, history []models.LoginRecord, lastActivity time.Time) error
}

type PasswordHasher interface {
	Verify(ctx context.Context, secret, hash string) bool
	// VerifyDummy burns the cost of one comparison when no hash exists.
	VerifyDummy(ctx context.Context, secret string) bool
}

type TokenIssuer interface {
	IssueAll(user *models.User, origin string) (*models.CredentialTuple, error)
	Parse(raw string) (*jwttoken.Parsed, error)
	ParseRefresh(raw string) (*jwttoken.RefreshClaims, error)
	TTL(kind models.TokenKind) time.Duration
}

// RevocationRegistry is the subset of the registry the facade drives.
// A ttl of zero means the registry's default for that record shape.
type RevocationRegistry interface {
	CheckToken(ctx context.Context, ref models.TokenRef) error
	BlacklistByJTI(ctx context.Context, jti string, userID id.UserID, ttl time.Duration) error
	BlacklistSession(ctx context.Context, sessionID id.SessionID, ttl time.Duration) error
	BlacklistSessions(ctx context.Context, sessionIDs []id.SessionID, ttl time.Duration) error
	BlacklistAllForUser(ctx context.Context, userID id.UserID, ttl time.Duration) error
	RevokeAllRefreshTokens(ctx context.Context, userID id.UserID, ttl time.Duration) error
	ClearUserBlacklist(ctx context.Context, userID id.UserID) error
	ClearUserRefreshBlacklist(ctx context.Context, userID id.UserID) error
}

type PermissionResolver interface {
	GetUserPermissions(ctx context.Context, userID id.UserID, forceRefresh bool) ([]string, error)
	HasPermission(ctx context.Context, userID id.UserID, codename string) (bool, error)
	HasAnyPermission(ctx context.Context, userID id.UserID, codenames []string) (bool, error)
	HasAllPermissions(ctx context.Context, userID id.UserID, codenames []string) (bool, error)
}

type OTPService interface {
	Issue(ctx context.Context, identifier string, ttl time.Duration) (string, error)
	Verify(ctx context.Context, identifier, code string, consume bool) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config holds the session bookkeeping limits and request validation switches.
type Config struct {
	MaxSessions        int
	LoginHistoryLimit  int
	EnforceTokenOrigin bool
}

const (
	defaultMaxSessions       = 5
	defaultLoginHistoryLimit = 50
)

type Service struct {
	users       UserStore
	hasher      PasswordHasher
	tokens      TokenIssuer
	revocations RevocationRegistry
	permissions PermissionResolver
	otp         OTPService

	cfg            Config
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	locks          *stripedMutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

func WithOTP(otp OTPService) Option {
	return func(s *Service) {
		s.otp = otp
	}
}

func New(
	users UserStore,
	hasher PasswordHasher,
	tokens TokenIssuer,
	revocations RevocationRegistry,
	permissions PermissionResolver,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.LoginHistoryLimit <= 0 {
		cfg.LoginHistoryLimit = defaultLoginHistoryLimit
	}
	s := &Service{
		users:       users,
		hasher:      hasher,
		tokens:      tokens,
		revocations: revocations,
		permissions: permissions,
		cfg:         cfg,
		logger:      slog.Default(),
		locks:       newStripedMutex(64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// emit publishes an audit event stamped with request metadata. Failures are
// logged; audit never fails the operation it records.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"type", string(event.Type),
			"error", err,
		)
	}
}
