// Package otp issues and verifies short numeric one-time codes on top of the
// credential store.
//
// Codes live under otp:{normalized identifier}; issuing again overwrites the
// previous code. Verification fails closed: a store error or a missing key is
// a rejection, never a pass.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"authority/internal/auth/lockout"
	"authority/internal/auth/models"
	"authority/internal/auth/store/credential"
	"authority/internal/platform/metrics"
	dErrors "authority/pkg/domain-errors"
	"authority/pkg/platform/audit"
	"authority/pkg/platform/sentinel"
	"authority/pkg/requestcontext"
)

const (
	keyPrefix  = "otp:"
	codeDigits = 6
	DefaultTTL = 600 * time.Second
)

// Config holds the bypass settings. FastCode is never honoured in production.
type Config struct {
	TTL           time.Duration
	MasterCode    string
	FastCode      string
	BypassEnabled bool
	Production    bool
}

// AuditPublisher emits audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store    credential.Store
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  AuditPublisher
	lockout  *lockout.Guard
	generate func() (string, error)
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
		s.auditor = p
	}
}

// WithLockout throttles repeated failed verifications per identifier.
func WithLockout(g *lockout.Guard) Option {
	return func(s *Service) {
		s.lockout = g
	}
}

// WithCodeGenerator replaces the random generator, for tests.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.generate = gen
		}
	}
}

func New(store credential.Store, cfg Config, opts ...Option) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	s := &Service{
		store:    store,
		cfg:      cfg,
		logger:   slog.Default(),
		generate: randomCode,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func key(identifier string) string {
	return keyPrefix + models.NormalizeIdentifier(identifier).Value
}

// Issue stores a fresh code for identifier and returns it. A non-positive
// ttl means the configured default.
func (s *Service) Issue(ctx context.Context, identifier string, ttl time.Duration) (string, error) {
	norm := models.NormalizeIdentifier(identifier)
	if norm.Value == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "identifier is required")
	}
	if ttl <= 0 {
		ttl = s.cfg.TTL
	}

	code, err := s.generate()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}
	if err := s.store.Set(ctx, keyPrefix+norm.Value, code, ttl); err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			return "", dErrors.Wrap(err, dErrors.CodeCacheUnavailable, "code store unavailable")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store code")
	}
	return code, nil
}

// Verify reports whether code matches. Bypass codes are checked first, and
// only when enabled. A stored code is deleted on success when consume is set.
// A locked-out identifier gets a rate_limited error without any comparison.
func (s *Service) Verify(ctx context.Context, identifier, code string, consume bool) (bool, error) {
	if s.lockout != nil && !s.lockout.Check(ctx, identifier).Allowed {
		s.metrics.IncrementOTPVerification("locked")
		return false, dErrors.New(dErrors.CodeRateLimited, "too many attempts, try again later")
	}

	if code == "" {
		s.reject(ctx, identifier)
		return false, nil
	}

	if kind, ok := s.bypass(code); ok {
		s.metrics.IncrementOTPVerification("bypass")
		s.logger.WarnContext(ctx, "otp bypass code accepted",
			"kind", kind,
			"identifier", identifier,
			"client_ip", requestcontext.ClientIP(ctx),
		)
		s.emitBypass(ctx, identifier, kind)
		s.clearFailures(ctx, identifier)
		return true, nil
	}

	k := key(identifier)
	stored, err := s.store.Get(ctx, k)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.reject(ctx, identifier)
			return false, nil
		}
		s.metrics.IncrementOTPVerification("error")
		s.logger.ErrorContext(ctx, "otp lookup failed, rejecting", "error", err)
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		s.reject(ctx, identifier)
		return false, nil
	}

	if consume {
		if err := s.store.Delete(ctx, k); err != nil {
			s.logger.WarnContext(ctx, "failed to consume otp code", "error", err)
		}
	}
	s.metrics.IncrementOTPVerification("accepted")
	s.clearFailures(ctx, identifier)
	return true, nil
}

func (s *Service) reject(ctx context.Context, identifier string) {
	s.metrics.IncrementOTPVerification("rejected")
	if s.lockout == nil {
		return
	}
	if _, err := s.lockout.RecordFailure(ctx, identifier); err != nil {
		s.logger.WarnContext(ctx, "failed to record otp failure", "error", err)
	}
}

func (s *Service) clearFailures(ctx context.Context, identifier string) {
	if s.lockout == nil {
		return
	}
	if err := s.lockout.Clear(ctx, identifier); err != nil {
		s.logger.WarnContext(ctx, "failed to clear otp failures", "error", err)
	}
}

func (s *Service) bypass(code string) (string, bool) {
	if !s.cfg.BypassEnabled {
		return "", false
	}
	if s.cfg.MasterCode != "" && subtle.ConstantTimeCompare([]byte(s.cfg.MasterCode), []byte(code)) == 1 {
		return "master", true
	}
	if !s.cfg.Production && s.cfg.FastCode != "" && subtle.ConstantTimeCompare([]byte(s.cfg.FastCode), []byte(code)) == 1 {
		return "fast", true
	}
	return "", false
}

func (s *Service) emitBypass(ctx context.Context, identifier, kind string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Type:       audit.EventOTPBypassUsed,
		Identifier: identifier,
		IP:         requestcontext.ClientIP(ctx),
		RequestID:  requestcontext.RequestID(ctx),
		Reason:     kind,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit otp bypass audit event", "error", err)
	}
}

func randomCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
