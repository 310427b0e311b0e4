// Package lockout throttles repeated failed verifications for one identifier.
//
// Failures are counted in the credential store under lockout:{identifier}.
// Reaching the attempt limit locks the identifier for LockDuration; a success
// clears the record. The counter is a read-modify-write on the store, so
// concurrent failures from several instances can lose an increment.
package lockout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"authority/internal/auth/models"
	"authority/internal/auth/store/credential"
	dErrors "authority/pkg/domain-errors"
	"authority/pkg/platform/audit"
	"authority/pkg/platform/sentinel"
	"authority/pkg/requestcontext"
)

const keyPrefix = "lockout:"

type Config struct {
	AttemptsPerWindow int
	WindowDuration    time.Duration
	LockDuration      time.Duration
}

func DefaultConfig() Config {
	return Config{
		AttemptsPerWindow: 5,
		WindowDuration:    15 * time.Minute,
		LockDuration:      15 * time.Minute,
	}
}

// Record is the stored failure state for one identifier.
type Record struct {
	FailureCount  int        `json:"failure_count"`
	LastFailureAt time.Time  `json:"last_failure_at"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
}

func (r *Record) IsLockedAt(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// releaseExpiredLock starts a fresh count once a lock has run out, so the
// failures that caused it do not re-lock on the next attempt.
func (r *Record) releaseExpiredLock(now time.Time) {
	if r.LockedUntil != nil && !now.Before(*r.LockedUntil) {
		r.FailureCount = 0
		r.LockedUntil = nil
	}
}

// Result is the outcome of Check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// AuditPublisher emits audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Guard struct {
	store   credential.Store
	cfg     Config
	logger  *slog.Logger
	auditor AuditPublisher
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(g *Guard) {
		g.auditor = p
	}
}

// New builds a Guard. Zero config fields take their DefaultConfig values.
func New(store credential.Store, cfg Config, opts ...Option) *Guard {
	def := DefaultConfig()
	if cfg.AttemptsPerWindow <= 0 {
		cfg.AttemptsPerWindow = def.AttemptsPerWindow
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = def.WindowDuration
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = def.LockDuration
	}
	g := &Guard{store: store, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func key(identifier string) string {
	return keyPrefix + models.NormalizeIdentifier(identifier).Value
}

// Check reports whether identifier may attempt a verification now. A store
// failure allows the attempt; the verification itself still fails closed.
func (g *Guard) Check(ctx context.Context, identifier string) Result {
	record, err := g.load(ctx, identifier)
	if err != nil {
		g.logger.WarnContext(ctx, "lockout check failed, allowing attempt", "error", err)
		return Result{Allowed: true, Remaining: g.cfg.AttemptsPerWindow}
	}

	now := requestcontext.Now(ctx)
	record.releaseExpiredLock(now)
	if record.IsLockedAt(now) {
		return Result{Allowed: false, RetryAfter: record.LockedUntil.Sub(now)}
	}
	return Result{Allowed: true, Remaining: max(g.cfg.AttemptsPerWindow-record.FailureCount, 0)}
}

// RecordFailure counts one failed attempt and locks the identifier once the
// limit is reached. It returns the updated record.
func (g *Guard) RecordFailure(ctx context.Context, identifier string) (*Record, error) {
	record, err := g.load(ctx, identifier)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load lockout record")
	}

	now := requestcontext.Now(ctx)
	record.releaseExpiredLock(now)
	record.FailureCount++
	record.LastFailureAt = now
	ttl := g.cfg.WindowDuration

	if record.FailureCount >= g.cfg.AttemptsPerWindow && !record.IsLockedAt(now) {
		until := now.Add(g.cfg.LockDuration)
		record.LockedUntil = &until
		ttl = max(ttl, g.cfg.LockDuration)
		g.logger.WarnContext(ctx, "verification lockout triggered",
			"identifier", identifier,
			"failures", record.FailureCount,
			"locked_until", until,
			"client_ip", requestcontext.ClientIP(ctx),
		)
		g.emit(ctx, identifier)
	} else if record.LockedUntil != nil {
		ttl = max(ttl, record.LockedUntil.Sub(now))
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode lockout record")
	}
	if err := g.store.Set(ctx, key(identifier), string(payload), ttl); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record failure")
	}
	return record, nil
}

// Clear forgets every failure for identifier.
func (g *Guard) Clear(ctx context.Context, identifier string) error {
	if err := g.store.Delete(ctx, key(identifier)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear failures")
	}
	return nil
}

func (g *Guard) load(ctx context.Context, identifier string) (*Record, error) {
	raw, err := g.store.Get(ctx, key(identifier))
	if errors.Is(err, sentinel.ErrNotFound) {
		return &Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		g.logger.WarnContext(ctx, "discarding corrupt lockout record", "error", err)
		return &Record{}, nil
	}
	return &record, nil
}

func (g *Guard) emit(ctx context.Context, identifier string) {
	if g.auditor == nil {
		return
	}
	err := g.auditor.Emit(ctx, audit.Event{
		Type:       audit.EventOTPLockout,
		Identifier: identifier,
		IP:         requestcontext.ClientIP(ctx),
		RequestID:  requestcontext.RequestID(ctx),
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to emit lockout audit event", "error", err)
	}
}
