// Package revocation records blacklisted tokens, sessions and users on top of
// the credential store.
//
// Every record is a key whose presence means "reject". Keys expire with the
// credential they revoke, so the registry never needs a sweeper. Lookups fail
// open: an unreachable store logs loudly and reports "not revoked", because
// signature and expiry checks still bound the damage.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"authority/internal/auth/models"
	"authority/internal/auth/store/credential"
	"authority/internal/platform/metrics"
	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
)

const (
	keyPrefixToken       = "blacklist:token:"
	keyPrefixJTI         = "blacklist:jti:"
	keyPrefixSession     = "blacklist:session:"
	keyPrefixUser        = "blacklist:user:"
	keyPrefixRefreshUser = "blacklist:refresh:user:"

	shapeUser        = "user"
	shapeRefreshUser = "refresh_user"
	shapeSession     = "session"
	shapeJTI         = "jti"
	shapeToken       = "token"
)

// TTLs are the natural lifetimes of each token kind. They are the default
// expiry of revocation records when callers pass no explicit ttl.
type TTLs struct {
	Access  time.Duration
	Session time.Duration
	Refresh time.Duration
}

func (t TTLs) forKind(kind models.TokenKind) time.Duration {
	switch kind {
	case models.TokenKindAccess:
		return t.Access
	case models.TokenKindSession:
		return t.Session
	default:
		return t.Refresh
	}
}

type Registry struct {
	store   credential.Store
	ttls    TTLs
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// Option configures a Registry instance.
type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func NewRegistry(store credential.Store, ttls TTLs, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		ttls:   ttls,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// -----------------------------------------------------------------------------
// Keys
// -----------------------------------------------------------------------------

// HashToken is the one-way digest raw tokens are stored under.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func tokenKey(raw string, kind models.TokenKind) string {
	return keyPrefixToken + string(kind) + ":" + HashToken(raw)
}

func jtiKey(jti string) string                 { return keyPrefixJTI + jti }
func sessionKey(sessionID id.SessionID) string { return keyPrefixSession + sessionID.String() }
func userKey(userID id.UserID) string          { return keyPrefixUser + userID.String() }
func refreshUserKey(userID id.UserID) string   { return keyPrefixRefreshUser + userID.String() }

func orDefault(ttl, def time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return def
}

func (r *Registry) stamp() string {
	return strconv.FormatInt(r.clock().Unix(), 10)
}

// -----------------------------------------------------------------------------
// Writes
// -----------------------------------------------------------------------------

// BlacklistToken records a single token by content hash. ttl <= 0 uses the
// kind's natural lifetime.
func (r *Registry) BlacklistToken(ctx context.Context, raw string, kind models.TokenKind, ttl time.Duration) error {
	if raw == "" {
		return nil
	}
	return r.store.Set(ctx, tokenKey(raw, kind), r.stamp(), orDefault(ttl, r.ttls.forKind(kind)))
}

// BlacklistByJTI records a single token by its jti. The value keeps the owner
// for forensics. ttl <= 0 uses the access token lifetime.
func (r *Registry) BlacklistByJTI(ctx context.Context, jti string, userID id.UserID, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	return r.store.Set(ctx, jtiKey(jti), userID.String(), orDefault(ttl, r.ttls.Access))
}

// BlacklistSession kills every token carrying sessionID.
func (r *Registry) BlacklistSession(ctx context.Context, sessionID id.SessionID, ttl time.Duration) error {
	if sessionID.IsNil() {
		return nil
	}
	return r.store.Set(ctx, sessionKey(sessionID), r.stamp(), orDefault(ttl, r.ttls.Refresh))
}

// BlacklistSessions records several sessions in one store round trip.
func (r *Registry) BlacklistSessions(ctx context.Context, sessionIDs []id.SessionID, ttl time.Duration) error {
	entries := make(map[string]string, len(sessionIDs))
	stamp := r.stamp()
	for _, sid := range sessionIDs {
		if !sid.IsNil() {
			entries[sessionKey(sid)] = stamp
		}
	}
	return r.store.SetMany(ctx, entries, orDefault(ttl, r.ttls.Refresh))
}

// BlacklistAllForUser invalidates every token of userID until the marker is
// cleared by a successful login or expires.
func (r *Registry) BlacklistAllForUser(ctx context.Context, userID id.UserID, ttl time.Duration) error {
	return r.store.Set(ctx, userKey(userID), r.stamp(), orDefault(ttl, r.ttls.Refresh))
}

// RevokeAllRefreshTokens invalidates only the refresh tokens of userID.
func (r *Registry) RevokeAllRefreshTokens(ctx context.Context, userID id.UserID, ttl time.Duration) error {
	return r.store.Set(ctx, refreshUserKey(userID), r.stamp(), orDefault(ttl, r.ttls.Refresh))
}

func (r *Registry) ClearUserBlacklist(ctx context.Context, userID id.UserID) error {
	return r.store.Delete(ctx, userKey(userID))
}

func (r *Registry) ClearUserRefreshBlacklist(ctx context.Context, userID id.UserID) error {
	return r.store.Delete(ctx, refreshUserKey(userID))
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (r *Registry) IsTokenBlacklisted(ctx context.Context, raw string, kind models.TokenKind) bool {
	if raw == "" {
		return false
	}
	return r.present(ctx, shapeToken, tokenKey(raw, kind))
}

func (r *Registry) IsBlacklistedByJTI(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}
	return r.present(ctx, shapeJTI, jtiKey(jti))
}

func (r *Registry) IsSessionBlacklisted(ctx context.Context, sessionID id.SessionID) bool {
	if sessionID.IsNil() {
		return false
	}
	return r.present(ctx, shapeSession, sessionKey(sessionID))
}

func (r *Registry) IsUserBlacklisted(ctx context.Context, userID id.UserID) bool {
	return r.present(ctx, shapeUser, userKey(userID))
}

func (r *Registry) IsUserRefreshRevoked(ctx context.Context, userID id.UserID) bool {
	return r.present(ctx, shapeRefreshUser, refreshUserKey(userID))
}

// CheckToken runs the revocation part of the validation order for a token
// whose signature and expiry were already verified: user-wide marker, then
// the refresh-wide marker for refresh tokens, then the session, then the jti
// (or the content hash when the token has no jti).
func (r *Registry) CheckToken(ctx context.Context, ref models.TokenRef) error {
	start := r.clock()
	defer func() {
		r.metrics.ObserveRevocationLatency(r.clock().Sub(start))
	}()

	if r.IsUserBlacklisted(ctx, ref.UserID) {
		return r.revoked(ctx, ref, shapeUser)
	}
	if ref.Kind == models.TokenKindRefresh && r.IsUserRefreshRevoked(ctx, ref.UserID) {
		return r.revoked(ctx, ref, shapeRefreshUser)
	}
	if r.IsSessionBlacklisted(ctx, ref.SessionID) {
		return r.revoked(ctx, ref, shapeSession)
	}
	if ref.JTI != "" {
		if r.IsBlacklistedByJTI(ctx, ref.JTI) {
			return r.revoked(ctx, ref, shapeJTI)
		}
		return nil
	}
	if r.IsTokenBlacklisted(ctx, ref.Raw, ref.Kind) {
		return r.revoked(ctx, ref, shapeToken)
	}
	return nil
}

func (r *Registry) revoked(ctx context.Context, ref models.TokenRef, shape string) error {
	r.logger.WarnContext(ctx, "rejected revoked token",
		"shape", shape,
		"kind", string(ref.Kind),
		"user_id", ref.UserID.String(),
		"session_id", ref.SessionID.String(),
	)
	return dErrors.New(dErrors.CodeTokenRevoked, "token has been revoked")
}

// present is the fail-open lookup shared by every Is* check.
func (r *Registry) present(ctx context.Context, shape, key string) bool {
	ok, err := r.store.Exists(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		r.metrics.IncrementRevocationCheck(shape, "fail_open")
		r.logger.ErrorContext(ctx, "revocation check failed, treating as not revoked",
			"shape", shape,
			"error", err,
		)
		return false
	}
	if ok {
		r.metrics.IncrementRevocationCheck(shape, "hit")
	} else {
		r.metrics.IncrementRevocationCheck(shape, "miss")
	}
	return ok
}
