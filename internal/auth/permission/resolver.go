// Package permission resolves a user's effective permission codenames: the
// union over every active group the user belongs to.
//
// Resolved sets are cached as JSON under permissions:user:{id}. The cache is
// an optimization only. Read failures fall through to the store and write
// failures are logged.
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"authority/internal/auth/store/credential"
	"authority/internal/platform/metrics"
	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
	"authority/pkg/platform/sentinel"
	pkgstrings "authority/pkg/platform/strings"
)

const (
	keyPrefix  = "permissions:user:"
	DefaultTTL = 60 * time.Minute
)

var tracer = otel.Tracer("authority/auth/permission")

// Store is the source of truth for group membership and grants. Every query
// must ignore inactive groups.
type Store interface {
	ListCodenamesForUser(ctx context.Context, userID id.UserID) ([]string, error)
	HasPermission(ctx context.Context, userID id.UserID, codename string) (bool, error)
	HasAnyPermission(ctx context.Context, userID id.UserID, codenames []string) (bool, error)
}

type Resolver struct {
	store   Store
	cache   credential.Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

type Option func(*Resolver)

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver builds a resolver. A nil cache disables caching.
func NewResolver(store Store, cache credential.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		cache:  cache,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func cacheKey(userID id.UserID) string {
	return keyPrefix + userID.String()
}

// GetUserPermissions returns the sorted set of codenames for userID.
// forceRefresh skips the cache read but still repopulates it.
func (r *Resolver) GetUserPermissions(ctx context.Context, userID id.UserID, forceRefresh bool) ([]string, error) {
	ctx, span := tracer.Start(ctx, "GetUserPermissions",
		trace.WithAttributes(
			attribute.String("user_id", userID.String()),
			attribute.Bool("force_refresh", forceRefresh),
		),
	)
	defer span.End()

	if !forceRefresh {
		if perms, ok := r.readCache(ctx, userID); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return perms, nil
		}
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	// The shared load outlives any single caller; joined callers must not
	// inherit the first caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(userID.String(), func() (any, error) {
		return r.load(loadCtx, userID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve permissions")
		return nil, err
	}
	perms := v.([]string)
	out := make([]string, len(perms))
	copy(out, perms)
	return out, nil
}

func (r *Resolver) load(ctx context.Context, userID id.UserID) ([]string, error) {
	perms, err := r.store.ListCodenamesForUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permissions")
	}
	perms = pkgstrings.SortedSet(perms)
	r.writeCache(ctx, userID, perms)
	return perms, nil
}

func (r *Resolver) readCache(ctx context.Context, userID id.UserID) ([]string, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, cacheKey(userID))
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			r.logger.WarnContext(ctx, "permission cache read failed", "user_id", userID, "error", err)
			r.metrics.IncrementPermissionCache("error")
		} else {
			r.metrics.IncrementPermissionCache("miss")
		}
		return nil, false
	}
	var perms []string
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		r.logger.WarnContext(ctx, "discarding corrupt permission cache entry", "user_id", userID, "error", err)
		r.metrics.IncrementPermissionCache("error")
		return nil, false
	}
	r.metrics.IncrementPermissionCache("hit")
	return perms, true
}

func (r *Resolver) writeCache(ctx context.Context, userID id.UserID, perms []string) {
	if r.cache == nil {
		return
	}
	payload, err := json.Marshal(perms)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to encode permission set", "error", err)
		return
	}
	if err := r.cache.Set(ctx, cacheKey(userID), string(payload), r.ttl); err != nil {
		r.logger.WarnContext(ctx, "permission cache write failed", "user_id", userID, "error", err)
	}
}

// HasPermission answers from a warm cache and otherwise asks the store
// directly, without populating the cache.
func (r *Resolver) HasPermission(ctx context.Context, userID id.UserID, codename string) (bool, error) {
	if perms, ok := r.readCache(ctx, userID); ok {
		return contains(perms, codename), nil
	}
	ok, err := r.store.HasPermission(ctx, userID, codename)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check permission")
	}
	return ok, nil
}

// HasAnyPermission is false for an empty list.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID id.UserID, codenames []string) (bool, error) {
	if len(codenames) == 0 {
		return false, nil
	}
	if perms, ok := r.readCache(ctx, userID); ok {
		for _, c := range codenames {
			if contains(perms, c) {
				return true, nil
			}
		}
		return false, nil
	}
	ok, err := r.store.HasAnyPermission(ctx, userID, codenames)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check permissions")
	}
	return ok, nil
}

// HasAllPermissions is true for an empty list.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID id.UserID, codenames []string) (bool, error) {
	if len(codenames) == 0 {
		return true, nil
	}
	perms, err := r.GetUserPermissions(ctx, userID, false)
	if err != nil {
		return false, err
	}
	for _, c := range codenames {
		if !contains(perms, c) {
			return false, nil
		}
	}
	return true, nil
}

// Invalidate drops the cached set so the next lookup goes to the store.
func (r *Resolver) Invalidate(ctx context.Context, userID id.UserID) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Delete(ctx, cacheKey(userID)); err != nil {
		return fmt.Errorf("invalidate permissions for %s: %w", userID, err)
	}
	return nil
}

func contains(perms []string, codename string) bool {
	for _, p := range perms {
		if p == codename {
			return true
		}
	}
	return false
}
