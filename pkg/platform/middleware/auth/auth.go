package auth

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
	"authority/pkg/platform/httputil"
	"authority/pkg/requestcontext"
)

// TokenValidator resolves a raw bearer token into the principal it speaks for.
// Implementations run the full validation order (signature, expiry, revocation,
// account state) and return coded domain errors on rejection.
type TokenValidator interface {
	ValidateRequestToken(ctx context.Context, raw string) (*ResolvedToken, error)
}

// ResolvedToken is the transport-level view of a validated token. It is kept
// separate from the service model so pkg/ does not import internal/.
type ResolvedToken struct {
	UserID      id.UserID
	SessionID   id.SessionID
	Kind        string
	Permissions []string
}

const refreshKind = "refresh"

func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			raw, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			resolved, err := validator.ValidateRequestToken(ctx, raw)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
				return
			}

			if resolved.Kind == refreshKind {
				logger.WarnContext(ctx, "unauthorized access - refresh token presented",
					"user_id", resolved.UserID.String(),
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "refresh tokens cannot authorize requests"))
				return
			}

			ctx = requestcontext.WithUserID(ctx, resolved.UserID)
			ctx = requestcontext.WithSessionID(ctx, resolved.SessionID)
			ctx = requestcontext.WithTokenKind(ctx, resolved.Kind)
			ctx = requestcontext.WithPermissions(ctx, resolved.Permissions)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission admits the request only if the principal holds codename.
// Must run after RequireAuth.
func RequirePermission(codename string, logger *slog.Logger) func(http.Handler) http.Handler {
	return requirePermissions(logger, "permission", func(held []string) bool {
		return slices.Contains(held, codename)
	}, codename)
}

// RequireAny admits the request if the principal holds at least one codename.
// An empty list admits nobody.
func RequireAny(logger *slog.Logger, codenames ...string) func(http.Handler) http.Handler {
	return requirePermissions(logger, "any", func(held []string) bool {
		return slices.ContainsFunc(codenames, func(c string) bool {
			return slices.Contains(held, c)
		})
	}, codenames...)
}

// RequireAll admits the request if the principal holds every codename.
// An empty list admits any authenticated principal.
func RequireAll(logger *slog.Logger, codenames ...string) func(http.Handler) http.Handler {
	return requirePermissions(logger, "all", func(held []string) bool {
		for _, c := range codenames {
			if !slices.Contains(held, c) {
				return false
			}
		}
		return true
	}, codenames...)
}

func requirePermissions(logger *slog.Logger, mode string, allowed func([]string) bool, codenames ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := requestcontext.UserID(ctx)
			if userID.IsNil() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !allowed(requestcontext.Permissions(ctx)) {
				logger.WarnContext(ctx, "forbidden - missing permission",
					"user_id", userID.String(),
					"mode", mode,
					"required", codenames,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const bearerPrefix = "Bearer "
	after, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !ok {
		return "", false
	}
	after = strings.TrimSpace(after)
	return after, after != ""
}
