package testutil

import (
	"net/http"

	id "authority/pkg/domain"
	"authority/pkg/requestcontext"
)

// WithPrincipal stores what the auth middleware would after validating a
// token, so handlers can be exercised without a bearer token.
func WithPrincipal(req *http.Request, userID id.UserID, sessionID id.SessionID, permissions ...string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithSessionID(ctx, sessionID)
	ctx = requestcontext.WithTokenKind(ctx, "access")
	ctx = requestcontext.WithPermissions(ctx, permissions)
	return req.WithContext(ctx)
}
