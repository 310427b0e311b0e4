// Package requesttime pins one "now" per HTTP request so token issuance,
// session tracking and audit events agree on timestamps.
package requesttime

import (
	"net/http"
	"time"

	"authority/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
