package middleware

import (
	"log/slog"
	"net/http"

	"github.com/ahdev/chatgate/internal/auth"
	"github.com/ahdev/chatgate/pkg/state"
)

// NewIdentityResolver annotates request metadata with the resolved identity.
// It never rejects: an unresolvable token simply leaves the request
// anonymous, and the downstream handler decides what anonymous may do. This
// keeps the WebSocket accept path free of auth-oracle responses.
func NewIdentityResolver(logger *slog.Logger, authenticator *auth.Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Identity resolver could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			ident, authenticated := authenticator.Authenticate(r)
			reqMeta.Identity = ident
			reqMeta.Authenticated = authenticated
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects anonymous requests. Intended for the REST surface,
// where a 401 is the expected contract.
func RequireAuth(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if !reqMeta.Authenticated {
				logger.Warn("Unauthenticated API request", slog.String("ip", reqMeta.IP), slog.String("uri", r.RequestURI))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission rejects authenticated requests whose identity lacks the
// given permission bit.
func RequirePermission(logger *slog.Logger, perm state.Permission) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if !reqMeta.Authenticated {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !reqMeta.Identity.Permissions.Has(perm) {
				logger.Warn("Permission denied",
					slog.Int64("userID", reqMeta.Identity.UserID),
					slog.String("uri", r.RequestURI),
				)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
