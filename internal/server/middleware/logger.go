package middleware

import (
	"log/slog"
	"net/http"
)

// NewRequestLogger creates a middleware that logs each incoming request
// together with the caller resolved by the identity middleware. It must run
// after the identity resolver; anonymous requests log a zero userID.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ip, username string
			var userID int64
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				ip = reqMeta.IP
				userID = reqMeta.Identity.UserID
				username = reqMeta.Identity.Username
			}

			logger.Info("Incoming HTTP request",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
				slog.Int64("userID", userID),
				slog.String("username", username),
			)
			next.ServeHTTP(w, r)
		})
	}
}
