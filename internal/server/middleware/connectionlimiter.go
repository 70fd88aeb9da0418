package middleware

import (
	"log/slog"
	"net/http"

	"github.com/ahdev/chatgate/pkg/config"
)

type UserConnectionCounter func(userID int64) int
type UserConnectionCycler func(userID int64)

// NewConnectionLimiter caps simultaneous connections per user. Anonymous
// requests pass through untouched; the upgrade handler closes those itself.
func NewConnectionLimiter(
	logger *slog.Logger,
	counter UserConnectionCounter,
	cycler UserConnectionCycler,
	cfg config.ConnectionLimitConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MaxPerUser <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Connection limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if !reqMeta.Authenticated {
				next.ServeHTTP(w, r)
				return
			}

			count := counter(reqMeta.Identity.UserID)
			if count < cfg.MaxPerUser {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("User connection limit reached", slog.Int64("userID", reqMeta.Identity.UserID), slog.Int("count", count))
			switch cfg.Mode {
			case "reject":
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
				return
			case "cycle":
				cycler(reqMeta.Identity.UserID)
				next.ServeHTTP(w, r)
			default:
				logger.Error("Invalid connection limit mode configured", slog.String("mode", cfg.Mode))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		})
	}
}
