// Package auth resolves connection-establishment metadata into an identity.
// Every failure path converges on the anonymous identity; the accept path
// never sees an error.
package auth

import (
	"log/slog"
	"net/http"

	"github.com/ahdev/chatgate/pkg/state"
	"github.com/ahdev/chatgate/pkg/token"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenCookie is the cookie carrying the wrapped access token.
const AccessTokenCookie = "access_token"

// TokenQueryParam is the query-string fallback transport for the token.
const TokenQueryParam = "token"

// Resolution names the outcome of the two-step token resolution, making the
// raw-token compatibility fallback a visible branch rather than a side
// effect of error suppression.
type Resolution int

const (
	// ResolutionInvalid means neither interpretation produced a valid token.
	ResolutionInvalid Resolution = iota
	// ResolvedWrapped means the candidate unwrapped through the codec and
	// validated.
	ResolvedWrapped
	// ResolvedRaw means the candidate validated as an already-raw token.
	ResolvedRaw
)

// AccessClaims is the claim set carried by access tokens.
type AccessClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// UserResolver looks up the identity behind a token's user claim. It is an
// external collaborator of the gateway core.
type UserResolver interface {
	// ResolveUser reports false for unknown or inactive users.
	ResolveUser(userID int64) (state.Identity, bool)
}

type Authenticator struct {
	logger   *slog.Logger
	codec    *token.Codec
	secret   []byte
	resolver UserResolver
}

func New(logger *slog.Logger, codec *token.Codec, jwtSecret []byte, resolver UserResolver) *Authenticator {
	return &Authenticator{
		logger:   logger.With(slog.String("component", "authenticator")),
		codec:    codec,
		secret:   jwtSecret,
		resolver: resolver,
	}
}

// TokenFromRequest extracts the candidate token. The cookie takes precedence
// over the query parameter when both are present; this mirrors the behavior
// of the latest transport variant and is a policy choice, not an accident.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get(TokenQueryParam)
}

// Authenticate resolves the request into an identity. The second return is
// false for anonymous results. It never panics and never surfaces an error
// to the accept path.
func (a *Authenticator) Authenticate(r *http.Request) (state.Identity, bool) {
	candidate := TokenFromRequest(r)
	if candidate == "" {
		return state.Identity{}, false
	}

	claims, res := a.resolveToken(candidate)
	if res == ResolutionInvalid {
		return state.Identity{}, false
	}

	if claims.UserID == 0 {
		a.logger.Warn("Valid token missing user_id claim")
		return state.Identity{}, false
	}

	ident, ok := a.resolver.ResolveUser(claims.UserID)
	if !ok {
		a.logger.Warn("Token user not found or inactive", slog.Int64("userID", claims.UserID))
		return state.Identity{}, false
	}
	return ident, true
}

// resolveToken runs the explicit two-step resolution: unwrap-then-validate,
// falling back to validating the candidate as an already-raw token. The
// fallback must not mask a corrupt token; if both steps fail the result is
// ResolutionInvalid.
func (a *Authenticator) resolveToken(candidate string) (*AccessClaims, Resolution) {
	if unwrapped, err := a.codec.Decode(candidate); err == nil {
		claims, err := a.validate(unwrapped)
		if err != nil {
			a.logger.Warn("Unwrapped token failed validation", slog.Any("error", err))
			return nil, ResolutionInvalid
		}
		return claims, ResolvedWrapped
	}

	claims, err := a.validate(candidate)
	if err != nil {
		a.logger.Warn("Invalid token presented", slog.Any("error", err))
		return nil, ResolutionInvalid
	}
	return claims, ResolvedRaw
}

// validate parses and verifies a raw signed token, enforcing HMAC signing
// and expiry.
func (a *Authenticator) validate(tokenString string) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
