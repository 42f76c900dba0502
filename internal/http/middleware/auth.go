// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides bearer-token authentication for the API. Tokens are JWTs
// signed with HMAC-SHA256 by the identity provider; the middleware verifies
// the signature against a shared secret and promotes the subject claim to the
// request identity.
//
// Behavior:
//   - Reads Authorization: Bearer <token>; a missing or malformed header,
//     a bad signature, an expired token, or an empty subject claim all yield
//     401 with the standard JSON error envelope.
//   - On success, the subject claim is stored in the Gin context under the
//     "userID" key, where the logging, rate-limiting, and idempotency
//     middleware (and all handlers) expect to find it.
//   - OPTIONS requests pass through untouched so CORS preflights never require
//     credentials.
//
// Design notes:
//   - Only HS256 is accepted; tokens signed with any other algorithm
//     (including "none") are rejected before claim validation.
//   - The middleware never logs token material. The redacting logger masks
//     the Authorization header independently.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// userIDKey is the Gin context key under which the authenticated user id is
// stored. Downstream middleware and handlers read the same key.
const userIDKey = "userID"

// AuthOptions configures RequireAuth.
//
// Secret is the shared HS256 signing secret. An empty secret rejects every
// token, which fails closed; operators must configure it for any request to
// authenticate.
//
// Leeway widens time-based claim validation (exp, nbf, iat) to absorb minor
// clock drift between the identity provider and this service. Zero disables
// leeway.
type AuthOptions struct {
	Secret string
	Leeway time.Duration
}

// RequireAuth returns a Gin middleware that authenticates requests with a
// bearer JWT and stores the subject claim under the "userID" context key.
//
// Place it after RequestID() and the logger so 401 responses carry the
// correlation ID, and before any handler that reads the request identity.
func RequireAuth(opt AuthOptions) gin.HandlerFunc {
	parseOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if opt.Leeway > 0 {
		parseOpts = append(parseOpts, jwt.WithLeeway(opt.Leeway))
	}
	secret := []byte(opt.Secret)

	return func(c *gin.Context) {
		// Preflights are answered by the CORS layer and carry no credentials.
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "missing bearer token")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		}, parseOpts...)
		if err != nil || !token.Valid {
			unauthorized(c, "invalid token")
			return
		}
		if claims.Subject == "" {
			unauthorized(c, "token has no subject")
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

// bearerToken extracts the token from an Authorization header value.
// The scheme comparison is case-insensitive per RFC 7235.
func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// unauthorized aborts the request with the standard 401 envelope.
func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}
