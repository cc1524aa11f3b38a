package http

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/shotengai/internal/core/ports"
)

// TokenAuthorizer grants write access to a fixed set of bearer tokens.
type TokenAuthorizer struct {
	tokens [][]byte
}

// NewTokenAuthorizer creates a TokenAuthorizer. With no tokens every write is
// refused.
func NewTokenAuthorizer(tokens []string) *TokenAuthorizer {
	a := &TokenAuthorizer{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			a.tokens = append(a.tokens, []byte(t))
		}
	}
	return a
}

// CanWrite reports whether token is one of the configured editor tokens.
func (a *TokenAuthorizer) CanWrite(token string) bool {
	if token == "" {
		return false
	}
	ok := 0
	for _, t := range a.tokens {
		ok |= subtle.ConstantTimeCompare(t, []byte(token))
	}
	return ok == 1
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter used by browser websocket clients.
func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return c.Query("access_token")
}

// WriteAuthMiddleware rejects requests without a write-capable token.
func WriteAuthMiddleware(auth ports.Authorizer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return errUnauthorized(c, "missing bearer token")
		}
		if auth == nil || !auth.CanWrite(token) {
			return errForbidden(c, "token may not write")
		}
		return c.Next()
	}
}
