package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

// TokenHeader carries the shared webhook secret.
const TokenHeader = "X-Relay-Token"

// TokenMiddleware checks the static token senders are configured with.
type TokenMiddleware struct {
	token []byte
}

// NewTokenMiddleware constructs middleware. An empty token disables the check.
func NewTokenMiddleware(token string) *TokenMiddleware {
	return &TokenMiddleware{token: []byte(token)}
}

// Enabled reports whether requests are checked.
func (m *TokenMiddleware) Enabled() bool {
	return m != nil && len(m.token) > 0
}

// Handle enforces the token on protected routes.
func (m *TokenMiddleware) Handle(c *fiber.Ctx) error {
	if !m.Enabled() {
		return c.Next()
	}
	got := c.Get(TokenHeader)
	if got == "" {
		return apperrors.NewUnauthorized("missing " + TokenHeader + " header")
	}
	if subtle.ConstantTimeCompare([]byte(got), m.token) != 1 {
		return apperrors.NewUnauthorized("invalid relay token")
	}
	return c.Next()
}
