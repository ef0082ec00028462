package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

func newApp(m *TokenMiddleware) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Post("/hook", m.Handle, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	return app
}

func call(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/hook", nil)
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestTokenMiddleware(t *testing.T) {
	app := newApp(NewTokenMiddleware("s3cret"))

	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, ""))
	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, "s3cret-not"))
	assert.Equal(t, fiber.StatusNoContent, call(t, app, "s3cret"))
}

func TestTokenMiddlewareDisabled(t *testing.T) {
	assert.False(t, NewTokenMiddleware("").Enabled())
	assert.False(t, (*TokenMiddleware)(nil).Enabled())

	app := newApp(NewTokenMiddleware(""))
	assert.Equal(t, fiber.StatusNoContent, call(t, app, ""))
}
