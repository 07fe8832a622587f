package middleware_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/handlers"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/utils"
)

const secret = "test-secret"

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil))),
	})
	whoami := func(c *fiber.Ctx) error {
		id := middleware.CurrentIdentity(c)
		return c.JSON(fiber.Map{"user_id": id.UserID, "is_admin": id.IsAdmin, "authenticated": id.Authenticated()})
	}
	app.Get("/open", middleware.OptionalAuth(secret), whoami)
	app.Get("/me", middleware.AuthMiddleware(secret), whoami)
	app.Get("/admin", middleware.AuthMiddleware(secret), middleware.RequireAdmin(), whoami)
	return app
}

func token(t *testing.T, userID uuid.UUID, admin bool) string {
	t.Helper()
	tok, err := utils.GenerateToken(secret, userID, admin, time.Hour)
	require.NoError(t, err)
	return tok
}

func call(t *testing.T, app *fiber.App, path, bearer string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestAuthMiddleware(t *testing.T) {
	app := newApp()
	userID := uuid.New()

	status, body := call(t, app, "/me", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Unauthorized", body["error"].(map[string]any)["code"])

	status, _ = call(t, app, "/me", "not-a-jwt")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	other, err := utils.GenerateToken("other-secret", userID, false, time.Hour)
	require.NoError(t, err)
	status, _ = call(t, app, "/me", other)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = call(t, app, "/me", token(t, userID, false))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, userID.String(), body["user_id"])
	assert.Equal(t, false, body["is_admin"])
}

func TestRequireAdmin(t *testing.T) {
	app := newApp()

	status, body := call(t, app, "/admin", token(t, uuid.New(), false))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Forbidden", body["error"].(map[string]any)["code"])

	status, body = call(t, app, "/admin", token(t, uuid.New(), true))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["is_admin"])
}

func TestOptionalAuth(t *testing.T) {
	app := newApp()

	status, body := call(t, app, "/open", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["authenticated"])

	status, body = call(t, app, "/open", "garbage")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["authenticated"])

	status, body = call(t, app, "/open", token(t, uuid.New(), false))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["authenticated"])
}
