package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/access"
	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/utils"
)

const identityContextKey = "currentIdentity"

// AuthMiddleware validates the bearer JWT and stores the caller's identity in
// the request locals. Requests without a valid token are rejected.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := identityFromHeader(jwtSecret, c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return err
		}
		c.Locals(identityContextKey, id)
		return c.Next()
	}
}

// OptionalAuth stores the identity when a valid token is present and lets
// anonymous requests through.
func OptionalAuth(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if header := c.Get(fiber.HeaderAuthorization); header != "" {
			if id, err := identityFromHeader(jwtSecret, header); err == nil {
				c.Locals(identityContextKey, id)
			}
		}
		return c.Next()
	}
}

// RequireAdmin rejects callers that are not administrators. It must run
// after AuthMiddleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := CurrentIdentity(c).RequireAdmin(); err != nil {
			return err
		}
		return c.Next()
	}
}

// CurrentIdentity returns the caller, or access.Anonymous when unauthenticated.
func CurrentIdentity(c *fiber.Ctx) access.Identity {
	if id, ok := c.Locals(identityContextKey).(access.Identity); ok {
		return id
	}
	return access.Anonymous
}

func identityFromHeader(secret, header string) (access.Identity, error) {
	if header == "" {
		return access.Anonymous, apperr.Unauthorized("missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return access.Anonymous, apperr.Unauthorized("invalid authorization header")
	}

	claims, err := utils.ParseToken(secret, strings.TrimSpace(parts[1]))
	if err != nil {
		return access.Anonymous, apperr.Unauthorized("invalid token")
	}
	return access.Identity{UserID: claims.UserID, IsAdmin: claims.IsAdmin}, nil
}
