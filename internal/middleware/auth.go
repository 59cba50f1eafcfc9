package middleware

import (
	"crypto/subtle"
	"strings"

	"trash2action-backend/internal/model"

	"github.com/gofiber/fiber/v2"
)

// CallerKey is the Locals key holding the authenticated model.Caller.
const CallerKey = "caller"

// TokenValidator resolves a bearer token to the calling identity.
type TokenValidator interface {
	Validate(token string) (model.Caller, error)
}

func deny(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

// Auth requires "Authorization: Bearer <token>" and stores the caller in Locals.
func Auth(tokens TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return deny(c, fiber.StatusUnauthorized, "missing authorization header")
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return deny(c, fiber.StatusUnauthorized, "invalid authorization format")
		}

		caller, err := tokens.Validate(tokenString)
		if err != nil {
			return deny(c, fiber.StatusUnauthorized, "invalid or expired token")
		}

		SetCaller(c, caller)
		return c.Next()
	}
}

// SetCaller attaches an authenticated caller to the request.
func SetCaller(c *fiber.Ctx, caller model.Caller) {
	c.Locals(CallerKey, caller)
}

// CallerFrom returns the caller stored by Auth.
func CallerFrom(c *fiber.Ctx) (model.Caller, bool) {
	caller, ok := c.Locals(CallerKey).(model.Caller)
	return caller, ok
}

// ServerKey guards endpoints called by other backend subsystems.
func ServerKey(expectedKey string) fiber.Handler {
	return sharedKey("X-Server-Key", expectedKey, "invalid server key")
}

// AdminKey guards operator endpoints.
func AdminKey(expectedKey string) fiber.Handler {
	return sharedKey("X-Admin-Key", expectedKey, "invalid admin key")
}

func sharedKey(header, expectedKey, message string) fiber.Handler {
	expected := []byte(expectedKey)
	return func(c *fiber.Ctx) error {
		key := c.Get(header)
		if key == "" || expectedKey == "" || subtle.ConstantTimeCompare([]byte(key), expected) != 1 {
			return deny(c, fiber.StatusForbidden, message)
		}
		return c.Next()
	}
}
