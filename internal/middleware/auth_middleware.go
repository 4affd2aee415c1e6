package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-swap/internal/identity"
)

const (
	userIDKey   = "userID"
	verifiedKey = "verified"
)

// TokenValidator проверяет токен и возвращает удостоверение
type TokenValidator interface {
	ValidateToken(token string) (identity.Identity, error)
}

// AuthMiddleware создаёт middleware для проверки JWT
func AuthMiddleware(tokens TokenValidator) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		// Проверяем Bearer токен
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		id, err := tokens.ValidateToken(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		// Добавляем удостоверение в контекст
		c.Locals(userIDKey, id.UserID)
		c.Locals(verifiedKey, id.Verified)

		return c.Next()
	}
}

// RequireVerified пропускает только подтверждённых пользователей
func RequireVerified() fiber.Handler {
	return func(c fiber.Ctx) error {
		if verified, _ := c.Locals(verifiedKey).(bool); !verified {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Account is not verified",
			})
		}
		return c.Next()
	}
}

// UserID возвращает ID пользователя, установленный AuthMiddleware
func UserID(c fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(userIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
