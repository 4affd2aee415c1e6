package notify

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swap/internal/middleware"
)

const defaultInboxLimit = 50

// SetupRoutes регистрирует чтение входящих уведомлений
func (r *RedisInbox) SetupRoutes(app *fiber.App, auth fiber.Handler, log *zap.Logger) {
	api := app.Group("/api/notifications")
	api.Use(auth)
	api.Get("/", r.inboxHandler(log))
}

func (r *RedisInbox) inboxHandler(log *zap.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		userID, ok := middleware.UserID(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
		}

		limit := defaultInboxLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный параметр limit"})
			}
			limit = n
		}

		items, err := r.Inbox(context.Background(), userID, limit)
		if err != nil {
			log.Warn("ошибка чтения входящих уведомлений", zap.String("user_id", userID.String()), zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Уведомления временно недоступны"})
		}

		return c.JSON(fiber.Map{"notifications": items, "count": len(items)})
	}
}
