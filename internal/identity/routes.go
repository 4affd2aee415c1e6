package identity

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// SetupRoutes регистрирует обмен initData Telegram на токен
func (e *TelegramExchanger) SetupRoutes(app *fiber.App, log *zap.Logger) {
	app.Post("/api/auth/telegram", e.telegramAuthHandler(log))
}

func (e *TelegramExchanger) telegramAuthHandler(log *zap.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		var payload struct {
			InitData string `json:"init_data"`
		}
		if err := c.Bind().Body(&payload); err != nil || payload.InitData == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}

		token, user, err := e.Exchange(context.Background(), payload.InitData)
		if errors.Is(err, ErrInvalidInitData) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid Telegram data"})
		}
		if err != nil {
			log.Error("ошибка авторизации через Telegram", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to authorize"})
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user": fiber.Map{
				"id":          user.ID,
				"username":    user.Username,
				"is_verified": user.Verified,
			},
		})
	}
}
