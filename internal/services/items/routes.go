package items

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swap/internal/middleware"
	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

// SetupRoutes настраивает маршруты для API предметов
func (s *Service) SetupRoutes(app *fiber.App, auth fiber.Handler) {
	api := app.Group("/api/items")
	api.Use(auth)

	api.Post("/", s.createItemHandler)
	api.Get("/my", s.myItemsHandler)
	api.Get("/:id", s.getItemHandler)
}

func (s *Service) createItemHandler(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var payload struct {
		Title string `json:"title"`
	}
	if err := c.Bind().Body(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}

	item, err := s.CreateItem(context.Background(), userID, payload.Title)
	if errors.Is(err, ErrInvalidTitle) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Название обязательно и не длиннее " + strconv.Itoa(MaxTitleLength) + " символов"})
	}
	if err != nil {
		s.log.Error("ошибка создания предмета", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения предмета"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"item": item})
}

func (s *Service) myItemsHandler(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	onlyAvailable := false
	if raw := c.Query("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверное значение available"})
		}
		onlyAvailable = v
	}

	list, err := s.ListByOwner(context.Background(), userID, onlyAvailable)
	if err != nil {
		s.log.Error("ошибка получения предметов", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения предметов"})
	}

	return c.JSON(fiber.Map{"items": list, "count": len(list)})
}

func (s *Service) getItemHandler(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID предмета"})
	}

	item, err := s.GetItem(context.Background(), id)
	if errors.Is(err, storage.ErrItemNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Предмет не найден"})
	}
	if err != nil {
		s.log.Error("ошибка получения предмета", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения предмета"})
	}

	return c.JSON(fiber.Map{"item": item})
}
