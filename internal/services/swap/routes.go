package swap

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swap/internal/middleware"
	"github.com/rajivgeraev/flippy-swap/internal/models"
)

// Handler представляет HTTP-обертку над движком обмена
type Handler struct {
	svc      *Service
	validate *validator.Validate
	log      *zap.Logger
}

// NewHandler создает обработчики маршрутов обмена
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, validate: validator.New(), log: log}
}

// SetupRoutes настраивает маршруты для API обменов
func (h *Handler) SetupRoutes(app *fiber.App, auth fiber.Handler, requireVerified bool) {
	// Группа для API обменов
	api := app.Group("/api/swaps")

	// Все маршруты требуют авторизации
	api.Use(auth)

	if requireVerified {
		// обработчик маршрута выполняется после перечисленных middleware
		api.Post("/", h.CreateSwap, middleware.RequireVerified())
	} else {
		api.Post("/", h.CreateSwap)
	}

	api.Get("/incoming", h.ListIncoming)
	api.Get("/outgoing", h.ListOutgoing)
	api.Get("/history", h.ListHistory)
	api.Get("/:id", h.GetSwap)

	// Маршрут для обновления статуса предложения обмена
	api.Put("/:id/status", h.UpdateSwapStatus)
}

// CreateSwap создает новое предложение обмена
func (h *Handler) CreateSwap(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "Пользователь не авторизован"})
	}

	var req createSwapRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	swap, err := h.svc.CreateSwap(context.Background(), userID,
		uuid.MustParse(req.RequestedItemID), uuid.MustParse(req.OfferedItemID), req.Message)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"swap": swap})
}

// GetSwap возвращает предложение обмена участнику
func (h *Handler) GetSwap(c fiber.Ctx) error {
	userID, swapID, ok := h.identify(c)
	if !ok {
		return nil
	}

	swap, err := h.svc.GetSwap(context.Background(), swapID, userID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"swap": swap})
}

// UpdateSwapStatus переводит предложение в новый статус
func (h *Handler) UpdateSwapStatus(c fiber.Ctx) error {
	userID, swapID, ok := h.identify(c)
	if !ok {
		return nil
	}

	var req updateStatusRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	ctx := context.Background()
	var (
		swap models.SwapRequest
		err  error
	)
	switch req.Status {
	case "accepted":
		swap, err = h.svc.AcceptSwap(ctx, swapID, userID)
	case "rejected":
		swap, err = h.svc.RejectSwap(ctx, swapID, userID)
	case "completed":
		swap, err = h.svc.CompleteSwap(ctx, swapID, userID)
	case "cancelled":
		swap, err = h.svc.CancelSwap(ctx, swapID, userID)
	}
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{"swap": swap})
}

// ListIncoming возвращает предложения на предметы пользователя
func (h *Handler) ListIncoming(c fiber.Ctx) error {
	return h.listWithStatuses(c, h.svc.ListIncoming)
}

// ListOutgoing возвращает предложения, отправленные пользователем
func (h *Handler) ListOutgoing(c fiber.Ctx) error {
	return h.listWithStatuses(c, h.svc.ListOutgoing)
}

// ListHistory возвращает историю обменов пользователя
func (h *Handler) ListHistory(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "Пользователь не авторизован"})
	}

	swaps, err := h.svc.ListHistory(context.Background(), userID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"swaps": swaps, "count": len(swaps)})
}

type listFunc func(ctx context.Context, userID uuid.UUID, statuses ...models.SwapStatus) ([]models.SwapRequest, error)

func (h *Handler) listWithStatuses(c fiber.Ctx, list listFunc) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "Пользователь не авторизован"})
	}

	statuses, ok := parseStatuses(c.Query("status"))
	if !ok {
		return badRequest(c, "unknown status filter")
	}

	swaps, err := list(context.Background(), userID, statuses...)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"swaps": swaps, "count": len(swaps)})
}

// identify достает пользователя и ID предложения; при ошибке ответ уже отправлен
func (h *Handler) identify(c fiber.Ctx) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		_ = c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "Пользователь не авторизован"})
		return uuid.Nil, uuid.Nil, false
	}

	swapID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = badRequest(c, "invalid swap id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, swapID, true
}

func (h *Handler) respondError(c fiber.Ctx, err error) error {
	code := HTTPStatus(err)

	var swapErr *Error
	if !errors.As(err, &swapErr) {
		h.log.Error("unexpected swap error", zap.Error(err))
		return c.Status(code).JSON(errorResponse{Error: "internal error"})
	}

	return c.Status(code).JSON(errorResponse{
		Error:  swapErr.Message,
		Code:   swapErr.Kind,
		Status: swapErr.Status,
	})
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: msg, Code: KindInvalidArgument})
}
