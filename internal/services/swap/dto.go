package swap

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rajivgeraev/flippy-swap/internal/models"
)

// createSwapRequest описывает тело POST /api/swaps
type createSwapRequest struct {
	RequestedItemID string `json:"requested_item_id" validate:"required,uuid"`
	OfferedItemID   string `json:"offered_item_id" validate:"required,uuid"`
	Message         string `json:"message"`
}

// updateStatusRequest описывает тело PUT /api/swaps/:id/status
type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected completed cancelled"`
}

// errorResponse описывает тело ответа с ошибкой
type errorResponse struct {
	Error  string            `json:"error"`
	Code   Kind              `json:"code,omitempty"`
	Status models.SwapStatus `json:"status,omitempty"`
}

// validationMessage собирает ошибки валидатора в одну строку
func validationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "invalid request"
	}

	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, strings.ToLower(fe.Field())+": failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

// parseStatuses разбирает ?status=pending,accepted
func parseStatuses(raw string) ([]models.SwapStatus, bool) {
	if raw == "" {
		return nil, true
	}

	var out []models.SwapStatus
	for _, part := range strings.Split(raw, ",") {
		st, ok := models.ParseSwapStatus(strings.ToUpper(strings.TrimSpace(part)))
		if !ok {
			return nil, false
		}
		out = append(out, st)
	}
	return out, true
}
