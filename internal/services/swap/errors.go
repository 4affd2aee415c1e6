package swap

import (
	"errors"
	"net/http"

	"github.com/rajivgeraev/flippy-swap/internal/models"
)

// Kind определяет категорию ошибки движка обмена
type Kind string

const (
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindNotFound        Kind = "NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindInvalidState    Kind = "INVALID_STATE"
	KindConflict        Kind = "CONFLICT"
	KindUnavailable     Kind = "UNAVAILABLE"
	KindInternal        Kind = "INTERNAL"
)

// Error представляет типизированную ошибку движка обмена.
// Для KindInvalidState Status содержит наблюдаемый статус предложения.
type Error struct {
	Kind    Kind
	Message string
	Status  models.SwapStatus
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает категорию ошибки или пустую строку, если ошибка не из движка
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind сообщает, что err является ошибкой движка указанной категории
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable сообщает, что операцию можно повторить
func Retryable(err error) bool {
	return IsKind(err, KindUnavailable)
}

// HTTPStatus сопоставляет категорию ошибки с кодом ответа
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func invalidArgument(msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}

func notFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// invalidStatus сообщает текущий статус, чтобы отличить "уже принято" от "уже отклонено"
func invalidStatus(status models.SwapStatus) *Error {
	return &Error{Kind: KindInvalidState, Message: "swap is " + string(status), Status: status}
}

func invalidState(msg string, status models.SwapStatus) *Error {
	return &Error{Kind: KindInvalidState, Message: msg, Status: status}
}

func conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Message: "swap storage unavailable, retry later", Err: err}
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal storage error", Err: err}
}
