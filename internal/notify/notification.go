// Package notify доставляет уведомления движка обмена пользователям:
// в сокет, во входящие в Redis и на почту.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type определяет тип уведомления
type Type string

const (
	TypeSwapRequest   Type = "SWAP_REQUEST"
	TypeSwapAccepted  Type = "SWAP_ACCEPTED"
	TypeSwapRejected  Type = "SWAP_REJECTED"
	TypeSwapCompleted Type = "SWAP_COMPLETED"
	TypeSwapCancelled Type = "SWAP_CANCELLED"
)

// Notification представляет одно уведомление для одного пользователя
type Notification struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Type      Type              `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Link      string            `json:"link,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Sink представляет канал доставки уведомлений
type Sink interface {
	Emit(ctx context.Context, n Notification) error
}

// SinkFunc позволяет использовать функцию как Sink
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Emit(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
