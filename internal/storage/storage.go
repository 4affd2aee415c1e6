// Package storage описывает контракт хранилища, через которое движок обмена
// читает и изменяет предметы и предложения обмена.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-swap/internal/models"
)

var (
	ErrItemNotFound     = errors.New("item not found")
	ErrSwapNotFound     = errors.New("swap not found")
	ErrDuplicatePending = errors.New("duplicate pending swap request")
	ErrUserNotFound     = errors.New("user not found")
	// ErrUnavailable помечает временный сбой хранилища, после которого операцию можно повторить
	ErrUnavailable = errors.New("storage unavailable")
)

// ItemCatalog описывает операции над предметами, доступные внутри транзакции
type ItemCatalog interface {
	// GetItem читает предмет и удерживает блокировку строки до конца транзакции
	GetItem(ctx context.Context, id uuid.UUID) (models.Item, error)
	SetOwnerAndAvailability(ctx context.Context, id, ownerID uuid.UUID, available bool) error
}

// Tx представляет единицу работы движка. Всё, что доступно внутри транзакции, доступно только через Tx.
type Tx interface {
	ItemCatalog

	GetSwap(ctx context.Context, id uuid.UUID) (models.SwapRequest, error)
	LockSwap(ctx context.Context, id uuid.UUID) (models.SwapRequest, error)
	HasPendingRequest(ctx context.Context, requesterID, requestedItemID uuid.UUID) (bool, error)
	InsertSwap(ctx context.Context, swap models.SwapRequest) error
	UpdateSwapStatus(ctx context.Context, id uuid.UUID, status models.SwapStatus, at time.Time) error
	// CancelPendingForItem переводит все предложения на предмет в статусе from, кроме exceptSwapID,
	// в статус to и возвращает их в новом состоянии
	CancelPendingForItem(ctx context.Context, itemID, exceptSwapID uuid.UUID, from, to models.SwapStatus, at time.Time) ([]models.SwapRequest, error)
}

// SwapFilter задаёт выборку предложений обмена
type SwapFilter struct {
	OwnerID       uuid.UUID
	RequesterID   uuid.UUID
	ParticipantID uuid.UUID
	Statuses      []models.SwapStatus
	Limit         int
}

// DefaultListLimit применяется, если Limit не задан
const DefaultListLimit = 100

// Store описывает хранилище предметов и предложений обмена
type Store interface {
	// WithTransaction выполняет fn в одной транзакции: фиксирует результат, только если
	// fn вернула nil, и откатывает его на любом другом пути, включая панику
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetSwap(ctx context.Context, id uuid.UUID) (models.SwapRequest, error)
	// CompareAndSetStatus меняет статус, только если текущий равен from
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.SwapStatus, at time.Time) (bool, error)
	ListSwaps(ctx context.Context, filter SwapFilter) ([]models.SwapRequest, error)
}

// TelegramProfile содержит данные пользователя из initData Telegram
type TelegramProfile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	PhotoURL   string
}

// UserDirectory отдаёт контактные данные пользователей и связь с Telegram
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
	// EnsureTelegramUser возвращает пользователя, привязанного к Telegram ID, создавая его при первом входе
	EnsureTelegramUser(ctx context.Context, profile TelegramProfile) (models.User, error)
}

// Items описывает каталог предметов вне транзакций движка
type Items interface {
	InsertItem(ctx context.Context, item models.Item) error
	GetItem(ctx context.Context, id uuid.UUID) (models.Item, error)
	// ListItemsByOwner возвращает предметы владельца, новые первыми
	ListItemsByOwner(ctx context.Context, ownerID uuid.UUID, onlyAvailable bool) ([]models.Item, error)
}
