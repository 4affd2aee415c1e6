// Package items реализует каталог предметов, которые можно предложить к обмену
package items

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swap/internal/models"
	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

// MaxTitleLength ограничивает длину названия в символах
const MaxTitleLength = 200

// ErrInvalidTitle возвращается для пустого или слишком длинного названия
var ErrInvalidTitle = errors.New("invalid item title")

// Service управляет предметами пользователя.
// Владельца и доступность после создания меняет только движок обмена.
type Service struct {
	store storage.Items
	log   *zap.Logger
	now   func() time.Time
}

// NewService создаёт сервис каталога
func NewService(store storage.Items, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateItem выставляет новый доступный предмет от имени владельца
func (s *Service) CreateItem(ctx context.Context, ownerID uuid.UUID, title string) (models.Item, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLength {
		return models.Item{}, ErrInvalidTitle
	}

	now := s.now()
	item := models.Item{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		Available: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertItem(ctx, item); err != nil {
		return models.Item{}, fmt.Errorf("ошибка создания предмета: %w", err)
	}

	s.log.Info("предмет создан", zap.String("item_id", item.ID.String()), zap.String("owner_id", ownerID.String()))
	return item, nil
}

// GetItem возвращает предмет по ID
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (models.Item, error) {
	return s.store.GetItem(ctx, id)
}

// ListByOwner возвращает предметы пользователя
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, onlyAvailable bool) ([]models.Item, error) {
	return s.store.ListItemsByOwner(ctx, ownerID, onlyAvailable)
}
