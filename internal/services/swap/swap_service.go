// Package swap реализует движок обмена: переводит предложения обмена по статусам
// и атомарно меняет доступность и владельцев предметов.
package swap

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swap/internal/models"
	"github.com/rajivgeraev/flippy-swap/internal/notify"
	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

const (
	defaultTxTimeout        = 5 * time.Second
	defaultMaxMessageLength = 1000
)

// Notifier принимает уведомления после фиксации операции. Emit не должен блокировать.
type Notifier interface {
	Emit(ctx context.Context, n notify.Notification)
}

// Config содержит параметры движка
type Config struct {
	// TxTimeout ограничивает одну операцию с хранилищем
	TxTimeout time.Duration
	// MaxMessageLength задаёт максимальную длину сообщения в символах
	MaxMessageLength int
}

// Dependencies содержит зависимости движка
type Dependencies struct {
	Store    storage.Store
	Notifier Notifier
	Logger   *zap.Logger
	Config   Config
}

// Service представляет движок обмена
type Service struct {
	store    storage.Store
	notifier Notifier
	log      *zap.Logger
	cfg      Config

	now   func() time.Time
	newID func() uuid.UUID
}

type nopNotifier struct{}

func (nopNotifier) Emit(context.Context, notify.Notification) {}

// NewService создает движок обмена
func NewService(deps Dependencies) *Service {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config.TxTimeout <= 0 {
		deps.Config.TxTimeout = defaultTxTimeout
	}
	if deps.Config.MaxMessageLength <= 0 {
		deps.Config.MaxMessageLength = defaultMaxMessageLength
	}

	return &Service{
		store:    deps.Store,
		notifier: deps.Notifier,
		log:      deps.Logger,
		cfg:      deps.Config,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
	}
}

// CreateSwap создает предложение обмена offeredItemID на requestedItemID.
// Доступность предметов при создании не меняется.
func (s *Service) CreateSwap(ctx context.Context, requesterID, requestedItemID, offeredItemID uuid.UUID, message string) (models.SwapRequest, error) {
	if requesterID == uuid.Nil {
		return models.SwapRequest{}, invalidArgument("requester is required")
	}
	if requestedItemID == uuid.Nil || offeredItemID == uuid.Nil {
		return models.SwapRequest{}, invalidArgument("both items are required")
	}
	if requestedItemID == offeredItemID {
		return models.SwapRequest{}, invalidArgument("cannot swap an item for itself")
	}
	if utf8.RuneCountInString(message) > s.cfg.MaxMessageLength {
		return models.SwapRequest{}, invalidArgument("message is too long")
	}

	swap := models.SwapRequest{
		ID:              s.newID(),
		RequesterID:     requesterID,
		RequestedItemID: requestedItemID,
		OfferedItemID:   offeredItemID,
		Message:         message,
		Status:          models.SwapPending,
	}

	err := s.inTx(ctx, "create", func(ctx context.Context, tx storage.Tx) error {
		requested, offered, err := lockItems(ctx, tx, swap)
		if err != nil {
			return err
		}

		if !requested.Available || !offered.Available {
			return invalidState("item not available", "")
		}
		if requested.OwnerID == requesterID {
			return invalidArgument("cannot request own item")
		}
		if offered.OwnerID != requesterID {
			return forbidden("can only offer an item you own")
		}

		pending, err := tx.HasPendingRequest(ctx, requesterID, requestedItemID)
		if err != nil {
			return err
		}
		if pending {
			return conflict("duplicate pending request")
		}

		now := s.now()
		swap.OwnerID = requested.OwnerID
		swap.CreatedAt = now
		swap.UpdatedAt = now
		return tx.InsertSwap(ctx, swap)
	})
	if err != nil {
		return models.SwapRequest{}, err
	}

	s.log.Info("swap created",
		zap.String("swap_id", swap.ID.String()),
		zap.String("requester_id", swap.RequesterID.String()),
		zap.String("owner_id", swap.OwnerID.String()))

	s.emit(ctx, newSwapNotification(swap.OwnerID, swap, notify.TypeSwapRequest,
		"Новое предложение обмена",
		"Вам предложили обмен на ваш предмет"))

	return swap, nil
}

// AcceptSwap принимает предложение: резервирует оба предмета и отменяет
// остальные ожидающие предложения на запрошенный предмет
func (s *Service) AcceptSwap(ctx context.Context, swapID, callerID uuid.UUID) (models.SwapRequest, error) {
	var (
		accepted  models.SwapRequest
		cancelled []models.SwapRequest
	)

	err := s.inTx(ctx, "accept", func(ctx context.Context, tx storage.Tx) error {
		swap, next, err := s.prepareLocked(ctx, tx, swapID, callerID, models.ActionAccept)
		if err != nil {
			return err
		}
		requested, offered := swap.items[0], swap.items[1]

		if !requested.Available || !offered.Available {
			return invalidState("item no longer available", swap.Status)
		}

		if err := tx.SetOwnerAndAvailability(ctx, requested.ID, requested.OwnerID, false); err != nil {
			return err
		}
		if err := tx.SetOwnerAndAvailability(ctx, offered.ID, offered.OwnerID, false); err != nil {
			return err
		}

		now := s.now()
		if err := tx.UpdateSwapStatus(ctx, swap.ID, next, now); err != nil {
			return err
		}

		// конкурирующие предложения переходят по действию supersede из таблицы переходов
		superseded, ok := models.SwapPending.Next(models.ActionSupersede)
		if !ok {
			return fmt.Errorf("переход %s не разрешён для %s", models.ActionSupersede, models.SwapPending)
		}
		cancelled, err = tx.CancelPendingForItem(ctx, swap.RequestedItemID, swap.ID, models.SwapPending, superseded, now)
		if err != nil {
			return err
		}

		accepted = swap.SwapRequest
		accepted.Status = next
		accepted.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.SwapRequest{}, err
	}

	s.log.Info("swap accepted",
		zap.String("swap_id", accepted.ID.String()),
		zap.Int("cancelled", len(cancelled)))

	s.emit(ctx, newSwapNotification(accepted.RequesterID, accepted, notify.TypeSwapAccepted,
		"Предложение обмена принято",
		"Владелец предмета принял ваше предложение обмена"))
	for _, c := range cancelled {
		s.emit(ctx, newSwapNotification(c.RequesterID, c, notify.TypeSwapCancelled,
			"Предложение обмена отменено",
			"Предмет уже обменивается по другому предложению"))
	}

	return accepted, nil
}

// CompleteSwap завершает принятый обмен: предметы меняются владельцами
// и остаются недоступными
func (s *Service) CompleteSwap(ctx context.Context, swapID, callerID uuid.UUID) (models.SwapRequest, error) {
	var completed models.SwapRequest

	err := s.inTx(ctx, "complete", func(ctx context.Context, tx storage.Tx) error {
		swap, next, err := s.prepareLocked(ctx, tx, swapID, callerID, models.ActionComplete)
		if err != nil {
			return err
		}
		requested, offered := swap.items[0], swap.items[1]

		if err := tx.SetOwnerAndAvailability(ctx, requested.ID, swap.RequesterID, false); err != nil {
			return err
		}
		if err := tx.SetOwnerAndAvailability(ctx, offered.ID, swap.OwnerID, false); err != nil {
			return err
		}

		now := s.now()
		if err := tx.UpdateSwapStatus(ctx, swap.ID, next, now); err != nil {
			return err
		}

		completed = swap.SwapRequest
		completed.Status = next
		completed.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.SwapRequest{}, err
	}

	s.log.Info("swap completed", zap.String("swap_id", completed.ID.String()))

	for _, userID := range []uuid.UUID{completed.RequesterID, completed.OwnerID} {
		s.emit(ctx, newSwapNotification(userID, completed, notify.TypeSwapCompleted,
			"Обмен завершён",
			"Предметы переданы новым владельцам"))
	}

	return completed, nil
}

// RejectSwap отклоняет ожидающее предложение. Предметы не меняются.
func (s *Service) RejectSwap(ctx context.Context, swapID, callerID uuid.UUID) (models.SwapRequest, error) {
	rejected, err := s.compareAndSet(ctx, swapID, callerID, models.ActionReject)
	if err != nil {
		return models.SwapRequest{}, err
	}

	s.emit(ctx, newSwapNotification(rejected.RequesterID, rejected, notify.TypeSwapRejected,
		"Предложение обмена отклонено",
		"Владелец предмета отклонил ваше предложение обмена"))

	return rejected, nil
}

// CancelSwap отзывает ожидающее предложение по инициативе автора
func (s *Service) CancelSwap(ctx context.Context, swapID, callerID uuid.UUID) (models.SwapRequest, error) {
	withdrawn, err := s.compareAndSet(ctx, swapID, callerID, models.ActionWithdraw)
	if err != nil {
		return models.SwapRequest{}, err
	}

	s.emit(ctx, newSwapNotification(withdrawn.OwnerID, withdrawn, notify.TypeSwapCancelled,
		"Предложение обмена отозвано",
		"Автор отозвал предложение обмена"))

	return withdrawn, nil
}

// GetSwap возвращает предложение одному из его участников
func (s *Service) GetSwap(ctx context.Context, swapID, callerID uuid.UUID) (models.SwapRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	swap, err := s.store.GetSwap(ctx, swapID)
	if err != nil {
		return models.SwapRequest{}, s.classify("get", err)
	}
	if _, ok := swap.RoleOf(callerID); !ok {
		return models.SwapRequest{}, forbidden("not a participant of this swap")
	}
	return swap, nil
}

// ListIncoming возвращает предложения на предметы пользователя, новые первыми
func (s *Service) ListIncoming(ctx context.Context, ownerID uuid.UUID, statuses ...models.SwapStatus) ([]models.SwapRequest, error) {
	return s.list(ctx, storage.SwapFilter{OwnerID: ownerID, Statuses: statuses})
}

// ListOutgoing возвращает предложения пользователя, новые первыми
func (s *Service) ListOutgoing(ctx context.Context, requesterID uuid.UUID, statuses ...models.SwapStatus) ([]models.SwapRequest, error) {
	return s.list(ctx, storage.SwapFilter{RequesterID: requesterID, Statuses: statuses})
}

// ListHistory возвращает обмены пользователя в любой роли, начиная с ACCEPTED
func (s *Service) ListHistory(ctx context.Context, userID uuid.UUID) ([]models.SwapRequest, error) {
	return s.list(ctx, storage.SwapFilter{ParticipantID: userID, Statuses: models.HistoryStatuses})
}

func (s *Service) list(ctx context.Context, filter storage.SwapFilter) ([]models.SwapRequest, error) {
	if filter.OwnerID == uuid.Nil && filter.RequesterID == uuid.Nil && filter.ParticipantID == uuid.Nil {
		return nil, invalidArgument("user is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	swaps, err := s.store.ListSwaps(ctx, filter)
	if err != nil {
		return nil, s.classify("list", err)
	}
	return swaps, nil
}

// lockedSwap хранит предложение с заблокированными предметами: items[0] запрошенный, items[1] предложенный
type lockedSwap struct {
	models.SwapRequest
	items [2]models.Item
}

// prepareLocked проверяет роль и статус, блокирует оба предмета, затем само предложение,
// и повторяет проверку статуса под блокировкой. Предметы всегда блокируются раньше предложений.
func (s *Service) prepareLocked(ctx context.Context, tx storage.Tx, swapID, callerID uuid.UUID, action models.SwapAction) (lockedSwap, models.SwapStatus, error) {
	swap, err := tx.GetSwap(ctx, swapID)
	if err != nil {
		return lockedSwap{}, "", err
	}
	if err := authorize(swap, callerID, action); err != nil {
		return lockedSwap{}, "", err
	}
	if _, ok := swap.Status.Next(action); !ok {
		return lockedSwap{}, "", invalidStatus(swap.Status)
	}

	requested, offered, err := lockItems(ctx, tx, swap)
	if err != nil {
		return lockedSwap{}, "", err
	}

	swap, err = tx.LockSwap(ctx, swapID)
	if err != nil {
		return lockedSwap{}, "", err
	}
	next, ok := swap.Status.Next(action)
	if !ok {
		return lockedSwap{}, "", invalidStatus(swap.Status)
	}

	return lockedSwap{SwapRequest: swap, items: [2]models.Item{requested, offered}}, next, nil
}

// lockItems блокирует оба предмета в порядке возрастания ID
func lockItems(ctx context.Context, tx storage.Tx, swap models.SwapRequest) (requested, offered models.Item, err error) {
	for _, id := range swap.ItemIDs() {
		item, err := tx.GetItem(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrItemNotFound) {
				return models.Item{}, models.Item{}, notFound("item " + id.String() + " not found")
			}
			return models.Item{}, models.Item{}, err
		}
		if id == swap.RequestedItemID {
			requested = item
		} else {
			offered = item
		}
	}
	return requested, offered, nil
}

// compareAndSet выполняет переход одним условным обновлением статуса.
// Проигравший гонку получает InvalidState с итоговым статусом.
func (s *Service) compareAndSet(ctx context.Context, swapID, callerID uuid.UUID, action models.SwapAction) (models.SwapRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	swap, err := s.store.GetSwap(ctx, swapID)
	if err != nil {
		return models.SwapRequest{}, s.classify(string(action), err)
	}
	if err := authorize(swap, callerID, action); err != nil {
		return models.SwapRequest{}, err
	}
	next, ok := swap.Status.Next(action)
	if !ok {
		return models.SwapRequest{}, invalidStatus(swap.Status)
	}

	now := s.now()
	applied, err := s.store.CompareAndSetStatus(ctx, swapID, swap.Status, next, now)
	if err != nil {
		return models.SwapRequest{}, s.classify(string(action), err)
	}
	if !applied {
		final, err := s.store.GetSwap(ctx, swapID)
		if err != nil {
			return models.SwapRequest{}, s.classify(string(action), err)
		}
		return models.SwapRequest{}, invalidStatus(final.Status)
	}

	s.log.Info("swap status changed",
		zap.String("swap_id", swap.ID.String()),
		zap.String("action", string(action)),
		zap.String("status", string(next)))

	swap.Status = next
	swap.UpdatedAt = now
	return swap, nil
}

// authorize проверяет, что действие выполняет участник в нужной роли
func authorize(swap models.SwapRequest, callerID uuid.UUID, action models.SwapAction) error {
	role, ok := swap.RoleOf(callerID)
	if !ok || role != models.ActionRole(action) {
		switch models.ActionRole(action) {
		case models.RoleRequester:
			return forbidden("only the requester can " + string(action) + " this swap")
		default:
			return forbidden("only the item owner can " + string(action) + " this swap")
		}
	}
	return nil
}

// inTx выполняет fn в транзакции с ограничением по времени
func (s *Service) inTx(ctx context.Context, op string, fn func(context.Context, storage.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	return s.classify(op, s.store.WithTransaction(ctx, fn))
}

// classify переводит ошибки хранилища в ошибки движка. Ошибки движка проходят без изменений.
func (s *Service) classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var swapErr *Error
	if errors.As(err, &swapErr) {
		return swapErr
	}

	switch {
	case errors.Is(err, storage.ErrSwapNotFound):
		return notFound("swap not found")
	case errors.Is(err, storage.ErrItemNotFound):
		return notFound("item not found")
	case errors.Is(err, storage.ErrDuplicatePending):
		return conflict("duplicate pending request")
	case errors.Is(err, storage.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		s.log.Warn("swap storage unavailable", zap.String("op", op), zap.Error(err))
		return unavailable(err)
	}

	// сбой, который повтор не исправит: нарушение ограничения, расхождение схемы, ошибка чтения строки
	s.log.Error("swap storage failure", zap.String("op", op), zap.Error(err))
	return internal(err)
}

// emit передает уведомление после фиксации. Сбой доставки не влияет на операцию.
func (s *Service) emit(ctx context.Context, n notify.Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notifier panicked",
				zap.String("user_id", n.UserID.String()),
				zap.String("type", string(n.Type)),
				zap.Any("panic", r))
		}
	}()
	s.notifier.Emit(ctx, n)
}

func newSwapNotification(userID uuid.UUID, swap models.SwapRequest, typ notify.Type, title, message string) notify.Notification {
	return notify.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
		Link:    "/swaps/" + swap.ID.String(),
		Metadata: map[string]string{
			"swap_id":           swap.ID.String(),
			"requested_item_id": swap.RequestedItemID.String(),
			"offered_item_id":   swap.OfferedItemID.String(),
			"status":            string(swap.Status),
		},
	}
}
