package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/flippy-swap/internal/models"
	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

const swapColumns = `id, requester_id, owner_id, requested_item_id, offered_item_id, message, status, created_at, updated_at`

var (
	_ storage.Store = (*SwapStore)(nil)
	_ storage.Tx    = (*swapTx)(nil)
	_ storage.Items = (*SwapStore)(nil)
)

const itemColumns = `id, owner_id, title, is_available, created_at, updated_at`

// SwapStore хранит предметы и предложения обмена в PostgreSQL
type SwapStore struct {
	pool *pgxpool.Pool
}

// NewSwapStore создаёт новый экземпляр SwapStore
func NewSwapStore(pool *pgxpool.Pool) *SwapStore {
	return &SwapStore{pool: pool}
}

// WithTransaction выполняет fn в транзакции READ COMMITTED.
// Изоляцию обеспечивают блокировки строк: GetItem и LockSwap берут FOR UPDATE.
func (s *SwapStore) WithTransaction(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	return markTransient(WithTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &swapTx{tx: tx})
	}))
}

// GetSwap возвращает предложение обмена по ID
func (s *SwapStore) GetSwap(ctx context.Context, id uuid.UUID) (models.SwapRequest, error) {
	swap, err := scanSwap(s.pool.QueryRow(ctx, `SELECT `+swapColumns+` FROM swap_requests WHERE id = $1`, id))
	return swap, markTransient(err)
}

// CompareAndSetStatus обновляет статус одним оператором, только если текущий статус равен from
func (s *SwapStore) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.SwapStatus, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE swap_requests
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
`, id, string(from), string(to), at)
	if err != nil {
		return false, markTransient(fmt.Errorf("ошибка обновления статуса предложения: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

// ListSwaps возвращает предложения обмена по фильтру, новые первыми
func (s *SwapStore) ListSwaps(ctx context.Context, filter storage.SwapFilter) ([]models.SwapRequest, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.OwnerID != uuid.Nil {
		where = append(where, "owner_id = "+arg(filter.OwnerID))
	}
	if filter.RequesterID != uuid.Nil {
		where = append(where, "requester_id = "+arg(filter.RequesterID))
	}
	if filter.ParticipantID != uuid.Nil {
		p := arg(filter.ParticipantID)
		where = append(where, "(owner_id = "+p+" OR requester_id = "+p+")")
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	query := `SELECT ` + swapColumns + ` FROM swap_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, markTransient(fmt.Errorf("ошибка запроса предложений обмена: %w", err))
	}
	swaps, err := collectSwaps(rows)
	return swaps, markTransient(err)
}

// InsertItem добавляет предмет в каталог
func (s *SwapStore) InsertItem(ctx context.Context, item models.Item) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO items (id, owner_id, title, is_available, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, item.ID, item.OwnerID, item.Title, item.Available, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return markTransient(fmt.Errorf("ошибка сохранения предмета: %w", err))
	}
	return nil
}

// GetItem читает предмет без блокировки
func (s *SwapStore) GetItem(ctx context.Context, id uuid.UUID) (models.Item, error) {
	item, err := scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Item{}, storage.ErrItemNotFound
		}
		return models.Item{}, markTransient(fmt.Errorf("ошибка получения предмета %s: %w", id, err))
	}
	return item, nil
}

// ListItemsByOwner возвращает предметы владельца, новые первыми
func (s *SwapStore) ListItemsByOwner(ctx context.Context, ownerID uuid.UUID, onlyAvailable bool) ([]models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE owner_id = $1`
	if onlyAvailable {
		query += ` AND is_available`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, markTransient(fmt.Errorf("ошибка запроса предметов: %w", err))
	}
	defer rows.Close()

	items := make([]models.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, markTransient(fmt.Errorf("ошибка чтения предметов: %w", err))
	}
	return items, nil
}

// swapTx выполняет операции движка внутри одной транзакции
type swapTx struct {
	tx pgx.Tx
}

func (t *swapTx) GetItem(ctx context.Context, id uuid.UUID) (models.Item, error) {
	item, err := scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Item{}, storage.ErrItemNotFound
		}
		return models.Item{}, fmt.Errorf("ошибка блокировки предмета %s: %w", id, err)
	}
	return item, nil
}

func (t *swapTx) SetOwnerAndAvailability(ctx context.Context, id, ownerID uuid.UUID, available bool) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE items
SET owner_id = $2, is_available = $3, updated_at = NOW()
WHERE id = $1
`, id, ownerID, available)
	if err != nil {
		return fmt.Errorf("ошибка обновления предмета %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrItemNotFound
	}
	return nil
}

func (t *swapTx) GetSwap(ctx context.Context, id uuid.UUID) (models.SwapRequest, error) {
	return scanSwap(t.tx.QueryRow(ctx, `SELECT `+swapColumns+` FROM swap_requests WHERE id = $1`, id))
}

func (t *swapTx) LockSwap(ctx context.Context, id uuid.UUID) (models.SwapRequest, error) {
	return scanSwap(t.tx.QueryRow(ctx, `SELECT `+swapColumns+` FROM swap_requests WHERE id = $1 FOR UPDATE`, id))
}

func (t *swapTx) HasPendingRequest(ctx context.Context, requesterID, requestedItemID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM swap_requests
	WHERE requester_id = $1 AND requested_item_id = $2 AND status = $3
)
`, requesterID, requestedItemID, string(models.SwapPending)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки существующих предложений: %w", err)
	}
	return exists, nil
}

func (t *swapTx) InsertSwap(ctx context.Context, swap models.SwapRequest) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO swap_requests (`+swapColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, swap.ID, swap.RequesterID, swap.OwnerID, swap.RequestedItemID, swap.OfferedItemID,
		swap.Message, string(swap.Status), swap.CreatedAt, swap.UpdatedAt)
	if err != nil {
		if isPendingDuplicate(err) {
			return storage.ErrDuplicatePending
		}
		return fmt.Errorf("ошибка сохранения предложения обмена: %w", err)
	}
	return nil
}

func (t *swapTx) UpdateSwapStatus(ctx context.Context, id uuid.UUID, status models.SwapStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE swap_requests
SET status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса предложения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrSwapNotFound
	}
	return nil
}

func (t *swapTx) CancelPendingForItem(ctx context.Context, itemID, exceptSwapID uuid.UUID, from, to models.SwapStatus, at time.Time) ([]models.SwapRequest, error) {
	rows, err := t.tx.Query(ctx, `
UPDATE swap_requests
SET status = $4, updated_at = $5
WHERE requested_item_id = $1 AND id <> $2 AND status = $3
RETURNING `+swapColumns, itemID, exceptSwapID, string(from), string(to), at)
	if err != nil {
		return nil, fmt.Errorf("ошибка отмены конкурирующих предложений: %w", err)
	}
	return collectSwaps(rows)
}

func scanItem(row pgx.Row) (models.Item, error) {
	var item models.Item
	if err := row.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Available, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return models.Item{}, err
	}
	item.CreatedAt, item.UpdatedAt = item.CreatedAt.UTC(), item.UpdatedAt.UTC()
	return item, nil
}

func scanSwap(row pgx.Row) (models.SwapRequest, error) {
	swap, err := scanSwapRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SwapRequest{}, storage.ErrSwapNotFound
		}
		return models.SwapRequest{}, fmt.Errorf("ошибка получения предложения обмена: %w", err)
	}
	return swap, nil
}

func scanSwapRow(row pgx.Row) (models.SwapRequest, error) {
	var (
		swap   models.SwapRequest
		status string
	)
	if err := row.Scan(
		&swap.ID,
		&swap.RequesterID,
		&swap.OwnerID,
		&swap.RequestedItemID,
		&swap.OfferedItemID,
		&swap.Message,
		&status,
		&swap.CreatedAt,
		&swap.UpdatedAt,
	); err != nil {
		return models.SwapRequest{}, err
	}

	st, ok := models.ParseSwapStatus(status)
	if !ok {
		return models.SwapRequest{}, fmt.Errorf("неизвестный статус предложения %q", status)
	}
	swap.Status = st
	swap.CreatedAt, swap.UpdatedAt = swap.CreatedAt.UTC(), swap.UpdatedAt.UTC()
	return swap, nil
}

func collectSwaps(rows pgx.Rows) ([]models.SwapRequest, error) {
	defer rows.Close()

	swaps := make([]models.SwapRequest, 0)
	for rows.Next() {
		swap, err := scanSwapRow(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		swaps = append(swaps, swap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения предложений обмена: %w", err)
	}
	return swaps, nil
}
