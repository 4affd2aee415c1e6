package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rajivgeraev/flippy-swap/internal/models"
	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

const swapColumns = `id, requester_id, owner_id, requested_item_id, offered_item_id, message, status, created_at, updated_at`

var (
	_ storage.Store         = (*Store)(nil)
	_ storage.Tx            = (*tx)(nil)
	_ storage.UserDirectory = (*Store)(nil)
	_ storage.Items         = (*Store)(nil)
)

// Store хранит предметы, предложения обмена и пользователей в SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore создаёт хранилище поверх открытой базы
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB возвращает соединение с базой
func (s *Store) DB() *sql.DB { return s.db }

// Close закрывает базу
func (s *Store) Close() error { return s.db.Close() }

// WithTransaction выполняет fn в транзакции BEGIN IMMEDIATE. Пишущие транзакции
// упорядочивает блокировка базы, поэтому блокировки строк не нужны.
func (s *Store) WithTransaction(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return markTransient(fmt.Errorf("ошибка начала транзакции: %w", err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{tx: sqlTx, now: s.now}); err != nil {
		return markTransient(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return markTransient(fmt.Errorf("ошибка фиксации транзакции: %w", err))
	}
	return nil
}

// GetSwap возвращает предложение обмена по ID
func (s *Store) GetSwap(ctx context.Context, id uuid.UUID) (models.SwapRequest, error) {
	swap, err := scanSwap(s.db.QueryRowContext(ctx, `SELECT `+swapColumns+` FROM swap_requests WHERE id = ?`, id))
	return swap, markTransient(err)
}

// CompareAndSetStatus обновляет статус, только если текущий статус равен from
func (s *Store) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.SwapStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE swap_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), at.UTC(), id, string(from))
	if err != nil {
		return false, markTransient(fmt.Errorf("ошибка обновления статуса предложения: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка чтения числа обновлённых строк: %w", err)
	}
	return n == 1, nil
}

// ListSwaps возвращает предложения обмена по фильтру, новые первыми
func (s *Store) ListSwaps(ctx context.Context, filter storage.SwapFilter) ([]models.SwapRequest, error) {
	var (
		where []string
		args  []any
	)

	if filter.OwnerID != uuid.Nil {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.RequesterID != uuid.Nil {
		where = append(where, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.ParticipantID != uuid.Nil {
		where = append(where, "(owner_id = ? OR requester_id = ?)")
		args = append(args, filter.ParticipantID, filter.ParticipantID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	query := `SELECT ` + swapColumns + ` FROM swap_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, markTransient(fmt.Errorf("ошибка запроса предложений обмена: %w", err))
	}
	swaps, err := collectSwaps(rows)
	return swaps, markTransient(err)
}

// InsertItem добавляет предмет в каталог. Пустые отметки времени заполняются текущим временем.
func (s *Store) InsertItem(ctx context.Context, item models.Item) error {
	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, owner_id, title, is_available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.OwnerID, item.Title, item.Available, item.CreatedAt.UTC(), item.UpdatedAt.UTC())
	if err != nil {
		return markTransient(fmt.Errorf("ошибка сохранения предмета: %w", err))
	}
	return nil
}

// GetItem читает предмет вне транзакции
func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (models.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, is_available, created_at, updated_at
		FROM items WHERE id = ?`, id))
	return item, markTransient(err)
}

// ListItemsByOwner возвращает предметы владельца, новые первыми
func (s *Store) ListItemsByOwner(ctx context.Context, ownerID uuid.UUID, onlyAvailable bool) ([]models.Item, error) {
	query := `
		SELECT id, owner_id, title, is_available, created_at, updated_at
		FROM items WHERE owner_id = ?`
	if onlyAvailable {
		query += ` AND is_available = 1`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, markTransient(fmt.Errorf("ошибка запроса предметов: %w", err))
	}
	defer rows.Close()

	items := make([]models.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, markTransient(fmt.Errorf("ошибка чтения предметов: %w", err))
	}
	return items, nil
}

// InsertUser добавляет пользователя без привязки к Telegram
func (s *Store) InsertUser(ctx context.Context, user models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, is_verified) VALUES (?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.Verified)
	if err != nil {
		return markTransient(fmt.Errorf("ошибка при создании пользователя: %w", err))
	}
	return nil
}

// GetUser получает пользователя по ID
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	var (
		user            models.User
		username, email sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, is_verified FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &username, &email, &user.Verified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}
		return models.User{}, markTransient(fmt.Errorf("ошибка при получении пользователя: %w", err))
	}
	user.Username = username.String
	user.Email = email.String
	return user, nil
}

// EnsureTelegramUser находит пользователя по Telegram ID или создаёт нового
func (s *Store) EnsureTelegramUser(ctx context.Context, profile storage.TelegramProfile) (models.User, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, markTransient(fmt.Errorf("ошибка начала транзакции: %w", err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	now := s.now()
	var userID uuid.UUID
	err = sqlTx.QueryRowContext(ctx,
		`SELECT user_id FROM telegram_users WHERE telegram_id = ?`, profile.TelegramID,
	).Scan(&userID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		userID = uuid.New()
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO users (id, username, first_name, last_name, avatar_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, profile.Username, profile.FirstName, profile.LastName, profile.PhotoURL, now, now); err != nil {
			return models.User{}, markTransient(fmt.Errorf("ошибка при создании пользователя: %w", err))
		}
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO telegram_users (telegram_id, user_id, username, first_name, last_name, photo_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			profile.TelegramID, userID, profile.Username, profile.FirstName, profile.LastName, profile.PhotoURL, now, now); err != nil {
			return models.User{}, markTransient(fmt.Errorf("ошибка при создании Telegram пользователя: %w", err))
		}
	case err != nil:
		return models.User{}, markTransient(fmt.Errorf("ошибка при проверке существования пользователя Telegram: %w", err))
	default:
		if _, err := sqlTx.ExecContext(ctx, `
			UPDATE telegram_users
			SET username = ?, first_name = ?, last_name = ?, photo_url = ?, updated_at = ?
			WHERE telegram_id = ?`,
			profile.Username, profile.FirstName, profile.LastName, profile.PhotoURL, now, profile.TelegramID); err != nil {
			return models.User{}, markTransient(fmt.Errorf("ошибка при обновлении Telegram пользователя: %w", err))
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return models.User{}, markTransient(fmt.Errorf("ошибка фиксации транзакции: %w", err))
	}
	return s.GetUser(ctx, userID)
}

// tx выполняет операции движка внутри одной транзакции
type tx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *tx) GetItem(ctx context.Context, id uuid.UUID) (models.Item, error) {
	return scanItem(t.tx.QueryRowContext(ctx, `
		SELECT id, owner_id, title, is_available, created_at, updated_at
		FROM items WHERE id = ?`, id))
}

func (t *tx) SetOwnerAndAvailability(ctx context.Context, id, ownerID uuid.UUID, available bool) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE items SET owner_id = ?, is_available = ?, updated_at = ? WHERE id = ?`,
		ownerID, available, t.now(), id)
	if err != nil {
		return fmt.Errorf("ошибка обновления предмета %s: %w", id, err)
	}
	return requireOneRow(res, storage.ErrItemNotFound)
}

func (t *tx) GetSwap(ctx context.Context, id uuid.UUID) (models.SwapRequest, error) {
	return scanSwap(t.tx.QueryRowContext(ctx, `SELECT `+swapColumns+` FROM swap_requests WHERE id = ?`, id))
}

// LockSwap читает предложение без отдельной блокировки: транзакция уже держит блокировку записи
func (t *tx) LockSwap(ctx context.Context, id uuid.UUID) (models.SwapRequest, error) {
	return t.GetSwap(ctx, id)
}

func (t *tx) HasPendingRequest(ctx context.Context, requesterID, requestedItemID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM swap_requests
			WHERE requester_id = ? AND requested_item_id = ? AND status = ?
		)`, requesterID, requestedItemID, string(models.SwapPending)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки существующих предложений: %w", err)
	}
	return exists, nil
}

func (t *tx) InsertSwap(ctx context.Context, swap models.SwapRequest) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO swap_requests (`+swapColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		swap.ID, swap.RequesterID, swap.OwnerID, swap.RequestedItemID, swap.OfferedItemID,
		swap.Message, string(swap.Status), swap.CreatedAt.UTC(), swap.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicatePending
		}
		return fmt.Errorf("ошибка сохранения предложения обмена: %w", err)
	}
	return nil
}

func (t *tx) UpdateSwapStatus(ctx context.Context, id uuid.UUID, status models.SwapStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE swap_requests SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса предложения: %w", err)
	}
	return requireOneRow(res, storage.ErrSwapNotFound)
}

func (t *tx) CancelPendingForItem(ctx context.Context, itemID, exceptSwapID uuid.UUID, from, to models.SwapStatus, at time.Time) ([]models.SwapRequest, error) {
	rows, err := t.tx.QueryContext(ctx, `
		UPDATE swap_requests
		SET status = ?, updated_at = ?
		WHERE requested_item_id = ? AND id <> ? AND status = ?
		RETURNING `+swapColumns, string(to), at.UTC(), itemID, exceptSwapID, string(from))
	if err != nil {
		return nil, fmt.Errorf("ошибка отмены конкурирующих предложений: %w", err)
	}
	return collectSwaps(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var item models.Item
	err := row.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Available, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Item{}, storage.ErrItemNotFound
		}
		return models.Item{}, fmt.Errorf("ошибка получения предмета: %w", err)
	}
	item.CreatedAt, item.UpdatedAt = item.CreatedAt.UTC(), item.UpdatedAt.UTC()
	return item, nil
}

func scanSwap(row rowScanner) (models.SwapRequest, error) {
	swap, err := scanSwapRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SwapRequest{}, storage.ErrSwapNotFound
		}
		return models.SwapRequest{}, fmt.Errorf("ошибка получения предложения обмена: %w", err)
	}
	return swap, nil
}

func scanSwapRow(row rowScanner) (models.SwapRequest, error) {
	var (
		swap   models.SwapRequest
		status string
	)
	if err := row.Scan(
		&swap.ID, &swap.RequesterID, &swap.OwnerID,
		&swap.RequestedItemID, &swap.OfferedItemID,
		&swap.Message, &status, &swap.CreatedAt, &swap.UpdatedAt,
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

func collectSwaps(rows *sql.Rows) ([]models.SwapRequest, error) {
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

func requireOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка чтения числа обновлённых строк: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqlErr *msqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// isTransient сообщает о занятой или заблокированной базе и об истёкшем контексте
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sqlErr *msqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	// младший байт расширенного кода содержит основной код ошибки
	switch sqlErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// markTransient оборачивает повторяемые ошибки в storage.ErrUnavailable
func markTransient(err error) error {
	if err == nil || errors.Is(err, storage.ErrUnavailable) || !isTransient(err) {
		return err
	}
	return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
}
