package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

// pendingUniqueIndex называет индекс, запрещающий два ожидающих запроса одного пользователя на один предмет
const pendingUniqueIndex = "swap_requests_pending_uniq"

// IsTransient сообщает, что операцию можно безопасно повторить
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.LockNotAvailable,
			pgerrcode.QueryCanceled,
			pgerrcode.TooManyConnections,
			pgerrcode.AdminShutdown,
			pgerrcode.CannotConnectNow:
			return true
		}
		return pgerrcode.IsConnectionException(pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// markTransient оборачивает повторяемые ошибки драйвера в storage.ErrUnavailable.
// Остальные ошибки возвращаются без изменений.
func markTransient(err error) error {
	if err == nil || errors.Is(err, storage.ErrUnavailable) || !IsTransient(err) {
		return err
	}
	return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
}

// isPendingDuplicate сообщает о нарушении уникальности ожидающего запроса
func isPendingDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == pendingUniqueIndex
}
