package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/flippy-swap/internal/models"
	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

var _ storage.UserDirectory = (*UserDirectory)(nil)

// UserDirectory читает пользователей из PostgreSQL
type UserDirectory struct {
	pool *pgxpool.Pool
}

// NewUserDirectory создаёт новый экземпляр UserDirectory
func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

// GetUser получает пользователя по ID
func (d *UserDirectory) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	user, err := getUser(ctx, d.pool, id)
	return user, markTransient(err)
}

// EnsureTelegramUser находит пользователя по Telegram ID или создаёт нового
func (d *UserDirectory) EnsureTelegramUser(ctx context.Context, profile storage.TelegramProfile) (models.User, error) {
	var user models.User

	err := WithTx(ctx, d.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		var userID uuid.UUID
		err := tx.QueryRow(ctx, `
SELECT user_id FROM telegram_users WHERE telegram_id = $1 FOR UPDATE
`, profile.TelegramID).Scan(&userID)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// первый вход: создаём пользователя и привязку к Telegram
			userID = uuid.New()
			if _, err := tx.Exec(ctx, `
INSERT INTO users (id, username, first_name, last_name, avatar_url)
VALUES ($1, $2, $3, $4, $5)
`, userID, profile.Username, profile.FirstName, profile.LastName, profile.PhotoURL); err != nil {
				return fmt.Errorf("ошибка при создании пользователя: %w", err)
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO telegram_users (telegram_id, user_id, username, first_name, last_name, photo_url)
VALUES ($1, $2, $3, $4, $5, $6)
`, profile.TelegramID, userID, profile.Username, profile.FirstName, profile.LastName, profile.PhotoURL); err != nil {
				return fmt.Errorf("ошибка при создании Telegram пользователя: %w", err)
			}
		case err != nil:
			return fmt.Errorf("ошибка при проверке существования пользователя Telegram: %w", err)
		default:
			if _, err := tx.Exec(ctx, `
UPDATE telegram_users
SET username = $2, first_name = $3, last_name = $4, photo_url = $5, updated_at = NOW()
WHERE telegram_id = $1
`, profile.TelegramID, profile.Username, profile.FirstName, profile.LastName, profile.PhotoURL); err != nil {
				return fmt.Errorf("ошибка при обновлении Telegram пользователя: %w", err)
			}
		}

		user, err = getUser(ctx, tx, userID)
		return err
	})
	if err != nil {
		return models.User{}, markTransient(err)
	}
	return user, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getUser(ctx context.Context, q querier, id uuid.UUID) (models.User, error) {
	var (
		user            models.User
		username, email pgtype.Text
	)
	err := q.QueryRow(ctx, `
SELECT id, username, email, is_verified FROM users WHERE id = $1
`, id).Scan(&user.ID, &username, &email, &user.Verified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}

	// Преобразуем nullable поля
	if username.Valid {
		user.Username = username.String
	}
	if email.Valid {
		user.Email = email.String
	}
	return user, nil
}
