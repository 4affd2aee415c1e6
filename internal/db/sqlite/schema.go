package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// schema содержит полную схему базы
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id          TEXT PRIMARY KEY,
    username    TEXT,
    first_name  TEXT,
    last_name   TEXT,
    avatar_url  TEXT,
    email       TEXT,
    is_verified INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS telegram_users (
    telegram_id INTEGER PRIMARY KEY,
    user_id     TEXT NOT NULL REFERENCES users(id),
    username    TEXT,
    first_name  TEXT,
    last_name   TEXT,
    photo_url   TEXT,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id           TEXT PRIMARY KEY,
    owner_id     TEXT NOT NULL,
    title        TEXT NOT NULL,
    is_available INTEGER NOT NULL DEFAULT 1,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS swap_requests (
    id                TEXT PRIMARY KEY,
    requester_id      TEXT NOT NULL,
    owner_id          TEXT NOT NULL,
    requested_item_id TEXT NOT NULL REFERENCES items(id),
    offered_item_id   TEXT NOT NULL REFERENCES items(id),
    message           TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL CHECK (status IN ('PENDING', 'ACCEPTED', 'REJECTED', 'COMPLETED', 'CANCELLED')),
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL,
    CHECK (requester_id <> owner_id),
    CHECK (requested_item_id <> offered_item_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS swap_requests_pending_uniq
    ON swap_requests (requester_id, requested_item_id) WHERE status = 'PENDING';

CREATE INDEX IF NOT EXISTS swap_requests_requested_item_status_idx
    ON swap_requests (requested_item_id, status);

CREATE INDEX IF NOT EXISTS swap_requests_owner_created_idx
    ON swap_requests (owner_id, created_at);

CREATE INDEX IF NOT EXISTS swap_requests_requester_created_idx
    ON swap_requests (requester_id, created_at);
`

// EnsureSchema создаёт недостающие таблицы и индексы
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ошибка создания схемы: %w", err)
	}
	return nil
}
