package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema содержит схему таблиц, с которыми работает сервис обменов
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id          UUID PRIMARY KEY,
    username    TEXT,
    first_name  TEXT,
    last_name   TEXT,
    avatar_url  TEXT,
    email       TEXT,
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS telegram_users (
    telegram_id BIGINT PRIMARY KEY,
    user_id     UUID NOT NULL REFERENCES users(id),
    username    TEXT,
    first_name  TEXT,
    last_name   TEXT,
    photo_url   TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS items (
    id           UUID PRIMARY KEY,
    owner_id     UUID NOT NULL,
    title        TEXT NOT NULL,
    is_available BOOLEAN NOT NULL DEFAULT TRUE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS swap_requests (
    id                UUID PRIMARY KEY,
    requester_id      UUID NOT NULL,
    owner_id          UUID NOT NULL,
    requested_item_id UUID NOT NULL REFERENCES items(id),
    offered_item_id   UUID NOT NULL REFERENCES items(id),
    message           TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL CHECK (status IN ('PENDING', 'ACCEPTED', 'REJECTED', 'COMPLETED', 'CANCELLED')),
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (requester_id <> owner_id),
    CHECK (requested_item_id <> offered_item_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS swap_requests_pending_uniq
    ON swap_requests (requester_id, requested_item_id) WHERE status = 'PENDING';

CREATE INDEX IF NOT EXISTS swap_requests_requested_item_status_idx
    ON swap_requests (requested_item_id, status);

CREATE INDEX IF NOT EXISTS swap_requests_owner_created_idx
    ON swap_requests (owner_id, created_at DESC);

CREATE INDEX IF NOT EXISTS swap_requests_requester_created_idx
    ON swap_requests (requester_id, created_at DESC);
`

// Migrate применяет схему. Повторный запуск безопасен.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ошибка применения схемы: %w", err)
	}
	return nil
}
