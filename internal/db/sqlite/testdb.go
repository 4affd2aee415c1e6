package sqlite

import (
	"context"
	"testing"
)

// NewTestStore создаёт чистое хранилище в памяти с применённой схемой
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	db, err := Open(memoryPath)
	if err != nil {
		t.Fatalf("ошибка открытия тестовой базы: %v", err)
	}

	if err := EnsureSchema(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("ошибка создания схемы тестовой базы: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}
