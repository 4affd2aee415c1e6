// Package sqlite реализует встроенное хранилище обменов на SQLite для локального запуска и тестов.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// memoryPath открывает базу в памяти, она живёт, пока открыто единственное соединение
const memoryPath = ":memory:"

// Open открывает базу SQLite. Каждая транзакция начинается с BEGIN IMMEDIATE,
// поэтому пишущие транзакции выполняются строго по одной.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_txlock=immediate&_time_format=sqlite" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)"
	if path != memoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}

	if path == memoryPath {
		// у каждого соединения своя база в памяти
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка при проверке соединения: %w", err)
	}

	return db, nil
}
