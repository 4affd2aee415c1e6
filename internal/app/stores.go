package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swap/internal/config"
	"github.com/rajivgeraev/flippy-swap/internal/db"
	"github.com/rajivgeraev/flippy-swap/internal/db/sqlite"
	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

// stores объединяет хранилище движка, каталог предметов и справочник пользователей выбранного драйвера
type stores struct {
	swaps storage.Store
	items storage.Items
	users storage.UserDirectory
	close func() error
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		swaps := db.NewSwapStore(pool)
		return &stores{
			swaps: swaps,
			items: swaps,
			users: db.NewUserDirectory(pool),
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	case config.DriverSQLite:
		conn, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		// схема SQLite применяется при каждом запуске, в том числе для :memory:
		if err := sqlite.EnsureSchema(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
		log.Info("используется SQLite", zap.String("path", cfg.Storage.SQLitePath))
		store := sqlite.NewStore(conn)
		return &stores{swaps: store, items: store, users: store, close: store.Close}, nil

	default:
		return nil, fmt.Errorf("неизвестный драйвер хранилища %q", cfg.Storage.Driver)
	}
}

// Migrate применяет схему для настроенного драйвера
func Migrate(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}

	case config.DriverSQLite:
		conn, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := sqlite.EnsureSchema(ctx, conn); err != nil {
			return err
		}

	default:
		return fmt.Errorf("неизвестный драйвер хранилища %q", cfg.Storage.Driver)
	}

	log.Info("схема применена", zap.String("driver", cfg.Storage.Driver))
	return nil
}
