package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swap/internal/app"
)

const shutdownTimeout = 15 * time.Second

// NewServeCommand запускает HTTP и WebSocket серверы до SIGINT/SIGTERM
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "serve",
		Short:         "Run the HTTP API and websocket servers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), rootOpts)
		},
	}
}

func serve(parent context.Context, opts *RootOptions) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, *cfg, log)
	if err != nil {
		log.Error("ошибка при запуске сервиса", zap.Error(err))
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run()
	}()

	select {
	case <-ctx.Done():
		log.Info("получен сигнал остановки")
	case err = <-errCh:
		if err != nil {
			log.Error("сервер остановился с ошибкой", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := a.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("ошибка при остановке сервиса", zap.Error(shutdownErr))
		if err == nil {
			err = shutdownErr
		}
	}

	log.Info("сервис остановлен")
	return err
}
