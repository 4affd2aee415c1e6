package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swap/internal/config"
	"github.com/rajivgeraev/flippy-swap/internal/logger"
)

// RootOptions содержит общие флаги всех команд
type RootOptions struct {
	ConfigFile string
	Verbose    bool
}

// NewRootCommand создаёт корневую команду. Без подкоманды запускается serve.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	serve := NewServeCommand(opts)

	cmd := &cobra.Command{
		Use:           "swap-service",
		Short:         "Flippy swap exchange service",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(serve)
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// load читает конфигурацию и создаёт логгер с учётом флагов
func (o *RootOptions) load() (*config.Config, *zap.Logger, error) {
	if o.ConfigFile != "" {
		if err := os.Setenv("CONFIG_FILE", o.ConfigFile); err != nil {
			return nil, nil, fmt.Errorf("CONFIG_FILE: %w", err)
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	level := cfg.LogLevel
	if o.Verbose {
		level = "debug"
	}
	log, err := logger.New(level, cfg.IsDevelopment())
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
