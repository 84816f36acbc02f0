package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fedaidash/internal/blob"
	"fedaidash/internal/config"
	"fedaidash/internal/core"
)

// app holds what every subcommand needs after configuration is loaded.
type app struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "fedaidash",
		Short:         "Federal AI adoption dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file (default $"+config.EnvConfig+")")

	root.AddCommand(
		newServeCmd(a),
		newImportCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newHashPasswordCmd(),
	)
	return root
}

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

// openStore opens the configured persistent store.
func (a *app) openStore(ctx context.Context) (core.PersistentStore, func() error, error) {
	store, closeFn, err := core.OpenPersistentStore(ctx, a.cfg.Storage, nil)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("store opened", zap.String("driver", string(a.cfg.Storage.Driver)))
	return store, closeFn, nil
}

func (a *app) openBlobs(ctx context.Context) (blob.Store, error) {
	blobs, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return blobs, nil
}
