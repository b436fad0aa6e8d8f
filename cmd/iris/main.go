package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ramsey-B/iris/config"
	"github.com/Ramsey-B/iris/pkg/database"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config and builds the logger shared by every command.
func bootstrap() (*config.Config, ectologger.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, zapadapter.NewZapEctoLogger(zapLogger, nil), func() { _ = zapLogger.Sync() }, nil
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "iris",
		Short:         "iris - identity reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	})

	return root
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level
	return zapCfg.Build(zap.Fields(zap.String("service", cfg.AppName)))
}

func runMigrate(ctx context.Context) error {
	cfg, logger, sync, err := bootstrap()
	if err != nil {
		return err
	}
	defer sync()

	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=postgres")
	}

	db, err := database.Connect(ctx, connectionConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return database.NewMigrationService(logger, migrationConfig(cfg)).MigratePostgres(db, cfg.DatabaseName)
}

func runServe() error {
	cfg, logger, sync, err := bootstrap()
	if err != nil {
		return err
	}
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(cfg, logger)
	if err := app.startup.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := app.startup.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("failed to stop dependencies cleanly")
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on :%d", cfg.Port)
		serveErr <- app.server.ListenAndServe()
	}()
	app.health.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	app.health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HttpServerWriteTimeoutSeconds)*time.Second)
	defer cancel()
	return app.server.Shutdown(shutdownCtx)
}
