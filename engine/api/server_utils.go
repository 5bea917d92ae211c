package api

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/fmonfasani/mini-lab-ott/engine/config"
	"github.com/fmonfasani/mini-lab-ott/engine/storage"
)

// RunEngine boots the lab engine: loads configuration, connects to
// PostgreSQL, runs migrations and serves the API until interrupted.
func RunEngine(configPath, addrOverride string, logger *logrus.Logger) error {
	cfg, err := config.Load(configPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if addrOverride != "" {
		cfg.ListenAddr = addrOverride
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	store := storage.NewPostgres(&cfg.PostgreSQL)
	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer store.Close()

	if err := storage.RunMigrations(store.DB()); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	apiServer := NewServer(cfg.ListenAddr, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	logger.WithField("addr", cfg.ListenAddr).Info("Lab engine started successfully")
	logger.Info("Press Ctrl+C to stop the server")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Received shutdown signal, shutting down engine...")
	return apiServer.Stop()
}
