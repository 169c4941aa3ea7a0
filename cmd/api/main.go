// Package main is the entrypoint for the shortlink API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/app"
	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/logger"
	"github.com/penshort/shortlink/internal/server"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Settings.Watch()

	srv := server.New(a.Router(), server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, log)

	if a.Worker != nil {
		go func() {
			if err := a.Worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("click worker stopped", zap.Error(err))
			}
		}()
		srv.OnShutdown("click_worker", a.Worker.Shutdown)
	}
	srv.OnShutdown("click_tracker", a.Tracker.Shutdown)

	log.Info("starting server",
		zap.Int("port", cfg.AppPort),
		zap.String("site_url", cfg.SiteURL),
		zap.String("env", cfg.AppEnv),
	)

	return srv.Run(ctx)
}
