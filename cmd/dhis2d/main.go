package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xavim/fieldentry/internal/config"
	"github.com/xavim/fieldentry/internal/devserver"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.ValidateDevServer(); err != nil {
		logger.Error("invalid dev server configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.DevServer.Env))

	store := devserver.NewStore()
	if err := devserver.SeedDefaults(store); err != nil {
		logger.Error("failed to seed fixtures", slog.Any("error", err))
		os.Exit(1)
	}

	srv := devserver.New(store, cfg.DevServer, logger)

	server := &http.Server{
		Addr:         ":" + cfg.DevServer.Port,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.DevServer.ReadTimeout,
		WriteTimeout: cfg.DevServer.WriteTimeout,
		IdleTimeout:  cfg.DevServer.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
