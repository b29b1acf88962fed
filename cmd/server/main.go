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

	"go.uber.org/zap"

	"github.com/shalteor/bplog/internal/api"
	"github.com/shalteor/bplog/internal/config"
	"github.com/shalteor/bplog/internal/crypto"
	"github.com/shalteor/bplog/internal/db"
	"github.com/shalteor/bplog/internal/logging"
	"github.com/shalteor/bplog/internal/middleware"
	"github.com/shalteor/bplog/internal/services"
)

const (
	dbOpenTimeout     = 30 * time.Second
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bplog: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, "bplog")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), dbOpenTimeout)
	database, err := db.New(ctx, cfg.DBPath, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	logger.Info("database initialized", zap.String("path", cfg.DBPath))

	hasher := crypto.NewPasswordHasher(cfg.PasswordHash)
	auth, err := services.NewAuthService(database, hasher, logger)
	if err != nil {
		return err
	}
	readings := services.NewReadingService(database, cfg.Timezone, cfg.MaxUploadBytes, logger)

	sessions := middleware.NewSessionConfig(cfg.SessionSecret, cfg.SessionTTL, logger)
	sessions.Secure = cfg.CookieSecure

	server, err := api.NewServer(auth, readings, sessions, logger, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Store:          database.Conn(),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.Addr),
			zap.String("timezone", cfg.Timezone.String()),
			zap.String("password_hash", string(hasher.Algorithm())),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-shutdownSignal:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}
