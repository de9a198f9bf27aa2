// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/broker"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/config"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/database"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/handler"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository/mongostore"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository/sqlitestore"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/seed"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/service"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile   string
		addr      string
		store     string
		ridesFile string
		logLevel  string
	)
	flagSet := pflag.NewFlagSet("carnival", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&addr, "addr", "", "listen address (overrides PORT)")
	flagSet.StringVar(&store, "store", "", "storage backend: postgres, sqlite or mongo (overrides STORE)")
	flagSet.StringVar(&ridesFile, "rides-file", "", "YAML ride catalog used to seed an empty database (overrides RIDES_FILE)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// ── 1. Configuration ─────────────────────────────────────────────────
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if flagSet.Changed("addr") {
		cfg.Port = addr
	}
	if flagSet.Changed("store") {
		cfg.Store = strings.ToLower(store)
	}
	if flagSet.Changed("rides-file") {
		cfg.RidesFile = ridesFile
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 2. Storage ───────────────────────────────────────────────────────
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	rides, err := seed.LoadRides(cfg.RidesFile)
	if err != nil {
		return err
	}
	if err := seed.Bootstrap(ctx, st, seed.Options{
		Rides:         rides,
		AdminPassword: cfg.AdminPassword,
		Logger:        logger,
	}); err != nil {
		return err
	}

	// ── 3. Optional event publisher ──────────────────────────────────────
	var publisher service.Publisher
	if cfg.AMQPURL != "" {
		p, err := broker.NewPublisher(cfg.AMQPURL, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
	}

	// ── 4. Wire up layers ────────────────────────────────────────────────
	catalogSvc := service.NewCatalogService(st.Rides, st.Bookings)
	authSvc := service.NewAuthService(st.Users, st.Sessions, session.NewIssuer(cfg.SessionSecret), cfg.SessionTTL, logger)
	bookingSvc := service.NewBookingService(st.Bookings, publisher, logger)

	h, err := handler.New(catalogSvc, authSvc, bookingSvc, logger)
	if err != nil {
		return err
	}

	// ── 5. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repository.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		pool, err := database.OpenSQLite(cfg.SQLitePath, 0, logger)
		if err != nil {
			return nil, err
		}
		return sqlitestore.New(pool), nil
	case config.StoreMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		st, err := mongostore.New(ctx, client, cfg.MongoDB, logger)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return st, nil
	default:
		pool, err := database.NewPool(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return repository.NewPostgresStore(pool), nil
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}
