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

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/notify"
	"github.com/p-n-ai/pai-academy/internal/platform/cache"
	"github.com/p-n-ai/pai-academy/internal/platform/config"
	"github.com/p-n-ai/pai-academy/internal/platform/database"
	"github.com/p-n-ai/pai-academy/internal/progress"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, cleanup, err := setup(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newMux(a),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store, "cache", cfg.Cache.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// setup wires stores, locks and notification delivery according to cfg.
func setup(ctx context.Context, cfg *config.Config) (*app, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	a := &app{}
	var (
		store   progress.Store       = progress.NewMemoryStore()
		events  progress.EventLogger = progress.NopEventLogger{}
		sink    notify.Sink          = notify.NewMemorySink()
		locker  progress.Locker      = progress.NewKeyedMutex()
		deduper notify.Deduper       = notify.NewMemoryDeduper()
	)

	if cfg.Store == config.StorePostgres {
		db, err := database.New(ctx, database.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
			Migrate:  true,
		})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, db.Close)

		pgStore, err := progress.NewPostgresStore(db.Pool)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		store = pgStore
		events = progress.NewPostgresEventLogger(db.Pool)
		sink = notify.NewPostgresSink(db.Pool)
		a.checks = append(a.checks, readinessCheck{name: "database", check: db.Ping})
		slog.Info("database connected")
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cache.Options{
			URL:     cfg.Cache.URL,
			LockTTL: cfg.Cascade.LockTTLDuration(),
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = c.Close() })
		locker = c.Locker()
		deduper = notify.NewRedisDeduper(c.Client, cfg.Notify.DedupeTTLDuration())
		a.checks = append(a.checks, readinessCheck{name: "cache", check: c.Ping})
		slog.Info("cache connected")
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := cat.Restore(ctx, store); err != nil {
		cleanup()
		return nil, nil, err
	}

	dispatcher, err := notify.NewDispatcher(notify.Config{
		Sink:      sink,
		Deduper:   deduper,
		BatchSize: cfg.Notify.BatchSize,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	a.catalog = cat
	a.notifications = sink
	a.svc = progress.NewService(progress.ServiceConfig{
		Store:       store,
		Catalog:     cat,
		Dispatcher:  dispatcher,
		Locker:      locker,
		Events:      events,
		Concurrency: cfg.Cascade.Concurrency,
	})
	return a, cleanup, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
