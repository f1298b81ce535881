package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	hthttp "github.com/hooktrace/hooktrace/internal/adapter/http"
	"github.com/hooktrace/hooktrace/internal/adapter/memstore"
	htnats "github.com/hooktrace/hooktrace/internal/adapter/nats"
	"github.com/hooktrace/hooktrace/internal/adapter/natskv"
	htotel "github.com/hooktrace/hooktrace/internal/adapter/otel"
	"github.com/hooktrace/hooktrace/internal/adapter/postgres"
	"github.com/hooktrace/hooktrace/internal/adapter/ristretto"
	"github.com/hooktrace/hooktrace/internal/adapter/tiered"
	"github.com/hooktrace/hooktrace/internal/adapter/ws"
	"github.com/hooktrace/hooktrace/internal/config"
	"github.com/hooktrace/hooktrace/internal/domain/event"
	"github.com/hooktrace/hooktrace/internal/logger"
	"github.com/hooktrace/hooktrace/internal/port/cache"
	"github.com/hooktrace/hooktrace/internal/port/factstore"
	"github.com/hooktrace/hooktrace/internal/port/forwarder"
	"github.com/hooktrace/hooktrace/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Backend,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Observability ---
	shutdownMetrics, err := htotel.InitMetrics(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownMetrics(shutdownCtx)
	}()

	metrics, err := htotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Fact store ---
	var store factstore.Store
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres fact store ready")
		store = postgres.NewEventStore(pool)
	default:
		mem := memstore.New(cfg.Storage.MaxEvents)
		mem.OnEvict = func(*event.Event) {
			metrics.EventsEvicted.Add(ctx, 1)
		}
		slog.Info("in-memory fact store ready", "capacity", cfg.Storage.MaxEvents)
		store = mem
	}

	// --- Forwarder (optional) ---
	var fwd forwarder.Forwarder
	if cfg.NATS.URL != "" {
		nf, err := htnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			// Forwarding is best effort; a dead broker must not block ingestion.
			slog.Warn("nats connect failed, forwarding disabled", "error", err)
		} else {
			defer func() { _ = nf.Close() }()
			fwd = nf
		}
	}

	// --- Cache ---
	var resultCache cache.Cache
	local, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	resultCache = local
	if nf, ok := fwd.(*htnats.Forwarder); ok {
		// Share results across replicas through a KV bucket.
		remote, err := natskv.Open(ctx, nf.JetStream(), cfg.Cache.TTL)
		if err != nil {
			slog.Warn("nats kv cache unavailable, using local cache only", "error", err)
		} else {
			resultCache = tiered.New(local, remote, cfg.Cache.TTL)
		}
	}

	// --- Services ---
	hub := ws.NewHub()
	classifier := &event.Classifier{
		DefaultTeam: cfg.Ingest.DefaultTeam,
		Anonymize:   cfg.Ingest.AnonymizeUsers,
	}
	ingestSvc := service.NewIngestService(store, classifier, fwd, hub, metrics, cfg.NATS.PublishTimeout)
	analyticsSvc := service.NewAnalyticsService(store, resultCache, cfg.Cache.TTL, metrics)

	// --- HTTP ---
	handlers := hthttp.NewHandlers(ingestSvc, analyticsSvc, store, hub, cfg.Ingest.DefaultTeam)
	router := hthttp.NewRouter(handlers, cfg)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           htotel.HTTPMiddleware(cfg.Logging.Service)(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
