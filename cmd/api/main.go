package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apphttp "listingportal_backend/internal/http"
	"listingportal_backend/internal/http/router"
	"listingportal_backend/internal/ingestion"
	"listingportal_backend/internal/notification"

	"listingportal_backend/internal/email"
	"listingportal_backend/internal/events"
	"listingportal_backend/platform/config"
	"listingportal_backend/platform/db"
	"listingportal_backend/platform/logger"
	"listingportal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config: " + err.Error())
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "migrations", func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database", func() error {
		var err error
		pool, err = db.NewPool(ctx, cfg)
		return err
	}); err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	bus := events.NewInMemoryBus(log)
	validate := validator.New()

	var narrator notification.Narrator
	if cfg.GetGeminiAPIKey() != "" {
		narrator = notification.NewGeminiNarrator(cfg)
	}
	notification.NewModule(email.NewSender(cfg, log), narrator, log).RegisterHandlers(bus)
	ingestionModule := ingestion.NewModule(pool, bus, validate, cfg, log)

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  db.NewPoolAdapter(pool),
		Modules: []apphttp.Module{ingestionModule},
	}

	server := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", cfg.GetHTTPAddr(), "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
}

// withRetry keeps startup dependencies from failing the process on a slow
// container orchestration ordering.
func withRetry(ctx context.Context, log *logger.Logger, name string, fn func() error) error {
	const attempts = 5
	delay := time.Second

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn("startup dependency not ready", "dependency", name, "attempt", i, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
