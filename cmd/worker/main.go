package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listingportal_backend/internal/email"
	"listingportal_backend/internal/events"
	"listingportal_backend/internal/ingestion"
	"listingportal_backend/internal/notification"
	"listingportal_backend/internal/scheduler"
	"listingportal_backend/platform/config"
	"listingportal_backend/platform/db"
	"listingportal_backend/platform/logger"
	"listingportal_backend/platform/validator"
)

// The worker binary owns the background side of ingestion: the nightly cron
// entry, the queue consumer, and a catch-up run enqueued at boot so windows
// missed during downtime are re-covered.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config: " + err.Error())
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	bus := events.NewInMemoryBus(log)
	var narrator notification.Narrator
	if cfg.GetGeminiAPIKey() != "" {
		narrator = notification.NewGeminiNarrator(cfg)
	}
	notification.NewModule(email.NewSender(cfg, log), narrator, log).RegisterHandlers(bus)
	ingestionModule := ingestion.NewModule(pool, bus, validator.New(), cfg, log)

	worker, err := scheduler.NewWorker(ingestionModule.Service(), cfg, log)
	if err != nil {
		log.Error("worker init failed", "error", err)
		os.Exit(1)
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("periodic scheduler init failed", "error", err)
		os.Exit(1)
	}
	if err := periodic.Start(); err != nil {
		log.Error("periodic scheduler start failed", "error", err)
		os.Exit(1)
	}
	defer periodic.Shutdown()

	queueClient, err := scheduler.NewClient(cfg, log)
	if err != nil {
		log.Error("queue client init failed", "error", err)
		os.Exit(1)
	}
	defer queueClient.Close()

	enqueueCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := queueClient.EnqueueIngestionRun(enqueueCtx, scheduler.CatchUpLookbackHours, 0); err != nil {
		log.Warn("catch-up run not enqueued", "error", err)
	}
	cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info("worker started", "queue", cfg.GetAsynqQueueName(), "cron", cfg.GetIngestionCron())
		errCh <- worker.Run()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		worker.Shutdown()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error("worker stopped", "error", err)
			os.Exit(1)
		}
	}
}
