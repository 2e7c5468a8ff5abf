package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"listingportal_backend/internal/ingestion/transport"
	"listingportal_backend/platform/config"
	"listingportal_backend/platform/logger"
)

// Runner is the pipeline surface the worker drives.
type Runner interface {
	Run(ctx context.Context, hours, limit int) (transport.RunReport, error)
}

type WorkerConfig interface {
	config.SchedulerConfig
	config.IngestionConfig
}

// Worker consumes queued ingestion tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner Runner
	cfg    WorkerConfig
	log    *logger.Logger
}

func NewWorker(runner Runner, cfg WorkerConfig, log *logger.Logger) (*Worker, error) {
	opt, err := redisOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.GetAsynqConcurrency(),
		Queues:      map[string]int{cfg.GetAsynqQueueName(): 1},
		Logger:      asynqLogger{log},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		runner: runner,
		cfg:    cfg,
		log:    log,
	}
	w.mux.HandleFunc(TaskIngestionRun, w.handleIngestionRun)
	return w, nil
}

// Run blocks until Shutdown.
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleIngestionRun(ctx context.Context, task *asynq.Task) error {
	var payload IngestionRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode ingestion payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Hours <= 0 {
		payload.Hours = w.cfg.GetIngestionDefaultHours()
	}
	if payload.Limit <= 0 {
		payload.Limit = w.cfg.GetIngestionDefaultPageSize()
	}

	report, err := w.runner.Run(ctx, payload.Hours, payload.Limit)
	if err != nil {
		return fmt.Errorf("scheduled ingestion run: %w", err)
	}

	w.log.Info("scheduled ingestion run finished",
		"events", report.Summary.TotalEventsFetched,
		"created", report.Summary.TotalLeadsCreated,
		"updated", report.Summary.TotalLeadsUpdated,
		"errors", report.Summary.ErrorsCount,
	)
	return nil
}

// NewPeriodic registers the nightly ingestion entry on an asynq scheduler.
func NewPeriodic(cfg WorkerConfig, log *logger.Logger) (*asynq.Scheduler, error) {
	opt, err := redisOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	sched := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: asynqLogger{log}})
	task, err := NewIngestionRunTask(nightlyLookbackHours, cfg.GetIngestionDefaultPageSize())
	if err != nil {
		return nil, err
	}
	if _, err := sched.Register(cfg.GetIngestionCron(), task, asynq.Queue(cfg.GetAsynqQueueName())); err != nil {
		return nil, fmt.Errorf("register nightly ingestion: %w", err)
	}
	return sched, nil
}

// asynqLogger adapts the structured logger to asynq's logging interface.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
