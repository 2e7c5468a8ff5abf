// Package scheduler runs ingestion in the background through asynq: a
// nightly cron entry plus on-demand enqueues, handled by the worker binary.
package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	// TaskIngestionRun triggers one pipeline pass over a lookback window.
	TaskIngestionRun = "ingestion:run"

	// nightly runs cover the previous day with a little overlap; merges
	// are idempotent so the overlap is free.
	nightlyLookbackHours = 25

	// CatchUpLookbackHours is the window a freshly booted worker re-covers,
	// wide enough to absorb a weekend of downtime.
	CatchUpLookbackHours = 72
)

// IngestionRunPayload parameterizes one queued run. Zero values fall back to
// the configured defaults at handling time.
type IngestionRunPayload struct {
	Hours int `json:"hours"`
	Limit int `json:"limit"`
}

func NewIngestionRunTask(hours, limit int) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestionRunPayload{Hours: hours, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal ingestion payload: %w", err)
	}
	return asynq.NewTask(TaskIngestionRun, payload), nil
}

// redisOpt translates a redis URL into asynq's connection options.
func redisOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
}
