package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"listingportal_backend/platform/config"
	"listingportal_backend/platform/logger"
)

// Client enqueues background ingestion runs.
type Client struct {
	inner *asynq.Client
	queue string
	log   *logger.Logger
}

func NewClient(cfg config.SchedulerConfig, log *logger.Logger) (*Client, error) {
	opt, err := redisOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	return &Client{
		inner: asynq.NewClient(opt),
		queue: cfg.GetAsynqQueueName(),
		log:   log,
	}, nil
}

// EnqueueIngestionRun schedules one pipeline pass. Task uniqueness keeps a
// burst of enqueues from piling identical runs into the queue.
func (c *Client) EnqueueIngestionRun(ctx context.Context, hours, limit int) error {
	task, err := NewIngestionRunTask(hours, limit)
	if err != nil {
		return err
	}
	info, err := c.inner.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(2),
		asynq.Unique(30*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue ingestion run: %w", err)
	}
	c.log.Info("ingestion run enqueued", "task_id", info.ID, "queue", info.Queue, "hours", hours)
	return nil
}

func (c *Client) Close() error {
	return c.inner.Close()
}
