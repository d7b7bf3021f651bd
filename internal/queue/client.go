package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/thumbnailer/internal/domain"
)

type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	timeout  time.Duration
}

type ClientOptions struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

func NewClient(redisOpt asynq.RedisClientOpt, opts ClientOptions) *Client {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	return &Client{
		client:   asynq.NewClient(redisOpt),
		queue:    opts.Queue,
		maxRetry: opts.MaxRetry,
		timeout:  opts.Timeout,
	}
}

// EnqueueJob schedules job for a worker. The job ID doubles as the asynq task
// ID so a manifest enqueued twice is rejected while the first is pending.
func (c *Client) EnqueueJob(ctx context.Context, job domain.Job) (*asynq.TaskInfo, error) {
	task, err := NewRenderTask(RenderPayload{Job: job, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
	}
	if job.ID != "" {
		opts = append(opts, asynq.TaskID(job.ID))
	}
	return c.client.EnqueueContext(ctx, task, opts...)
}

func (c *Client) Close() error {
	return c.client.Close()
}
