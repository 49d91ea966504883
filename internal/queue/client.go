package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Generation tasks carry a debit that is only settled once the worker
// finishes, so the retry ceiling and timeout stay deliberately modest.
const (
	generateMaxRetry = 3
	generateTimeout  = 5 * time.Minute
)

// Client enqueues design generation work onto a single named queue.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

func (c *Client) EnqueueGenerateDesign(ctx context.Context, payload GenerateDesignPayload) (*asynq.TaskInfo, error) {
	task, err := NewGenerateDesignTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(generateMaxRetry),
		asynq.Timeout(generateTimeout),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
