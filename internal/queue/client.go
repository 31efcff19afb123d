package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/mobasher/mobasher/internal/config"
)

// DefaultMaxRetry bounds redeliveries for tasks enqueued without an
// explicit override.
const DefaultMaxRetry = 3

// Client enqueues analysis tasks with per-segment deduplication.
type Client struct {
	asynq  *asynq.Client
	redis  *redis.Client
	logger *slog.Logger
}

// NewClient connects the task client to the broker.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Client, error) {
	rdb, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts, err := RedisOptions(cfg)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{
		asynq:  asynq.NewClient(AsynqOptions(opts)),
		redis:  rdb,
		logger: logger.With(slog.String("component", "queue")),
	}, nil
}

// newClientWith wires a client onto existing connections, used by tests.
func newClientWith(ac *asynq.Client, rdb *redis.Client, logger *slog.Logger) *Client {
	return &Client{asynq: ac, redis: rdb, logger: logger}
}

// EnqueueOptions tune one enqueue call.
type EnqueueOptions struct {
	// DedupeTTL guards the segment task against re-enqueue for this long.
	// Zero disables deduplication.
	DedupeTTL time.Duration
	// MaxRetry bounds redeliveries for this task. Negative means the
	// pipeline default of DefaultMaxRetry.
	MaxRetry int
	// Timeout bounds handler execution. Zero means asynq's default.
	Timeout time.Duration
}

// EnqueueSegment enqueues a segment task onto its stage queue. Returns false
// without error when the dedupe key is already held, meaning an equivalent
// task is in flight.
func (c *Client) EnqueueSegment(ctx context.Context, taskType string, payload SegmentPayload, opts EnqueueOptions) (bool, error) {
	stage := StageOf(taskType)

	if opts.DedupeTTL > 0 {
		key := DedupeKey(taskType, payload.SegmentID, payload.StartedAt)
		ok, err := c.redis.SetNX(ctx, key, "1", opts.DedupeTTL).Result()
		if err != nil {
			return false, fmt.Errorf("acquiring dedupe key: %w", err)
		}
		if !ok {
			c.logger.Debug("task already queued",
				slog.String("task", taskType),
				slog.String("segment_id", payload.SegmentID.String()))
			return false, nil
		}
	}

	task, err := NewSegmentTask(taskType, payload)
	if err != nil {
		return false, err
	}

	asynqOpts := []asynq.Option{asynq.Queue(stage)}
	maxRetry := opts.MaxRetry
	if maxRetry < 0 {
		maxRetry = DefaultMaxRetry
	}
	asynqOpts = append(asynqOpts, asynq.MaxRetry(maxRetry))
	if opts.Timeout > 0 {
		asynqOpts = append(asynqOpts, asynq.Timeout(opts.Timeout))
	}

	info, err := c.asynq.EnqueueContext(ctx, task, asynqOpts...)
	if err != nil {
		return false, fmt.Errorf("enqueueing %s: %w", taskType, err)
	}

	c.logger.Debug("task enqueued",
		slog.String("task", taskType),
		slog.String("queue", info.Queue),
		slog.String("id", info.ID),
		slog.String("segment_id", payload.SegmentID.String()),
		slog.String("channel_id", payload.ChannelID))
	return true, nil
}

// EnqueuePing enqueues a no-op task that measures queue round-trip latency.
func (c *Client) EnqueuePing(ctx context.Context) error {
	task := asynq.NewTask(TaskASRPing, []byte(fmt.Sprintf(`{"sent_at":%q}`, time.Now().UTC().Format(time.RFC3339Nano))))
	if _, err := c.asynq.EnqueueContext(ctx, task, asynq.Queue(QueueASR)); err != nil {
		return fmt.Errorf("enqueueing ping: %w", err)
	}
	return nil
}

// ReleaseDedupe drops the dedupe key early so a failed segment can be
// rescheduled before the TTL expires.
func (c *Client) ReleaseDedupe(ctx context.Context, taskType string, payload SegmentPayload) error {
	key := DedupeKey(taskType, payload.SegmentID, payload.StartedAt)
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("releasing dedupe key: %w", err)
	}
	return nil
}

// FlushAll clears the broker database. Destructive; only the fresh-reset
// path calls this.
func (c *Client) FlushAll(ctx context.Context) error {
	if err := c.redis.FlushAll(ctx).Err(); err != nil {
		return fmt.Errorf("flushing redis: %w", err)
	}
	return nil
}

// Ping verifies the broker connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close releases both broker connections.
func (c *Client) Close() error {
	err := c.asynq.Close()
	if rerr := c.redis.Close(); err == nil {
		err = rerr
	}
	return err
}
