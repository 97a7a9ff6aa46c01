package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docchat/gateway/internal/models"
)

// Producer appends tasks to a Redis stream.
type Producer struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewProducer(client *redis.Client, stream string, maxLen int64) *Producer {
	return &Producer{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (p *Producer) EnqueueLogout(ctx context.Context, task models.LogoutRetryTask) error {
	task.Type = models.TaskLogoutRetry
	if task.EnqueuedAt == "" {
		task.EnqueuedAt = time.Now().UTC().Format(time.RFC3339)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":        task.Type,
			"token":       task.Token,
			"fingerprint": task.Fingerprint,
			"request_id":  task.RequestID,
			"enqueued_at": task.EnqueuedAt,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Trim caps the stream at the configured length.
func (p *Producer) Trim(ctx context.Context) error {
	if p.maxLen <= 0 {
		return nil
	}
	return p.client.XTrimMaxLenApprox(ctx, p.stream, p.maxLen, 0).Err()
}
