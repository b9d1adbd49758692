package event

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StreamPublisher appends outbox entries to a Redis stream. Notification and
// calendar-sync collaborators consume the stream with their own consumer
// groups; redelivery on their side is expected.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	if maxLen <= 0 {
		maxLen = 100_000
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":      entry.ID.String(),
			"type":    entry.Type,
			"payload": string(entry.Payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
