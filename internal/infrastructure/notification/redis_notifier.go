package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamWriter is the part of the redis client the notifier needs
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisNotifier appends notifications to a capped redis stream that the
// mailer and the staff dashboard consume
type RedisNotifier struct {
	client StreamWriter
	stream string
	maxLen int64
	now    func() time.Time
}

// NewRedisNotifier creates a notifier writing to stream, trimmed to roughly maxLen entries
func NewRedisNotifier(client StreamWriter, stream string, maxLen int64) *RedisNotifier {
	return &RedisNotifier{client: client, stream: stream, maxLen: maxLen, now: time.Now}
}

// Notify adds one stream entry with the event name and the JSON envelope
func (n *RedisNotifier) Notify(ctx context.Context, event string, payload func() map[string]any) error {
	data, err := newMessage(ctx, event, payload, n.now()).encode()
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{"event": event, "data": string(data)},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}
	if err := n.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to add %s notification to %s: %w", event, n.stream, err)
	}
	return nil
}
