package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the part of a NATS connection the notifier needs
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSNotifier publishes every notification on <subject>.<event>
type NATSNotifier struct {
	conn    Publisher
	subject string
	now     func() time.Time
}

// NewNATSNotifier creates a new NATSNotifier
func NewNATSNotifier(conn Publisher, subject string) *NATSNotifier {
	return &NATSNotifier{conn: conn, subject: subject, now: time.Now}
}

// Notify publishes the JSON envelope. The request ID travels as a header so
// consumers can correlate without decoding the body.
func (n *NATSNotifier) Notify(ctx context.Context, event string, payload func() map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := newMessage(ctx, event, payload, n.now())
	data, err := msg.encode()
	if err != nil {
		return err
	}
	out := nats.NewMsg(n.subject + "." + event)
	out.Data = data
	if msg.RequestID != "" {
		out.Header.Set("X-Request-ID", msg.RequestID)
	}
	if err := n.conn.PublishMsg(out); err != nil {
		return fmt.Errorf("failed to publish %s notification: %w", event, err)
	}
	return nil
}
