// Package notification dispatches the ledger's staff and customer
// notifications to a log, a redis stream or a NATS subject.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/logger"
)

// Message is the envelope every transport carries
type Message struct {
	Event      string         `json:"event"`
	OccurredAt time.Time      `json:"occurred_at"`
	RequestID  string         `json:"request_id,omitempty"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload"`
}

func newMessage(ctx context.Context, event string, payload func() map[string]any, now time.Time) Message {
	msg := Message{
		Event:      event,
		OccurredAt: now.UTC(),
		RequestID:  logger.RequestID(ctx),
		Actor:      logger.Actor(ctx),
	}
	if payload != nil {
		msg.Payload = payload()
	}
	return msg
}

func (m Message) encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s notification: %w", m.Event, err)
	}
	return data, nil
}
