package notification

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. Development only.
type LogNotifier struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(l *zap.Logger) *LogNotifier {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogNotifier{logger: l.Named("notification"), now: time.Now}
}

// Notify logs the notification at info level
func (n *LogNotifier) Notify(ctx context.Context, event string, payload func() map[string]any) error {
	msg := newMessage(ctx, event, payload, n.now())
	logger.Traced(ctx, n.logger).Info("notification",
		zap.String("event", msg.Event),
		zap.String("actor", msg.Actor),
		zap.Any("payload", msg.Payload),
	)
	return nil
}
