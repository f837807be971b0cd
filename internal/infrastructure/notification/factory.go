package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier is implemented by every transport
type Notifier interface {
	Notify(ctx context.Context, event string, payload func() map[string]any) error
}

// New connects the transport selected by cfg.Notification.Driver. The
// returned close function releases the connection.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (Notifier, func() error, error) {
	switch cfg.Notification.Driver {
	case config.NotificationDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("notifications go to redis stream", zap.String("stream", cfg.Notification.Stream))
		return NewRedisNotifier(client, cfg.Notification.Stream, cfg.Notification.MaxLen), client.Close, nil

	case config.NotificationDriverNATS:
		conn, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.NATS.Name),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.ReconnectWait(cfg.NATS.ReconnectWait),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warn("nats disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
			}),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		log.Info("notifications go to nats", zap.String("subject", cfg.Notification.Subject))
		return NewNATSNotifier(conn, cfg.Notification.Subject), func() error { return conn.Drain() }, nil

	case config.NotificationDriverLog:
		return NewLogNotifier(log), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown notification driver %q", cfg.Notification.Driver)
}
