package ledger

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// spanService is the service name used on ledger spans
const spanService = "ledger"

// runtime holds the collaborators shared by every ledger service
type runtime struct {
	txScope        TransactionScope
	eventPublisher shared.EventPublisher
	notifier       Notifier
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
	now            func() time.Time
}

func newRuntime(txScope TransactionScope) runtime {
	return runtime{
		txScope:  txScope,
		notifier: nopNotifier{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (r *runtime) SetEventPublisher(publisher shared.EventPublisher) {
	r.eventPublisher = publisher
}

// SetNotifier sets the notification dispatcher
func (r *runtime) SetNotifier(notifier Notifier) {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	r.notifier = notifier
}

// SetMetrics sets the ledger metrics recorder
func (r *runtime) SetMetrics(metrics *telemetry.LedgerMetrics) {
	r.metrics = metrics
}

// SetLogger sets the logger used when the context carries none
func (r *runtime) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	r.logger = l
}

// log prefers the request logger in ctx and tags it with the active trace
func (r *runtime) log(ctx context.Context) *zap.Logger {
	return logger.Traced(ctx, r.logger)
}

// profiled runs fn under pprof labels naming the ledger operation. fn must
// use the context it is handed for the labels to reach its goroutine.
func (r *runtime) profiled(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels(spanService, op), func(ctx context.Context) {
		err = fn(ctx)
	})
	return err
}

// SetClock overrides the time source
func (r *runtime) SetClock(now func() time.Time) {
	r.now = now
}

// publishAfterCommit queues the events for publication once the transaction commits
func (r *runtime) publishAfterCommit(repos TransactionalRepositories, events []shared.DomainEvent) {
	if r.eventPublisher == nil || len(events) == 0 {
		return
	}
	publisher := r.eventPublisher
	repos.AfterCommit(func(ctx context.Context) error {
		return publisher.Publish(ctx, events...)
	})
}

// notifyAfterCommit queues a notification for after the commit
func (r *runtime) notifyAfterCommit(repos TransactionalRepositories, event string, payload func() map[string]any) {
	notifier := r.notifier
	repos.AfterCommit(func(ctx context.Context) error {
		return notifier.Notify(ctx, event, payload)
	})
}

// finish records the operation outcome on the span and the duration histogram
func (r *runtime) finish(ctx context.Context, op string, start time.Time, err error) {
	span := telemetry.SpanFromContext(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetOK(span)
	}
	r.metrics.ObserveOperation(ctx, op, start, err)
}
