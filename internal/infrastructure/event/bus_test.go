package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubEvent struct {
	shared.BaseDomainEvent
}

func newStubEvent(eventType string) *stubEvent {
	return &stubEvent{BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "PurchaseOrder", uuid.New())}
}

// recordingHandler remembers the events it handled and fails or panics on demand
type recordingHandler struct {
	mu      sync.Mutex
	types   []string
	handled []string
	err     error
	panics  bool
}

func (h *recordingHandler) Handle(_ context.Context, ev shared.DomainEvent) error {
	h.mu.Lock()
	h.handled = append(h.handled, ev.EventType())
	h.mu.Unlock()
	if h.panics {
		panic("handler exploded")
	}
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	confirmed := &recordingHandler{types: []string{"PurchaseOrderItemConfirmed"}}
	everything := &recordingHandler{}
	bus.Subscribe(confirmed)
	bus.Subscribe(everything)

	err := bus.Publish(context.Background(),
		newStubEvent("PurchaseOrderItemConfirmed"),
		newStubEvent("ReceiptCompleted"),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"PurchaseOrderItemConfirmed"}, confirmed.seen())
	assert.Equal(t, []string{"PurchaseOrderItemConfirmed", "ReceiptCompleted"}, everything.seen())
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandlerTypes(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	h := &recordingHandler{types: []string{"AdjustmentCreated"}}
	bus.Subscribe(h, "AdjustmentProcessed")

	require.NoError(t, bus.Publish(context.Background(), newStubEvent("AdjustmentCreated"), newStubEvent("AdjustmentProcessed")))
	assert.Equal(t, []string{"AdjustmentProcessed"}, h.seen())
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))

	failing := &recordingHandler{err: errors.New("audit table locked")}
	panicking := &recordingHandler{panics: true}
	healthy := &recordingHandler{}
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newStubEvent("ShipmentAssigned"))
	require.NoError(t, err)

	assert.Len(t, healthy.seen(), 1)
	entries := logs.FilterMessage("event handler failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "ShipmentAssigned", entries[0].ContextMap()["event_type"])
	assert.Contains(t, entries[1].ContextMap()["error"], "handler exploded")
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &recordingHandler{types: []string{"ReceiptCompleted"}}
	bus.Subscribe(h)
	bus.Unsubscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newStubEvent("ReceiptCompleted")))
	assert.Empty(t, h.seen())
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	typed := &recordingHandler{}
	wildcard := &recordingHandler{}

	r.Register(typed, "A", "B")
	r.Register(typed, "A")
	r.Register(wildcard)
	r.Register(wildcard)

	assert.Equal(t, []shared.EventHandler{typed, wildcard}, r.Handlers("A"))
	assert.Equal(t, []shared.EventHandler{wildcard}, r.Handlers("C"))

	r.Unregister(typed)
	assert.Equal(t, []shared.EventHandler{wildcard}, r.Handlers("B"))
	r.Unregister(wildcard)
	assert.Empty(t, r.Handlers("A"))
}
