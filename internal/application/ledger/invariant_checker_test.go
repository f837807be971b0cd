package ledger_test

import (
	"testing"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInvariantChecker(t *testing.T) {
	w := newLedgerWorld(t)
	healthyVariant, brokenVariant := uuid.New(), uuid.New()
	w.batches(healthyVariant, purchasing.PurchaseOrderItemStatusConfirmed, 40, 60)
	broken, _ := w.batches(brokenVariant, purchasing.PurchaseOrderItemStatusReceived, 25)
	w.stock(w.supplier.ID, brokenVariant, 999)

	ord := w.order(healthyVariant, 70)
	w.allocate(ord.Lines[0], 70)

	core, logs := observer.New(zap.ErrorLevel)
	checker := ledger.NewInvariantChecker(w.scope)
	checker.SetNotifier(w.notifier)
	checker.SetLogger(zap.New(core))

	checked, violations, err := checker.CheckAll(w.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, checked, "supplier rows are not checked")
	assert.Empty(t, violations)
	assert.Zero(t, w.notifier.sent(ledger.NotificationStockInvariantViolation))

	require.NoError(t, w.db.Model(&inventory.Stock{}).Where("id = ?", broken.ID).
		Updates(map[string]any{"quantity": 20, "quantity_allocated": 22}).Error)

	report, err := checker.Check(w.ctx, w.owned.ID, brokenVariant)
	require.NoError(t, err)
	assert.False(t, report.IsValid())
	assert.Equal(t, broken.ID, report.StockID)
	assert.Contains(t, report.Violations, "quantity 20 does not match batch on-hand total 25")
	assert.Contains(t, report.Violations, "quantity_allocated 22 does not match batch allocated total 0")

	checked, violations, err = checker.CheckAll(w.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	require.Len(t, violations, 1)
	assert.Equal(t, broken.ID, violations[0].StockID)

	assert.Equal(t, 1, w.notifier.sent(ledger.NotificationStockInvariantViolation))
	assert.Equal(t, 1, logs.FilterMessage("stock invariant violated").Len())

	_, err = checker.Check(w.ctx, w.owned.ID, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
