package ledger_test

import (
	"testing"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (w *ledgerWorld) createAdjustment(poiID uuid.UUID, change int, reason purchasing.AdjustmentReason) *ledger.AdjustmentResponse {
	w.t.Helper()
	adj, err := w.adjustments().Create(w.ctx, ledger.CreateAdjustmentRequest{
		PurchaseOrderItemID: poiID,
		QuantityChange:      change,
		Reason:              string(reason),
		AffectsPayable:      change < 0,
	})
	require.NoError(w.t, err)
	assert.Nil(w.t, adj.ProcessedAt)
	return adj
}

// twoReservations stores a batch of 50 and two orders holding 20 and 15 of it,
// the second reserved after the first
func twoReservations(t *testing.T) (*ledgerWorld, uuid.UUID, *purchasing.PurchaseOrderItem, *order.Order, *order.Order) {
	w := newLedgerWorld(t)
	variantID := uuid.New()
	stock, batches := w.batches(variantID, purchasing.PurchaseOrderItemStatusConfirmed, 50)
	older := w.order(variantID, 20)
	newer := w.order(variantID, 15)
	w.allocate(older.Lines[0], 20)
	w.allocate(newer.Lines[0], 15)
	return w, stock.ID, batches[0], older, newer
}

func TestAdjustmentService_Gain(t *testing.T) {
	w := newLedgerWorld(t)
	variantID := uuid.New()
	stock, batches := w.batches(variantID, purchasing.PurchaseOrderItemStatusConfirmed, 50)

	adj := w.createAdjustment(batches[0].ID, 5, purchasing.AdjustmentReasonCycleCountPositive)
	assert.True(t, decimal.NewFromInt(50).Equal(adj.FinancialImpact))

	processed, err := w.adjustments().Process(w.ctx, adj.ID)
	require.NoError(t, err)
	assert.NotNil(t, processed.ProcessedAt)

	assert.Equal(t, 55, w.reloadStock(stock.ID).Quantity)
	batch := w.reloadBatch(batches[0].ID)
	assert.Equal(t, 5, batch.QuantityAdjusted)
	assert.Equal(t, 55, batch.AvailableQuantity())
}

func TestAdjustmentService_Loss(t *testing.T) {
	t.Run("reservations absorb the loss newest first", func(t *testing.T) {
		w, stockID, batch, older, newer := twoReservations(t)

		adj := w.createAdjustment(batch.ID, -10, purchasing.AdjustmentReasonDamage)
		assert.True(t, decimal.NewFromInt(-100).Equal(adj.FinancialImpact))
		_, err := w.adjustments().Process(w.ctx, adj.ID)
		require.NoError(t, err)

		assert.Equal(t, 20, w.lineAllocations(older.Lines[0].ID)[0].QuantityAllocated)
		assert.Equal(t, 5, w.lineAllocations(newer.Lines[0].ID)[0].QuantityAllocated)

		stock := w.reloadStock(stockID)
		assert.Equal(t, 40, stock.Quantity)
		assert.Equal(t, 25, stock.QuantityAllocated)

		after := w.reloadBatch(batch.ID)
		assert.Equal(t, -10, after.QuantityAdjusted)
		assert.Equal(t, 25, after.QuantityAllocated)
		assert.Equal(t, 15, after.AvailableQuantity())

		assert.Equal(t, order.StatusUnconfirmed, w.reloadOrder(newer.ID).Status)
	})

	t.Run("orders left without stock drop to draft", func(t *testing.T) {
		w, stockID, batch, older, newer := twoReservations(t)

		adj := w.createAdjustment(batch.ID, -20, purchasing.AdjustmentReasonShrinkage)
		_, err := w.adjustments().Process(w.ctx, adj.ID)
		require.NoError(t, err)

		assert.Empty(t, w.lineAllocations(newer.Lines[0].ID))
		assert.Equal(t, 15, w.lineAllocations(older.Lines[0].ID)[0].QuantityAllocated)
		assert.Equal(t, order.StatusDraft, w.reloadOrder(newer.ID).Status)
		assert.Equal(t, order.StatusUnconfirmed, w.reloadOrder(older.ID).Status)

		stock := w.reloadStock(stockID)
		assert.Equal(t, 30, stock.Quantity)
		assert.Equal(t, 15, stock.QuantityAllocated)

		report, err := ledger.NewInvariantChecker(w.scope).Check(w.ctx, w.owned.ID, stock.VariantID)
		require.NoError(t, err)
		assert.True(t, report.IsValid(), report.Violations)
	})

	t.Run("free stock covers only what the reservations cannot", func(t *testing.T) {
		w, stockID, batch, older, newer := twoReservations(t)

		adj := w.createAdjustment(batch.ID, -40, purchasing.AdjustmentReasonShrinkage)
		_, err := w.adjustments().Process(w.ctx, adj.ID)
		require.NoError(t, err)

		assert.Empty(t, w.lineAllocations(older.Lines[0].ID))
		assert.Empty(t, w.lineAllocations(newer.Lines[0].ID))
		assert.Equal(t, order.StatusDraft, w.reloadOrder(older.ID).Status)
		assert.Equal(t, order.StatusDraft, w.reloadOrder(newer.ID).Status)

		stock := w.reloadStock(stockID)
		assert.Equal(t, 10, stock.Quantity)
		assert.Zero(t, stock.QuantityAllocated)

		after := w.reloadBatch(batch.ID)
		assert.Zero(t, after.QuantityAllocated)
		assert.Equal(t, 10, after.AvailableQuantity())
	})

	t.Run("confirmed orders block the loss", func(t *testing.T) {
		w, stockID, batch, older, newer := twoReservations(t)
		w.setOrder(older, order.StatusUnfulfilled, 0, 0)

		adj := w.createAdjustment(batch.ID, -10, purchasing.AdjustmentReasonDamage)
		_, err := w.adjustments().Process(w.ctx, adj.ID)
		require.ErrorIs(t, err, purchasing.ErrAdjustmentAffectsFulfilledOrders)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Contains(t, domainErr.Error(), older.Number)

		assertUntouched(t, w, stockID, batch.ID, adj.ID)
		assert.Equal(t, 15, w.lineAllocations(newer.Lines[0].ID)[0].QuantityAllocated)
	})

	t.Run("fully paid orders block the loss", func(t *testing.T) {
		w, stockID, batch, _, newer := twoReservations(t)
		w.setOrder(newer, order.StatusUnconfirmed, 150, 150)

		adj := w.createAdjustment(batch.ID, -10, purchasing.AdjustmentReasonDamage)
		_, err := w.adjustments().Process(w.ctx, adj.ID)
		require.ErrorIs(t, err, purchasing.ErrAdjustmentAffectsPaidOrders)

		assertUntouched(t, w, stockID, batch.ID, adj.ID)
	})

	t.Run("partly paid orders do not block the loss", func(t *testing.T) {
		w, _, batch, _, newer := twoReservations(t)
		w.setOrder(newer, order.StatusUnconfirmed, 150, 50)

		adj := w.createAdjustment(batch.ID, -10, purchasing.AdjustmentReasonDamage)
		_, err := w.adjustments().Process(w.ctx, adj.ID)
		require.NoError(t, err)
	})

	t.Run("cannot lose more than is on hand", func(t *testing.T) {
		w, stockID, batch, _, _ := twoReservations(t)

		adj := w.createAdjustment(batch.ID, -60, purchasing.AdjustmentReasonDamage)
		_, err := w.adjustments().Process(w.ctx, adj.ID)
		require.ErrorIs(t, err, shared.ErrInsufficientStock)

		assertUntouched(t, w, stockID, batch.ID, adj.ID)
	})
}

func TestAdjustmentService_Process(t *testing.T) {
	t.Run("an adjustment is applied at most once", func(t *testing.T) {
		w := newLedgerWorld(t)
		variantID := uuid.New()
		stock, batches := w.batches(variantID, purchasing.PurchaseOrderItemStatusConfirmed, 50)

		adj := w.createAdjustment(batches[0].ID, -5, purchasing.AdjustmentReasonDamage)
		_, err := w.adjustments().Process(w.ctx, adj.ID)
		require.NoError(t, err)

		_, err = w.adjustments().Process(w.ctx, adj.ID)
		require.ErrorIs(t, err, purchasing.ErrAdjustmentAlreadyProcessed)
		assert.Equal(t, 45, w.reloadStock(stock.ID).Quantity)
		assert.Equal(t, -5, w.reloadBatch(batches[0].ID).QuantityAdjusted)
	})

	t.Run("draft batches cannot be adjusted", func(t *testing.T) {
		w := newLedgerWorld(t)
		variantID := uuid.New()
		_, batches := w.batches(variantID, purchasing.PurchaseOrderItemStatusDraft, 50)

		adj := w.createAdjustment(batches[0].ID, 5, purchasing.AdjustmentReasonOther)
		_, err := w.adjustments().Process(w.ctx, adj.ID)
		assert.ErrorIs(t, err, purchasing.ErrInvalidPurchaseOrderItemStatus)
	})

	t.Run("unknown reasons and zero changes are rejected", func(t *testing.T) {
		w := newLedgerWorld(t)
		_, batches := w.batches(uuid.New(), purchasing.PurchaseOrderItemStatusConfirmed, 50)

		_, err := w.adjustments().Create(w.ctx, ledger.CreateAdjustmentRequest{
			PurchaseOrderItemID: batches[0].ID, QuantityChange: 1, Reason: "LOST_AT_SEA",
		})
		assert.ErrorIs(t, err, shared.ErrValidation)

		_, err = w.adjustments().Create(w.ctx, ledger.CreateAdjustmentRequest{
			PurchaseOrderItemID: batches[0].ID, QuantityChange: 0, Reason: string(purchasing.AdjustmentReasonOther),
		})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestAdjustmentService_ListPending(t *testing.T) {
	w := newLedgerWorld(t)
	_, batches := w.batches(uuid.New(), purchasing.PurchaseOrderItemStatusConfirmed, 50)

	first := w.createAdjustment(batches[0].ID, -1, purchasing.AdjustmentReasonDamage)
	second := w.createAdjustment(batches[0].ID, 2, purchasing.AdjustmentReasonReturn)
	_, err := w.adjustments().Process(w.ctx, first.ID)
	require.NoError(t, err)

	pending, err := w.adjustments().ListPending(w.ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.True(t, decimal.NewFromInt(20).Equal(pending[0].FinancialImpact))

	loaded, err := w.adjustments().GetByID(w.ctx, first.ID)
	require.NoError(t, err)
	assert.NotNil(t, loaded.ProcessedAt)
}

// assertUntouched checks that a refused adjustment changed nothing
func assertUntouched(t *testing.T, w *ledgerWorld, stockID, batchID, adjustmentID uuid.UUID) {
	t.Helper()
	stock := w.reloadStock(stockID)
	assert.Equal(t, 50, stock.Quantity)
	assert.Equal(t, 35, stock.QuantityAllocated)

	batch := w.reloadBatch(batchID)
	assert.Equal(t, 0, batch.QuantityAdjusted)
	assert.Equal(t, 35, batch.QuantityAllocated)

	adj, err := w.adjustments().GetByID(w.ctx, adjustmentID)
	require.NoError(t, err)
	assert.Nil(t, adj.ProcessedAt)
}
