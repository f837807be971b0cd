package ledger_test

import (
	"testing"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (w *ledgerWorld) createPurchaseOrder(variantID uuid.UUID, qty int) *ledger.PurchaseOrderResponse {
	w.t.Helper()
	po, err := w.purchaseOrders().Create(w.ctx, ledger.CreatePurchaseOrderRequest{
		SourceWarehouseID:      w.supplier.ID,
		DestinationWarehouseID: w.owned.ID,
		Items: []ledger.PurchaseOrderItemRequest{{
			VariantID:       variantID,
			Quantity:        qty,
			TotalPrice:      decimal.NewFromInt(int64(qty) * 4),
			Currency:        "usd",
			CountryOfOrigin: "CN",
		}},
	})
	require.NoError(w.t, err)
	require.Len(w.t, po.Items, 1)
	return po
}

func TestPurchaseOrderService_Create(t *testing.T) {
	w := newLedgerWorld(t)
	variantID := uuid.New()

	po := w.createPurchaseOrder(variantID, 25)
	item := po.Items[0]
	assert.Equal(t, purchasing.PurchaseOrderItemStatusDraft.String(), item.Status)
	assert.Equal(t, 25, item.QuantityOrdered)
	assert.True(t, decimal.NewFromInt(4).Equal(item.UnitPrice))
	assert.Nil(t, item.ConfirmedAt)

	loaded, err := w.purchaseOrders().GetByID(w.ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, po.ID, loaded.ID)

	t.Run("the source must be a supplier warehouse", func(t *testing.T) {
		_, err := w.purchaseOrders().Create(w.ctx, ledger.CreatePurchaseOrderRequest{
			SourceWarehouseID:      w.owned.ID,
			DestinationWarehouseID: w.owned.ID,
			Items: []ledger.PurchaseOrderItemRequest{{
				VariantID: variantID, Quantity: 1, TotalPrice: decimal.NewFromInt(1), Currency: "USD",
			}},
		})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("draft batches can be cancelled once", func(t *testing.T) {
		cancelled, err := w.purchaseOrders().CancelItem(w.ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, purchasing.PurchaseOrderItemStatusCancelled.String(), cancelled.Status)

		_, err = w.purchaseOrders().CancelItem(w.ctx, item.ID)
		assert.ErrorIs(t, err, purchasing.ErrInvalidPurchaseOrderItemStatus)
	})
}

func TestPurchaseOrderService_ConfirmItem(t *testing.T) {
	t.Run("migrates supplier allocations and auto-confirms fully sourced orders", func(t *testing.T) {
		w := newLedgerWorld(t)
		variantID := uuid.New()
		supplier := w.stock(w.supplier.ID, variantID, 100)

		first := w.order(variantID, 30)
		second := w.order(variantID, 50)
		w.allocate(first.Lines[0], 30)
		w.allocate(second.Lines[0], 50)

		po := w.createPurchaseOrder(variantID, 60)
		result, err := w.purchaseOrders().ConfirmItem(w.ctx, po.Items[0].ID)
		require.NoError(t, err)

		assert.Equal(t, purchasing.PurchaseOrderItemStatusConfirmed.String(), result.Item.Status)
		assert.NotNil(t, result.Item.ConfirmedAt)
		assert.Equal(t, 2, result.AllocationsMigrated)
		assert.Equal(t, 60, result.QuantityMigrated)
		assert.Equal(t, []string{first.Number}, result.OrdersAutoConfirmed)
		assert.Equal(t, 60, result.Item.QuantityAllocated)
		assert.Equal(t, 0, result.Item.QuantityAvailable)

		supplierAfter := w.reloadStock(supplier.ID)
		assert.Equal(t, 40, supplierAfter.Quantity)
		assert.Equal(t, 20, supplierAfter.QuantityAllocated)

		owned, err := persistence.NewGormStockRepository(w.db).FindForUpdate(w.ctx, w.owned.ID, variantID)
		require.NoError(t, err)
		assert.Equal(t, 60, owned.Quantity)
		assert.Equal(t, 60, owned.QuantityAllocated)

		// the first order moved whole, the second was split across both rows
		firstAllocs := w.lineAllocations(first.Lines[0].ID)
		require.Len(t, firstAllocs, 1)
		assert.Equal(t, owned.ID, firstAllocs[0].StockID)
		assert.Equal(t, map[uuid.UUID]int{po.Items[0].ID: 30}, sourceQuantities(firstAllocs[0]))

		secondAllocs := w.lineAllocations(second.Lines[0].ID)
		require.Len(t, secondAllocs, 2)
		byStock := map[uuid.UUID]int{}
		for _, a := range secondAllocs {
			byStock[a.StockID] = a.QuantityAllocated
		}
		assert.Equal(t, map[uuid.UUID]int{owned.ID: 30, supplier.ID: 20}, byStock)

		assert.Equal(t, order.StatusUnfulfilled, w.reloadOrder(first.ID).Status)
		assert.Equal(t, order.StatusUnconfirmed, w.reloadOrder(second.ID).Status)
		assert.Equal(t, 1, w.notifier.sent(ledger.NotificationOrderConfirmed))
		assert.Equal(t, first.Number, w.notifier.payload(ledger.NotificationOrderConfirmed)["order_number"])

		count, err := persistence.NewGormFulfillmentRepository(w.db).CountByOrder(w.ctx, first.ID)
		require.NoError(t, err)
		assert.Zero(t, count, "goods in transit are not fulfilled yet")

		report, err := ledger.NewInvariantChecker(w.scope).Check(w.ctx, w.owned.ID, variantID)
		require.NoError(t, err)
		assert.True(t, report.IsValid(), report.Violations)
	})

	t.Run("channels without auto-confirmation leave orders unconfirmed", func(t *testing.T) {
		w := newLedgerWorld(t)
		require.NoError(t, w.db.Model(&order.Channel{}).Where("id = ?", w.channel.ID).
			Update("automatically_confirm_all_new_orders", false).Error)
		variantID := uuid.New()
		w.stock(w.supplier.ID, variantID, 10)
		ord := w.order(variantID, 10)
		w.allocate(ord.Lines[0], 10)

		po := w.createPurchaseOrder(variantID, 10)
		result, err := w.purchaseOrders().ConfirmItem(w.ctx, po.Items[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 1, result.AllocationsMigrated)
		assert.Empty(t, result.OrdersAutoConfirmed)
		assert.Equal(t, order.StatusUnconfirmed, w.reloadOrder(ord.ID).Status)
		assert.Zero(t, w.notifier.sent(ledger.NotificationOrderConfirmed))

		ok, err := w.allocations().CanConfirmOrder(w.ctx, ord.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("a confirmed order on supplier stock aborts the confirmation", func(t *testing.T) {
		w := newLedgerWorld(t)
		variantID := uuid.New()
		supplier := w.stock(w.supplier.ID, variantID, 10)
		ord := w.order(variantID, 10)
		w.allocate(ord.Lines[0], 10)
		w.setOrder(ord, order.StatusUnfulfilled, 0, 0)

		po := w.createPurchaseOrder(variantID, 10)
		_, err := w.purchaseOrders().ConfirmItem(w.ctx, po.Items[0].ID)
		require.ErrorIs(t, err, purchasing.ErrAllocationInvariantViolation)

		assert.Equal(t, purchasing.PurchaseOrderItemStatusDraft, w.reloadBatch(po.Items[0].ID).Status)
		after := w.reloadStock(supplier.ID)
		assert.Equal(t, 10, after.Quantity)
		assert.Equal(t, 10, after.QuantityAllocated)
	})

	t.Run("supplier stock must cover the batch", func(t *testing.T) {
		w := newLedgerWorld(t)
		variantID := uuid.New()
		w.stock(w.supplier.ID, variantID, 5)

		po := w.createPurchaseOrder(variantID, 10)
		_, err := w.purchaseOrders().ConfirmItem(w.ctx, po.Items[0].ID)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("only draft batches can be confirmed", func(t *testing.T) {
		w := newLedgerWorld(t)
		variantID := uuid.New()
		w.stock(w.supplier.ID, variantID, 10)

		po := w.createPurchaseOrder(variantID, 10)
		_, err := w.purchaseOrders().ConfirmItem(w.ctx, po.Items[0].ID)
		require.NoError(t, err)

		_, err = w.purchaseOrders().ConfirmItem(w.ctx, po.Items[0].ID)
		assert.ErrorIs(t, err, purchasing.ErrInvalidPurchaseOrderItemStatus)
	})
}
