package ledger_test

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// labelScope records the operation label each transaction runs under
type labelScope struct {
	ledger.TransactionScope
	operations []string
}

func (s *labelScope) Execute(ctx context.Context, fn func(repos ledger.TransactionalRepositories) error) error {
	op, _ := pprof.Label(ctx, "operation")
	s.operations = append(s.operations, op)
	return s.TransactionScope.Execute(ctx, fn)
}

func TestLedgerOperations_CarryProfilingLabels(t *testing.T) {
	w := newLedgerWorld(t)
	scope := &labelScope{TransactionScope: w.scope}
	variantID := uuid.New()

	w.stock(w.supplier.ID, variantID, 10)
	ord := w.order(variantID, 10)
	allocations := ledger.NewAllocationService(scope, ledger.ShippingZoneRouter{})
	_, err := allocations.Allocate(w.ctx, ledger.AllocateRequest{OrderLineID: ord.Lines[0].ID, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"allocate"}, scope.operations)

	po := w.createPurchaseOrder(variantID, 10)
	scope.operations = nil
	_, err = ledger.NewPurchaseOrderService(scope).ConfirmItem(w.ctx, po.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"confirm_purchase_order_item"}, scope.operations)

	adj := w.createAdjustment(po.Items[0].ID, 2, purchasing.AdjustmentReasonCycleCountPositive)
	scope.operations = nil
	_, err = ledger.NewAdjustmentService(scope).Process(w.ctx, adj.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"process_adjustment"}, scope.operations)

	scope.operations = nil
	_, err = ledger.NewAdjustmentService(scope).GetByID(w.ctx, adj.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, scope.operations)
}
