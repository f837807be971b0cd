package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdjustmentService records and applies quantity corrections to confirmed batches
type AdjustmentService struct {
	runtime
}

// NewAdjustmentService creates a new AdjustmentService
func NewAdjustmentService(txScope TransactionScope) *AdjustmentService {
	return &AdjustmentService{runtime: newRuntime(txScope)}
}

// Create records an unprocessed adjustment against a batch
func (s *AdjustmentService) Create(ctx context.Context, req CreateAdjustmentRequest) (*AdjustmentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "create_adjustment")
	defer span.End()

	var resp AdjustmentResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		poi, err := repos.PurchaseOrderItemRepo().FindByID(ctx, req.PurchaseOrderItemID)
		if err != nil {
			return err
		}
		adj, err := purchasing.NewAdjustment(poi, req.QuantityChange, purchasing.AdjustmentReason(req.Reason),
			req.AffectsPayable, req.Notes, req.CreatedBy)
		if err != nil {
			return err
		}
		if err := repos.AdjustmentRepo().Save(ctx, adj); err != nil {
			return fmt.Errorf("failed to save adjustment: %w", err)
		}
		s.publishAfterCommit(repos, adj.PullDomainEvents())
		resp = ToAdjustmentResponse(adj, poi)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// Process applies an unprocessed adjustment to its batch and stock row
func (s *AdjustmentService) Process(ctx context.Context, adjustmentID uuid.UUID) (_ *AdjustmentResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "process_adjustment")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, "process_adjustment", start, err) }()

	telemetry.SetAttribute(span, "adjustment_id", adjustmentID.String())

	var resp AdjustmentResponse
	err = s.profiled(ctx, "process_adjustment", func(ctx context.Context) error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			adj, poi, err := s.processAdjustment(ctx, repos, adjustmentID)
			if err != nil {
				return err
			}
			resp = ToAdjustmentResponse(adj, poi)
			return nil
		})
	})
	if err != nil {
		s.metrics.RecordAdjustment(ctx, telemetry.AdjustmentOutcomeRejected)
		return nil, err
	}
	s.metrics.RecordAdjustment(ctx, telemetry.AdjustmentOutcomeProcessed)
	return &resp, nil
}

// GetByID loads an adjustment
func (s *AdjustmentService) GetByID(ctx context.Context, id uuid.UUID) (*AdjustmentResponse, error) {
	var resp AdjustmentResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		adj, err := repos.AdjustmentRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		poi, err := repos.PurchaseOrderItemRepo().FindByID(ctx, adj.PurchaseOrderItemID)
		if err != nil {
			return err
		}
		resp = ToAdjustmentResponse(adj, poi)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPending lists unprocessed adjustments, oldest first
func (s *AdjustmentService) ListPending(ctx context.Context) ([]AdjustmentResponse, error) {
	var result []AdjustmentResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		pending, err := repos.AdjustmentRepo().FindPending(ctx)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, len(pending))
		for i, a := range pending {
			ids[i] = a.PurchaseOrderItemID
		}
		pois, err := repos.PurchaseOrderItemRepo().FindByIDs(ctx, ids)
		if err != nil {
			return err
		}
		result = make([]AdjustmentResponse, len(pending))
		for i, a := range pending {
			result[i] = ToAdjustmentResponse(a, pois[a.PurchaseOrderItemID])
		}
		return nil
	})
	return result, err
}

// processAdjustment applies an adjustment inside the caller's transaction.
// A gain adds free units. A loss is refused while any order drawing on the
// batch is confirmed or fully paid; otherwise the batch's reservations absorb
// it newest first, and orders left without any sourced units drop to DRAFT.
// Nothing is written unless every check passes.
func (r *runtime) processAdjustment(ctx context.Context, repos TransactionalRepositories, adjustmentID uuid.UUID) (*purchasing.Adjustment, *purchasing.PurchaseOrderItem, error) {
	adj, err := repos.AdjustmentRepo().FindByID(ctx, adjustmentID)
	if err != nil {
		return nil, nil, err
	}
	if err := adj.EnsureUnprocessed(); err != nil {
		return nil, nil, err
	}
	poi, err := repos.PurchaseOrderItemRepo().FindByID(ctx, adj.PurchaseOrderItemID)
	if err != nil {
		return nil, nil, err
	}
	if !poi.IsActive() {
		return nil, nil, purchasing.NewInvalidPurchaseOrderItemStatusError(poi, purchasing.ActiveStatuses...)
	}
	po, err := repos.PurchaseOrderRepo().FindByID(ctx, poi.PurchaseOrderID)
	if err != nil {
		return nil, nil, err
	}

	stock, err := repos.StockRepo().FindForUpdate(ctx, po.DestinationWarehouseID, poi.VariantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock stock: %w", err)
	}
	if adj, err = repos.AdjustmentRepo().FindByIDForUpdate(ctx, adjustmentID); err != nil {
		return nil, nil, err
	}
	if err := adj.EnsureUnprocessed(); err != nil {
		return nil, nil, err
	}
	if poi, err = repos.PurchaseOrderItemRepo().FindByIDForUpdate(ctx, adj.PurchaseOrderItemID); err != nil {
		return nil, nil, err
	}

	if adj.IsLoss() {
		if err := r.applyLoss(ctx, repos, adj, poi, stock); err != nil {
			return nil, nil, err
		}
	} else {
		stock.Increase(adj.QuantityChange)
		poi.ApplyGain(adj.QuantityChange)
	}

	if err := adj.MarkProcessed(r.now(), poi); err != nil {
		return nil, nil, err
	}
	if err := repos.StockRepo().Save(ctx, stock); err != nil {
		return nil, nil, fmt.Errorf("failed to save stock: %w", err)
	}
	if err := repos.PurchaseOrderItemRepo().Save(ctx, poi); err != nil {
		return nil, nil, fmt.Errorf("failed to save purchase order item: %w", err)
	}
	if err := repos.AdjustmentRepo().Save(ctx, adj); err != nil {
		return nil, nil, fmt.Errorf("failed to save adjustment: %w", err)
	}
	r.publishAfterCommit(repos, adj.PullDomainEvents())

	r.log(ctx).Info("adjustment processed",
		zap.String("adjustment_id", adj.ID.String()),
		zap.String("purchase_order_item_id", poi.ID.String()),
		zap.Int("quantity_change", adj.QuantityChange),
		zap.String("reason", string(adj.Reason)),
	)
	return adj, poi, nil
}

// lossContext is what a loss needs to know about the batch's reservations
type lossContext struct {
	sources     []*inventory.AllocationSource
	allocations map[uuid.UUID]*inventory.Allocation
	orders      map[uuid.UUID]*order.Order // keyed by allocation id
}

func (r *runtime) applyLoss(ctx context.Context, repos TransactionalRepositories, adj *purchasing.Adjustment, poi *purchasing.PurchaseOrderItem, stock *inventory.Stock) error {
	loss := adj.Loss()
	if stock.Quantity < loss {
		return inventory.NewInsufficientStockError(poi.VariantID, loss, stock.Quantity)
	}
	if loss > poi.OnHandQuantity() {
		return inventory.NewInsufficientStockError(poi.VariantID, loss, poi.OnHandQuantity())
	}

	lc, err := loadLossContext(ctx, repos, poi)
	if err != nil {
		return err
	}
	if err := lc.guard(adj); err != nil {
		return err
	}

	absorb := min(loss, poi.QuantityAllocated)
	holdings := make([]inventory.SourceHolding, len(lc.sources))
	byID := make(map[uuid.UUID]*inventory.AllocationSource, len(lc.sources))
	for i, src := range lc.sources {
		holdings[i] = inventory.SourceHolding{SourceID: src.ID, BatchID: src.PurchaseOrderItemID, Quantity: src.Quantity}
		byID[src.ID] = src
	}
	releases, _ := inventory.PlanLIFORelease(holdings, absorb)

	var affected []uuid.UUID
	changed := make(map[uuid.UUID]*inventory.Allocation)
	for _, rel := range releases {
		src := byID[rel.SourceID]
		alloc := lc.allocations[src.AllocationID]
		if alloc.StockID != stock.ID {
			return shared.NewDomainErrorf("INVALID_STATE",
				"Allocation %s draws on batch %s from another stock row", alloc.ID, poi.ID)
		}
		if err := shrinkSource(ctx, repos, src, rel.Quantity); err != nil {
			return err
		}
		if err := alloc.Decrease(rel.Quantity); err != nil {
			return err
		}
		if err := poi.ReleaseAllocation(rel.Quantity); err != nil {
			return err
		}
		if err := stock.Release(rel.Quantity); err != nil {
			return err
		}
		changed[alloc.ID] = alloc
		if ord := lc.orders[alloc.ID]; !slices.Contains(affected, ord.ID) {
			affected = append(affected, ord.ID)
		}
	}
	for _, alloc := range changed {
		if alloc.IsEmpty() {
			err = repos.AllocationRepo().Delete(ctx, alloc.ID)
		} else {
			err = repos.AllocationRepo().Save(ctx, alloc)
		}
		if err != nil {
			return fmt.Errorf("failed to update allocation: %w", err)
		}
	}

	if err := poi.ApplyLoss(loss); err != nil {
		return err
	}
	if err := stock.Decrease(loss); err != nil {
		return err
	}
	return r.demoteUnsourcedOrders(ctx, repos, affected)
}

func loadLossContext(ctx context.Context, repos TransactionalRepositories, poi *purchasing.PurchaseOrderItem) (*lossContext, error) {
	sources, err := repos.AllocationSourceRepo().FindByPurchaseOrderItem(ctx, poi.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation sources: %w", err)
	}
	lc := &lossContext{
		sources:     sources,
		allocations: make(map[uuid.UUID]*inventory.Allocation, len(sources)),
		orders:      make(map[uuid.UUID]*order.Order, len(sources)),
	}
	if len(sources) == 0 {
		return lc, nil
	}

	lineIDs := make([]uuid.UUID, 0, len(sources))
	for _, src := range sources {
		if _, ok := lc.allocations[src.AllocationID]; ok {
			continue
		}
		alloc, err := repos.AllocationRepo().FindByID(ctx, src.AllocationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load allocation %s: %w", src.AllocationID, err)
		}
		lc.allocations[alloc.ID] = alloc
		lineIDs = append(lineIDs, alloc.OrderLineID)
	}
	lines, err := repos.OrderRepo().FindLinesByIDs(ctx, lineIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	orderIDs := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		orderIDs = append(orderIDs, l.OrderID)
	}
	orders, err := repos.OrderRepo().FindByIDs(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	for id, alloc := range lc.allocations {
		line, ok := lines[alloc.OrderLineID]
		if !ok {
			return nil, shared.ErrNotFound.WithDetail("order_line_id", alloc.OrderLineID.String())
		}
		ord, ok := orders[line.OrderID]
		if !ok {
			return nil, shared.ErrNotFound.WithDetail("order_id", line.OrderID.String())
		}
		lc.orders[id] = ord
	}
	return lc, nil
}

// guard refuses a loss that would reach a confirmed or fully paid order
func (lc *lossContext) guard(adj *purchasing.Adjustment) error {
	var locked, paid []string
	for _, src := range lc.sources {
		ord := lc.orders[src.AllocationID]
		switch {
		case ord.IsLocked():
			if !slices.Contains(locked, ord.Number) {
				locked = append(locked, ord.Number)
			}
		case ord.IsFullyPaid():
			if !slices.Contains(paid, ord.Number) {
				paid = append(paid, ord.Number)
			}
		}
	}
	if len(locked) > 0 {
		return purchasing.NewAdjustmentAffectsFulfilledOrdersError(adj, locked)
	}
	// TODO: route paid orders to the refund workflow instead of refusing the loss
	if len(paid) > 0 {
		return purchasing.NewAdjustmentAffectsPaidOrdersError(adj, paid)
	}
	return nil
}

// demoteUnsourcedOrders returns UNCONFIRMED orders with no sourced units left to DRAFT
func (r *runtime) demoteUnsourcedOrders(ctx context.Context, repos TransactionalRepositories, orderIDs []uuid.UUID) error {
	for _, id := range orderIDs {
		ord, err := repos.OrderRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ord.Status != order.StatusUnconfirmed {
			continue
		}
		lineIDs := make([]uuid.UUID, len(ord.Lines))
		for i, l := range ord.Lines {
			lineIDs[i] = l.ID
		}
		allocs, err := repos.AllocationRepo().FindByOrderLines(ctx, lineIDs)
		if err != nil {
			return fmt.Errorf("failed to load allocations: %w", err)
		}
		sourced, err := sourcedQuantities(ctx, repos, allocs)
		if err != nil {
			return err
		}
		total := 0
		for _, q := range sourced {
			total += q
		}
		if total > 0 {
			continue
		}
		if err := ord.DemoteToDraft(); err != nil {
			return err
		}
		if err := repos.OrderRepo().Save(ctx, ord); err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		r.log(ctx).Info("order demoted to draft after losing its stock",
			zap.String("order_number", ord.Number),
		)
	}
	return nil
}

// isGuardrailError reports whether err is a loss refused to protect orders
func isGuardrailError(err error) bool {
	return errors.Is(err, purchasing.ErrAdjustmentAffectsFulfilledOrders) ||
		errors.Is(err, purchasing.ErrAdjustmentAffectsPaidOrders)
}
