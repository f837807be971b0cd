package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PurchaseOrderService manages purchase orders and confirms their batches
// into owned stock
type PurchaseOrderService struct {
	runtime
}

// NewPurchaseOrderService creates a new PurchaseOrderService
func NewPurchaseOrderService(txScope TransactionScope) *PurchaseOrderService {
	return &PurchaseOrderService{runtime: newRuntime(txScope)}
}

// Create creates a purchase order with all of its items in DRAFT
func (s *PurchaseOrderService) Create(ctx context.Context, req CreatePurchaseOrderRequest) (*PurchaseOrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "create_purchase_order")
	defer span.End()

	var resp PurchaseOrderResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		source, err := repos.WarehouseRepo().FindByID(ctx, req.SourceWarehouseID)
		if err != nil {
			return err
		}
		destination, err := repos.WarehouseRepo().FindByID(ctx, req.DestinationWarehouseID)
		if err != nil {
			return err
		}

		po, err := purchasing.NewPurchaseOrder(source, destination)
		if err != nil {
			return err
		}
		for _, item := range req.Items {
			if _, err := po.AddItem(item.VariantID, item.Quantity, item.TotalPrice, item.Currency, item.CountryOfOrigin); err != nil {
				return err
			}
		}
		po.MarkCreated()

		if err := repos.PurchaseOrderRepo().Save(ctx, po); err != nil {
			return fmt.Errorf("failed to save purchase order: %w", err)
		}
		s.publishAfterCommit(repos, po.PullDomainEvents())
		resp = ToPurchaseOrderResponse(po)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, "purchase_order_id", resp.ID.String())
	return &resp, nil
}

// GetByID loads a purchase order with its items
func (s *PurchaseOrderService) GetByID(ctx context.Context, id uuid.UUID) (*PurchaseOrderResponse, error) {
	var resp PurchaseOrderResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		po, err := repos.PurchaseOrderRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		resp = ToPurchaseOrderResponse(po)
		return withReceived(ctx, repos, resp.Items)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelItem drops a DRAFT batch. Confirmed batches cannot be cancelled here;
// their stock has already moved.
func (s *PurchaseOrderService) CancelItem(ctx context.Context, poiID uuid.UUID) (*PurchaseOrderItemResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "cancel_purchase_order_item")
	defer span.End()

	var resp PurchaseOrderItemResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		poi, err := repos.PurchaseOrderItemRepo().FindByIDForUpdate(ctx, poiID)
		if err != nil {
			return err
		}
		if err := poi.Cancel(); err != nil {
			return err
		}
		if err := repos.PurchaseOrderItemRepo().Save(ctx, poi); err != nil {
			return fmt.Errorf("failed to save purchase order item: %w", err)
		}
		s.publishAfterCommit(repos, []shared.DomainEvent{purchasing.NewPurchaseOrderItemCancelledEvent(poi)})
		resp = ToPurchaseOrderItemResponse(poi)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// withReceived fills QuantityReceived from the receipt lines scanned so far
func withReceived(ctx context.Context, repos TransactionalRepositories, items []PurchaseOrderItemResponse) error {
	ids := make([]uuid.UUID, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	received, err := repos.ReceiptLineRepo().SumReceived(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to sum received quantities: %w", err)
	}
	for i := range items {
		items[i].QuantityReceived = received[items[i].ID]
	}
	return nil
}

// confirmation carries the state of one ConfirmItem call through its steps
type confirmation struct {
	poi         *purchasing.PurchaseOrderItem
	source      *inventory.Stock
	destination *inventory.Stock
	event       *purchasing.PurchaseOrderItemConfirmedEvent
	touched     []uuid.UUID
}

func (c *confirmation) touch(orderID uuid.UUID) {
	for _, id := range c.touched {
		if id == orderID {
			return
		}
	}
	c.touched = append(c.touched, orderID)
}

// ConfirmItem confirms a DRAFT batch: its units move from the supplier stock
// row to the owned destination row, supplier-side allocations follow them up
// to the destination's free capacity and are sourced FIFO, and every touched
// order that is now fully sourced is confirmed if its channel allows it.
// All of it commits or rolls back together.
func (s *PurchaseOrderService) ConfirmItem(ctx context.Context, poiID uuid.UUID) (_ *ConfirmationResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "confirm_purchase_order_item")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, "confirm_purchase_order_item", start, err) }()

	telemetry.SetAttribute(span, "purchase_order_item_id", poiID.String())

	var result ConfirmationResult
	err = s.profiled(ctx, "confirm_purchase_order_item", func(ctx context.Context) error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			c, err := s.lockForConfirmation(ctx, repos, poiID)
			if err != nil {
				return err
			}

			allocs, err := repos.AllocationRepo().FindByStockForUpdate(ctx, c.source.ID)
			if err != nil {
				return fmt.Errorf("failed to lock supplier allocations: %w", err)
			}
			lineOrders, err := s.ensureUnlockedOrders(ctx, repos, c.source.ID, allocs)
			if err != nil {
				return err
			}

			qty := c.poi.QuantityOrdered
			c.source.Withdraw(qty)
			c.destination.Increase(qty)
			if err := c.poi.Confirm(s.now()); err != nil {
				return err
			}
			if err := repos.PurchaseOrderItemRepo().Save(ctx, c.poi); err != nil {
				return fmt.Errorf("failed to save purchase order item: %w", err)
			}
			c.event = purchasing.NewPurchaseOrderItemConfirmedEvent(c.poi, c.source.ID, c.destination.ID)

			if err := s.migrateAllocations(ctx, repos, c, allocs, lineOrders); err != nil {
				return err
			}
			if err := repos.StockRepo().Save(ctx, c.source); err != nil {
				return fmt.Errorf("failed to save supplier stock: %w", err)
			}
			if err := repos.StockRepo().Save(ctx, c.destination); err != nil {
				return fmt.Errorf("failed to save destination stock: %w", err)
			}

			confirmed, err := s.autoConfirmOrders(ctx, repos, c.touched)
			if err != nil {
				return err
			}
			c.event.OrdersAutoConfirmed = confirmed
			s.publishAfterCommit(repos, []shared.DomainEvent{c.event})

			poi, err := repos.PurchaseOrderItemRepo().FindByID(ctx, poiID)
			if err != nil {
				return err
			}
			items := []PurchaseOrderItemResponse{ToPurchaseOrderItemResponse(poi)}
			if err := withReceived(ctx, repos, items); err != nil {
				return err
			}
			result = ConfirmationResult{
				Item:                items[0],
				AllocationsMigrated: c.event.AllocationsMigrated,
				QuantityMigrated:    c.event.QuantityMigrated,
				OrdersAutoConfirmed: confirmed,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordConfirmation(ctx, result.AllocationsMigrated, len(result.OrdersAutoConfirmed))
	s.log(ctx).Info("purchase order item confirmed",
		zap.String("purchase_order_item_id", poiID.String()),
		zap.Int("allocations_migrated", result.AllocationsMigrated),
		zap.Int("quantity_migrated", result.QuantityMigrated),
		zap.Strings("orders_auto_confirmed", result.OrdersAutoConfirmed),
	)
	return &result, nil
}

// lockForConfirmation validates the batch and takes its locks in order:
// supplier stock, destination stock, then the batch itself
func (s *PurchaseOrderService) lockForConfirmation(ctx context.Context, repos TransactionalRepositories, poiID uuid.UUID) (*confirmation, error) {
	poi, err := repos.PurchaseOrderItemRepo().FindByID(ctx, poiID)
	if err != nil {
		return nil, err
	}
	if poi.Status != purchasing.PurchaseOrderItemStatusDraft {
		return nil, purchasing.NewInvalidPurchaseOrderItemStatusError(poi, purchasing.PurchaseOrderItemStatusDraft)
	}
	po, err := repos.PurchaseOrderRepo().FindByID(ctx, poi.PurchaseOrderID)
	if err != nil {
		return nil, err
	}
	warehouses, err := repos.WarehouseRepo().FindByIDs(ctx, []uuid.UUID{po.SourceWarehouseID, po.DestinationWarehouseID})
	if err != nil {
		return nil, fmt.Errorf("failed to load warehouses: %w", err)
	}
	sourceWh, destWh := warehouses[po.SourceWarehouseID], warehouses[po.DestinationWarehouseID]
	if sourceWh == nil || sourceWh.IsOwned {
		return nil, shared.ErrValidation.WithDetail("reason", "source warehouse must be a supplier warehouse").
			WithDetail("warehouse_id", po.SourceWarehouseID.String())
	}
	if destWh == nil || !destWh.IsOwned {
		return nil, shared.ErrValidation.WithDetail("reason", "destination warehouse must be an owned warehouse").
			WithDetail("warehouse_id", po.DestinationWarehouseID.String())
	}

	source, err := repos.StockRepo().FindForUpdate(ctx, po.SourceWarehouseID, poi.VariantID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrValidation.WithDetail("reason", "supplier warehouse holds no stock for the variant").
			WithDetail("warehouse_id", po.SourceWarehouseID.String()).
			WithDetail("variant_id", poi.VariantID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock supplier stock: %w", err)
	}
	destination, err := repos.StockRepo().GetOrCreateForUpdate(ctx, po.DestinationWarehouseID, poi.VariantID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock destination stock: %w", err)
	}

	if poi, err = repos.PurchaseOrderItemRepo().FindByIDForUpdate(ctx, poiID); err != nil {
		return nil, err
	}
	if poi.Status != purchasing.PurchaseOrderItemStatusDraft {
		return nil, purchasing.NewInvalidPurchaseOrderItemStatusError(poi, purchasing.PurchaseOrderItemStatusDraft)
	}

	if covered := source.Quantity + source.QuantityAllocated; covered < poi.QuantityOrdered {
		return nil, shared.ErrValidation.WithDetail("reason", "supplier stock does not cover the ordered quantity").
			WithDetail("stock_id", source.ID.String()).
			WithDetail("ordered", poi.QuantityOrdered).
			WithDetail("available", covered)
	}
	return &confirmation{poi: poi, source: source, destination: destination}, nil
}

// ensureUnlockedOrders maps each allocation's order line to its order and
// fails if any order is past the unconfirmed stage
func (s *PurchaseOrderService) ensureUnlockedOrders(ctx context.Context, repos TransactionalRepositories, stockID uuid.UUID, allocs []*inventory.Allocation) (map[uuid.UUID]*order.Order, error) {
	lineIDs := make([]uuid.UUID, len(allocs))
	for i, a := range allocs {
		lineIDs[i] = a.OrderLineID
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

	byLine := make(map[uuid.UUID]*order.Order, len(lines))
	for _, a := range allocs {
		line, ok := lines[a.OrderLineID]
		if !ok {
			return nil, shared.ErrNotFound.WithDetail("order_line_id", a.OrderLineID.String())
		}
		ord, ok := orders[line.OrderID]
		if !ok {
			return nil, shared.ErrNotFound.WithDetail("order_id", line.OrderID.String())
		}
		if ord.IsLocked() {
			s.log(ctx).Error("locked order allocated against supplier stock",
				zap.String("stock_id", stockID.String()),
				zap.String("order_number", ord.Number),
				zap.String("order_status", ord.Status.String()),
			)
			return nil, purchasing.NewAllocationInvariantViolationError(stockID, ord.Number, ord.Status.String())
		}
		byLine[a.OrderLineID] = ord
	}
	return byLine, nil
}

// migrateAllocations moves supplier-side allocations onto the destination
// row, oldest order line first, until the destination has no free capacity.
// The last allocation moved may be split.
func (s *PurchaseOrderService) migrateAllocations(ctx context.Context, repos TransactionalRepositories, c *confirmation, allocs []*inventory.Allocation, lineOrders map[uuid.UUID]*order.Order) error {
	capacity := c.destination.AvailableQuantity()
	for _, a := range allocs {
		if capacity == 0 {
			break
		}
		move := min(a.QuantityAllocated, capacity)
		if move == 0 {
			continue
		}

		target, err := repos.AllocationRepo().FindByOrderLineAndStock(ctx, a.OrderLineID, c.destination.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("failed to load destination allocation: %w", err)
		}
		merge := err == nil

		switch {
		case merge:
			target.Increase(move)
			if err := a.Decrease(move); err != nil {
				return err
			}
			if a.IsEmpty() {
				err = repos.AllocationRepo().Delete(ctx, a.ID)
			} else {
				err = repos.AllocationRepo().Save(ctx, a)
			}
			if err != nil {
				return fmt.Errorf("failed to update supplier allocation: %w", err)
			}
		case move == a.QuantityAllocated:
			a.MoveTo(c.destination.ID)
			target = a
		default:
			if target, err = inventory.NewAllocation(a.OrderLineID, c.destination.ID, move); err != nil {
				return err
			}
			if err := a.Decrease(move); err != nil {
				return err
			}
			if err := repos.AllocationRepo().Save(ctx, a); err != nil {
				return fmt.Errorf("failed to shrink supplier allocation: %w", err)
			}
		}
		if err := repos.AllocationRepo().Save(ctx, target); err != nil {
			return fmt.Errorf("failed to save migrated allocation: %w", err)
		}

		if err := c.source.Release(move); err != nil {
			return err
		}
		if err := c.destination.Reserve(move); err != nil {
			return err
		}
		if err := attributeToBatches(ctx, repos, c.destination, target, move); err != nil {
			return err
		}

		capacity -= move
		c.event.AllocationsMigrated++
		c.event.QuantityMigrated += move
		c.touch(lineOrders[a.OrderLineID].ID)
	}
	return nil
}

// autoConfirmOrders confirms each touched UNCONFIRMED order that is now fully
// sourced and whose channel confirms automatically. No fulfillment is created
// here: the goods are still in transit until a receipt completes.
// Confirmation notices go out after commit.
func (s *PurchaseOrderService) autoConfirmOrders(ctx context.Context, repos TransactionalRepositories, orderIDs []uuid.UUID) ([]string, error) {
	var confirmed []string
	for _, id := range orderIDs {
		ord, err := repos.OrderRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if ord.Status != order.StatusUnconfirmed {
			continue
		}
		channel, err := repos.ChannelRepo().FindByID(ctx, ord.ChannelID)
		if err != nil {
			return nil, err
		}
		if !channel.AutomaticallyConfirmAllNewOrders {
			continue
		}
		ok, err := canConfirmOrder(ctx, repos, ord)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if err := ord.Confirm(); err != nil {
			return nil, err
		}
		if err := repos.OrderRepo().Save(ctx, ord); err != nil {
			return nil, fmt.Errorf("failed to save order: %w", err)
		}

		number, orderID := ord.Number, ord.ID
		s.notifyAfterCommit(repos, NotificationOrderConfirmed, func() map[string]any {
			return map[string]any{"order_id": orderID.String(), "order_number": number}
		})
		confirmed = append(confirmed, ord.Number)
	}
	return confirmed, nil
}
