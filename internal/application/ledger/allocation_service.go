package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllocationService reserves stock for order lines and releases it again
type AllocationService struct {
	runtime
	router WarehouseRouter
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(txScope TransactionScope, router WarehouseRouter) *AllocationService {
	if router == nil {
		router = ShippingZoneRouter{}
	}
	return &AllocationService{
		runtime: newRuntime(txScope),
		router:  router,
	}
}

// Allocate reserves req.Quantity units for an order line across the
// warehouses the router deems eligible, in the router's preference order.
// Reservations in owned warehouses are attributed to batches FIFO.
// Either the full quantity is reserved or nothing is.
func (s *AllocationService) Allocate(ctx context.Context, req AllocateRequest) (_ []AllocationResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "allocate")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, "allocate", start, err) }()

	telemetry.SetAttributes(span,
		"order_line_id", req.OrderLineID.String(),
		telemetry.SpanAttrQuantity, req.Quantity,
	)

	if req.Quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}

	var (
		result   []AllocationResponse
		reserved []reservation
	)
	err = s.profiled(ctx, "allocate", func(ctx context.Context) error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			line, err := repos.OrderRepo().FindLineByID(ctx, req.OrderLineID)
			if err != nil {
				return err
			}
			ord, err := repos.OrderRepo().FindByID(ctx, line.OrderID)
			if err != nil {
				return err
			}
			warehouseIDs, err := s.router.EligibleWarehouses(ctx, repos.WarehouseRepo(), ord.ChannelID, req.CountryCode)
			if err != nil {
				return fmt.Errorf("failed to route order line: %w", err)
			}
			if len(warehouseIDs) == 0 {
				return inventory.NewInsufficientStockError(line.VariantID, req.Quantity, 0)
			}

			stocks, err := repos.StockRepo().LockByVariant(ctx, line.VariantID, warehouseIDs)
			if err != nil {
				return fmt.Errorf("failed to lock stock: %w", err)
			}
			warehouses, err := repos.WarehouseRepo().FindByIDs(ctx, warehouseIDs)
			if err != nil {
				return fmt.Errorf("failed to load warehouses: %w", err)
			}
			ordered := preferenceOrder(stocks, warehouseIDs)

			remaining := req.Quantity
			var touched []*inventory.Allocation
			for _, stock := range ordered {
				if remaining == 0 {
					break
				}
				take := min(remaining, stock.AvailableQuantity())
				if take == 0 {
					continue
				}
				wh := warehouses[stock.WarehouseID]
				alloc, err := s.reserve(ctx, repos, stock, wh, line.ID, take)
				if err != nil {
					return err
				}
				touched = append(touched, alloc)
				reserved = append(reserved, reservation{units: take, owned: wh != nil && wh.IsOwned})
				remaining -= take
			}
			if remaining > 0 {
				return inventory.NewInsufficientStockError(line.VariantID, req.Quantity, req.Quantity-remaining)
			}

			sources, err := repos.AllocationSourceRepo().FindByAllocations(ctx, allocationIDs(touched))
			if err != nil {
				return fmt.Errorf("failed to load allocation sources: %w", err)
			}
			for _, a := range touched {
				result = append(result, ToAllocationResponse(a, sources))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	for _, r := range reserved {
		s.metrics.RecordAllocated(ctx, r.units, r.owned)
	}
	s.log(ctx).Info("order line allocated",
		zap.String("order_line_id", req.OrderLineID.String()),
		zap.Int("quantity", req.Quantity),
		zap.Int("allocations", len(result)),
	)
	return result, nil
}

// reservation is one stock row's share of an allocation, reported once committed
type reservation struct {
	units int
	owned bool
}

// reserve takes qty units of a locked stock row for an order line
func (s *AllocationService) reserve(ctx context.Context, repos TransactionalRepositories, stock *inventory.Stock, wh *inventory.Warehouse, lineID uuid.UUID, qty int) (*inventory.Allocation, error) {
	if err := stock.Reserve(qty); err != nil {
		return nil, err
	}

	alloc, err := repos.AllocationRepo().FindByOrderLineAndStock(ctx, lineID, stock.ID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		if alloc, err = inventory.NewAllocation(lineID, stock.ID, qty); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load allocation: %w", err)
	default:
		alloc.Increase(qty)
	}
	if err := repos.AllocationRepo().Save(ctx, alloc); err != nil {
		return nil, fmt.Errorf("failed to save allocation: %w", err)
	}

	if wh != nil && wh.IsOwned {
		if err := attributeToBatches(ctx, repos, stock, alloc, qty); err != nil {
			return nil, err
		}
	}
	if err := repos.StockRepo().Save(ctx, stock); err != nil {
		return nil, fmt.Errorf("failed to save stock: %w", err)
	}
	return alloc, nil
}

// Deallocate releases req.Quantity units of an order line's reservation,
// newest allocation first and, within an allocation, newest batch first
func (s *AllocationService) Deallocate(ctx context.Context, req DeallocateRequest) (err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "deallocate")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, "deallocate", start, err) }()

	telemetry.SetAttributes(span,
		"order_line_id", req.OrderLineID.String(),
		telemetry.SpanAttrQuantity, req.Quantity,
	)

	if req.Quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}

	return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		allocs, stocks, err := lockLineAllocations(ctx, repos, []uuid.UUID{req.OrderLineID})
		if err != nil {
			return err
		}
		total := 0
		for _, a := range allocs {
			total += a.QuantityAllocated
		}
		if req.Quantity > total {
			return inventory.ErrAllocationExceeded.
				WithDetail("order_line_id", req.OrderLineID.String()).
				WithDetail("requested", req.Quantity).
				WithDetail("allocated", total)
		}

		remaining := req.Quantity
		for i := len(allocs) - 1; i >= 0 && remaining > 0; i-- {
			a := allocs[i]
			take := min(remaining, a.QuantityAllocated)
			stock := stocks[a.StockID]
			if err := releaseFromAllocation(ctx, repos, stock, a, take); err != nil {
				return err
			}
			if err := repos.StockRepo().Save(ctx, stock); err != nil {
				return fmt.Errorf("failed to save stock: %w", err)
			}
			remaining -= take
		}
		s.metrics.RecordDeallocated(ctx, req.Quantity)
		return nil
	})
}

// DeallocateOrder releases every reservation held by an order's lines
func (s *AllocationService) DeallocateOrder(ctx context.Context, orderID uuid.UUID) (err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "deallocate_order")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, "deallocate_order", start, err) }()

	telemetry.SetAttribute(span, telemetry.SpanAttrOrderID, orderID.String())

	return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		ord, err := repos.OrderRepo().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		lineIDs := make([]uuid.UUID, len(ord.Lines))
		for i, l := range ord.Lines {
			lineIDs[i] = l.ID
		}
		allocs, stocks, err := lockLineAllocations(ctx, repos, lineIDs)
		if err != nil {
			return err
		}

		released := 0
		for i := len(allocs) - 1; i >= 0; i-- {
			a := allocs[i]
			qty := a.QuantityAllocated
			stock := stocks[a.StockID]
			if err := releaseFromAllocation(ctx, repos, stock, a, qty); err != nil {
				return err
			}
			released += qty
		}
		for _, stock := range stocks {
			if err := repos.StockRepo().Save(ctx, stock); err != nil {
				return fmt.Errorf("failed to save stock: %w", err)
			}
		}
		s.metrics.RecordDeallocated(ctx, released)
		return nil
	})
}

// CanConfirmOrder reports whether every allocation of the order sits in an
// owned warehouse and is fully backed by purchase-order batches
func (s *AllocationService) CanConfirmOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "can_confirm_order")
	defer span.End()

	var ok bool
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		ord, err := repos.OrderRepo().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		ok, err = canConfirmOrder(ctx, repos, ord)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}
	telemetry.SetAttribute(span, "can_confirm", ok)
	return ok, nil
}

// GetOrderLineAllocations lists an order line's allocations with their batch attributions
func (s *AllocationService) GetOrderLineAllocations(ctx context.Context, orderLineID uuid.UUID) ([]AllocationResponse, error) {
	var result []AllocationResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		allocs, err := repos.AllocationRepo().FindByOrderLine(ctx, orderLineID)
		if err != nil {
			return err
		}
		sources, err := repos.AllocationSourceRepo().FindByAllocations(ctx, allocationIDs(allocs))
		if err != nil {
			return err
		}
		result = make([]AllocationResponse, len(allocs))
		for i, a := range allocs {
			result[i] = ToAllocationResponse(a, sources)
		}
		return nil
	})
	return result, err
}

// lockLineAllocations locks the stock rows behind the lines' allocations and
// returns the allocations as they stand under those locks
func lockLineAllocations(ctx context.Context, repos TransactionalRepositories, lineIDs []uuid.UUID) ([]*inventory.Allocation, map[uuid.UUID]*inventory.Stock, error) {
	allocs, err := repos.AllocationRepo().FindByOrderLines(ctx, lineIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	stocks, err := lockStocks(ctx, repos, allocationStockIDs(allocs))
	if err != nil {
		return nil, nil, err
	}
	if allocs, err = repos.AllocationRepo().FindByOrderLines(ctx, lineIDs); err != nil {
		return nil, nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	for _, a := range allocs {
		if stocks[a.StockID] == nil {
			return nil, nil, shared.ErrConcurrencyConflict.WithDetail("stock_id", a.StockID.String())
		}
	}
	return allocs, stocks, nil
}

// preferenceOrder sorts locked stock rows by the router's warehouse preference
func preferenceOrder(stocks []*inventory.Stock, warehouseIDs []uuid.UUID) []*inventory.Stock {
	rank := make(map[uuid.UUID]int, len(warehouseIDs))
	for i, id := range warehouseIDs {
		if _, seen := rank[id]; !seen {
			rank[id] = i
		}
	}
	ordered := slices.Clone(stocks)
	slices.SortStableFunc(ordered, func(a, b *inventory.Stock) int {
		return rank[a.WarehouseID] - rank[b.WarehouseID]
	})
	return ordered
}

func allocationStockIDs(allocs []*inventory.Allocation) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(allocs))
	for _, a := range allocs {
		if !slices.Contains(ids, a.StockID) {
			ids = append(ids, a.StockID)
		}
	}
	return ids
}

func allocationIDs(allocs []*inventory.Allocation) []uuid.UUID {
	ids := make([]uuid.UUID, len(allocs))
	for i, a := range allocs {
		ids[i] = a.ID
	}
	return ids
}
