package ledger

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// attributeToBatches backs qty units of alloc with the oldest active batches
// of the stock row's warehouse and variant, growing the allocation's existing
// attribution to a batch instead of adding a second one. The stock row must
// already be locked; the batch rows are locked here.
func attributeToBatches(ctx context.Context, repos TransactionalRepositories, stock *inventory.Stock, alloc *inventory.Allocation, qty int) error {
	batches, err := repos.PurchaseOrderItemRepo().LockActiveForSourcing(ctx, stock.WarehouseID, stock.VariantID)
	if err != nil {
		return fmt.Errorf("failed to lock batches: %w", err)
	}

	capacities := make([]inventory.BatchCapacity, len(batches))
	byID := make(map[uuid.UUID]*purchasing.PurchaseOrderItem, len(batches))
	for i, b := range batches {
		capacities[i] = inventory.BatchCapacity{BatchID: b.ID, Available: b.AvailableQuantity()}
		byID[b.ID] = b
	}

	draws, short := inventory.PlanFIFO(capacities, qty)
	if short > 0 {
		return inventory.NewInsufficientStockError(stock.VariantID, qty, qty-short)
	}

	existing, err := repos.AllocationSourceRepo().FindByAllocation(ctx, alloc.ID)
	if err != nil {
		return fmt.Errorf("failed to load allocation sources: %w", err)
	}
	held := make(map[uuid.UUID]*inventory.AllocationSource, len(existing))
	for _, src := range existing {
		held[src.PurchaseOrderItemID] = src
	}

	for _, d := range draws {
		poi := byID[d.BatchID]
		if err := poi.Allocate(d.Quantity); err != nil {
			return err
		}
		if err := repos.PurchaseOrderItemRepo().Save(ctx, poi); err != nil {
			return fmt.Errorf("failed to save purchase order item: %w", err)
		}
		src, ok := held[poi.ID]
		if ok {
			src.Grow(d.Quantity)
		} else if src, err = inventory.NewAllocationSource(alloc.ID, poi.ID, d.Quantity); err != nil {
			return err
		}
		if err := repos.AllocationSourceRepo().Save(ctx, src); err != nil {
			return fmt.Errorf("failed to save allocation source: %w", err)
		}
	}
	return nil
}

// releaseFromAllocation gives back qty units of alloc, newest batch attribution
// first. The stock row must already be locked. Empty sources and allocations
// are deleted.
func releaseFromAllocation(ctx context.Context, repos TransactionalRepositories, stock *inventory.Stock, alloc *inventory.Allocation, qty int) error {
	if qty > alloc.QuantityAllocated {
		return inventory.ErrAllocationExceeded.WithDetail("allocation_id", alloc.ID.String()).
			WithDetail("requested", qty).
			WithDetail("allocated", alloc.QuantityAllocated)
	}

	sources, err := repos.AllocationSourceRepo().FindByAllocation(ctx, alloc.ID)
	if err != nil {
		return fmt.Errorf("failed to load allocation sources: %w", err)
	}
	if len(sources) > 0 {
		if err := releaseSources(ctx, repos, sources, qty); err != nil {
			return err
		}
	}

	if err := stock.Release(qty); err != nil {
		return err
	}
	if err := alloc.Decrease(qty); err != nil {
		return err
	}
	if alloc.IsEmpty() {
		return repos.AllocationRepo().Delete(ctx, alloc.ID)
	}
	return repos.AllocationRepo().Save(ctx, alloc)
}

// releaseSources shrinks sources LIFO by qty and hands the units back to their batches
func releaseSources(ctx context.Context, repos TransactionalRepositories, sources []*inventory.AllocationSource, qty int) error {
	holdings := make([]inventory.SourceHolding, len(sources))
	byID := make(map[uuid.UUID]*inventory.AllocationSource, len(sources))
	for i, s := range sources {
		holdings[i] = inventory.SourceHolding{SourceID: s.ID, BatchID: s.PurchaseOrderItemID, Quantity: s.Quantity}
		byID[s.ID] = s
	}
	releases, _ := inventory.PlanLIFORelease(holdings, qty)

	batches, err := lockBatches(ctx, repos, releases)
	if err != nil {
		return err
	}
	for _, r := range releases {
		poi := batches[r.BatchID]
		if err := poi.ReleaseAllocation(r.Quantity); err != nil {
			return err
		}
		if err := shrinkSource(ctx, repos, byID[r.SourceID], r.Quantity); err != nil {
			return err
		}
	}
	for _, poi := range batches {
		if err := repos.PurchaseOrderItemRepo().Save(ctx, poi); err != nil {
			return fmt.Errorf("failed to save purchase order item: %w", err)
		}
	}
	return nil
}

func shrinkSource(ctx context.Context, repos TransactionalRepositories, src *inventory.AllocationSource, qty int) error {
	if err := src.Shrink(qty); err != nil {
		return err
	}
	if src.Quantity == 0 {
		return repos.AllocationSourceRepo().Delete(ctx, src.ID)
	}
	return repos.AllocationSourceRepo().Save(ctx, src)
}

// lockBatches locks the batches named by the draws, in id order
func lockBatches(ctx context.Context, repos TransactionalRepositories, draws []inventory.Draw) (map[uuid.UUID]*purchasing.PurchaseOrderItem, error) {
	ids := make([]uuid.UUID, 0, len(draws))
	seen := make(map[uuid.UUID]bool, len(draws))
	for _, d := range draws {
		if !seen[d.BatchID] {
			seen[d.BatchID] = true
			ids = append(ids, d.BatchID)
		}
	}
	locked, err := repos.PurchaseOrderItemRepo().LockByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock purchase order items: %w", err)
	}
	byID := make(map[uuid.UUID]*purchasing.PurchaseOrderItem, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if byID[id] == nil {
			return nil, shared.ErrNotFound.WithDetail("purchase_order_item_id", id.String())
		}
	}
	return byID, nil
}

// lockStocks locks the stock rows in lock order and keys them by id
func lockStocks(ctx context.Context, repos TransactionalRepositories, ids []uuid.UUID) (map[uuid.UUID]*inventory.Stock, error) {
	locked, err := repos.StockRepo().LockByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock: %w", err)
	}
	stocks := make(map[uuid.UUID]*inventory.Stock, len(locked))
	for _, st := range locked {
		stocks[st.ID] = st
	}
	for _, id := range ids {
		if stocks[id] == nil {
			return nil, shared.ErrNotFound.WithDetail("stock_id", id.String())
		}
	}
	return stocks, nil
}

// canConfirmOrder holds when the order has at least one allocation and every
// allocation sits in an owned warehouse and is exactly covered by its sources
func canConfirmOrder(ctx context.Context, repos TransactionalRepositories, ord *order.Order) (bool, error) {
	lineIDs := make([]uuid.UUID, len(ord.Lines))
	for i, l := range ord.Lines {
		lineIDs[i] = l.ID
	}
	if len(lineIDs) == 0 {
		return false, nil
	}

	allocs, err := repos.AllocationRepo().FindByOrderLines(ctx, lineIDs)
	if err != nil {
		return false, fmt.Errorf("failed to load allocations: %w", err)
	}
	if len(allocs) == 0 {
		return false, nil
	}

	owned, err := ownedStocks(ctx, repos, allocs)
	if err != nil {
		return false, err
	}
	sourced, err := sourcedQuantities(ctx, repos, allocs)
	if err != nil {
		return false, err
	}

	for _, a := range allocs {
		if !owned[a.StockID] {
			return false, nil
		}
		if sourced[a.ID] != a.QuantityAllocated {
			return false, nil
		}
	}
	return true, nil
}

// ownedStocks reports, per stock id, whether the stock sits in an owned warehouse
func ownedStocks(ctx context.Context, repos TransactionalRepositories, allocs []*inventory.Allocation) (map[uuid.UUID]bool, error) {
	stockIDs := make([]uuid.UUID, 0, len(allocs))
	for _, a := range allocs {
		stockIDs = append(stockIDs, a.StockID)
	}
	stocks, err := repos.StockRepo().FindByIDs(ctx, stockIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load stocks: %w", err)
	}
	warehouseIDs := make([]uuid.UUID, 0, len(stocks))
	for _, s := range stocks {
		warehouseIDs = append(warehouseIDs, s.WarehouseID)
	}
	warehouses, err := repos.WarehouseRepo().FindByIDs(ctx, warehouseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load warehouses: %w", err)
	}

	owned := make(map[uuid.UUID]bool, len(stocks))
	for id, s := range stocks {
		if wh, ok := warehouses[s.WarehouseID]; ok && wh.IsOwned {
			owned[id] = true
		}
	}
	return owned, nil
}

// sourcedQuantities sums source quantities per allocation id
func sourcedQuantities(ctx context.Context, repos TransactionalRepositories, allocs []*inventory.Allocation) (map[uuid.UUID]int, error) {
	ids := make([]uuid.UUID, len(allocs))
	for i, a := range allocs {
		ids[i] = a.ID
	}
	sources, err := repos.AllocationSourceRepo().FindByAllocations(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation sources: %w", err)
	}
	sums := make(map[uuid.UUID]int, len(allocs))
	for _, s := range sources {
		sums[s.AllocationID] += s.Quantity
	}
	return sums, nil
}

// uniqueIDs drops repeated ids, keeping first occurrences in order
func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
