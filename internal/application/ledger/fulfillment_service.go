package ledger

import (
	"bytes"
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

// WaitingFulfillmentCreator creates one WAITING_FOR_APPROVAL fulfillment per
// warehouse. Nothing is shipped until the fulfillment is approved.
type WaitingFulfillmentCreator struct{}

// CreateFulfillments implements FulfillmentCreator
func (WaitingFulfillmentCreator) CreateFulfillments(ctx context.Context, repos TransactionalRepositories, ord *order.Order, lines map[uuid.UUID][]FulfillmentLineDraft) ([]*order.Fulfillment, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	existing, err := repos.FulfillmentRepo().CountByOrder(ctx, ord.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count fulfillments: %w", err)
	}

	warehouseIDs := make([]uuid.UUID, 0, len(lines))
	for id := range lines {
		warehouseIDs = append(warehouseIDs, id)
	}
	slices.SortFunc(warehouseIDs, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})

	created := make([]*order.Fulfillment, 0, len(warehouseIDs))
	for i, whID := range warehouseIDs {
		f := order.NewFulfillment(ord.ID, whID, int(existing)+i+1)
		for _, d := range lines[whID] {
			if _, err := f.AddLine(d.OrderLineID, d.StockID, d.Quantity); err != nil {
				return nil, err
			}
		}
		if err := repos.FulfillmentRepo().Save(ctx, f); err != nil {
			return nil, fmt.Errorf("failed to save fulfillment: %w", err)
		}
		created = append(created, f)
	}
	return created, nil
}

// fulfillmentDrafts groups the order's allocations by warehouse
func fulfillmentDrafts(ctx context.Context, repos TransactionalRepositories, ord *order.Order) (map[uuid.UUID][]FulfillmentLineDraft, error) {
	lineIDs := make([]uuid.UUID, len(ord.Lines))
	for i, l := range ord.Lines {
		lineIDs[i] = l.ID
	}
	allocs, err := repos.AllocationRepo().FindByOrderLines(ctx, lineIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	stocks, err := repos.StockRepo().FindByIDs(ctx, allocationStockIDs(allocs))
	if err != nil {
		return nil, fmt.Errorf("failed to load stocks: %w", err)
	}

	drafts := make(map[uuid.UUID][]FulfillmentLineDraft)
	for _, a := range allocs {
		st, ok := stocks[a.StockID]
		if !ok {
			return nil, shared.ErrNotFound.WithDetail("stock_id", a.StockID.String())
		}
		drafts[st.WarehouseID] = append(drafts[st.WarehouseID], FulfillmentLineDraft{
			OrderLineID: a.OrderLineID,
			StockID:     a.StockID,
			Quantity:    a.QuantityAllocated,
		})
	}
	return drafts, nil
}

// FulfillmentService ships approved fulfillments out of owned stock
type FulfillmentService struct {
	runtime
}

// NewFulfillmentService creates a new FulfillmentService
func NewFulfillmentService(txScope TransactionScope) *FulfillmentService {
	return &FulfillmentService{runtime: newRuntime(txScope)}
}

// Approve ships a waiting fulfillment. Each line consumes its allocation,
// oldest batch first; every batch involved must already be RECEIVED.
func (s *FulfillmentService) Approve(ctx context.Context, fulfillmentID uuid.UUID) (_ *FulfillmentResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "approve_fulfillment")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, "approve_fulfillment", start, err) }()

	telemetry.SetAttribute(span, "fulfillment_id", fulfillmentID.String())

	var resp FulfillmentResponse
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		f, err := repos.FulfillmentRepo().FindByIDForUpdate(ctx, fulfillmentID)
		if err != nil {
			return err
		}
		if f.Status != order.FulfillmentStatusWaitingForApproval {
			return shared.NewDomainErrorf("INVALID_STATE",
				"Fulfillment %s is %s, not waiting for approval", f.ID, f.Status)
		}

		stockIDs := make([]uuid.UUID, 0, len(f.Lines))
		for _, l := range f.Lines {
			if !slices.Contains(stockIDs, l.StockID) {
				stockIDs = append(stockIDs, l.StockID)
			}
		}
		stocks, err := lockStocks(ctx, repos, stockIDs)
		if err != nil {
			return err
		}

		ord, err := repos.OrderRepo().FindByIDForUpdate(ctx, f.OrderID)
		if err != nil {
			return err
		}

		for i := range f.Lines {
			if err := s.shipLine(ctx, repos, ord, &f.Lines[i], stocks[f.Lines[i].StockID]); err != nil {
				return err
			}
		}

		if err := f.Approve(); err != nil {
			return err
		}
		ord.RefreshFulfillmentStatus()

		for _, st := range stocks {
			if err := repos.StockRepo().Save(ctx, st); err != nil {
				return fmt.Errorf("failed to save stock: %w", err)
			}
		}
		if err := repos.OrderRepo().Save(ctx, ord); err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		if err := repos.FulfillmentRepo().Save(ctx, f); err != nil {
			return fmt.Errorf("failed to save fulfillment: %w", err)
		}
		resp = ToFulfillmentResponse(f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("fulfillment approved",
		zap.String("fulfillment_id", fulfillmentID.String()),
		zap.String("order_id", resp.OrderID.String()),
	)
	return &resp, nil
}

// shipLine moves one fulfillment line's units out of its allocation and batches
func (s *FulfillmentService) shipLine(ctx context.Context, repos TransactionalRepositories, ord *order.Order, fl *order.FulfillmentLine, stock *inventory.Stock) error {
	var line *order.OrderLine
	for i := range ord.Lines {
		if ord.Lines[i].ID == fl.OrderLineID {
			line = &ord.Lines[i]
			break
		}
	}
	if line == nil {
		return shared.ErrNotFound.WithDetail("order_line_id", fl.OrderLineID.String())
	}

	alloc, err := repos.AllocationRepo().FindByOrderLineAndStock(ctx, fl.OrderLineID, fl.StockID)
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewDomainErrorf("INVALID_STATE",
			"Order line %s has no allocation on stock %s", fl.OrderLineID, fl.StockID)
	}
	if err != nil {
		return fmt.Errorf("failed to load allocation: %w", err)
	}
	if fl.Quantity > alloc.QuantityAllocated {
		return inventory.ErrAllocationExceeded.
			WithDetail("allocation_id", alloc.ID.String()).
			WithDetail("requested", fl.Quantity).
			WithDetail("allocated", alloc.QuantityAllocated)
	}

	sources, err := repos.AllocationSourceRepo().FindByAllocation(ctx, alloc.ID)
	if err != nil {
		return fmt.Errorf("failed to load allocation sources: %w", err)
	}
	draws := make([]inventory.Draw, 0, len(sources))
	remaining := fl.Quantity
	for _, src := range sources {
		if remaining == 0 {
			break
		}
		take := min(remaining, src.Quantity)
		draws = append(draws, inventory.Draw{BatchID: src.PurchaseOrderItemID, SourceID: src.ID, Quantity: take})
		remaining -= take
	}
	if remaining > 0 {
		return shared.NewDomainErrorf("INVALID_STATE",
			"Allocation %s is not fully backed by purchase order batches", alloc.ID)
	}

	batches, err := lockBatches(ctx, repos, draws)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*inventory.AllocationSource, len(sources))
	for _, src := range sources {
		byID[src.ID] = src
	}
	for _, d := range draws {
		poi := batches[d.BatchID]
		if poi.Status != purchasing.PurchaseOrderItemStatusReceived {
			return purchasing.NewInvalidPurchaseOrderItemStatusError(poi, purchasing.PurchaseOrderItemStatusReceived)
		}
		if err := poi.Fulfill(d.Quantity); err != nil {
			return err
		}
		if err := shrinkSource(ctx, repos, byID[d.SourceID], d.Quantity); err != nil {
			return err
		}
		fs, err := inventory.NewFulfillmentSource(fl.ID, poi.ID, d.Quantity)
		if err != nil {
			return err
		}
		if err := repos.FulfillmentSourceRepo().Save(ctx, fs); err != nil {
			return fmt.Errorf("failed to save fulfillment source: %w", err)
		}
	}
	for _, poi := range batches {
		if err := repos.PurchaseOrderItemRepo().Save(ctx, poi); err != nil {
			return fmt.Errorf("failed to save purchase order item: %w", err)
		}
	}

	if err := stock.Ship(fl.Quantity); err != nil {
		return err
	}
	if err := alloc.Decrease(fl.Quantity); err != nil {
		return err
	}
	if alloc.IsEmpty() {
		if err := repos.AllocationRepo().Delete(ctx, alloc.ID); err != nil {
			return fmt.Errorf("failed to delete allocation: %w", err)
		}
	} else if err := repos.AllocationRepo().Save(ctx, alloc); err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return line.Fulfill(fl.Quantity)
}
