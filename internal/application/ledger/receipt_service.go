package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/erp/stockledger/internal/domain/order"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReceiptService handles inbound shipments and the physical receipt of their batches
type ReceiptService struct {
	runtime
	fulfillments FulfillmentCreator
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(txScope TransactionScope, fulfillments FulfillmentCreator) *ReceiptService {
	if fulfillments == nil {
		fulfillments = WaitingFulfillmentCreator{}
	}
	return &ReceiptService{
		runtime:      newRuntime(txScope),
		fulfillments: fulfillments,
	}
}

// CreateShipment groups confirmed batches into one inbound shipment
func (s *ReceiptService) CreateShipment(ctx context.Context, req CreateShipmentRequest) (*ShipmentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "create_shipment")
	defer span.End()

	var resp ShipmentResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		shipment, err := purchasing.NewShipment(req.Carrier, req.TrackingURL, req.ShippingCost, req.Currency)
		if err != nil {
			return err
		}
		if err := repos.ShipmentRepo().Save(ctx, shipment); err != nil {
			return fmt.Errorf("failed to save shipment: %w", err)
		}

		ids := uniqueIDs(req.PurchaseOrderItemIDs)
		pois, err := repos.PurchaseOrderItemRepo().LockByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to lock purchase order items: %w", err)
		}
		if len(pois) != len(ids) {
			return shared.ErrNotFound.WithDetail("purchase_order_item_ids", ids)
		}
		events := make([]shared.DomainEvent, 0, len(pois))
		for _, poi := range pois {
			if err := poi.AssignShipment(shipment.ID); err != nil {
				return err
			}
			if err := repos.PurchaseOrderItemRepo().Save(ctx, poi); err != nil {
				return fmt.Errorf("failed to save purchase order item: %w", err)
			}
			events = append(events, purchasing.NewShipmentAssignedEvent(shipment, poi))
		}
		s.publishAfterCommit(repos, events)
		resp = ToShipmentResponse(shipment)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// StartReceipt opens a receipt for a shipment, or resumes the one already in progress
func (s *ReceiptService) StartReceipt(ctx context.Context, req StartReceiptRequest) (*ReceiptResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "start_receipt")
	defer span.End()
	telemetry.SetAttribute(span, "shipment_id", req.ShipmentID.String())

	var resp ReceiptResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		shipment, err := repos.ShipmentRepo().FindByIDForUpdate(ctx, req.ShipmentID)
		if err != nil {
			return err
		}
		if shipment.HasArrived() {
			return shared.NewDomainErrorf("INVALID_STATE",
				"Shipment %s is already marked as received", shipment.ID)
		}

		existing, err := repos.ReceiptRepo().FindByShipment(ctx, shipment.ID)
		if err != nil {
			return fmt.Errorf("failed to load receipts: %w", err)
		}
		for _, r := range existing {
			switch r.Status {
			case purchasing.ReceiptStatusCompleted:
				return shared.NewDomainErrorf("INVALID_STATE",
					"Shipment %s already has a receipt", shipment.ID)
			case purchasing.ReceiptStatusInProgress:
				full, err := repos.ReceiptRepo().FindByID(ctx, r.ID)
				if err != nil {
					return err
				}
				resp = ToReceiptResponse(full)
				resp.Resumed = true
				return nil
			}
		}

		receipt, err := purchasing.NewReceipt(shipment, req.UserID)
		if err != nil {
			return err
		}
		if err := repos.ReceiptRepo().Save(ctx, receipt); err != nil {
			return fmt.Errorf("failed to save receipt: %w", err)
		}
		resp = ToReceiptResponse(receipt)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// ReceiveItem records scanned units of a variant on an in-progress receipt
func (s *ReceiptService) ReceiveItem(ctx context.Context, req ReceiveItemRequest) (*ReceiptLineResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "receive_item")
	defer span.End()
	telemetry.SetAttributes(span,
		"receipt_id", req.ReceiptID.String(),
		telemetry.SpanAttrQuantity, req.Quantity,
	)

	var resp ReceiptLineResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		receipt, err := repos.ReceiptRepo().FindByIDForUpdate(ctx, req.ReceiptID)
		if err != nil {
			return err
		}
		if err := receipt.EnsureInProgress(); err != nil {
			return err
		}
		poi, err := repos.PurchaseOrderItemRepo().FindByShipmentAndVariant(ctx, receipt.ShipmentID, req.VariantID)
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainErrorf("NOT_FOUND",
				"Variant %s not found in shipment %s", req.VariantID, receipt.ShipmentID)
		}
		if err != nil {
			return err
		}
		line, err := purchasing.NewReceiptLine(receipt, poi, req.Quantity, req.Notes, req.UserID)
		if err != nil {
			return err
		}
		if err := repos.ReceiptLineRepo().Save(ctx, line); err != nil {
			return fmt.Errorf("failed to save receipt line: %w", err)
		}
		resp = ToReceiptLineResponse(line)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &resp, nil
}

// GetReceipt loads a receipt with its lines
func (s *ReceiptService) GetReceipt(ctx context.Context, id uuid.UUID) (*ReceiptResponse, error) {
	var resp ReceiptResponse
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		r, err := repos.ReceiptRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		resp = ToReceiptResponse(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteReceipt discards an in-progress receipt and its scans
func (s *ReceiptService) DeleteReceipt(ctx context.Context, id uuid.UUID) error {
	return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		receipt, err := repos.ReceiptRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := receipt.EnsureInProgress(); err != nil {
			return err
		}
		return repos.ReceiptRepo().Delete(ctx, id)
	})
}

// DeleteReceiptLine removes one scan from an in-progress receipt
func (s *ReceiptService) DeleteReceiptLine(ctx context.Context, lineID uuid.UUID) error {
	return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		line, err := repos.ReceiptLineRepo().FindByID(ctx, lineID)
		if err != nil {
			return err
		}
		receipt, err := repos.ReceiptRepo().FindByIDForUpdate(ctx, line.ReceiptID)
		if err != nil {
			return err
		}
		if !receipt.IsInProgress() {
			return purchasing.NewReceiptLineNotInProgressError(line, receipt)
		}
		return repos.ReceiptLineRepo().Delete(ctx, lineID)
	})
}

// CompleteReceipt closes a receipt. Each batch whose received total differs
// from its expected quantity gets an adjustment that is applied at once in
// its own savepoint; one refused to protect confirmed or paid orders stays
// pending without blocking the receipt. Every batch is then RECEIVED, the
// shipment arrives, and confirmed orders that are now fully backed by
// received batches get fulfillments awaiting approval.
func (s *ReceiptService) CompleteReceipt(ctx context.Context, req CompleteReceiptRequest) (_ *ReceiptCompletion, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "complete_receipt")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, "complete_receipt", start, err) }()

	telemetry.SetAttribute(span, "receipt_id", req.ReceiptID.String())

	var result ReceiptCompletion
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		receipt, err := repos.ReceiptRepo().FindByIDForUpdate(ctx, req.ReceiptID)
		if err != nil {
			return err
		}
		if err := receipt.EnsureInProgress(); err != nil {
			return err
		}
		shipment, err := repos.ShipmentRepo().FindByIDForUpdate(ctx, receipt.ShipmentID)
		if err != nil {
			return err
		}

		pois, err := repos.PurchaseOrderItemRepo().FindByShipment(ctx, shipment.ID)
		if err != nil {
			return fmt.Errorf("failed to load shipment items: %w", err)
		}
		poiIDs := make([]uuid.UUID, len(pois))
		for i, p := range pois {
			poiIDs[i] = p.ID
		}
		received, err := repos.ReceiptLineRepo().SumReceived(ctx, poiIDs)
		if err != nil {
			return fmt.Errorf("failed to total received quantities: %w", err)
		}

		if err := s.reconcile(ctx, repos, pois, received, req.UserID, &result); err != nil {
			return err
		}

		now := s.now()
		events := make([]shared.DomainEvent, 0, len(pois))
		for _, id := range poiIDs {
			poi, err := repos.PurchaseOrderItemRepo().FindByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := poi.MarkReceived(); err != nil {
				return err
			}
			if err := repos.PurchaseOrderItemRepo().Save(ctx, poi); err != nil {
				return fmt.Errorf("failed to save purchase order item: %w", err)
			}
			events = append(events, purchasing.NewReceiptCompletedEvent(receipt, poi, received[id]))
		}

		shipment.MarkArrived(now)
		if err := repos.ShipmentRepo().Save(ctx, shipment); err != nil {
			return fmt.Errorf("failed to save shipment: %w", err)
		}
		if err := receipt.Complete(req.UserID, now); err != nil {
			return err
		}
		if err := repos.ReceiptRepo().Save(ctx, receipt); err != nil {
			return fmt.Errorf("failed to save receipt: %w", err)
		}
		s.publishAfterCommit(repos, events)

		if result.Fulfillments, err = s.fulfillReceivedOrders(ctx, repos, poiIDs); err != nil {
			return err
		}

		if len(result.AdjustmentsPending) > 0 {
			pending := slices.Clone(result.AdjustmentsPending)
			receiptID := receipt.ID
			s.notifyAfterCommit(repos, NotificationPendingAdjustments, func() map[string]any {
				return map[string]any{"receipt_id": receiptID.String(), "adjustments": pending}
			})
		}

		full, err := repos.ReceiptRepo().FindByID(ctx, receipt.ID)
		if err != nil {
			return err
		}
		result.Receipt = ToReceiptResponse(full)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("receipt completed",
		zap.String("receipt_id", req.ReceiptID.String()),
		zap.Int("discrepancies", len(result.Discrepancies)),
		zap.Int("adjustments_pending", len(result.AdjustmentsPending)),
		zap.Int("fulfillments", len(result.Fulfillments)),
	)
	return &result, nil
}

// reconcile creates and applies a discrepancy adjustment for every batch whose
// received total differs from its expected quantity
func (s *ReceiptService) reconcile(ctx context.Context, repos TransactionalRepositories, pois []*purchasing.PurchaseOrderItem, received map[uuid.UUID]int, by *uuid.UUID, result *ReceiptCompletion) error {
	for _, poi := range pois {
		got := received[poi.ID]
		adj, err := purchasing.NewDiscrepancyAdjustment(poi, got, by)
		if err != nil {
			return err
		}
		if adj == nil {
			continue
		}
		result.Discrepancies = append(result.Discrepancies, purchasing.Discrepancy{
			PurchaseOrderItemID: poi.ID,
			VariantID:           poi.VariantID,
			Expected:            poi.BaseQuantity(),
			Received:            got,
			Change:              adj.QuantityChange,
		})
		if err := repos.AdjustmentRepo().Save(ctx, adj); err != nil {
			return fmt.Errorf("failed to save adjustment: %w", err)
		}
		s.publishAfterCommit(repos, adj.PullDomainEvents())

		var processed *purchasing.Adjustment
		var after *purchasing.PurchaseOrderItem
		err = repos.Nested(ctx, func(inner TransactionalRepositories) error {
			var err error
			processed, after, err = s.processAdjustment(ctx, inner, adj.ID)
			return err
		})
		switch {
		case isGuardrailError(err):
			s.log(ctx).Warn("receipt adjustment left pending",
				zap.String("adjustment_id", adj.ID.String()),
				zap.String("purchase_order_item_id", poi.ID.String()),
				zap.Error(err),
			)
			s.metrics.RecordAdjustment(ctx, telemetry.AdjustmentOutcomePending)
			resp := ToAdjustmentResponse(adj, poi)
			result.AdjustmentsCreated = append(result.AdjustmentsCreated, resp)
			result.AdjustmentsPending = append(result.AdjustmentsPending, resp)
		case err != nil:
			return err
		default:
			s.metrics.RecordAdjustment(ctx, telemetry.AdjustmentOutcomeProcessed)
			result.AdjustmentsCreated = append(result.AdjustmentsCreated, ToAdjustmentResponse(processed, after))
		}
	}
	return nil
}

// fulfillReceivedOrders creates fulfillments awaiting approval for confirmed
// orders drawing on the received batches that have none yet and whose every
// allocation is fully backed by RECEIVED batches
func (s *ReceiptService) fulfillReceivedOrders(ctx context.Context, repos TransactionalRepositories, poiIDs []uuid.UUID) ([]FulfillmentResponse, error) {
	var orderIDs []uuid.UUID
	for _, id := range poiIDs {
		sources, err := repos.AllocationSourceRepo().FindByPurchaseOrderItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load allocation sources: %w", err)
		}
		for _, src := range sources {
			alloc, err := repos.AllocationRepo().FindByID(ctx, src.AllocationID)
			if err != nil {
				return nil, err
			}
			line, err := repos.OrderRepo().FindLineByID(ctx, alloc.OrderLineID)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(orderIDs, line.OrderID) {
				orderIDs = append(orderIDs, line.OrderID)
			}
		}
	}

	var created []FulfillmentResponse
	for _, id := range orderIDs {
		ord, err := repos.OrderRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if ord.Status != order.StatusUnfulfilled {
			continue
		}
		count, err := repos.FulfillmentRepo().CountByOrder(ctx, ord.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count fulfillments: %w", err)
		}
		if count > 0 {
			continue
		}
		ready, err := fullyReceived(ctx, repos, ord)
		if err != nil {
			return nil, err
		}
		if !ready {
			continue
		}

		drafts, err := fulfillmentDrafts(ctx, repos, ord)
		if err != nil {
			return nil, err
		}
		fs, err := s.fulfillments.CreateFulfillments(ctx, repos, ord, drafts)
		if err != nil {
			return nil, fmt.Errorf("failed to create fulfillments: %w", err)
		}
		for _, f := range fs {
			created = append(created, ToFulfillmentResponse(f))
		}
	}
	return created, nil
}

// fullyReceived reports whether the order could be confirmed and every batch
// backing it has been received
func fullyReceived(ctx context.Context, repos TransactionalRepositories, ord *order.Order) (bool, error) {
	ok, err := canConfirmOrder(ctx, repos, ord)
	if err != nil || !ok {
		return false, err
	}
	lineIDs := make([]uuid.UUID, len(ord.Lines))
	for i, l := range ord.Lines {
		lineIDs[i] = l.ID
	}
	allocs, err := repos.AllocationRepo().FindByOrderLines(ctx, lineIDs)
	if err != nil {
		return false, fmt.Errorf("failed to load allocations: %w", err)
	}
	sources, err := repos.AllocationSourceRepo().FindByAllocations(ctx, allocationIDs(allocs))
	if err != nil {
		return false, fmt.Errorf("failed to load allocation sources: %w", err)
	}
	batchIDs := make([]uuid.UUID, 0, len(sources))
	for _, src := range sources {
		batchIDs = append(batchIDs, src.PurchaseOrderItemID)
	}
	batches, err := repos.PurchaseOrderItemRepo().FindByIDs(ctx, batchIDs)
	if err != nil {
		return false, fmt.Errorf("failed to load purchase order items: %w", err)
	}
	for _, id := range batchIDs {
		b, ok := batches[id]
		if !ok || b.Status != purchasing.PurchaseOrderItemStatusReceived {
			return false, nil
		}
	}
	return true, nil
}
