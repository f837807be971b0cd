package ledger

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvariantChecker compares owned stock rows against the batches behind them
type InvariantChecker struct {
	runtime
}

// NewInvariantChecker creates a new InvariantChecker
func NewInvariantChecker(txScope TransactionScope) *InvariantChecker {
	return &InvariantChecker{runtime: newRuntime(txScope)}
}

// Check verifies the stock row of one warehouse-variant pair
func (c *InvariantChecker) Check(ctx context.Context, warehouseID, variantID uuid.UUID) (*InvariantReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "check_invariants")
	defer span.End()

	var report InvariantReport
	err := c.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		stock, err := repos.StockRepo().FindForUpdate(ctx, warehouseID, variantID)
		if err != nil {
			return err
		}
		report, err = checkStock(ctx, repos, stock)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return &report, nil
}

// CheckAll verifies every stock row in an owned warehouse. Violations are
// logged and reported to staff once the read completes.
func (c *InvariantChecker) CheckAll(ctx context.Context) (int, []InvariantReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "check_all_invariants")
	defer span.End()

	var checked int
	var violations []InvariantReport
	err := c.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		stocks, err := repos.StockRepo().FindInOwnedWarehouses(ctx)
		if err != nil {
			return fmt.Errorf("failed to list owned stock: %w", err)
		}
		for _, st := range stocks {
			report, err := checkStock(ctx, repos, st)
			if err != nil {
				return err
			}
			checked++
			if !report.IsValid() {
				violations = append(violations, report)
			}
		}
		if len(violations) > 0 {
			found := violations
			c.notifyAfterCommit(repos, NotificationStockInvariantViolation, func() map[string]any {
				return map[string]any{"violations": found}
			})
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, nil, err
	}

	telemetry.SetAttributes(span, "stocks_checked", checked, "violations", len(violations))
	c.metrics.RecordInvariantViolations(ctx, len(violations))
	for _, v := range violations {
		c.log(ctx).Error("stock invariant violated",
			zap.String("stock_id", v.StockID.String()),
			zap.Strings("violations", v.Violations),
		)
	}
	return checked, violations, nil
}

// checkStock compares a stock row with its active batches and checks that
// every allocation on it is exactly covered by its sources
func checkStock(ctx context.Context, repos TransactionalRepositories, stock *inventory.Stock) (InvariantReport, error) {
	report := InvariantReport{
		StockID:     stock.ID,
		WarehouseID: stock.WarehouseID,
		VariantID:   stock.VariantID,
	}

	batches, err := repos.PurchaseOrderItemRepo().FindActive(ctx, stock.WarehouseID, stock.VariantID)
	if err != nil {
		return report, fmt.Errorf("failed to load batches: %w", err)
	}
	onHand, allocated, available := 0, 0, 0
	for _, b := range batches {
		onHand += b.OnHandQuantity()
		allocated += b.QuantityAllocated
		available += b.AvailableQuantity()
	}

	if stock.Quantity != onHand {
		report.Violations = append(report.Violations,
			fmt.Sprintf("quantity %d does not match batch on-hand total %d", stock.Quantity, onHand))
	}
	if stock.QuantityAllocated != allocated {
		report.Violations = append(report.Violations,
			fmt.Sprintf("quantity_allocated %d does not match batch allocated total %d", stock.QuantityAllocated, allocated))
	}
	if free := stock.Quantity - stock.QuantityAllocated; free != available {
		report.Violations = append(report.Violations,
			fmt.Sprintf("free quantity %d does not match batch available total %d", free, available))
	}
	if err := stock.Validate(); err != nil {
		report.Violations = append(report.Violations, err.Error())
	}

	allocs, err := repos.AllocationRepo().FindByStock(ctx, stock.ID)
	if err != nil {
		return report, fmt.Errorf("failed to load allocations: %w", err)
	}
	sourced, err := sourcedQuantities(ctx, repos, allocs)
	if err != nil {
		return report, err
	}
	for _, a := range allocs {
		if got := sourced[a.ID]; got != a.QuantityAllocated {
			report.Violations = append(report.Violations,
				fmt.Sprintf("allocation %s is sourced %d of %d", a.ID, got, a.QuantityAllocated))
		}
	}
	return report, nil
}
