package handler

import (
	"context"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InvariantChecker verifies stock rows against their batches
type InvariantChecker interface {
	Check(ctx context.Context, warehouseID, variantID uuid.UUID) (*ledger.InvariantReport, error)
	CheckAll(ctx context.Context) (int, []ledger.InvariantReport, error)
}

// InvariantHandler exposes the stock consistency checks
type InvariantHandler struct {
	BaseHandler
	checker InvariantChecker
}

// NewInvariantHandler creates a new InvariantHandler
func NewInvariantHandler(checker InvariantChecker) *InvariantHandler {
	return &InvariantHandler{checker: checker}
}

// InvariantSummary is the result of a full sweep
type InvariantSummary struct {
	Checked    int                      `json:"checked"`
	Valid      bool                     `json:"valid"`
	Violations []ledger.InvariantReport `json:"violations"`
}

// CheckReport wraps a single stock report
type CheckReport struct {
	ledger.InvariantReport
	Valid bool `json:"valid"`
}

// Check handles GET /warehouses/:warehouse_id/variants/:variant_id/invariants
func (h *InvariantHandler) Check(c *gin.Context) {
	warehouseID, ok := h.PathID(c, "warehouse_id")
	if !ok {
		return
	}
	variantID, ok := h.PathID(c, "variant_id")
	if !ok {
		return
	}
	report, err := h.checker.Check(c.Request.Context(), warehouseID, variantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if report.Violations == nil {
		report.Violations = []string{}
	}
	h.Success(c, CheckReport{InvariantReport: *report, Valid: report.IsValid()})
}

// CheckAll handles GET /stocks/invariants
func (h *InvariantHandler) CheckAll(c *gin.Context) {
	checked, violations, err := h.checker.CheckAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if violations == nil {
		violations = []ledger.InvariantReport{}
	}
	h.Success(c, InvariantSummary{Checked: checked, Valid: len(violations) == 0, Violations: violations})
}
