package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func allocationEngine(svc AllocationService) *gin.Engine {
	r := newEngine()
	h := NewAllocationHandler(svc)
	r.POST("/allocations", h.Allocate)
	r.POST("/allocations/release", h.Deallocate)
	r.GET("/order-lines/:id/allocations", h.GetOrderLineAllocations)
	r.GET("/orders/:id/can-confirm", h.CanConfirmOrder)
	r.POST("/orders/:id/deallocate", h.DeallocateOrder)
	return r
}

func TestAllocationHandler_Allocate(t *testing.T) {
	svc := new(mockAllocationService)
	r := allocationEngine(svc)

	lineID := uuid.New()
	svc.On("Allocate", mock.Anything, ledger.AllocateRequest{OrderLineID: lineID, Quantity: 5, CountryCode: "DE"}).
		Return([]ledger.AllocationResponse{{OrderLineID: lineID, QuantityAllocated: 5}}, nil)

	w := perform(r, http.MethodPost, "/allocations",
		fmt.Sprintf(`{"order_line_id":%q,"quantity":5,"country_code":"DE"}`, lineID))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var got []ledger.AllocationResponse
	decodeResponse(t, w, &got)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].QuantityAllocated)
}

func TestAllocationHandler_Allocate_Insufficient(t *testing.T) {
	svc := new(mockAllocationService)
	r := allocationEngine(svc)

	svc.On("Allocate", mock.Anything, mock.Anything).Return(nil, shared.ErrInsufficientStock)

	w := perform(r, http.MethodPost, "/allocations",
		fmt.Sprintf(`{"order_line_id":%q,"quantity":500}`, uuid.New()))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", decodeResponse(t, w, nil).Error.Code)
}

func TestAllocationHandler_Deallocate(t *testing.T) {
	svc := new(mockAllocationService)
	r := allocationEngine(svc)

	lineID := uuid.New()
	svc.On("Deallocate", mock.Anything, ledger.DeallocateRequest{OrderLineID: lineID, Quantity: 2}).Return(nil).Once()
	svc.On("Deallocate", mock.Anything, ledger.DeallocateRequest{OrderLineID: lineID, Quantity: 99}).
		Return(inventory.ErrAllocationExceeded).Once()

	assert.Equal(t, http.StatusNoContent,
		perform(r, http.MethodPost, "/allocations/release", fmt.Sprintf(`{"order_line_id":%q,"quantity":2}`, lineID)).Code)

	w := perform(r, http.MethodPost, "/allocations/release", fmt.Sprintf(`{"order_line_id":%q,"quantity":99}`, lineID))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "ALLOCATION_EXCEEDED", decodeResponse(t, w, nil).Error.Code)
	svc.AssertExpectations(t)
}

func TestAllocationHandler_CanConfirmOrder(t *testing.T) {
	svc := new(mockAllocationService)
	r := allocationEngine(svc)

	orderID := uuid.New()
	svc.On("CanConfirmOrder", mock.Anything, orderID).Return(true, nil)

	w := perform(r, http.MethodGet, "/orders/"+orderID.String()+"/can-confirm", "")

	require.Equal(t, http.StatusOK, w.Code)
	var got CanConfirmResponse
	decodeResponse(t, w, &got)
	assert.Equal(t, orderID, got.OrderID)
	assert.True(t, got.CanConfirm)
}

func TestAllocationHandler_DeallocateOrder_CarriesRequestID(t *testing.T) {
	svc := new(mockAllocationService)
	r := allocationEngine(svc)

	orderID := uuid.New()
	var requestID string
	svc.On("DeallocateOrder", mock.Anything, orderID).Return(nil).Run(func(args mock.Arguments) {
		requestID = logger.RequestID(args.Get(0).(context.Context))
	})

	w := perform(r, http.MethodPost, "/orders/"+orderID.String()+"/deallocate", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-test", requestID)
	svc.AssertExpectations(t)
}

func TestAllocationHandler_GetOrderLineAllocations(t *testing.T) {
	svc := new(mockAllocationService)
	r := allocationEngine(svc)

	lineID := uuid.New()
	svc.On("GetOrderLineAllocations", mock.Anything, lineID).Return([]ledger.AllocationResponse{{
		OrderLineID:       lineID,
		QuantityAllocated: 4,
		Sources:           []ledger.AllocationSourceResponse{{PurchaseOrderItemID: uuid.New(), Quantity: 4}},
	}}, nil)

	w := perform(r, http.MethodGet, "/order-lines/"+lineID.String()+"/allocations", "")

	require.Equal(t, http.StatusOK, w.Code)
	var got []ledger.AllocationResponse
	decodeResponse(t, w, &got)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Sources, 1)
}
