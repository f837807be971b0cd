package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(logger.GinMiddleware(zap.NewNop()))
	return r
}

func perform(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(logger.HeaderRequestID, "req-test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decodeResponse unmarshals the envelope and re-decodes Data into data when given
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, data any) dto.Response {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *dto.ErrorInfo  `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return dto.Response{Success: raw.Success, Error: raw.Error}
}

type mockPurchaseOrderService struct{ mock.Mock }

func (m *mockPurchaseOrderService) Create(ctx context.Context, req ledger.CreatePurchaseOrderRequest) (*ledger.PurchaseOrderResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ledger.PurchaseOrderResponse)
	return resp, args.Error(1)
}

func (m *mockPurchaseOrderService) GetByID(ctx context.Context, id uuid.UUID) (*ledger.PurchaseOrderResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*ledger.PurchaseOrderResponse)
	return resp, args.Error(1)
}

func (m *mockPurchaseOrderService) ConfirmItem(ctx context.Context, poiID uuid.UUID) (*ledger.ConfirmationResult, error) {
	args := m.Called(ctx, poiID)
	resp, _ := args.Get(0).(*ledger.ConfirmationResult)
	return resp, args.Error(1)
}

func (m *mockPurchaseOrderService) CancelItem(ctx context.Context, poiID uuid.UUID) (*ledger.PurchaseOrderItemResponse, error) {
	args := m.Called(ctx, poiID)
	resp, _ := args.Get(0).(*ledger.PurchaseOrderItemResponse)
	return resp, args.Error(1)
}

type mockReceiptService struct{ mock.Mock }

func (m *mockReceiptService) CreateShipment(ctx context.Context, req ledger.CreateShipmentRequest) (*ledger.ShipmentResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ledger.ShipmentResponse)
	return resp, args.Error(1)
}

func (m *mockReceiptService) StartReceipt(ctx context.Context, req ledger.StartReceiptRequest) (*ledger.ReceiptResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ledger.ReceiptResponse)
	return resp, args.Error(1)
}

func (m *mockReceiptService) ReceiveItem(ctx context.Context, req ledger.ReceiveItemRequest) (*ledger.ReceiptLineResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ledger.ReceiptLineResponse)
	return resp, args.Error(1)
}

func (m *mockReceiptService) GetReceipt(ctx context.Context, id uuid.UUID) (*ledger.ReceiptResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*ledger.ReceiptResponse)
	return resp, args.Error(1)
}

func (m *mockReceiptService) DeleteReceipt(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockReceiptService) DeleteReceiptLine(ctx context.Context, lineID uuid.UUID) error {
	return m.Called(ctx, lineID).Error(0)
}

func (m *mockReceiptService) CompleteReceipt(ctx context.Context, req ledger.CompleteReceiptRequest) (*ledger.ReceiptCompletion, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ledger.ReceiptCompletion)
	return resp, args.Error(1)
}

type mockAdjustmentService struct{ mock.Mock }

func (m *mockAdjustmentService) Create(ctx context.Context, req ledger.CreateAdjustmentRequest) (*ledger.AdjustmentResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ledger.AdjustmentResponse)
	return resp, args.Error(1)
}

func (m *mockAdjustmentService) Process(ctx context.Context, id uuid.UUID) (*ledger.AdjustmentResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*ledger.AdjustmentResponse)
	return resp, args.Error(1)
}

func (m *mockAdjustmentService) GetByID(ctx context.Context, id uuid.UUID) (*ledger.AdjustmentResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*ledger.AdjustmentResponse)
	return resp, args.Error(1)
}

func (m *mockAdjustmentService) ListPending(ctx context.Context) ([]ledger.AdjustmentResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).([]ledger.AdjustmentResponse)
	return resp, args.Error(1)
}

type mockAllocationService struct{ mock.Mock }

func (m *mockAllocationService) Allocate(ctx context.Context, req ledger.AllocateRequest) ([]ledger.AllocationResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).([]ledger.AllocationResponse)
	return resp, args.Error(1)
}

func (m *mockAllocationService) Deallocate(ctx context.Context, req ledger.DeallocateRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockAllocationService) DeallocateOrder(ctx context.Context, orderID uuid.UUID) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *mockAllocationService) CanConfirmOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *mockAllocationService) GetOrderLineAllocations(ctx context.Context, orderLineID uuid.UUID) ([]ledger.AllocationResponse, error) {
	args := m.Called(ctx, orderLineID)
	resp, _ := args.Get(0).([]ledger.AllocationResponse)
	return resp, args.Error(1)
}

type mockFulfillmentService struct{ mock.Mock }

func (m *mockFulfillmentService) Approve(ctx context.Context, id uuid.UUID) (*ledger.FulfillmentResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*ledger.FulfillmentResponse)
	return resp, args.Error(1)
}

type mockInvariantChecker struct{ mock.Mock }

func (m *mockInvariantChecker) Check(ctx context.Context, warehouseID, variantID uuid.UUID) (*ledger.InvariantReport, error) {
	args := m.Called(ctx, warehouseID, variantID)
	resp, _ := args.Get(0).(*ledger.InvariantReport)
	return resp, args.Error(1)
}

func (m *mockInvariantChecker) CheckAll(ctx context.Context) (int, []ledger.InvariantReport, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(1).([]ledger.InvariantReport)
	return args.Int(0), resp, args.Error(2)
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }
