package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/purchasing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func receiptEngine(svc ReceiptService) *gin.Engine {
	r := newEngine()
	h := NewReceiptHandler(svc)
	r.POST("/shipments", h.CreateShipment)
	r.POST("/shipments/:id/receipt", h.StartReceipt)
	r.GET("/receipts/:id", h.GetReceipt)
	r.POST("/receipts/:id/items", h.ReceiveItem)
	r.POST("/receipts/:id/complete", h.CompleteReceipt)
	r.DELETE("/receipts/:id", h.DeleteReceipt)
	r.DELETE("/receipt-lines/:id", h.DeleteReceiptLine)
	return r
}

func TestReceiptHandler_CreateShipment(t *testing.T) {
	svc := new(mockReceiptService)
	r := receiptEngine(svc)

	poiID := uuid.New()
	svc.On("CreateShipment", mock.Anything, mock.MatchedBy(func(req ledger.CreateShipmentRequest) bool {
		return req.Carrier == "DHL" && len(req.PurchaseOrderItemIDs) == 1 && req.PurchaseOrderItemIDs[0] == poiID
	})).Return(&ledger.ShipmentResponse{ID: uuid.New(), Carrier: "DHL", Currency: "EUR"}, nil)

	w := perform(r, http.MethodPost, "/shipments",
		fmt.Sprintf(`{"carrier":"DHL","currency":"EUR","shipping_cost":"15","purchase_order_item_ids":[%q]}`, poiID))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	svc.AssertExpectations(t)
}

func TestReceiptHandler_StartReceipt(t *testing.T) {
	svc := new(mockReceiptService)
	r := receiptEngine(svc)
	shipmentID := uuid.New()

	t.Run("without body", func(t *testing.T) {
		svc.On("StartReceipt", mock.Anything, ledger.StartReceiptRequest{ShipmentID: shipmentID}).
			Return(&ledger.ReceiptResponse{ID: uuid.New(), ShipmentID: shipmentID, Status: "IN_PROGRESS"}, nil).Once()

		w := perform(r, http.MethodPost, "/shipments/"+shipmentID.String()+"/receipt", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var got ledger.ReceiptResponse
		decodeResponse(t, w, &got)
		assert.Equal(t, shipmentID, got.ShipmentID)
	})

	t.Run("with user", func(t *testing.T) {
		user := uuid.New()
		svc.On("StartReceipt", mock.Anything, mock.MatchedBy(func(req ledger.StartReceiptRequest) bool {
			return req.ShipmentID == shipmentID && req.UserID != nil && *req.UserID == user
		})).Return(&ledger.ReceiptResponse{ShipmentID: shipmentID, Resumed: true}, nil).Once()

		w := perform(r, http.MethodPost, "/shipments/"+shipmentID.String()+"/receipt",
			fmt.Sprintf(`{"user_id":%q}`, user))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	svc.AssertExpectations(t)
}

func TestReceiptHandler_ReceiveItem(t *testing.T) {
	svc := new(mockReceiptService)
	r := receiptEngine(svc)

	receiptID, variantID := uuid.New(), uuid.New()
	svc.On("ReceiveItem", mock.Anything, mock.MatchedBy(func(req ledger.ReceiveItemRequest) bool {
		return req.ReceiptID == receiptID && req.VariantID == variantID && req.Quantity == 6
	})).Return(&ledger.ReceiptLineResponse{ID: uuid.New(), QuantityReceived: 6}, nil)

	w := perform(r, http.MethodPost, "/receipts/"+receiptID.String()+"/items",
		fmt.Sprintf(`{"variant_id":%q,"quantity":6}`, variantID))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	svc.AssertExpectations(t)
}

func TestReceiptHandler_ReceiveItem_ZeroQuantity(t *testing.T) {
	svc := new(mockReceiptService)
	r := receiptEngine(svc)

	w := perform(r, http.MethodPost, "/receipts/"+uuid.NewString()+"/items",
		fmt.Sprintf(`{"variant_id":%q,"quantity":0}`, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "ReceiveItem", mock.Anything, mock.Anything)
}

func TestReceiptHandler_CompleteReceipt(t *testing.T) {
	svc := new(mockReceiptService)
	r := receiptEngine(svc)

	receiptID := uuid.New()
	svc.On("CompleteReceipt", mock.Anything, ledger.CompleteReceiptRequest{ReceiptID: receiptID}).
		Return(&ledger.ReceiptCompletion{
			Receipt:       ledger.ReceiptResponse{ID: receiptID, Status: "COMPLETED"},
			Discrepancies: []purchasing.Discrepancy{},
		}, nil)

	w := perform(r, http.MethodPost, "/receipts/"+receiptID.String()+"/complete", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got ledger.ReceiptCompletion
	decodeResponse(t, w, &got)
	assert.Equal(t, "COMPLETED", got.Receipt.Status)
}

func TestReceiptHandler_CompleteReceipt_NotInProgress(t *testing.T) {
	svc := new(mockReceiptService)
	r := receiptEngine(svc)

	receiptID := uuid.New()
	svc.On("CompleteReceipt", mock.Anything, mock.Anything).Return(nil, purchasing.ErrReceiptNotInProgress)

	w := perform(r, http.MethodPost, "/receipts/"+receiptID.String()+"/complete", "")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, purchasing.CodeReceiptNotInProgress, decodeResponse(t, w, nil).Error.Code)
}

func TestReceiptHandler_Delete(t *testing.T) {
	svc := new(mockReceiptService)
	r := receiptEngine(svc)

	receiptID, lineID := uuid.New(), uuid.New()
	svc.On("DeleteReceipt", mock.Anything, receiptID).Return(nil)
	svc.On("DeleteReceiptLine", mock.Anything, lineID).Return(purchasing.ErrReceiptLineNotInProgress)

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodDelete, "/receipts/"+receiptID.String(), "").Code)

	w := perform(r, http.MethodDelete, "/receipt-lines/"+lineID.String(), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, purchasing.CodeReceiptLineNotInProgress, decodeResponse(t, w, nil).Error.Code)
}
