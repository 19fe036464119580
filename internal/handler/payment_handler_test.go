package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/internal/service"
	appErrors "github.com/noah-isme/lms-billing-api/pkg/errors"
)

type fakePurchaseSrv struct {
	orderResp  *service.PurchaseOrderResponse
	orderErr   error
	verifyResp *service.VerifyPurchaseResponse
	receipt    []byte
	receiptErr error
	lastReq    service.PurchaseRequest
}

func (f *fakePurchaseSrv) InitiatePurchase(_ context.Context, _ string, req service.PurchaseRequest) (*service.PurchaseOrderResponse, error) {
	f.lastReq = req
	return f.orderResp, f.orderErr
}

func (f *fakePurchaseSrv) VerifyPurchase(context.Context, string, service.VerifyPaymentRequest) (*service.VerifyPurchaseResponse, error) {
	return f.verifyResp, nil
}

func (f *fakePurchaseSrv) History(context.Context, string, int, int) ([]models.Payment, *models.Pagination, error) {
	return []models.Payment{{ID: "pay-1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakePurchaseSrv) Receipt(context.Context, string, string) ([]byte, error) {
	return f.receipt, f.receiptErr
}

func TestPaymentHandlerPurchaseCreated(t *testing.T) {
	srv := &fakePurchaseSrv{orderResp: &service.PurchaseOrderResponse{OrderID: "course-course-1-1", Amount: 2500}}
	handler := NewPaymentHandler(srv)

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodPost, "/payments/purchase", `{"course_id":"course-1","payment_type":"emi","due_day":5}`)

	handler.Purchase(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "emi", srv.lastReq.PaymentType)
	assert.Equal(t, 5, srv.lastReq.DueDay)
	assert.NotEmpty(t, srv.lastReq.IPAddress)
}

func TestPaymentHandlerPurchaseReusedReturnsOK(t *testing.T) {
	srv := &fakePurchaseSrv{orderResp: &service.PurchaseOrderResponse{OrderID: "course-course-1-1", Reused: true}}
	handler := NewPaymentHandler(srv)

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodPost, "/payments/purchase", `{"course_id":"course-1","payment_type":"full"}`)

	handler.Purchase(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentHandlerPurchaseRejectsBadBody(t *testing.T) {
	handler := NewPaymentHandler(&fakePurchaseSrv{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodPost, "/payments/purchase", "{broken")

	handler.Purchase(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentHandlerReceiptHeaders(t *testing.T) {
	handler := NewPaymentHandler(&fakePurchaseSrv{receipt: []byte("%PDF-1.4 fake")})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodGet, "/payments/pay-1/receipt", "")
	c.Params = gin.Params{{Key: "paymentId", Value: "pay-1"}}

	handler.Receipt(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "receipt-pay-1.pdf")
}

func TestPaymentHandlerReceiptSurfacesErrors(t *testing.T) {
	handler := NewPaymentHandler(&fakePurchaseSrv{receiptErr: appErrors.Clone(appErrors.ErrPreconditionFailed, "receipts are issued for completed payments only")})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodGet, "/payments/pay-1/receipt", "")
	c.Params = gin.Params{{Key: "paymentId", Value: "pay-1"}}

	handler.Receipt(c)

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestPaymentHandlerHistory(t *testing.T) {
	handler := NewPaymentHandler(&fakePurchaseSrv{})

	rec := httptest.NewRecorder()
	c := authedContext(t, rec, http.MethodGet, "/payments?page=1&pageSize=20", "")

	handler.History(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"total_count\":1")
}
