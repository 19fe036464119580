package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/internal/service"
	appErrors "github.com/noah-isme/lms-billing-api/pkg/errors"
	"github.com/noah-isme/lms-billing-api/pkg/response"
)

type purchaseService interface {
	InitiatePurchase(ctx context.Context, userID string, req service.PurchaseRequest) (*service.PurchaseOrderResponse, error)
	VerifyPurchase(ctx context.Context, userID string, req service.VerifyPaymentRequest) (*service.VerifyPurchaseResponse, error)
	History(ctx context.Context, userID string, page, pageSize int) ([]models.Payment, *models.Pagination, error)
	Receipt(ctx context.Context, userID, paymentID string) ([]byte, error)
}

// PaymentHandler wires course purchases and the payment ledger to HTTP.
type PaymentHandler struct {
	service purchaseService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(service purchaseService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// Purchase godoc
// @Summary Open a checkout for a course purchase
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.PurchaseRequest true "Purchase request"
// @Success 201 {object} response.Envelope
// @Router /payments/purchase [post]
func (h *PaymentHandler) Purchase(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	req.IPAddress = c.ClientIP()
	resp, err := h.service.InitiatePurchase(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if resp.Reused {
		response.JSON(c, http.StatusOK, resp, nil)
		return
	}
	response.Created(c, resp)
}

// Verify godoc
// @Summary Confirm a purchase order at the gateway
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.VerifyPaymentRequest true "Verification request"
// @Success 200 {object} response.Envelope
// @Router /payments/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	resp, err := h.service.VerifyPurchase(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// History godoc
// @Summary List the caller's payments
// @Tags Payments
// @Produce json
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	payments, pagination, err := h.service.History(c.Request.Context(), claims.UserID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Receipt godoc
// @Summary Download a PDF receipt for a completed payment
// @Tags Payments
// @Produce application/pdf
// @Param paymentId path string true "Payment ID"
// @Success 200 {file} binary
// @Router /payments/{paymentId}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	paymentID := strings.TrimSpace(c.Param("paymentId"))
	if paymentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payment id is required"))
		return
	}
	pdf, err := h.service.Receipt(c.Request.Context(), claims.UserID, paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%s.pdf", paymentID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
