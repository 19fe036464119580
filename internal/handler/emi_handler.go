package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-billing-api/internal/service"
	appErrors "github.com/noah-isme/lms-billing-api/pkg/errors"
	"github.com/noah-isme/lms-billing-api/pkg/response"
)

type emiService interface {
	Status(ctx context.Context, userID, courseID string) (*service.EMIStatusResponse, error)
	Due(ctx context.Context, userID, courseID string) (*service.DueResponse, error)
	Summary(ctx context.Context, userID string) (*service.UserEMISummary, error)
	PayOverdue(ctx context.Context, userID string, req service.InstallmentOrderRequest) (*service.InstallmentOrderResponse, error)
	PayMonthly(ctx context.Context, userID string, req service.InstallmentOrderRequest) (*service.InstallmentOrderResponse, error)
	VerifyPayment(ctx context.Context, userID string, req service.VerifyPaymentRequest) (*service.VerifyPaymentResponse, error)
}

// EMIHandler wires the installment billing service to HTTP endpoints.
type EMIHandler struct {
	service emiService
}

// NewEMIHandler constructs the handler.
func NewEMIHandler(service emiService) *EMIHandler {
	return &EMIHandler{service: service}
}

// Status godoc
// @Summary Installment plan status for a course
// @Tags EMI
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /emi/status/{courseId} [get]
func (h *EMIHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courseID := strings.TrimSpace(c.Param("courseId"))
	if courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course id is required"))
		return
	}
	status, err := h.service.Status(c.Request.Context(), claims.UserID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Due godoc
// @Summary Outstanding installments for a course
// @Tags EMI
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /emi/due/{courseId} [get]
func (h *EMIHandler) Due(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courseID := strings.TrimSpace(c.Param("courseId"))
	if courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course id is required"))
		return
	}
	due, err := h.service.Due(c.Request.Context(), claims.UserID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, due, nil)
}

// Summary godoc
// @Summary Cross-course installment overview
// @Tags EMI
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /emi/summary [get]
func (h *EMIHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// PayOverdue godoc
// @Summary Open a checkout for overdue installments
// @Tags EMI
// @Accept json
// @Produce json
// @Param payload body service.InstallmentOrderRequest true "Payment request"
// @Success 201 {object} response.Envelope
// @Router /emi/pay-overdue [post]
func (h *EMIHandler) PayOverdue(c *gin.Context) {
	h.openOrder(c, h.service.PayOverdue)
}

// PayMonthly godoc
// @Summary Open a checkout across everything unpaid
// @Tags EMI
// @Accept json
// @Produce json
// @Param payload body service.InstallmentOrderRequest true "Payment request"
// @Success 201 {object} response.Envelope
// @Router /emi/pay-monthly [post]
func (h *EMIHandler) PayMonthly(c *gin.Context) {
	h.openOrder(c, h.service.PayMonthly)
}

func (h *EMIHandler) openOrder(c *gin.Context, open func(context.Context, string, service.InstallmentOrderRequest) (*service.InstallmentOrderResponse, error)) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.InstallmentOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	resp, err := open(c.Request.Context(), claims.UserID, req)
	if err != nil {
		// An unpayable amount still carries the allocation so the client
		// can retry with a suggested sum.
		if errors.Is(err, appErrors.ErrInvalidEMIAmount) && resp != nil {
			response.ErrorWithData(c, err, resp.Allocation)
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// VerifyPayment godoc
// @Summary Confirm a gateway order and settle installments
// @Tags EMI
// @Accept json
// @Produce json
// @Param payload body service.VerifyPaymentRequest true "Verification request"
// @Success 200 {object} response.Envelope
// @Router /emi/verify-payment [post]
func (h *EMIHandler) VerifyPayment(c *gin.Context) {
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
	resp, err := h.service.VerifyPayment(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}
