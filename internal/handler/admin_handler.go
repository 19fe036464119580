package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-billing-api/internal/service"
	appErrors "github.com/noah-isme/lms-billing-api/pkg/errors"
	"github.com/noah-isme/lms-billing-api/pkg/response"
)

type planRepairService interface {
	FixStatusForUser(ctx context.Context, userID, courseID, actor string) (*service.RepairOutcome, error)
	FixAllStatuses(ctx context.Context, actor string) (*service.RepairSummary, error)
}

type sweepService interface {
	ProcessOverdue(ctx context.Context) (*service.SweepSummary, error)
	SendReminders(ctx context.Context) (int, error)
}

// AdminHandler exposes operational plan maintenance endpoints.
type AdminHandler struct {
	repairs planRepairService
	sweeper sweepService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(repairs planRepairService, sweeper sweepService) *AdminHandler {
	return &AdminHandler{repairs: repairs, sweeper: sweeper}
}

// FixStatus godoc
// @Summary Repair one user's plan status for a course
// @Tags Admin
// @Produce json
// @Param userId path string true "User ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /admin/emi/fix/{userId}/{courseId} [post]
func (h *AdminHandler) FixStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	userID := strings.TrimSpace(c.Param("userId"))
	courseID := strings.TrimSpace(c.Param("courseId"))
	if userID == "" || courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "user id and course id are required"))
		return
	}
	outcome, err := h.repairs.FixStatusForUser(c.Request.Context(), userID, courseID, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// FixAll godoc
// @Summary Repair plan statuses across every live plan
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/emi/fix-all [post]
func (h *AdminHandler) FixAll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.repairs.FixAllStatuses(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Sweep godoc
// @Summary Reconcile every live plan against the clock
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/emi/sweep [post]
func (h *AdminHandler) Sweep(c *gin.Context) {
	summary, err := h.sweeper.ProcessOverdue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Reminders godoc
// @Summary Dispatch due-date reminders
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/emi/reminders [post]
func (h *AdminHandler) Reminders(c *gin.Context) {
	count, err := h.sweeper.SendReminders(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"reminders_sent": count}, nil)
}
