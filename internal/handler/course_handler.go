package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-billing-api/internal/middleware"
	"github.com/noah-isme/lms-billing-api/internal/models"
	appErrors "github.com/noah-isme/lms-billing-api/pkg/errors"
	"github.com/noah-isme/lms-billing-api/pkg/response"
)

type courseCatalog interface {
	List(ctx context.Context) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListChapters(ctx context.Context, courseID string) ([]models.Chapter, error)
}

// CourseHandler serves the catalog and gated course content.
type CourseHandler struct {
	catalog courseCatalog
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(catalog courseCatalog) *CourseHandler {
	return &CourseHandler{catalog: catalog}
}

// List godoc
// @Summary Course catalog
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.catalog.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Detail godoc
// @Summary Course detail with the caller's access decision
// @Tags Courses
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId} [get]
func (h *CourseHandler) Detail(c *gin.Context) {
	courseID := strings.TrimSpace(c.Param("courseId"))
	course, err := h.catalog.FindByID(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if course == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "course not found"))
		return
	}
	payload := gin.H{"course": course}
	if decision := middleware.AccessDecision(c); decision != nil {
		payload["access"] = decision
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// Content godoc
// @Summary Course chapters, gated by payment state
// @Tags Courses
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/content [get]
func (h *CourseHandler) Content(c *gin.Context) {
	courseID := strings.TrimSpace(c.Param("courseId"))
	course, err := h.catalog.FindByID(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if course == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "course not found"))
		return
	}

	chapters, err := h.catalog.ListChapters(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}

	decision := middleware.AccessDecision(c)
	hasAccess := decision != nil && decision.HasAccess
	if !hasAccess {
		// Without access the first chapter stays readable as a preview;
		// later chapters keep their titles but lose their bodies.
		for i := range chapters {
			if i > 0 {
				chapters[i].Body = ""
			}
		}
	}

	payload := gin.H{
		"course":   course,
		"chapters": chapters,
		"preview":  !hasAccess,
	}
	if decision != nil {
		payload["access"] = decision
	}
	response.JSON(c, http.StatusOK, payload, nil)
}
