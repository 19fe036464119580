package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-billing-api/internal/middleware"
	"github.com/noah-isme/lms-billing-api/internal/models"
)

type fakeCatalog struct {
	courses  map[string]*models.Course
	chapters []models.Chapter
}

func (f *fakeCatalog) List(context.Context) ([]models.Course, error) {
	var out []models.Course
	for _, c := range f.courses {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCatalog) FindByID(_ context.Context, id string) (*models.Course, error) {
	return f.courses[id], nil
}

func (f *fakeCatalog) ListChapters(context.Context, string) ([]models.Chapter, error) {
	return f.chapters, nil
}

func catalogWithChapters() *fakeCatalog {
	return &fakeCatalog{
		courses: map[string]*models.Course{
			"course-1": {ID: "course-1", Name: "Go Fundamentals", Price: 15000},
		},
		chapters: []models.Chapter{
			{ID: "ch-1", CourseID: "course-1", Sequence: 1, Title: "Basics", Body: "body one"},
			{ID: "ch-2", CourseID: "course-1", Sequence: 2, Title: "Types", Body: "body two"},
			{ID: "ch-3", CourseID: "course-1", Sequence: 3, Title: "Interfaces", Body: "body three"},
		},
	}
}

type contentPayload struct {
	Chapters []models.Chapter       `json:"chapters"`
	Preview  bool                   `json:"preview"`
	Access   *models.AccessDecision `json:"access"`
}

func contentFor(t *testing.T, decision *models.AccessDecision) contentPayload {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewCourseHandler(catalogWithChapters())

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/course-1/content", nil)
	c.Params = gin.Params{{Key: "courseId", Value: "course-1"}}
	if decision != nil {
		c.Set(middleware.ContextAccessKey, decision)
	}

	handler.Content(c)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var payload contentPayload
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	return payload
}

func TestCourseContentFullAccess(t *testing.T) {
	payload := contentFor(t, &models.AccessDecision{HasAccess: true, Reason: models.AccessReasonEMIActive})

	assert.False(t, payload.Preview)
	require.Len(t, payload.Chapters, 3)
	for _, ch := range payload.Chapters {
		assert.NotEmpty(t, ch.Body)
	}
}

func TestCourseContentLockedKeepsFirstChapterPreview(t *testing.T) {
	payload := contentFor(t, &models.AccessDecision{HasAccess: false, Reason: models.AccessReasonEMILocked})

	assert.True(t, payload.Preview)
	require.Len(t, payload.Chapters, 3)
	assert.Equal(t, "body one", payload.Chapters[0].Body)
	assert.Empty(t, payload.Chapters[1].Body)
	assert.Empty(t, payload.Chapters[2].Body)
	require.NotNil(t, payload.Access)
	assert.Equal(t, models.AccessReasonEMILocked, payload.Access.Reason)
}

func TestCourseContentWithoutDecisionIsPreview(t *testing.T) {
	payload := contentFor(t, nil)

	assert.True(t, payload.Preview)
	assert.Empty(t, payload.Chapters[1].Body)
	assert.Nil(t, payload.Access)
}

func TestCourseDetailUnknownCourse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCourseHandler(&fakeCatalog{courses: map[string]*models.Course{}})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/missing", nil)
	c.Params = gin.Params{{Key: "courseId", Value: "missing"}}

	handler.Detail(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
