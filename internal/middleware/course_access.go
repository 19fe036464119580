package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/internal/service"
	appErrors "github.com/noah-isme/lms-billing-api/pkg/errors"
	"github.com/noah-isme/lms-billing-api/pkg/response"
)

// ContextAccessKey is the gin context key storing the course access decision.
const ContextAccessKey = "courseAccess"

// CourseAccess evaluates the caller's entitlement to the course named by the
// courseId path parameter and attaches the decision for the handler. It never
// denies by itself; handlers choose how much content a limited decision gets.
func CourseAccess(accessService *service.AccessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		courseID := c.Param("courseId")
		if courseID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course id is required"))
			c.Abort()
			return
		}

		decision, err := accessService.Check(c.Request.Context(), claims.UserID, courseID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextAccessKey, decision)
		c.Next()
	}
}

// AccessDecision returns the decision attached by CourseAccess, or nil when
// the gate did not run.
func AccessDecision(c *gin.Context) *models.AccessDecision {
	value, exists := c.Get(ContextAccessKey)
	if !exists {
		return nil
	}
	decision, ok := value.(*models.AccessDecision)
	if !ok {
		return nil
	}
	return decision
}
