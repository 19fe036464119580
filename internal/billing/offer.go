package billing

import (
	"errors"
	"fmt"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/pkg/money"
)

// ErrEMINotAvailable marks a course without installment billing.
var ErrEMINotAvailable = errors.New("installment billing not available for this course")

// ValidateOffer checks that a course's EMI offer is usable: the offer is
// enabled, has a sane duration, and its total matches the course price.
func ValidateOffer(course *models.Course) (*models.EMIOffer, error) {
	if course == nil || !course.EMI.Available {
		return nil, ErrEMINotAvailable
	}
	offer := course.EMI
	if offer.Months < 2 {
		return nil, fmt.Errorf("installment duration must be at least 2 months, got %d", offer.Months)
	}
	if !money.Equal(offer.TotalAmount, course.Price) {
		return nil, fmt.Errorf("installment total %.2f does not match course price %.2f", offer.TotalAmount, course.Price)
	}
	return &offer, nil
}
