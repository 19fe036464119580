package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/pkg/jobs"
)

// Notification carries the facts a delivery channel needs. Billing outcomes
// never depend on delivery succeeding.
type Notification struct {
	UserID        string
	CourseID      string
	CourseName    string
	Amount        float64
	DueDate       *time.Time
	OverdueMonths int
}

// Notifier dispatches best-effort user notifications.
type Notifier interface {
	Notify(ctx context.Context, event models.NotificationEvent, payload Notification)
}

// NotificationService queues notifications for asynchronous delivery so
// billing flows never block on a channel provider.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

type notificationJob struct {
	Event   models.NotificationEvent
	Payload Notification
}

// NewNotificationService builds the service and its worker queue. Call Start
// before enqueuing and Stop on shutdown.
func NewNotificationService(logger *zap.Logger, workers int) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start begins background delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notification. Failures are logged and swallowed.
func (s *NotificationService) Notify(_ context.Context, event models.NotificationEvent, payload Notification) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(event),
		Payload: notificationJob{Event: event, Payload: payload},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("notification dropped",
			zap.String("event", string(event)),
			zap.String("user_id", payload.UserID),
			zap.Error(err))
	}
}

func (s *NotificationService) deliver(_ context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationJob)
	if !ok {
		return fmt.Errorf("unexpected notification payload type %T", job.Payload)
	}

	// Delivery channels (email, SMS) hang off this point. The structured
	// log doubles as the audit trail for dispatched notifications.
	fields := []zap.Field{
		zap.String("event", string(payload.Event)),
		zap.String("user_id", payload.Payload.UserID),
		zap.String("course_id", payload.Payload.CourseID),
		zap.String("course_name", payload.Payload.CourseName),
	}
	if payload.Payload.Amount > 0 {
		fields = append(fields, zap.Float64("amount", payload.Payload.Amount))
	}
	if payload.Payload.DueDate != nil {
		fields = append(fields, zap.Time("due_date", *payload.Payload.DueDate))
	}
	if payload.Payload.OverdueMonths > 0 {
		fields = append(fields, zap.Int("overdue_months", payload.Payload.OverdueMonths))
	}
	s.logger.Info("notification dispatched", fields...)
	return nil
}
