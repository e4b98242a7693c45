package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/jobs"
	"github.com/noah-isme/scholarship-api/pkg/notify"
)

const notificationJobKind = "notification"

type notificationRecorder interface {
	RecordNotification(delivered bool)
}

// NotificationConfig sizes the delivery worker pool.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// NotificationService queues notifications and hands them to the publisher.
// Delivery is fire-and-forget: Notify never fails the calling operation.
type NotificationService struct {
	publisher notify.Publisher
	queue     *jobs.Queue
	metrics   notificationRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService builds the service and its queue. Call Start before use.
func NewNotificationService(publisher notify.Publisher, metrics notificationRecorder, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = notify.NewLogPublisher(logger)
	}
	s := &NotificationService{publisher: publisher, metrics: metrics, logger: logger, now: time.Now}
	s.queue = jobs.New("notifications", s.deliver, jobs.Config{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
		OnDeadLetter: func(job jobs.Job, err error) {
			s.record(false)
		},
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains queued notifications and closes the publisher.
func (s *NotificationService) Stop(ctx context.Context) error {
	drainErr := s.queue.Stop(ctx)
	if err := s.publisher.Close(); err != nil {
		s.logger.Warn("failed to close notification publisher", zap.Error(err))
	}
	return drainErr
}

// Notify enqueues a notification. Rejections are logged and counted as undelivered.
func (s *NotificationService) Notify(_ context.Context, notification models.Notification) {
	if notification.UserID == "" {
		return
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.now().UTC()
	}
	if err := s.queue.Submit(jobs.Job{ID: uuid.NewString(), Kind: notificationJobKind, Payload: notification}); err != nil {
		s.logger.Warn("notification dropped",
			zap.String("user_id", notification.UserID), zap.String("type", string(notification.Type)), zap.Error(err))
		s.record(false)
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		s.record(false)
		return nil
	}
	body, err := json.Marshal(notification)
	if err != nil {
		s.record(false)
		return nil
	}
	if err := s.publisher.Publish(ctx, []byte(notification.UserID), body); err != nil {
		return fmt.Errorf("publish notification %s: %w", job.ID, err)
	}
	s.record(true)
	return nil
}

func (s *NotificationService) record(delivered bool) {
	if s.metrics != nil {
		s.metrics.RecordNotification(delivered)
	}
}
