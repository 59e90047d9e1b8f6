package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credentia/certify-api/pkg/jobs"
)

// NotificationPayload carries a single notification through the queue.
type NotificationPayload struct {
	RecipientID string
	Title       string
	Body        string
	Data        map[string]string
}

// NotificationSender delivers a notification to its recipient.
type NotificationSender interface {
	Send(ctx context.Context, payload NotificationPayload) error
}

// LogSender writes notifications to the application log. It is the
// default sender when no external channel is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, payload NotificationPayload) error {
	s.logger.Sugar().Infow("notification delivered",
		"recipient_id", payload.RecipientID,
		"title", payload.Title,
		"body", payload.Body,
		"data", payload.Data,
	)
	return nil
}

// NotificationService dispatches review outcome notifications through a
// background worker queue so callers never block on delivery.
type NotificationService struct {
	queue  *jobs.Queue
	sender NotificationSender
	logger *zap.Logger
}

// NewNotificationService wires the sender behind a worker queue.
func NewNotificationService(sender NotificationSender, workers int, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	s := &NotificationService{sender: sender, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.process, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notification. Failures are logged, never surfaced.
// Safe to call on a nil service when notifications are disabled.
func (s *NotificationService) Notify(recipientID, title, body string, data map[string]string) {
	if s == nil {
		return
	}
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: "notification",
		Payload: NotificationPayload{
			RecipientID: recipientID,
			Title:       title,
			Body:        body,
			Data:        data,
		},
		Enqueued: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Sugar().Warnw("failed to enqueue notification", "recipient_id", recipientID, "error", err)
	}
}

func (s *NotificationService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(NotificationPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	return s.sender.Send(ctx, payload)
}
