package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	// TopicSubmissionFinalized carries one event per submission that
	// reached a terminal status, whether by client submit or by the
	// expiry sweep.
	TopicSubmissionFinalized = "exam.submission.finalized"
)

// Finalization sources.
const (
	SourceSubmit = "submit"
	SourceSweep  = "sweep"
)

// SubmissionFinalizedEvent is published exactly once per submission,
// by whichever finalizer wins the status transition.
type SubmissionFinalizedEvent struct {
	SubmissionID  uint      `json:"submission_id"`
	ExamID        uint      `json:"exam_id"`
	UserID        *string   `json:"user_id,omitempty"`
	GuestName     *string   `json:"guest_name,omitempty"`
	IsGuest       bool      `json:"is_guest"`
	AttemptNumber int       `json:"attempt_number"`
	Status        string    `json:"status"`
	Score         float64   `json:"score"`
	MaxScore      int       `json:"max_score"`
	Percentage    float64   `json:"percentage"`
	SubmittedAt   time.Time `json:"submitted_at"`
	Source        string    `json:"source"`
}

// EventPublisher publishes engine events to the message broker.
type EventPublisher interface {
	PublishSubmissionFinalized(ctx context.Context, event *SubmissionFinalizedEvent) error
	Close() error
}

type kafkaEventPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewKafkaEventPublisher connects a watermill Kafka publisher.
func NewKafkaEventPublisher(brokers []string, logger *slog.Logger) (EventPublisher, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return &kafkaEventPublisher{
		publisher: publisher,
		logger:    logger,
	}, nil
}

func (p *kafkaEventPublisher) PublishSubmissionFinalized(ctx context.Context, event *SubmissionFinalizedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", "submission.finalized")
	msg.Metadata.Set("source", event.Source)

	if err := p.publisher.Publish(TopicSubmissionFinalized, msg); err != nil {
		return fmt.Errorf("failed to publish submission finalized event: %w", err)
	}

	p.logger.InfoContext(ctx, "Published submission finalized event",
		"submission_id", event.SubmissionID,
		"exam_id", event.ExamID,
		"status", event.Status,
		"source", event.Source)

	return nil
}

func (p *kafkaEventPublisher) Close() error {
	return p.publisher.Close()
}
