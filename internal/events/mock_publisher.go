package events

import (
	"context"
	"log/slog"
	"sync"
)

// MockEventPublisher records events in memory for tests and for
// running without a broker.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []*SubmissionFinalizedEvent
	logger *slog.Logger
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{
		logger: logger,
	}
}

func (p *MockEventPublisher) PublishSubmissionFinalized(ctx context.Context, event *SubmissionFinalizedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)

	p.logger.InfoContext(ctx, "Mock publish submission finalized event",
		"submission_id", event.SubmissionID,
		"status", event.Status,
		"source", event.Source)

	return nil
}

// GetPublishedEvents returns a copy of everything published so far.
func (p *MockEventPublisher) GetPublishedEvents() []*SubmissionFinalizedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*SubmissionFinalizedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Reset clears recorded events.
func (p *MockEventPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

func (p *MockEventPublisher) Close() error {
	return nil
}
