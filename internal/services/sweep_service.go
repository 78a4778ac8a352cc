package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/examforge/exam-engine/internal/events"
	"github.com/examforge/exam-engine/internal/models"
	"github.com/examforge/exam-engine/internal/repositories"
)

// networkBufferSeconds pads the sweep deadline to tolerate client
// clock and request-latency skew; a submit that is a few seconds over
// should still win against the sweep.
const networkBufferSeconds = 30

type sweepService struct {
	repo    repositories.Repository
	grading GradingService
	events  events.EventPublisher
	logger  *slog.Logger

	now func() time.Time
}

func NewSweepService(repo repositories.Repository, grading GradingService, publisher events.EventPublisher, logger *slog.Logger) SweepService {
	return &sweepService{
		repo:    repo,
		grading: grading,
		events:  publisher,
		logger:  logger,
		now:     time.Now,
	}
}

// Run is stateless and idempotent: it reads current store contents,
// force-finalizes everything past its allowance and carries nothing
// over between runs.
func (s *sweepService) Run(ctx context.Context) (*SweepResult, error) {
	inProgress, err := s.repo.Submission().GetInProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load in-progress submissions: %w", err)
	}

	result := &SweepResult{}
	for _, submission := range inProgress {
		result.Processed++

		finalized, err := s.sweepOne(ctx, submission)
		if err != nil {
			// One broken submission must not abort the batch.
			s.logger.ErrorContext(ctx, "Sweep failed for submission, continuing",
				"submission_id", submission.ID,
				"error", err)
			continue
		}
		if finalized {
			result.Finalized++
		}
	}

	if result.Finalized > 0 {
		s.logger.InfoContext(ctx, "Sweep finalized expired submissions",
			"processed", result.Processed,
			"finalized", result.Finalized)
	}

	return result, nil
}

func (s *sweepService) sweepOne(ctx context.Context, submission *models.Submission) (bool, error) {
	exam, err := s.repo.Exam().GetByID(ctx, submission.ExamID)
	if err != nil {
		return false, fmt.Errorf("failed to get exam %d: %w", submission.ExamID, err)
	}

	now := s.now()
	elapsed := int(now.Sub(submission.StartedAt).Seconds())
	allowed := exam.Duration*60 + exam.Settings.GracePeriodMinutes*60 + networkBufferSeconds

	if elapsed <= allowed {
		return false, nil
	}

	// Lateness is judged against the official duration, not the padded
	// allowance. When the taker ran out of time, timing is clamped to
	// the duration boundary so sweep scheduling jitter never shows up
	// in the record.
	isLate := elapsed > exam.Duration*60
	submittedAt := now
	timeSpent := elapsed
	if isLate {
		submittedAt = submission.StartedAt.Add(time.Duration(exam.Duration) * time.Minute)
		timeSpent = exam.Duration * 60
	}

	outcome, err := s.grading.GradeSubmission(ctx, submission.ID)
	if err != nil {
		return false, fmt.Errorf("failed to grade submission: %w", err)
	}

	fin := repositories.SubmissionFinalization{
		Status:      finalStatus(isLate, outcome.RequiresManualGrading),
		SubmittedAt: submittedAt,
		TimeSpent:   timeSpent,
		Score:       outcome.Score,
		MaxScore:    outcome.MaxScore,
		Percentage:  outcome.Percentage,
	}

	if err := s.repo.Submission().Finalize(ctx, submission.ID, fin); err != nil {
		if repositories.IsStatusConflictError(err) {
			// A concurrent client submit won; nothing to do.
			return false, nil
		}
		return false, fmt.Errorf("failed to finalize submission: %w", err)
	}

	publishFinalized(ctx, s.events, submission, fin, events.SourceSweep, s.logger)

	return true, nil
}

// RunSweepLoop drives the sweep on a fixed interval until the context
// is cancelled. Runs on its own goroutine, separate from request
// handling, and is not parallelized internally.
func RunSweepLoop(ctx context.Context, sweep SweepService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Sweep loop started", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			logger.Info("Sweep loop stopped")
			return
		case <-ticker.C:
			if _, err := sweep.Run(ctx); err != nil {
				logger.Error("Sweep run failed", "error", err)
			}
		}
	}
}
