package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/examforge/exam-engine/internal/events"
	"github.com/examforge/exam-engine/internal/models"
	"github.com/examforge/exam-engine/internal/repositories"
	"github.com/examforge/exam-engine/internal/validator"
)

type submissionService struct {
	repo      repositories.Repository
	grading   GradingService
	events    events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator

	// now is injectable for deterministic timing in tests.
	now func() time.Time
}

func NewSubmissionService(repo repositories.Repository, grading GradingService, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) SubmissionService {
	return &submissionService{
		repo:      repo,
		grading:   grading,
		events:    publisher,
		logger:    logger,
		validator: validator,
		now:       time.Now,
	}
}

// ===== LIFECYCLE =====

func (s *submissionService) Start(ctx context.Context, req *StartSubmissionRequest, caller Caller) (*SubmissionResponse, error) {
	s.logger.InfoContext(ctx, "Starting exam submission",
		"exam_id", req.ExamID,
		"caller", caller.Label())

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if caller.IsGuest() && caller.GuestName == "" {
		return nil, ErrGuestNameRequired
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, req.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if err := s.checkExamAvailability(exam, req.Password); err != nil {
		return nil, err
	}

	// Idempotent resume: an in_progress submission for this caller is
	// returned unchanged, never duplicated.
	if active, err := s.getActiveSubmission(ctx, req.ExamID, caller); err == nil {
		s.logger.InfoContext(ctx, "Resuming existing submission",
			"submission_id", active.ID,
			"caller", caller.Label())
		return s.buildResponse(ctx, active, exam, true), nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to check active submission: %w", err)
	}

	attemptNumber := 1
	if !caller.IsGuest() {
		prior, err := s.repo.Submission().CountFinalizedByUser(ctx, req.ExamID, caller.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to count attempts: %w", err)
		}
		if exam.Settings.MaxAttempts > 0 && prior >= exam.Settings.MaxAttempts {
			return nil, ErrAttemptsExhausted
		}
		attemptNumber = prior + 1
	}

	orderJSON, err := buildQuestionOrder(exam)
	if err != nil {
		return nil, fmt.Errorf("failed to build question order: %w", err)
	}

	submission := &models.Submission{
		ExamID:        req.ExamID,
		IsGuest:       caller.IsGuest(),
		AttemptNumber: attemptNumber,
		Status:        models.SubmissionInProgress,
		QuestionOrder: orderJSON,
		StartedAt:     s.now(),
		MaxScore:      exam.TotalMarks,
	}
	if caller.IsGuest() {
		submission.GuestName = &caller.GuestName
	} else {
		submission.UserID = &caller.UserID
	}

	// The re-check narrows the race window; the partial unique index on
	// the submissions table closes it. When two starts overlap, the
	// loser's insert collides and resumes the winner's row.
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if existing, err := s.getActiveSubmissionWith(ctx, txRepo, req.ExamID, caller); err == nil {
			submission = existing
			return nil
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		return txRepo.Submission().Create(ctx, submission)
	})
	if err != nil {
		if repositories.IsDuplicateActiveError(err) {
			active, activeErr := s.getActiveSubmission(ctx, req.ExamID, caller)
			if activeErr != nil {
				return nil, fmt.Errorf("failed to resume submission after concurrent start: %w", activeErr)
			}
			s.logger.InfoContext(ctx, "Concurrent start lost the insert, resuming winner",
				"submission_id", active.ID,
				"caller", caller.Label())
			return s.buildResponse(ctx, active, exam, true), nil
		}
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	s.logger.InfoContext(ctx, "Submission started",
		"submission_id", submission.ID,
		"exam_id", req.ExamID,
		"attempt_number", submission.AttemptNumber,
		"is_guest", submission.IsGuest)

	return s.buildResponse(ctx, submission, exam, true), nil
}

func (s *submissionService) UpdateAnswers(ctx context.Context, submissionID uint, req *UpdateAnswersRequest, caller Caller) (*AutoSaveResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	submission, err := s.getOwnedSubmission(ctx, submissionID, caller, "update_answers")
	if err != nil {
		return nil, err
	}

	// Autosave accepts writes only while in progress; a terminal
	// status must fail loudly so the client knows persistence stopped.
	if submission.Status != models.SubmissionInProgress {
		return nil, ErrInvalidState
	}

	savedAt := s.now()
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		// The conditional touch goes first: it re-verifies in_progress
		// and locks the row, so a finalize committing after the status
		// check above cannot interleave with the answer writes.
		if err := txRepo.Submission().TouchAutoSaved(ctx, submissionID, savedAt); err != nil {
			return err
		}
		for _, in := range req.Answers {
			answer := &models.SubmissionAnswer{
				SubmissionID:   submissionID,
				QuestionID:     in.QuestionID,
				SubmittedValue: []byte(in.Value),
			}
			if err := txRepo.Submission().UpsertAnswer(ctx, answer); err != nil {
				return fmt.Errorf("failed to save answer for question %d: %w", in.QuestionID, err)
			}
		}
		return nil
	})
	if err != nil {
		if repositories.IsStatusConflictError(err) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	return &AutoSaveResponse{
		SubmissionID: submissionID,
		Saved:        len(req.Answers),
		AutoSavedAt:  savedAt,
	}, nil
}

func (s *submissionService) Submit(ctx context.Context, submissionID uint, caller Caller) (*SubmissionResponse, error) {
	s.logger.InfoContext(ctx, "Submitting exam submission",
		"submission_id", submissionID,
		"caller", caller.Label())

	submission, err := s.getOwnedSubmission(ctx, submissionID, caller, "submit")
	if err != nil {
		return nil, err
	}

	if submission.Status != models.SubmissionInProgress {
		return nil, ErrSubmissionFinalized
	}

	// Duration and late policy are read fresh at finalize time.
	exam, err := s.repo.Exam().GetByID(ctx, submission.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	now := s.now()
	timeSpent := int(now.Sub(submission.StartedAt).Seconds())
	isLate := timeSpent > exam.Duration*60

	if isLate && !exam.Settings.AllowLateSubmission {
		// The submission stays in_progress; the sweep will
		// force-finalize it with clamped timing.
		return nil, ErrTimeLimitExceeded
	}

	outcome, err := s.grading.GradeSubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to grade submission: %w", err)
	}

	fin := repositories.SubmissionFinalization{
		Status:      finalStatus(isLate, outcome.RequiresManualGrading),
		SubmittedAt: now,
		TimeSpent:   timeSpent,
		Score:       outcome.Score,
		MaxScore:    outcome.MaxScore,
		Percentage:  outcome.Percentage,
	}

	if err := s.repo.Submission().Finalize(ctx, submissionID, fin); err != nil {
		if repositories.IsStatusConflictError(err) {
			// A concurrent submit or sweep won the transition; this
			// result is discarded.
			return nil, ErrSubmissionFinalized
		}
		return nil, fmt.Errorf("failed to finalize submission: %w", err)
	}

	publishFinalized(ctx, s.events, submission, fin, events.SourceSubmit, s.logger)

	s.logger.InfoContext(ctx, "Submission finalized",
		"submission_id", submissionID,
		"status", fin.Status,
		"score", fin.Score,
		"time_spent", fin.TimeSpent)

	return s.GetByID(ctx, submissionID, caller)
}

// ===== READS =====

func (s *submissionService) GetByID(ctx context.Context, id uint, caller Caller) (*SubmissionResponse, error) {
	submission, err := s.repo.Submission().GetByIDWithAnswers(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	exam, err := s.repo.Exam().GetByID(ctx, submission.ExamID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if !isOwner(submission, caller) && !canViewOthers(caller, exam) {
		return nil, NewPermissionError(caller.Label(), id, "submission", "read", "not owner or insufficient permissions")
	}

	return s.buildResponse(ctx, submission, exam, submission.Status == models.SubmissionInProgress), nil
}

func (s *submissionService) List(ctx context.Context, filters repositories.SubmissionFilters, userID string) (*SubmissionListResponse, error) {
	submissions, total, err := s.repo.Submission().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	responses := make([]*SubmissionResponse, 0, len(submissions))
	for _, sub := range submissions {
		responses = append(responses, &SubmissionResponse{Submission: sub})
	}

	return &SubmissionListResponse{
		Submissions: responses,
		Total:       total,
		Limit:       filters.Limit,
		Offset:      filters.Offset,
	}, nil
}

func (s *submissionService) GetTimeRemaining(ctx context.Context, submissionID uint, caller Caller) (int, error) {
	submission, err := s.getOwnedSubmission(ctx, submissionID, caller, "time_remaining")
	if err != nil {
		return 0, err
	}

	if submission.Status != models.SubmissionInProgress {
		return 0, nil
	}

	exam, err := s.repo.Exam().GetByID(ctx, submission.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return 0, ErrExamNotFound
		}
		return 0, fmt.Errorf("failed to get exam: %w", err)
	}

	return remainingSeconds(submission.StartedAt, exam.Duration, s.now()), nil
}

// ===== PROCTORING SINK =====

// RecordProctoringEvent appends one violation or warning to the
// submission's proctoring log. Append-only; nothing in the engine ever
// reads these back except for display.
func (s *submissionService) RecordProctoringEvent(ctx context.Context, submissionID uint, req *ProctoringEventRequest, caller Caller) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	submission, err := s.getOwnedSubmission(ctx, submissionID, caller, "proctoring")
	if err != nil {
		return err
	}

	if submission.Status != models.SubmissionInProgress {
		return ErrInvalidState
	}

	var data models.ProctoringData
	if len(submission.ProctoringData) > 0 {
		if err := json.Unmarshal(submission.ProctoringData, &data); err != nil {
			s.logger.WarnContext(ctx, "Resetting unreadable proctoring data",
				"submission_id", submissionID,
				"error", err)
			data = models.ProctoringData{}
		}
	}

	switch req.Type {
	case "violation":
		data.Violations = append(data.Violations, req.Detail)
	case "warning":
		data.Warnings = append(data.Warnings, req.Detail)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal proctoring data: %w", err)
	}

	if err := s.repo.Submission().UpdateProctoringData(ctx, submissionID, raw); err != nil {
		// A finalize between the read above and this write closed the
		// submission; the event is dropped like any other late write.
		if repositories.IsStatusConflictError(err) {
			return ErrInvalidState
		}
		return err
	}
	return nil
}

