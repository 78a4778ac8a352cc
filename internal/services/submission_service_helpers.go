package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"gorm.io/datatypes"

	"github.com/examforge/exam-engine/internal/events"
	"github.com/examforge/exam-engine/internal/models"
	"github.com/examforge/exam-engine/internal/repositories"
)

// ===== AVAILABILITY =====

func (s *submissionService) checkExamAvailability(exam *models.Exam, password *string) error {
	if exam.Status != models.ExamPublished {
		return ErrExamUnavailable
	}

	now := s.now()
	if exam.StartTime != nil && now.Before(*exam.StartTime) {
		return ErrExamUnavailable
	}
	if exam.EndTime != nil && now.After(*exam.EndTime) {
		return ErrExamUnavailable
	}

	if exam.ExamPassword != nil && *exam.ExamPassword != "" {
		if password == nil || *password != *exam.ExamPassword {
			return ErrInvalidPassword
		}
	}

	return nil
}

// ===== LOOKUPS AND OWNERSHIP =====

func (s *submissionService) getActiveSubmission(ctx context.Context, examID uint, caller Caller) (*models.Submission, error) {
	return s.getActiveSubmissionWith(ctx, s.repo, examID, caller)
}

func (s *submissionService) getActiveSubmissionWith(ctx context.Context, repo repositories.Repository, examID uint, caller Caller) (*models.Submission, error) {
	if caller.IsGuest() {
		return repo.Submission().GetActiveByGuest(ctx, examID, caller.GuestName)
	}
	return repo.Submission().GetActiveByUser(ctx, examID, caller.UserID)
}

// getOwnedSubmission loads a submission and verifies the caller owns
// it. Guests prove ownership by display-name match only.
func (s *submissionService) getOwnedSubmission(ctx context.Context, id uint, caller Caller, action string) (*models.Submission, error) {
	submission, err := s.repo.Submission().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if !isOwner(submission, caller) {
		return nil, NewPermissionError(caller.Label(), id, "submission", action, "not owned by caller")
	}

	return submission, nil
}

func isOwner(submission *models.Submission, caller Caller) bool {
	if caller.IsGuest() {
		return submission.IsGuest &&
			submission.GuestName != nil &&
			caller.GuestName != "" &&
			*submission.GuestName == caller.GuestName
	}
	return submission.UserID != nil && *submission.UserID == caller.UserID
}

// canViewOthers allows exam staff to read submissions they do not own.
func canViewOthers(caller Caller, exam *models.Exam) bool {
	if caller.IsGuest() {
		return false
	}
	switch caller.Role {
	case models.RoleAdmin, models.RoleProctor:
		return true
	case models.RoleTeacher:
		return exam != nil && exam.CreatedBy == caller.UserID
	default:
		return false
	}
}

// ===== QUESTION ORDER =====

// buildQuestionOrder fixes the question ids a taker will see, shuffled
// once at creation when the exam asks for it.
func buildQuestionOrder(exam *models.Exam) (datatypes.JSON, error) {
	order := make([]uint, 0, len(exam.Questions))
	for _, eq := range exam.Questions {
		order = append(order, eq.QuestionID)
	}

	if exam.Settings.ShuffleQuestions {
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	raw, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeQuestionOrder(raw datatypes.JSON) []uint {
	var order []uint
	if len(raw) == 0 {
		return order
	}
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil
	}
	return order
}

// ===== RESPONSE BUILDING =====

func (s *submissionService) buildResponse(ctx context.Context, submission *models.Submission, exam *models.Exam, includeQuestions bool) *SubmissionResponse {
	resp := &SubmissionResponse{Submission: submission}

	if exam == nil {
		return resp
	}

	if submission.Status == models.SubmissionInProgress {
		remaining := remainingSeconds(submission.StartedAt, exam.Duration, s.now())
		resp.TimeRemaining = &remaining
	}

	if includeQuestions && len(exam.Questions) > 0 {
		resp.Questions = buildQuestionsForTaking(exam, submission)
	}

	return resp
}

// buildQuestionsForTaking projects exam questions into delivery order
// for one submission, stripped of canonical answers. Choice order is
// shuffled independently per call when the exam asks for it.
func buildQuestionsForTaking(exam *models.Exam, submission *models.Submission) []QuestionForTaking {
	byID := make(map[uint]*models.ExamQuestion, len(exam.Questions))
	for i := range exam.Questions {
		byID[exam.Questions[i].QuestionID] = &exam.Questions[i]
	}

	order := decodeQuestionOrder(submission.QuestionOrder)
	if len(order) == 0 {
		for _, eq := range exam.Questions {
			order = append(order, eq.QuestionID)
		}
	}

	out := make([]QuestionForTaking, 0, len(order))
	for pos, qid := range order {
		eq, ok := byID[qid]
		if !ok {
			continue
		}

		q := QuestionForTaking{
			ID:    qid,
			Type:  eq.Question.Type,
			Text:  eq.Question.Text,
			Marks: eq.Marks,
			Order: pos + 1,
		}

		if len(eq.Question.Choices) > 0 {
			var choices []models.Choice
			if err := json.Unmarshal(eq.Question.Choices, &choices); err == nil {
				if exam.Settings.ShuffleChoices {
					rand.Shuffle(len(choices), func(i, j int) {
						choices[i], choices[j] = choices[j], choices[i]
					})
				}
				q.Choices = choices
			}
		}

		out = append(out, q)
	}

	return out
}

// ===== EVENTS =====

// publishFinalized emits the finalized event for whichever finalizer
// won the transition. Best-effort: the finalize already committed.
func publishFinalized(ctx context.Context, publisher events.EventPublisher, submission *models.Submission, fin repositories.SubmissionFinalization, source string, logger *slog.Logger) {
	if publisher == nil {
		return
	}

	event := &events.SubmissionFinalizedEvent{
		SubmissionID:  submission.ID,
		ExamID:        submission.ExamID,
		UserID:        submission.UserID,
		GuestName:     submission.GuestName,
		IsGuest:       submission.IsGuest,
		AttemptNumber: submission.AttemptNumber,
		Status:        string(fin.Status),
		Score:         fin.Score,
		MaxScore:      fin.MaxScore,
		Percentage:    fin.Percentage,
		SubmittedAt:   fin.SubmittedAt,
		Source:        source,
	}

	if err := publisher.PublishSubmissionFinalized(ctx, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish finalized event",
			"submission_id", submission.ID,
			"error", err)
	}
}

// ===== TIMING =====

func remainingSeconds(startedAt time.Time, durationMinutes int, now time.Time) int {
	allowed := durationMinutes * 60
	elapsed := int(now.Sub(startedAt).Seconds())
	if elapsed >= allowed {
		return 0
	}
	return allowed - elapsed
}

// finalStatus picks the terminal status for a finalize: late trumps
// everything, then graded unless an essay waits for manual grading.
func finalStatus(isLate, requiresManualGrading bool) models.SubmissionStatus {
	if isLate {
		return models.SubmissionLate
	}
	if requiresManualGrading {
		return models.SubmissionSubmitted
	}
	return models.SubmissionGraded
}
