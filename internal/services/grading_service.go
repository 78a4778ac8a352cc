package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gorm.io/datatypes"

	"github.com/examforge/exam-engine/internal/models"
	"github.com/examforge/exam-engine/internal/repositories"
)

type gradingService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewGradingService(repo repositories.Repository, logger *slog.Logger) GradingService {
	return &gradingService{
		repo:   repo,
		logger: logger,
	}
}

// GradeAnswer grades one answer value against its question. Grading is
// deliberately fail-safe: anything it cannot decode or match scores
// incorrect rather than erroring, so one broken answer never blocks the
// rest of the submission.
func (s *gradingService) GradeAnswer(question *models.Question, submitted datatypes.JSON) bool {
	if question == nil || len(submitted) == 0 {
		return false
	}

	switch question.Type {
	case models.MultipleChoice:
		return s.gradeMultipleChoice(question.Answer, submitted)
	case models.TrueFalse:
		return s.gradeTrueFalse(question.Answer, submitted)
	case models.ShortAnswer:
		return s.gradeShortAnswer(question.Answer, submitted)
	case models.Essay:
		// Essays wait for manual grading and auto-score zero.
		return false
	default:
		return false
	}
}

// GradeSubmission grades every stored answer of a submission, persists
// the per-answer results and returns the aggregate. The caller decides
// what to do with the outcome; this method never touches submission
// status.
func (s *gradingService) GradeSubmission(ctx context.Context, submissionID uint) (*GradingOutcome, error) {
	submission, err := s.repo.Submission().GetByIDWithAnswers(ctx, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, submission.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	marksByQuestion := make(map[uint]int, len(exam.Questions))
	questionIDs := make([]uint, 0, len(exam.Questions))
	for _, eq := range exam.Questions {
		marksByQuestion[eq.QuestionID] = eq.Marks
		questionIDs = append(questionIDs, eq.QuestionID)
	}

	questions, err := s.repo.Question().GetByIDs(ctx, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	questionsByID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		questionsByID[q.ID] = q
	}

	outcome := &GradingOutcome{
		MaxScore: exam.TotalMarks,
		Results:  make([]AnswerGradingResult, 0, len(submission.Answers)),
	}

	// Manual grading is pending when the exam contains any essay,
	// answered or not.
	for _, q := range questionsByID {
		if q.Type == models.Essay {
			outcome.RequiresManualGrading = true
			break
		}
	}

	for i := range submission.Answers {
		answer := &submission.Answers[i]

		question, ok := questionsByID[answer.QuestionID]
		if !ok {
			// Question removed from the bank after the answer was
			// saved: score zero and keep going.
			s.logger.WarnContext(ctx, "Answer references unknown question, scoring zero",
				"submission_id", submissionID,
				"question_id", answer.QuestionID)
		}

		isCorrect := false
		points := 0.0
		if ok {
			isCorrect = s.GradeAnswer(question, answer.SubmittedValue)
			if isCorrect {
				points = float64(marksByQuestion[answer.QuestionID])
			}
		}

		if err := s.repo.Submission().UpdateAnswerGrade(ctx, answer.ID, isCorrect, points); err != nil {
			return nil, fmt.Errorf("failed to persist grade for answer %d: %w", answer.ID, err)
		}

		outcome.Score += points
		outcome.Results = append(outcome.Results, AnswerGradingResult{
			AnswerID:   answer.ID,
			QuestionID: answer.QuestionID,
			IsCorrect:  isCorrect,
			Points:     points,
		})
	}

	outcome.Percentage = CalculatePercentage(outcome.Score, outcome.MaxScore)

	s.logger.InfoContext(ctx, "Graded submission",
		"submission_id", submissionID,
		"score", outcome.Score,
		"max_score", outcome.MaxScore,
		"percentage", outcome.Percentage,
		"manual_pending", outcome.RequiresManualGrading)

	return outcome, nil
}

// CalculatePercentage derives the rounded percentage for a score pair.
// Zero when maxScore is not positive.
func CalculatePercentage(score float64, maxScore int) float64 {
	if maxScore <= 0 {
		return 0
	}
	return math.Round(score / float64(maxScore) * 100)
}
