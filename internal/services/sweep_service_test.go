package services

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/examforge/exam-engine/internal/events"
	"github.com/examforge/exam-engine/internal/models"
	"github.com/examforge/exam-engine/internal/repositories"
)

func newSweepServiceForTest(repo *fakeRepository, publisher events.EventPublisher, now time.Time) *sweepService {
	logger := testLogger()
	grading := NewGradingService(repo, logger)
	svc := NewSweepService(repo, grading, publisher, logger).(*sweepService)
	svc.now = func() time.Time { return now }
	return svc
}

func seedInProgress(repo *fakeRepository, examID uint, userID string, startedAt time.Time) *models.Submission {
	sub := &models.Submission{
		ExamID:        examID,
		UserID:        &userID,
		AttemptNumber: 1,
		Status:        models.SubmissionInProgress,
		StartedAt:     startedAt,
		MaxScore:      10,
	}
	repo.addSubmission(sub)
	return sub
}

func TestSweep_FinalizesExpiredWithClampedTiming(t *testing.T) {
	repo := newFakeRepository()
	repo.addQuestion(&models.Question{ID: 1, Type: models.MultipleChoice, Answer: datatypes.JSON(`"B"`)})
	repo.addExam(buildTestExam(1, 10, map[uint]int{1: 10}))

	startedAt := testBase
	sub := seedInProgress(repo, 1, "student-1", startedAt)

	ctx := context.Background()
	if err := repo.Submission().UpsertAnswer(ctx, &models.SubmissionAnswer{
		SubmissionID: sub.ID, QuestionID: 1, SubmittedValue: datatypes.JSON(`"B"`),
	}); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}

	// 10-minute exam, no grace: allowance is 10m + 30s buffer. At
	// start+11m the submission is past it.
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newSweepServiceForTest(repo, publisher, startedAt.Add(11*time.Minute))

	result, err := svc.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 || result.Finalized != 1 {
		t.Errorf("result = %+v, want 1 processed, 1 finalized", result)
	}

	stored, _ := repo.Submission().GetByID(ctx, sub.ID)
	if stored.Status != models.SubmissionLate {
		t.Errorf("Status = %v, want late", stored.Status)
	}
	if stored.TimeSpent != 600 {
		t.Errorf("TimeSpent = %d, want clamped to 600", stored.TimeSpent)
	}
	wantSubmitted := startedAt.Add(10 * time.Minute)
	if stored.SubmittedAt == nil || !stored.SubmittedAt.Equal(wantSubmitted) {
		t.Errorf("SubmittedAt = %v, want clamped to %v", stored.SubmittedAt, wantSubmitted)
	}
	if stored.Score != 10 {
		t.Errorf("Score = %v, want saved answers graded", stored.Score)
	}

	published := publisher.GetPublishedEvents()
	if len(published) != 1 || published[0].Source != events.SourceSweep {
		t.Errorf("published = %v, want one event from the sweep", published)
	}
}

func TestSweep_SkipsWithinAllowance(t *testing.T) {
	repo := newFakeRepository()
	exam := buildTestExam(1, 10, map[uint]int{})
	exam.Settings.GracePeriodMinutes = 5
	repo.addExam(exam)

	sub := seedInProgress(repo, 1, "student-1", testBase)

	// Inside duration + grace + buffer: 10m + 5m + 30s.
	svc := newSweepServiceForTest(repo, nil, testBase.Add(15*time.Minute))

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Finalized != 0 {
		t.Errorf("Finalized = %d, want 0 within the allowance", result.Finalized)
	}

	stored, _ := repo.Submission().GetByID(context.Background(), sub.ID)
	if stored.Status != models.SubmissionInProgress {
		t.Errorf("Status = %v, want untouched in_progress", stored.Status)
	}
}

func TestSweep_ConcurrentSubmitWinsQuietly(t *testing.T) {
	repo := newFakeRepository()
	repo.addExam(buildTestExam(1, 10, map[uint]int{}))
	sub := seedInProgress(repo, 1, "student-1", testBase)

	// Finalize out from under the sweep to simulate a client submit
	// landing between the scan and the conditional write.
	conflictRepo := &finalizeRaceRepository{
		fakeRepository: repo,
		race:           &raceSubmissionRepo{SubmissionRepository: repo.Submission(), repo: repo, target: sub.ID},
	}

	logger := testLogger()
	svc := NewSweepService(conflictRepo, NewGradingService(conflictRepo, logger), nil, logger).(*sweepService)
	svc.now = func() time.Time { return testBase.Add(20 * time.Minute) }

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 {
		t.Errorf("Processed = %d, want 1", result.Processed)
	}
	if result.Finalized != 0 {
		t.Errorf("Finalized = %d, want 0 when the submit won the race", result.Finalized)
	}

	stored, _ := repo.Submission().GetByID(context.Background(), sub.ID)
	if stored.Status != models.SubmissionGraded {
		t.Errorf("Status = %v, want the submit's graded result kept", stored.Status)
	}
}

// finalizeRaceRepository swaps in a submission repo that finalizes the
// target the moment grading reads it, so the sweep's own conditional
// finalize hits a status conflict.
type finalizeRaceRepository struct {
	*fakeRepository
	race *raceSubmissionRepo
}

func (r *finalizeRaceRepository) Submission() repositories.SubmissionRepository {
	return r.race
}

type raceSubmissionRepo struct {
	repositories.SubmissionRepository
	repo   *fakeRepository
	target uint
	raced  bool
}

func (r *raceSubmissionRepo) GetByIDWithAnswers(ctx context.Context, id uint) (*models.Submission, error) {
	if id == r.target && !r.raced {
		r.raced = true
		if err := r.repo.Submission().Finalize(ctx, r.target, repositories.SubmissionFinalization{
			Status:      models.SubmissionGraded,
			SubmittedAt: testBase.Add(9 * time.Minute),
		}); err != nil {
			return nil, err
		}
	}
	return r.SubmissionRepository.GetByIDWithAnswers(ctx, id)
}

func TestSweep_OneFailureDoesNotAbortBatch(t *testing.T) {
	repo := newFakeRepository()
	repo.addExam(buildTestExam(1, 10, map[uint]int{}))

	// First submission references a missing exam and must be skipped;
	// the second is expired and must still be finalized.
	broken := seedInProgress(repo, 99, "student-1", testBase)
	expired := seedInProgress(repo, 1, "student-2", testBase)

	svc := newSweepServiceForTest(repo, nil, testBase.Add(20*time.Minute))

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 2 {
		t.Errorf("Processed = %d, want 2", result.Processed)
	}
	if result.Finalized != 1 {
		t.Errorf("Finalized = %d, want 1", result.Finalized)
	}

	ctx := context.Background()
	brokenStored, _ := repo.Submission().GetByID(ctx, broken.ID)
	if brokenStored.Status != models.SubmissionInProgress {
		t.Errorf("broken submission status = %v, want left in_progress", brokenStored.Status)
	}
	expiredStored, _ := repo.Submission().GetByID(ctx, expired.ID)
	if !expiredStored.Status.IsTerminal() {
		t.Errorf("expired submission status = %v, want terminal", expiredStored.Status)
	}
}
