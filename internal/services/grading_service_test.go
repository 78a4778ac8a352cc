package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/examforge/exam-engine/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// buildTestExam wires a published exam with the given questions, one
// mark column per question id.
func buildTestExam(id uint, durationMinutes int, questions map[uint]int) *models.Exam {
	exam := &models.Exam{
		ID:         id,
		Title:      "Midterm",
		Duration:   durationMinutes,
		Status:     models.ExamPublished,
		CreatedBy:  "teacher-1",
		Settings:   models.ExamSettings{ExamID: id, MaxAttempts: 1},
		TotalMarks: 0,
	}
	order := 1
	for qid, marks := range questions {
		exam.Questions = append(exam.Questions, models.ExamQuestion{
			ExamID:     id,
			QuestionID: qid,
			Order:      order,
			Marks:      marks,
		})
		exam.TotalMarks += marks
		order++
	}
	return exam
}

func TestGradeAnswer_MultipleChoice(t *testing.T) {
	svc := NewGradingService(newFakeRepository(), testLogger()).(*gradingService)

	q := &models.Question{
		ID:     1,
		Type:   models.MultipleChoice,
		Answer: datatypes.JSON(`"B"`),
	}

	tests := []struct {
		name      string
		submitted string
		want      bool
	}{
		{"exact match", `"B"`, true},
		{"whitespace trimmed", `" B "`, true},
		{"wrong case rejected", `"b"`, false},
		{"wrong choice", `"A"`, false},
		{"empty string", `""`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.GradeAnswer(q, datatypes.JSON(tt.submitted))
			if got != tt.want {
				t.Errorf("GradeAnswer(%s) = %v, want %v", tt.submitted, got, tt.want)
			}
		})
	}
}

func TestGradeAnswer_TrueFalse(t *testing.T) {
	svc := NewGradingService(newFakeRepository(), testLogger()).(*gradingService)

	q := &models.Question{
		ID:     2,
		Type:   models.TrueFalse,
		Answer: datatypes.JSON(`"true"`),
	}

	tests := []struct {
		name      string
		submitted string
		want      bool
	}{
		{"string form", `"true"`, true},
		{"boolean form", `true`, true},
		{"wrong string", `"false"`, false},
		{"wrong boolean", `false`, false},
		{"garbage", `{"x":1}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.GradeAnswer(q, datatypes.JSON(tt.submitted))
			if got != tt.want {
				t.Errorf("GradeAnswer(%s) = %v, want %v", tt.submitted, got, tt.want)
			}
		})
	}
}

func TestGradeAnswer_ShortAnswer(t *testing.T) {
	svc := NewGradingService(newFakeRepository(), testLogger()).(*gradingService)

	single := &models.Question{
		ID:     3,
		Type:   models.ShortAnswer,
		Answer: datatypes.JSON(`"Paris"`),
	}
	multi := &models.Question{
		ID:     4,
		Type:   models.ShortAnswer,
		Answer: datatypes.JSON(`["Paris", "paris city"]`),
	}

	if !svc.GradeAnswer(single, datatypes.JSON(`" paris "`)) {
		t.Error("expected trimmed case-insensitive match to grade correct")
	}
	if svc.GradeAnswer(single, datatypes.JSON(`"London"`)) {
		t.Error("expected wrong answer to grade incorrect")
	}
	if !svc.GradeAnswer(multi, datatypes.JSON(`"PARIS CITY"`)) {
		t.Error("expected any accepted variant to grade correct")
	}
	if svc.GradeAnswer(multi, datatypes.JSON(`"pariscity"`)) {
		t.Error("expected non-listed variant to grade incorrect")
	}
}

func TestGradeAnswer_EssayAndEdgeCases(t *testing.T) {
	svc := NewGradingService(newFakeRepository(), testLogger()).(*gradingService)

	essay := &models.Question{
		ID:   5,
		Type: models.Essay,
	}
	if svc.GradeAnswer(essay, datatypes.JSON(`"a long essay"`)) {
		t.Error("essays must never auto-grade correct")
	}

	if svc.GradeAnswer(nil, datatypes.JSON(`"B"`)) {
		t.Error("nil question must grade incorrect")
	}

	mcq := &models.Question{ID: 6, Type: models.MultipleChoice, Answer: datatypes.JSON(`"A"`)}
	if svc.GradeAnswer(mcq, nil) {
		t.Error("empty submitted value must grade incorrect")
	}
}

func TestGradeSubmission_AggregatesAndPersists(t *testing.T) {
	repo := newFakeRepository()

	repo.addQuestion(&models.Question{ID: 1, Type: models.MultipleChoice, Answer: datatypes.JSON(`"B"`)})
	repo.addQuestion(&models.Question{ID: 2, Type: models.TrueFalse, Answer: datatypes.JSON(`"false"`)})
	repo.addQuestion(&models.Question{ID: 3, Type: models.ShortAnswer, Answer: datatypes.JSON(`"osmosis"`)})
	repo.addExam(buildTestExam(10, 30, map[uint]int{1: 2, 2: 3, 3: 5}))

	userID := "student-1"
	sub := &models.Submission{
		ExamID:    10,
		UserID:    &userID,
		Status:    models.SubmissionInProgress,
		StartedAt: time.Now(),
	}
	repo.addSubmission(sub)

	ctx := context.Background()
	subRepo := repo.Submission()
	mustUpsert := func(qid uint, value string) {
		t.Helper()
		if err := subRepo.UpsertAnswer(ctx, &models.SubmissionAnswer{
			SubmissionID:   sub.ID,
			QuestionID:     qid,
			SubmittedValue: datatypes.JSON(value),
		}); err != nil {
			t.Fatalf("UpsertAnswer: %v", err)
		}
	}
	mustUpsert(1, `"B"`)     // correct, 2 marks
	mustUpsert(2, `true`)    // wrong
	mustUpsert(3, `"Osmosis"`) // correct, 5 marks

	svc := NewGradingService(repo, testLogger())
	outcome, err := svc.GradeSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GradeSubmission: %v", err)
	}

	if outcome.Score != 7 {
		t.Errorf("Score = %v, want 7", outcome.Score)
	}
	if outcome.MaxScore != 10 {
		t.Errorf("MaxScore = %v, want 10", outcome.MaxScore)
	}
	if outcome.Percentage != 70 {
		t.Errorf("Percentage = %v, want 70", outcome.Percentage)
	}
	if outcome.RequiresManualGrading {
		t.Error("RequiresManualGrading = true for an exam with no essays")
	}
	if len(outcome.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(outcome.Results))
	}

	answers, err := subRepo.GetAnswers(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetAnswers: %v", err)
	}
	for _, a := range answers {
		if a.IsCorrect == nil {
			t.Errorf("answer %d grade not persisted", a.ID)
		}
	}
}

func TestGradeSubmission_EssayForcesManualGrading(t *testing.T) {
	repo := newFakeRepository()
	repo.addQuestion(&models.Question{ID: 1, Type: models.MultipleChoice, Answer: datatypes.JSON(`"A"`)})
	repo.addQuestion(&models.Question{ID: 2, Type: models.Essay})
	repo.addExam(buildTestExam(20, 30, map[uint]int{1: 5, 2: 10}))

	userID := "student-1"
	sub := &models.Submission{ExamID: 20, UserID: &userID, Status: models.SubmissionInProgress, StartedAt: time.Now()}
	repo.addSubmission(sub)

	ctx := context.Background()
	// Only the mcq is answered; an unanswered essay still forces
	// manual grading.
	if err := repo.Submission().UpsertAnswer(ctx, &models.SubmissionAnswer{
		SubmissionID: sub.ID, QuestionID: 1, SubmittedValue: datatypes.JSON(`"A"`),
	}); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}

	outcome, err := NewGradingService(repo, testLogger()).GradeSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GradeSubmission: %v", err)
	}
	if !outcome.RequiresManualGrading {
		t.Error("RequiresManualGrading = false, want true when exam contains an essay")
	}
	if outcome.Score != 5 {
		t.Errorf("Score = %v, want 5 (essay auto-scores zero)", outcome.Score)
	}
}

func TestGradeSubmission_UnknownQuestionScoresZero(t *testing.T) {
	repo := newFakeRepository()
	repo.addQuestion(&models.Question{ID: 1, Type: models.MultipleChoice, Answer: datatypes.JSON(`"A"`)})
	repo.addExam(buildTestExam(30, 30, map[uint]int{1: 5, 99: 5}))

	userID := "student-1"
	sub := &models.Submission{ExamID: 30, UserID: &userID, Status: models.SubmissionInProgress, StartedAt: time.Now()}
	repo.addSubmission(sub)

	ctx := context.Background()
	if err := repo.Submission().UpsertAnswer(ctx, &models.SubmissionAnswer{
		SubmissionID: sub.ID, QuestionID: 99, SubmittedValue: datatypes.JSON(`"A"`),
	}); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}

	outcome, err := NewGradingService(repo, testLogger()).GradeSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GradeSubmission: %v", err)
	}
	if outcome.Score != 0 {
		t.Errorf("Score = %v, want 0 for an answer whose question is gone", outcome.Score)
	}
}

func TestCalculatePercentage(t *testing.T) {
	tests := []struct {
		score float64
		max   int
		want  float64
	}{
		{7, 10, 70},
		{1, 3, 33},
		{2, 3, 67},
		{0, 10, 0},
		{5, 0, 0},
		{5, -1, 0},
		{10, 10, 100},
	}
	for _, tt := range tests {
		if got := CalculatePercentage(tt.score, tt.max); got != tt.want {
			t.Errorf("CalculatePercentage(%v, %d) = %v, want %v", tt.score, tt.max, got, tt.want)
		}
	}
}
