package repositories

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/examforge/exam-engine/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type SubmissionFilters struct {
	ExamID    *uint                    `json:"exam_id" form:"exam_id"`
	UserID    *string                  `json:"user_id" form:"user_id"`
	GuestName *string                  `json:"guest_name" form:"guest_name"`
	Status    *models.SubmissionStatus `json:"status" form:"status"`
	DateFrom  *time.Time               `json:"date_from" form:"date_from"`
	DateTo    *time.Time               `json:"date_to" form:"date_to"`
	Limit     int                      `json:"limit" form:"limit"`
	Offset    int                      `json:"offset" form:"offset"`
	SortBy    string                   `json:"sort_by" form:"sort_by"`       // "created_at", "submitted_at", "score"
	SortOrder string                   `json:"sort_order" form:"sort_order"` // "asc", "desc"
}

// SubmissionFinalization carries the full set of fields written by the
// single finalize transition.
type SubmissionFinalization struct {
	Status      models.SubmissionStatus
	SubmittedAt time.Time
	TimeSpent   int // seconds
	Score       float64
	MaxScore    int
	Percentage  float64
}

// ===== REPOSITORY INTERFACES =====

// ExamRepository reads exam definitions authored elsewhere.
type ExamRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Exam, error)
	GetByIDWithQuestions(ctx context.Context, id uint) (*models.Exam, error)
}

// QuestionRepository reads the question bank.
type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Question, error)
	GetByIDs(ctx context.Context, ids []uint) ([]*models.Question, error)
}

type SubmissionRepository interface {
	// Create inserts a new submission. ErrDuplicateActive when an
	// in_progress submission already exists for the same caller and
	// exam; at most one can exist at a time.
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (*models.Submission, error)
	GetByIDWithAnswers(ctx context.Context, id uint) (*models.Submission, error)
	List(ctx context.Context, filters SubmissionFilters) ([]*models.Submission, int64, error)

	// Active-attempt lookups back the idempotent start. ErrNotFound
	// when no in_progress submission exists for the caller.
	GetActiveByUser(ctx context.Context, examID uint, userID string) (*models.Submission, error)
	GetActiveByGuest(ctx context.Context, examID uint, guestName string) (*models.Submission, error)

	CountFinalizedByUser(ctx context.Context, examID uint, userID string) (int, error)
	GetInProgress(ctx context.Context) ([]*models.Submission, error)
	GetFinalizedByExam(ctx context.Context, examID uint) ([]*models.Submission, error)

	// UpsertAnswer replaces the stored value for (submission, question),
	// creating the row on first write. Last write wins.
	UpsertAnswer(ctx context.Context, answer *models.SubmissionAnswer) error
	GetAnswers(ctx context.Context, submissionID uint) ([]*models.SubmissionAnswer, error)
	UpdateAnswerGrade(ctx context.Context, answerID uint, isCorrect bool, points float64) error

	// TouchAutoSaved stamps the autosave time while the submission is
	// still in_progress. ErrStatusConflict once it has closed.
	TouchAutoSaved(ctx context.Context, id uint, at time.Time) error

	// Finalize performs the conditional in_progress -> terminal write.
	// Returns ErrStatusConflict when the submission was already closed
	// by a concurrent submit or sweep.
	Finalize(ctx context.Context, id uint, fin SubmissionFinalization) error

	// UpdateProctoringData replaces the proctoring log while the
	// submission is still in_progress. ErrStatusConflict once closed.
	UpdateProctoringData(ctx context.Context, id uint, data datatypes.JSON) error
}

// UserRepository resolves identities; read-only, backed by Casdoor.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}
