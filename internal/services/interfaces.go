package services

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/examforge/exam-engine/internal/models"
	"github.com/examforge/exam-engine/internal/repositories"
)

// ===== CALLER IDENTITY =====

// Caller identifies who is acting on a submission: an authenticated
// user (UserID set) or a guest (GuestName set). Guests never carry a
// role.
type Caller struct {
	UserID    string
	GuestName string
	Role      models.UserRole
}

func (c Caller) IsGuest() bool {
	return c.UserID == ""
}

// Label returns the identity used for ownership checks and logging.
func (c Caller) Label() string {
	if c.IsGuest() {
		return "guest:" + c.GuestName
	}
	return c.UserID
}

// ===== SUBMISSION DTOs =====

type StartSubmissionRequest struct {
	ExamID   uint    `json:"exam_id" validate:"required"`
	Password *string `json:"password" validate:"omitempty,max=100"`

	// GuestName is required on the guest path and ignored otherwise.
	GuestName *string `json:"guest_name" validate:"omitempty,min=1,max=100"`
}

type AnswerInput struct {
	QuestionID uint            `json:"question_id" validate:"required"`
	Value      json.RawMessage `json:"value" validate:"required"`
}

type UpdateAnswersRequest struct {
	Answers []AnswerInput `json:"answers" validate:"required,min=1,dive"`
}

type AutoSaveResponse struct {
	SubmissionID uint      `json:"submission_id"`
	Saved        int       `json:"saved"`
	AutoSavedAt  time.Time `json:"auto_saved_at"`
}

// QuestionForTaking is a question stripped for delivery to a taker:
// the canonical answer never leaves the server.
type QuestionForTaking struct {
	ID      uint                `json:"id"`
	Type    models.QuestionType `json:"type"`
	Text    string              `json:"text"`
	Choices []models.Choice     `json:"choices,omitempty"`
	Marks   int                 `json:"marks"`
	Order   int                 `json:"order"`
}

type SubmissionResponse struct {
	*models.Submission
	TimeRemaining *int                `json:"time_remaining,omitempty"` // seconds
	Questions     []QuestionForTaking `json:"questions,omitempty"`
}

type SubmissionListResponse struct {
	Submissions []*SubmissionResponse `json:"submissions"`
	Total       int64                 `json:"total"`
	Limit       int                   `json:"limit"`
	Offset      int                   `json:"offset"`
}

type ProctoringEventRequest struct {
	Type   string `json:"type" validate:"required,oneof=violation warning"`
	Detail string `json:"detail" validate:"required,max=500"`
}

// ===== GRADING DTOs =====

type AnswerGradingResult struct {
	AnswerID   uint    `json:"answer_id"`
	QuestionID uint    `json:"question_id"`
	IsCorrect  bool    `json:"is_correct"`
	Points     float64 `json:"points"`
}

// GradingOutcome aggregates the auto-grading pass over one submission.
// RequiresManualGrading is set when at least one essay answer exists;
// those score zero automatically and wait for a human.
type GradingOutcome struct {
	Score                 float64               `json:"score"`
	MaxScore              int                   `json:"max_score"`
	Percentage            float64               `json:"percentage"`
	RequiresManualGrading bool                  `json:"requires_manual_grading"`
	Results               []AnswerGradingResult `json:"results"`
}

// ===== LEADERBOARD DTOs =====

type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	DisplayName string    `json:"display_name"`
	IsGuest     bool      `json:"is_guest"`
	Score       float64   `json:"score"`
	Percentage  float64   `json:"percentage"`
	TimeSpent   int       `json:"time_spent"` // seconds
	SubmittedAt time.Time `json:"submitted_at"`
}

type LeaderboardResponse struct {
	ExamID      uint               `json:"exam_id"`
	Title       string             `json:"title"`
	Entries     []LeaderboardEntry `json:"entries"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// ===== SWEEP DTOs =====

type SweepResult struct {
	Processed int `json:"processed"`
	Finalized int `json:"finalized"`
}

// ===== SERVICE INTERFACES =====

type SubmissionService interface {
	// Lifecycle
	Start(ctx context.Context, req *StartSubmissionRequest, caller Caller) (*SubmissionResponse, error)
	UpdateAnswers(ctx context.Context, submissionID uint, req *UpdateAnswersRequest, caller Caller) (*AutoSaveResponse, error)
	Submit(ctx context.Context, submissionID uint, caller Caller) (*SubmissionResponse, error)

	// Reads
	GetByID(ctx context.Context, id uint, caller Caller) (*SubmissionResponse, error)
	List(ctx context.Context, filters repositories.SubmissionFilters, userID string) (*SubmissionListResponse, error)
	GetTimeRemaining(ctx context.Context, submissionID uint, caller Caller) (int, error)

	// Proctoring sink
	RecordProctoringEvent(ctx context.Context, submissionID uint, req *ProctoringEventRequest, caller Caller) error
}

type GradingService interface {
	// GradeAnswer grades a single answer value against its question.
	// Unknown questions and essays grade incorrect.
	GradeAnswer(question *models.Question, submitted datatypes.JSON) bool

	// GradeSubmission grades every stored answer of a submission,
	// persists per-answer results and returns the aggregate.
	GradeSubmission(ctx context.Context, submissionID uint) (*GradingOutcome, error)
}

type SweepService interface {
	// Run finalizes every in_progress submission whose time allowance
	// has fully elapsed. Errors on individual submissions are logged
	// and skipped.
	Run(ctx context.Context) (*SweepResult, error)
}

type LeaderboardService interface {
	Get(ctx context.Context, examID uint, caller Caller) (*LeaderboardResponse, error)

	// Export renders the leaderboard as an .xlsx workbook. Returns the
	// file bytes and a suggested filename.
	Export(ctx context.Context, examID uint, userID string) ([]byte, string, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Submission() SubmissionService
	Grading() GradingService
	Sweep() SweepService
	Leaderboard() LeaderboardService

	// SweepInterval exposes the configured expiry sweep period.
	SweepInterval() time.Duration

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
