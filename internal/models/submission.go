package models

import (
	"time"

	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionSubmitted  SubmissionStatus = "submitted"
	SubmissionGraded     SubmissionStatus = "graded"
	SubmissionLate       SubmissionStatus = "late"
)

// IsTerminal reports whether no further transition is permitted.
func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionSubmitted || s == SubmissionGraded || s == SubmissionLate
}

// Submission is the aggregate root of the engine: one run through one
// exam, from start to a terminal status. Created by start, mutated by
// answer upserts while in progress, closed exactly once by submit or
// by the expiry sweep.
type Submission struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	ExamID uint `json:"exam_id" gorm:"not null;index;uniqueIndex:uniq_active_user_submission;uniqueIndex:uniq_active_guest_submission"`

	// Identity: either a stable user id or a guest display name. The
	// partial unique indexes allow at most one in_progress submission
	// per caller per exam; concurrent starts collide at insert instead
	// of both committing.
	UserID    *string `json:"user_id" gorm:"index;size:255;uniqueIndex:uniq_active_user_submission,where:status = 'in_progress'"`
	GuestName *string `json:"guest_name" gorm:"index;size:100;uniqueIndex:uniq_active_guest_submission,where:status = 'in_progress'"`
	IsGuest   bool    `json:"is_guest" gorm:"not null;default:false"`

	AttemptNumber int              `json:"attempt_number" gorm:"not null;default:1"`
	Status        SubmissionStatus `json:"status" gorm:"default:in_progress;index"`

	// QuestionOrder is the []uint of question ids the taker actually
	// saw, fixed at creation (post-shuffle) and never mutated.
	QuestionOrder datatypes.JSON `json:"question_order" gorm:"type:jsonb"`

	// Timing
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`
	AutoSavedAt *time.Time `json:"auto_saved_at"`
	TimeSpent   int        `json:"time_spent"` // seconds

	// Scoring, written once at finalize.
	Score      float64 `json:"score"`
	MaxScore   int     `json:"max_score"`
	Percentage float64 `json:"percentage"`

	// ProctoringData is an append-only {violations, warnings} log fed
	// by the client; the engine never interprets it.
	ProctoringData datatypes.JSON `json:"proctoring_data" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam    Exam               `json:"exam" gorm:"foreignKey:ExamID"`
	Answers []SubmissionAnswer `json:"answers" gorm:"foreignKey:SubmissionID"`
}

// SubmissionAnswer holds one answer per question, unique per
// (submission, question), replaced wholesale on each autosave.
type SubmissionAnswer struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	SubmissionID uint `json:"submission_id" gorm:"not null;index;uniqueIndex:idx_submission_question"`
	QuestionID   uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_submission_question"`

	// SubmittedValue mirrors the question's answer shape.
	SubmittedValue datatypes.JSON `json:"submitted_value" gorm:"type:jsonb"`

	// Grading results, written only at finalize.
	IsCorrect *bool   `json:"is_correct"`
	Points    float64 `json:"points"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Submission Submission `json:"-" gorm:"foreignKey:SubmissionID"`
	Question   Question   `json:"-" gorm:"foreignKey:QuestionID"`
}

// ProctoringData is the stored shape of Submission.ProctoringData.
type ProctoringData struct {
	Violations []string `json:"violations"`
	Warnings   []string `json:"warnings"`
}

func (Submission) TableName() string {
	return "submissions"
}

func (SubmissionAnswer) TableName() string {
	return "submission_answers"
}
