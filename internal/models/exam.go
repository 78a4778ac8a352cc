package models

import (
	"time"

	"gorm.io/gorm"
)

type ExamStatus string

const (
	ExamDraft     ExamStatus = "draft"
	ExamPublished ExamStatus = "published"
	ExamArchived  ExamStatus = "archived"
)

// Exam is read-only for this service: authoring lives elsewhere, the
// submission engine only consumes duration, marks, settings and the
// question list.
type Exam struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Title       string     `json:"title" gorm:"not null;size:200;index"`
	Description *string    `json:"description" gorm:"type:text"`
	Duration    int        `json:"duration" gorm:"not null"` // minutes
	TotalMarks  int        `json:"total_marks" gorm:"not null"`
	Status      ExamStatus `json:"status" gorm:"default:draft;index"`

	// Availability window. Nil bounds mean open-ended.
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`

	// Optional access password, checked verbatim on start.
	ExamPassword *string `json:"-" gorm:"size:100"`

	HideLeaderboard bool `json:"hide_leaderboard" gorm:"default:false"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Settings  ExamSettings   `json:"settings" gorm:"foreignKey:ExamID"`
	Questions []ExamQuestion `json:"questions" gorm:"foreignKey:ExamID"`
	Creator   User           `json:"creator" gorm:"foreignKey:CreatedBy"`
}

type ExamSettings struct {
	ExamID    uint      `json:"exam_id" gorm:"primaryKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`

	ShuffleQuestions    bool `json:"shuffle_questions" gorm:"not null;default:false"`
	ShuffleChoices      bool `json:"shuffle_choices" gorm:"not null;default:false"`
	AllowLateSubmission bool `json:"allow_late_submission" gorm:"not null;default:false"`
	MaxAttempts         int  `json:"max_attempts" gorm:"not null;default:1"`
	GracePeriodMinutes  int  `json:"grace_period_minutes" gorm:"not null;default:0"`
}

// ExamQuestion binds a question into an exam with its position and marks.
type ExamQuestion struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	ExamID     uint `json:"exam_id" gorm:"not null;index"`
	QuestionID uint `json:"question_id" gorm:"not null;index"`

	Order int `json:"order" gorm:"not null"`
	Marks int `json:"marks" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam     Exam     `json:"exam" gorm:"foreignKey:ExamID"`
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

func (Exam) TableName() string {
	return "exams"
}

func (ExamSettings) TableName() string {
	return "exam_settings"
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}
