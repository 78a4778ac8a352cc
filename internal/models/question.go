package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "mcq"
	TrueFalse      QuestionType = "tf"
	ShortAnswer    QuestionType = "short"
	Essay          QuestionType = "essay"
)

// Question is read-only here: the bank that authors questions is a
// separate service. Only type, canonical answer and choices matter
// for taking and grading an exam.
type Question struct {
	ID   uint         `json:"id" gorm:"primaryKey"`
	Type QuestionType `json:"type" gorm:"not null;index"`
	Text string       `json:"text" gorm:"type:text;not null"`

	// Canonical answer, shape depends on Type:
	// mcq: choice key string; tf: "true"/"false"; short: string or
	// []string of accepted values; essay: unused.
	Answer datatypes.JSON `json:"answer" gorm:"type:jsonb"`

	// Choices for mcq questions: []Choice.
	Choices datatypes.JSON `json:"choices" gorm:"type:jsonb"`

	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Choice struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

func (Question) TableName() string {
	return "questions"
}
