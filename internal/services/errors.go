package services

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the service layer. Handlers map these to
// HTTP status codes; callers should test with errors.Is.
var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrQuestionNotFound   = errors.New("question not found")

	// The exam exists but is not open for submissions (not published,
	// outside its time window, or wrong password)
	ErrExamUnavailable = errors.New("exam not available")
	ErrInvalidPassword = errors.New("invalid exam password")

	// Writes against a submission that already left in_progress
	ErrSubmissionFinalized = errors.New("submission already finalized")
	ErrInvalidState        = errors.New("submission is not in a valid state for this operation")

	ErrTimeLimitExceeded = errors.New("time limit exceeded")
	ErrAttemptsExhausted = errors.New("maximum attempts reached")
	ErrLeaderboardHidden = errors.New("leaderboard is hidden for this exam")
	ErrGuestNameRequired = errors.New("guest name is required")
	ErrIdentityRequired  = errors.New("caller identity is required")
)

// ValidationError carries field-level validation failures
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// PermissionError describes a denied action on a resource
type PermissionError struct {
	UserID   string
	ID       uint
	Resource string
	Action   string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ID, e.Reason)
}

func NewPermissionError(userID string, id uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		ID:       id,
		Resource: resource,
		Action:   action,
		Reason:   reason,
	}
}

// IsPermissionError reports whether err is a permission denial
func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsValidationError reports whether err is a field validation failure
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFoundError reports whether err is any of the not-found sentinels
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrExamNotFound) ||
		errors.Is(err, ErrSubmissionNotFound) ||
		errors.Is(err, ErrQuestionNotFound)
}
