package repositories

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStatusConflict is returned when a conditional status update
	// matched no rows because the record already left the expected
	// state. The loser of a finalize race observes this.
	ErrStatusConflict = errors.New("status conflict")

	// ErrDuplicateActive is returned when an insert would create a
	// second in_progress submission for the same caller and exam. The
	// loser of a concurrent start observes this and resumes the
	// winner's submission.
	ErrDuplicateActive = errors.New("active submission already exists")
)

// IsNotFoundError reports whether err means "record does not exist",
// regardless of which layer produced it.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsStatusConflictError reports whether err is a lost conditional update.
func IsStatusConflictError(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}

// IsDuplicateActiveError reports whether err is a lost concurrent start.
func IsDuplicateActiveError(err error) bool {
	return errors.Is(err, ErrDuplicateActive)
}
