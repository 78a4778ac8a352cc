package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/examforge/exam-engine/internal/cache"
	"github.com/examforge/exam-engine/internal/models"
	"github.com/examforge/exam-engine/internal/repositories"
)

var terminalStatuses = []models.SubmissionStatus{
	models.SubmissionSubmitted,
	models.SubmissionGraded,
	models.SubmissionLate,
}

type SubmissionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewSubmissionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

// Create inserts a new submission. The partial unique indexes on the
// table reject a second in_progress row per caller and exam; that
// violation comes back as ErrDuplicateActive so the caller can resume
// the winner instead of failing.
func (s *SubmissionPostgreSQL) Create(ctx context.Context, submission *models.Submission) error {
	if err := s.db.WithContext(ctx).Create(submission).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repositories.ErrDuplicateActive
		}
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (s *SubmissionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByIDWithAnswers(ctx context.Context, id uint) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).
		Preload("Answers").
		First(&submission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get submission with answers: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) List(ctx context.Context, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	var submissions []*models.Submission
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Submission{})
	query = s.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = s.applyPaginationAndSort(query, filters)

	if err := query.Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (s *SubmissionPostgreSQL) GetActiveByUser(ctx context.Context, examID uint, userID string) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).
		Where("exam_id = ? AND user_id = ? AND status = ?", examID, userID, models.SubmissionInProgress).
		First(&submission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active submission: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetActiveByGuest(ctx context.Context, examID uint, guestName string) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).
		Where("exam_id = ? AND guest_name = ? AND is_guest = true AND status = ?", examID, guestName, models.SubmissionInProgress).
		First(&submission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active guest submission: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) CountFinalizedByUser(ctx context.Context, examID uint, userID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("exam_id = ? AND user_id = ? AND status IN ?", examID, userID, terminalStatuses).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count finalized submissions: %w", err)
	}
	return int(count), nil
}

func (s *SubmissionPostgreSQL) GetInProgress(ctx context.Context) ([]*models.Submission, error) {
	var submissions []*models.Submission
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.SubmissionInProgress).
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to get in-progress submissions: %w", err)
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) GetFinalizedByExam(ctx context.Context, examID uint) ([]*models.Submission, error) {
	var submissions []*models.Submission
	if err := s.db.WithContext(ctx).
		Where("exam_id = ? AND status IN ?", examID, terminalStatuses).
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to get finalized submissions: %w", err)
	}
	return submissions, nil
}

// UpsertAnswer replaces the stored value per (submission, question).
// The unique index makes concurrent autosaves with the same question
// resolve to last-write-wins instead of duplicate rows.
func (s *SubmissionPostgreSQL) UpsertAnswer(ctx context.Context, answer *models.SubmissionAnswer) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "submission_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"submitted_value", "updated_at"}),
		}).
		Create(answer).Error; err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}

	cache.SafeDelete(ctx, s.cacheManager.Fast, fmt.Sprintf("submission:%d:answers", answer.SubmissionID))

	return nil
}

func (s *SubmissionPostgreSQL) GetAnswers(ctx context.Context, submissionID uint) ([]*models.SubmissionAnswer, error) {
	var answers []*models.SubmissionAnswer
	if err := s.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("question_id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	return answers, nil
}

func (s *SubmissionPostgreSQL) UpdateAnswerGrade(ctx context.Context, answerID uint, isCorrect bool, points float64) error {
	if err := s.db.WithContext(ctx).
		Model(&models.SubmissionAnswer{}).
		Where("id = ?", answerID).
		Updates(map[string]interface{}{
			"is_correct": isCorrect,
			"points":     points,
		}).Error; err != nil {
		return fmt.Errorf("failed to update answer grade: %w", err)
	}
	return nil
}

// TouchAutoSaved stamps the autosave time, conditional on the row
// still being in_progress. Inside a transaction the matched row stays
// locked until commit, so a concurrent finalize cannot slip between
// this check and the answer writes.
func (s *SubmissionPostgreSQL) TouchAutoSaved(ctx context.Context, id uint, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionInProgress).
		Update("auto_saved_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to touch autosave time: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.classifyMissedWrite(ctx, id)
	}
	return nil
}

// Finalize is the single concurrency-control primitive of the engine:
// the status transition only applies while the row is still
// in_progress, so a submit and a sweep racing on the same submission
// cannot both win.
func (s *SubmissionPostgreSQL) Finalize(ctx context.Context, id uint, fin repositories.SubmissionFinalization) error {
	result := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionInProgress).
		Updates(map[string]interface{}{
			"status":       fin.Status,
			"submitted_at": fin.SubmittedAt,
			"time_spent":   fin.TimeSpent,
			"score":        fin.Score,
			"max_score":    fin.MaxScore,
			"percentage":   fin.Percentage,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize submission: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return s.classifyMissedWrite(ctx, id)
	}

	s.invalidateSubmission(ctx, id)
	return nil
}

// UpdateProctoringData replaces the proctoring log, conditional on the
// row still being in_progress so no event lands after finalize.
func (s *SubmissionPostgreSQL) UpdateProctoringData(ctx context.Context, id uint, data datatypes.JSON) error {
	result := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionInProgress).
		Update("proctoring_data", data)
	if result.Error != nil {
		return fmt.Errorf("failed to update proctoring data: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.classifyMissedWrite(ctx, id)
	}
	return nil
}

// ===== HELPER METHODS =====

// classifyMissedWrite distinguishes why a conditional in_progress write
// matched no rows: the submission is gone, or it already closed.
func (s *SubmissionPostgreSQL) classifyMissedWrite(ctx context.Context, id uint) error {
	var submission models.Submission
	if err := s.db.WithContext(ctx).Select("id, status").First(&submission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repositories.ErrNotFound
		}
		return fmt.Errorf("failed to check submission state: %w", err)
	}
	return repositories.ErrStatusConflict
}

func (s *SubmissionPostgreSQL) invalidateSubmission(ctx context.Context, id uint) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).Select("id, exam_id").First(&submission, id).Error; err != nil {
		cache.SafeDelete(ctx, s.cacheManager.Fast,
			fmt.Sprintf("submission:id:%d", id),
			fmt.Sprintf("submission:%d:answers", id),
		)
		cache.SafeInvalidatePattern(ctx, s.cacheManager.Leaderboard, "exam:*")
		return
	}
	cache.InvalidateSubmissionCache(ctx, s.cacheManager, id, submission.ExamID)
}

func (s *SubmissionPostgreSQL) applyFilters(query *gorm.DB, filters repositories.SubmissionFilters) *gorm.DB {
	if filters.ExamID != nil {
		query = query.Where("exam_id = ?", *filters.ExamID)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.GuestName != nil {
		query = query.Where("guest_name = ? AND is_guest = true", *filters.GuestName)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

func (s *SubmissionPostgreSQL) applyPaginationAndSort(query *gorm.DB, filters repositories.SubmissionFilters) *gorm.DB {
	sortBy := filters.SortBy
	switch sortBy {
	case "created_at", "submitted_at", "score":
	default:
		sortBy = "created_at"
	}

	sortOrder := "DESC"
	if filters.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	query = query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder))

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	return query
}
