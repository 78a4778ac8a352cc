package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/examforge/exam-engine/internal/cache"
	"github.com/examforge/exam-engine/internal/models"
	"github.com/examforge/exam-engine/internal/repositories"
)

type leaderboardService struct {
	repo         repositories.Repository
	cacheManager *cache.CacheManager
	logger       *slog.Logger

	now func() time.Time
}

func NewLeaderboardService(repo repositories.Repository, cacheManager *cache.CacheManager, logger *slog.Logger) LeaderboardService {
	return &leaderboardService{
		repo:         repo,
		cacheManager: cacheManager,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *leaderboardService) Get(ctx context.Context, examID uint, caller Caller) (*LeaderboardResponse, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	// Hidden leaderboards fail closed: no filtered view, no entries,
	// just a refusal for anyone who is not exam staff.
	if exam.HideLeaderboard && !canViewOthers(caller, exam) {
		return nil, ErrLeaderboardHidden
	}

	cacheKey := fmt.Sprintf("exam:%d", examID)
	var cached LeaderboardResponse
	if s.cacheManager != nil {
		if err := s.cacheManager.Leaderboard.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	response, err := s.build(ctx, exam)
	if err != nil {
		return nil, err
	}

	if s.cacheManager != nil {
		if err := s.cacheManager.Leaderboard.Set(ctx, cacheKey, response, cache.LeaderboardCacheConfig.TTL); err != nil {
			s.logger.WarnContext(ctx, "Failed to cache leaderboard",
				"exam_id", examID,
				"error", err)
		}
	}

	return response, nil
}

func (s *leaderboardService) build(ctx context.Context, exam *models.Exam) (*LeaderboardResponse, error) {
	submissions, err := s.repo.Submission().GetFinalizedByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load finalized submissions: %w", err)
	}

	// Score descending, earlier finisher wins ties. Stable sort keeps
	// the ordering deterministic for identical inputs.
	sort.SliceStable(submissions, func(i, j int) bool {
		if submissions[i].Score != submissions[j].Score {
			return submissions[i].Score > submissions[j].Score
		}
		return submittedAtOf(submissions[i]).Before(submittedAtOf(submissions[j]))
	})

	entries := make([]LeaderboardEntry, 0, len(submissions))
	for i, sub := range submissions {
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			DisplayName: s.displayName(ctx, sub),
			IsGuest:     sub.IsGuest,
			Score:       sub.Score,
			Percentage:  sub.Percentage,
			TimeSpent:   sub.TimeSpent,
			SubmittedAt: submittedAtOf(sub),
		})
	}

	return &LeaderboardResponse{
		ExamID:      exam.ID,
		Title:       exam.Title,
		Entries:     entries,
		GeneratedAt: s.now(),
	}, nil
}

func submittedAtOf(sub *models.Submission) time.Time {
	if sub.SubmittedAt != nil {
		return *sub.SubmittedAt
	}
	// Finalized rows always carry submittedAt; this is a defensive
	// fallback for legacy data.
	return sub.CreatedAt
}

func (s *leaderboardService) displayName(ctx context.Context, sub *models.Submission) string {
	if sub.IsGuest {
		if sub.GuestName != nil {
			return *sub.GuestName
		}
		return "guest"
	}

	if sub.UserID == nil {
		return "unknown"
	}

	user, err := s.repo.User().GetByID(ctx, *sub.UserID)
	if err != nil || user == nil {
		// Identity service outage must not break the leaderboard.
		return *sub.UserID
	}
	return user.FullName
}

// ===== EXPORT =====

func (s *leaderboardService) Export(ctx context.Context, examID uint, userID string) ([]byte, string, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrExamNotFound
		}
		return nil, "", fmt.Errorf("failed to get exam: %w", err)
	}

	if err := s.checkExportPermission(ctx, exam, userID); err != nil {
		return nil, "", err
	}

	response, err := s.build(ctx, exam)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Leaderboard"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, "", fmt.Errorf("failed to name sheet: %w", err)
	}

	headers := []string{"Rank", "Name", "Score", "Percentage", "Time Spent (s)", "Submitted At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, "", fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, entry := range response.Entries {
		values := []interface{}{
			entry.Rank,
			entry.DisplayName,
			entry.Score,
			entry.Percentage,
			entry.TimeSpent,
			entry.SubmittedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, "", fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	filename := fmt.Sprintf("leaderboard_exam_%d.xlsx", examID)

	s.logger.InfoContext(ctx, "Exported leaderboard",
		"exam_id", examID,
		"entries", len(response.Entries),
		"user_id", userID)

	return buf.Bytes(), filename, nil
}

func (s *leaderboardService) checkExportPermission(ctx context.Context, exam *models.Exam, userID string) error {
	if exam.CreatedBy == userID {
		return nil
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return NewPermissionError(userID, exam.ID, "leaderboard", "export", "could not resolve caller identity")
	}

	switch user.Role {
	case models.RoleAdmin, models.RoleProctor:
		return nil
	default:
		return NewPermissionError(userID, exam.ID, "leaderboard", "export", "not exam owner or staff")
	}
}
