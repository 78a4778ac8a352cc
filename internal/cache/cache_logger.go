package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateSubmissionCache invalidates caches after a submission
// write: the submission's own entries plus the leaderboard snapshots
// of its exam, which a newly finalized score makes stale.
func InvalidateSubmissionCache(ctx context.Context, cm *CacheManager, submissionID uint, examID uint) {
	SafeDelete(ctx, cm.Fast,
		fmt.Sprintf("submission:id:%d", submissionID),
		fmt.Sprintf("submission:%d:answers", submissionID))

	SafeInvalidatePattern(ctx, cm.Leaderboard, fmt.Sprintf("exam:%d*", examID))
}
