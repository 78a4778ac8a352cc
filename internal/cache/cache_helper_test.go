package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheHelper(client, "test:"), mr
}

type payload struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func TestCacheHelper_SetGet(t *testing.T) {
	helper, _ := newTestCache(t)
	ctx := context.Background()

	in := payload{Name: "alice", Score: 42}
	if err := helper.Set(ctx, "k1", in, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var out payload
	if err := helper.Get(ctx, "k1", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out != in {
		t.Errorf("Get = %+v, want %+v", out, in)
	}
}

func TestCacheHelper_GetMiss(t *testing.T) {
	helper, _ := newTestCache(t)

	var out payload
	if err := helper.Get(context.Background(), "missing", &out); err != ErrCacheNotFound {
		t.Errorf("Get miss err = %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelper_TTLExpiry(t *testing.T) {
	helper, mr := newTestCache(t)
	ctx := context.Background()

	if err := helper.Set(ctx, "k1", payload{Name: "x"}, 30*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	mr.FastForward(31 * time.Second)

	var out payload
	if err := helper.Get(ctx, "k1", &out); err != ErrCacheNotFound {
		t.Errorf("Get after expiry err = %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelper_Delete(t *testing.T) {
	helper, _ := newTestCache(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := helper.SetString(ctx, k, "v", time.Minute); err != nil {
			t.Fatalf("SetString(%s): %v", k, err)
		}
	}

	if err := helper.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, tc := range []struct {
		key  string
		want bool
	}{{"a", false}, {"b", false}, {"c", true}} {
		exists, err := helper.Exists(ctx, tc.key)
		if err != nil {
			t.Fatalf("Exists(%s): %v", tc.key, err)
		}
		if exists != tc.want {
			t.Errorf("Exists(%s) = %v, want %v", tc.key, exists, tc.want)
		}
	}
}

func TestCacheHelper_InvalidatePattern(t *testing.T) {
	helper, _ := newTestCache(t)
	ctx := context.Background()

	keys := []string{"exam:1", "exam:1:questions", "exam:2"}
	for _, k := range keys {
		if err := helper.SetString(ctx, k, "v", time.Minute); err != nil {
			t.Fatalf("SetString(%s): %v", k, err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "exam:1*"); err != nil {
		t.Fatalf("InvalidatePattern: %v", err)
	}

	if exists, _ := helper.Exists(ctx, "exam:1"); exists {
		t.Error("exam:1 survived invalidation")
	}
	if exists, _ := helper.Exists(ctx, "exam:1:questions"); exists {
		t.Error("exam:1:questions survived invalidation")
	}
	if exists, _ := helper.Exists(ctx, "exam:2"); !exists {
		t.Error("exam:2 was removed by an unrelated pattern")
	}
}

func TestCacheHelper_NilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "test:")
	ctx := context.Background()

	if err := helper.Set(ctx, "k", payload{}, time.Minute); err != nil {
		t.Errorf("Set with nil client err = %v, want nil", err)
	}
	var out payload
	if err := helper.Get(ctx, "k", &out); err != ErrCacheNotAvailable {
		t.Errorf("Get with nil client err = %v, want ErrCacheNotAvailable", err)
	}
	if err := helper.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete with nil client err = %v, want nil", err)
	}
	if err := helper.InvalidatePattern(ctx, "*"); err != nil {
		t.Errorf("InvalidatePattern with nil client err = %v, want nil", err)
	}
}

func TestCacheManager_KeyIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cm := NewCacheManager(client)
	ctx := context.Background()

	if err := cm.Exam.SetString(ctx, "1", "exam", time.Minute); err != nil {
		t.Fatalf("Exam.SetString: %v", err)
	}
	if err := cm.Leaderboard.SetString(ctx, "1", "board", time.Minute); err != nil {
		t.Fatalf("Leaderboard.SetString: %v", err)
	}

	// Same logical key, different prefixes, no collision.
	exam, err := cm.Exam.GetString(ctx, "1")
	if err != nil || exam != "exam" {
		t.Errorf("Exam.GetString = %q, %v", exam, err)
	}
	board, err := cm.Leaderboard.GetString(ctx, "1")
	if err != nil || board != "board" {
		t.Errorf("Leaderboard.GetString = %q, %v", board, err)
	}

	if err := cm.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestInvalidateSubmissionCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cm := NewCacheManager(client)
	ctx := context.Background()

	if err := cm.Fast.SetString(ctx, "submission:id:3", "sub", time.Minute); err != nil {
		t.Fatalf("Fast.SetString: %v", err)
	}
	if err := cm.Fast.SetString(ctx, "submission:3:answers", "answers", time.Minute); err != nil {
		t.Fatalf("Fast.SetString: %v", err)
	}
	if err := cm.Leaderboard.SetString(ctx, "exam:7", "board", time.Minute); err != nil {
		t.Fatalf("Leaderboard.SetString: %v", err)
	}
	if err := cm.Leaderboard.SetString(ctx, "exam:8", "other", time.Minute); err != nil {
		t.Fatalf("Leaderboard.SetString: %v", err)
	}

	InvalidateSubmissionCache(ctx, cm, 3, 7)

	if exists, _ := cm.Fast.Exists(ctx, "submission:id:3"); exists {
		t.Error("submission entry survived invalidation")
	}
	if exists, _ := cm.Fast.Exists(ctx, "submission:3:answers"); exists {
		t.Error("answers entry survived invalidation")
	}
	if exists, _ := cm.Leaderboard.Exists(ctx, "exam:7"); exists {
		t.Error("leaderboard for exam 7 survived invalidation")
	}
	if exists, _ := cm.Leaderboard.Exists(ctx, "exam:8"); !exists {
		t.Error("leaderboard for exam 8 was removed")
	}
}

func TestSafeDelete_NilClient(t *testing.T) {
	cm := NewCacheManager(nil)
	ctx := context.Background()

	// Both degrade to no-ops without a backing client.
	SafeDelete(ctx, cm.Fast, "submission:id:1")
	SafeInvalidatePattern(ctx, cm.Leaderboard, "exam:*")
}
