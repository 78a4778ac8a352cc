package services

import (
	"context"
	"testing"
	"time"

	"github.com/examforge/exam-engine/internal/validator"
)

func TestServiceManager_SweepInterval(t *testing.T) {
	repo := newFakeRepository()
	sm := NewServiceManager(repo, nil, nil, testLogger(), validator.New(), ServiceManagerConfig{
		SweepInterval:  45 * time.Second,
		DefaultTimeout: time.Second,
	})
	if err := sm.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := sm.SweepInterval(); got != 45*time.Second {
		t.Errorf("SweepInterval = %v, want 45s", got)
	}

	def := NewDefaultServiceManager(repo, nil, nil, testLogger(), validator.New())
	if got := def.SweepInterval(); got != 30*time.Second {
		t.Errorf("default SweepInterval = %v, want 30s", got)
	}
}

func TestServiceManager_Lifecycle(t *testing.T) {
	repo := newFakeRepository()
	sm := NewDefaultServiceManager(repo, nil, nil, testLogger(), validator.New())
	ctx := context.Background()

	if err := sm.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck before Initialize should fail")
	}

	if err := sm.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := sm.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	if err := sm.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := sm.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck after Shutdown should fail")
	}
}
