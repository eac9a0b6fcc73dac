package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/ternarybob/comparo/internal/storage/badger"
)

func newSweeper(t *testing.T, maxAge string) (*Service, interfaces.StorageManager) {
	t.Helper()
	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	svc := NewService(
		&common.SchedulerConfig{Enabled: true},
		&common.MatchingConfig{StaleRunMaxAge: maxAge},
		mgr, nil, nil, arbor.NewLogger(),
	)
	return svc, mgr
}

func seedRunningJob(t *testing.T, mgr interfaces.StorageManager, age time.Duration) (*models.MatchingJob, *models.MatchingJobRun) {
	t.Helper()
	ctx := context.Background()

	ws := models.NewWorkspace("acme", "Acme")
	if err := mgr.Workspaces().SaveWorkspace(ctx, ws); err != nil {
		t.Fatalf("Failed to save workspace: %v", err)
	}

	job := models.NewMatchingJob(ws.ID, "template", "source", nil)
	job.MarkRunning()
	if err := mgr.MatchingJobs().SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	run := models.NewMatchingJobRun(job.ID, nil, nil)
	run.StartedAt = time.Now().UTC().Add(-age)
	if err := mgr.MatchingRuns().SaveRun(ctx, run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
	return job, run
}

func TestSweepStaleRuns(t *testing.T) {
	svc, mgr := newSweeper(t, "30m")
	ctx := context.Background()
	job, run := seedRunningJob(t, mgr, time.Hour)

	swept, err := svc.SweepStaleRuns(ctx)
	if err != nil {
		t.Fatalf("SweepStaleRuns failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("Expected 1 swept run, got %d", swept)
	}

	reloaded, _ := mgr.MatchingRuns().GetRun(ctx, run.ID)
	if reloaded.Status != models.RunStatusFailed {
		t.Errorf("Expected failed run, got %s", reloaded.Status)
	}
	if reloaded.ErrorMessage != "stale run swept" {
		t.Errorf("Unexpected run error message: %q", reloaded.ErrorMessage)
	}
	if reloaded.FinishedAt == nil {
		t.Error("Swept run must carry a finish time")
	}

	reloadedJob, _ := mgr.MatchingJobs().GetJob(ctx, job.ID)
	if reloadedJob.Status != models.JobStatusFailed {
		t.Errorf("Expected failed job, got %s", reloadedJob.Status)
	}
}

func TestSweepLeavesFreshRunsAlone(t *testing.T) {
	svc, mgr := newSweeper(t, "30m")
	ctx := context.Background()
	_, run := seedRunningJob(t, mgr, time.Minute)

	swept, err := svc.SweepStaleRuns(ctx)
	if err != nil {
		t.Fatalf("SweepStaleRuns failed: %v", err)
	}
	if swept != 0 {
		t.Fatalf("Expected no swept runs, got %d", swept)
	}

	reloaded, _ := mgr.MatchingRuns().GetRun(ctx, run.ID)
	if reloaded.Status != models.RunStatusRunning {
		t.Errorf("Fresh run must stay running, got %s", reloaded.Status)
	}
}

func TestSweepIgnoresFinishedRuns(t *testing.T) {
	svc, mgr := newSweeper(t, "30m")
	ctx := context.Background()
	_, run := seedRunningJob(t, mgr, time.Hour)

	run.MarkComplete()
	if err := mgr.MatchingRuns().SaveRun(ctx, run); err != nil {
		t.Fatalf("Failed to finalize run: %v", err)
	}

	swept, err := svc.SweepStaleRuns(ctx)
	if err != nil {
		t.Fatalf("SweepStaleRuns failed: %v", err)
	}
	if swept != 0 {
		t.Errorf("Expected finished run to be ignored, got %d swept", swept)
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	svc := NewService(
		&common.SchedulerConfig{Enabled: false, StaleRunSchedule: "* * * * *"},
		&common.MatchingConfig{StaleRunMaxAge: "30m"},
		mgr, nil, nil, arbor.NewLogger(),
	)
	if err := svc.Start(); err != nil {
		t.Fatalf("Disabled scheduler must start cleanly: %v", err)
	}
	svc.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	svc, _ := newSweeper(t, "30m")
	svc.config.StaleRunSchedule = "not a cron expression"
	if err := svc.Start(); err == nil {
		t.Fatal("Expected invalid cron expression to fail")
	}
}
