package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	cfg := &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")}
	mgr, err := NewManager(arbor.NewLogger(), cfg)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		if err := mgr.Close(); err != nil {
			t.Errorf("Failed to close storage: %v", err)
		}
	})
	return mgr
}

func seedWorkspace(t *testing.T, mgr interfaces.StorageManager) (*models.Workspace, *models.EntityType, *models.EntityType) {
	t.Helper()
	ctx := context.Background()

	ws := models.NewWorkspace("acme", "Acme")
	if err := mgr.Workspaces().SaveWorkspace(ctx, ws); err != nil {
		t.Fatalf("Failed to save workspace: %v", err)
	}

	source := models.NewEntityType(ws.ID, "person", "Person")
	if err := mgr.Entities().SaveEntityType(ctx, source); err != nil {
		t.Fatalf("Failed to save source type: %v", err)
	}
	target := models.NewEntityType(ws.ID, "project", "Project")
	if err := mgr.Entities().SaveEntityType(ctx, target); err != nil {
		t.Fatalf("Failed to save target type: %v", err)
	}
	return ws, source, target
}

func seedEntity(t *testing.T, mgr interfaces.StorageManager, ws *models.Workspace, et *models.EntityType, name string) *models.Entity {
	t.Helper()
	e := models.NewEntity(ws.ID, et.ID, name)
	if err := mgr.Entities().SaveEntity(context.Background(), e); err != nil {
		t.Fatalf("Failed to save entity %s: %v", name, err)
	}
	return e
}

func TestWorkspaceSlugUniqueness(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	first := models.NewWorkspace("acme", "Acme")
	if err := mgr.Workspaces().SaveWorkspace(ctx, first); err != nil {
		t.Fatalf("Failed to save workspace: %v", err)
	}

	dup := models.NewWorkspace("acme", "Acme Again")
	if err := mgr.Workspaces().SaveWorkspace(ctx, dup); err == nil {
		t.Fatal("Expected duplicate slug to be rejected")
	}

	// Re-saving the same workspace is fine
	first.Name = "Acme Renamed"
	if err := mgr.Workspaces().SaveWorkspace(ctx, first); err != nil {
		t.Fatalf("Failed to re-save workspace: %v", err)
	}

	got, err := mgr.Workspaces().GetWorkspaceBySlug(ctx, "acme")
	if err != nil {
		t.Fatalf("Failed to get by slug: %v", err)
	}
	if got.Name != "Acme Renamed" {
		t.Errorf("Expected renamed workspace, got %s", got.Name)
	}
}

func TestEntityWorkspaceConsistency(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	ws, _, targetType := seedWorkspace(t, mgr)

	other := models.NewWorkspace("other", "Other")
	if err := mgr.Workspaces().SaveWorkspace(ctx, other); err != nil {
		t.Fatalf("Failed to save workspace: %v", err)
	}

	// Entity claiming a type from a different workspace is rejected
	cross := models.NewEntity(other.ID, targetType.ID, "Crossed")
	if err := mgr.Entities().SaveEntity(ctx, cross); err == nil {
		t.Fatal("Expected cross-workspace entity to be rejected")
	}

	e := seedEntity(t, mgr, ws, targetType, "Apollo")
	e.ExternalRef = "github:apollo"
	if err := mgr.Entities().SaveEntity(ctx, e); err != nil {
		t.Fatalf("Failed to update entity: %v", err)
	}

	got, err := mgr.Entities().GetEntityByExternalRef(ctx, ws.ID, "github:apollo")
	if err != nil {
		t.Fatalf("Failed to get by external ref: %v", err)
	}
	if got.ID != e.ID {
		t.Errorf("Expected entity %s, got %s", e.ID, got.ID)
	}
}

func TestAddTargetIsIdempotent(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	ws, personType, projectType := seedWorkspace(t, mgr)
	source := seedEntity(t, mgr, ws, personType, "Ada")
	target := seedEntity(t, mgr, ws, projectType, "Apollo")

	tmpl := models.NewMatchingTemplate(ws.ID, "tech-match", personType.ID, projectType.ID, nil)
	if err := mgr.Templates().SaveTemplate(ctx, tmpl); err != nil {
		t.Fatalf("Failed to save template: %v", err)
	}

	job := models.NewMatchingJob(ws.ID, tmpl.ID, source.ID, nil)
	if err := mgr.MatchingJobs().SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	added, err := mgr.MatchingJobs().AddTarget(ctx, models.NewMatchingJobTarget(job.ID, target.ID))
	if err != nil {
		t.Fatalf("Failed to add target: %v", err)
	}
	if !added {
		t.Fatal("Expected first add to report true")
	}

	added, err = mgr.MatchingJobs().AddTarget(ctx, models.NewMatchingJobTarget(job.ID, target.ID))
	if err != nil {
		t.Fatalf("Failed to re-add target: %v", err)
	}
	if added {
		t.Error("Expected duplicate add to report false")
	}

	count, err := mgr.MatchingJobs().CountTargets(ctx, job.ID)
	if err != nil {
		t.Fatalf("Failed to count targets: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 target, got %d", count)
	}
}

func TestGetLatestRunAndStaleSweep(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	ws, personType, projectType := seedWorkspace(t, mgr)
	source := seedEntity(t, mgr, ws, personType, "Ada")

	tmpl := models.NewMatchingTemplate(ws.ID, "tech-match", personType.ID, projectType.ID, nil)
	if err := mgr.Templates().SaveTemplate(ctx, tmpl); err != nil {
		t.Fatalf("Failed to save template: %v", err)
	}
	job := models.NewMatchingJob(ws.ID, tmpl.ID, source.ID, nil)
	if err := mgr.MatchingJobs().SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	latest, err := mgr.MatchingRuns().GetLatestRun(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetLatestRun: %v", err)
	}
	if latest != nil {
		t.Fatal("Expected nil latest run for fresh job")
	}

	old := models.NewMatchingJobRun(job.ID, nil, nil)
	old.StartedAt = time.Now().Add(-2 * time.Hour)
	if err := mgr.MatchingRuns().SaveRun(ctx, old); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	recent := models.NewMatchingJobRun(job.ID, nil, nil)
	recent.StartedAt = time.Now().Add(-time.Minute)
	if err := mgr.MatchingRuns().SaveRun(ctx, recent); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	latest, err = mgr.MatchingRuns().GetLatestRun(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetLatestRun: %v", err)
	}
	if latest == nil || latest.ID != recent.ID {
		t.Fatalf("Expected latest run %s, got %+v", recent.ID, latest)
	}

	stale, err := mgr.MatchingRuns().ListStaleRuns(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListStaleRuns: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("Expected only the old run to be stale, got %d runs", len(stale))
	}
}

func TestEvaluationLogUpsertPerTarget(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	ws, personType, projectType := seedWorkspace(t, mgr)
	source := seedEntity(t, mgr, ws, personType, "Ada")
	target := seedEntity(t, mgr, ws, projectType, "Apollo")

	tmpl := models.NewMatchingTemplate(ws.ID, "tech-match", personType.ID, projectType.ID, nil)
	if err := mgr.Templates().SaveTemplate(ctx, tmpl); err != nil {
		t.Fatalf("Failed to save template: %v", err)
	}
	job := models.NewMatchingJob(ws.ID, tmpl.ID, source.ID, nil)
	if err := mgr.MatchingJobs().SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}
	run := models.NewMatchingJobRun(job.ID, nil, nil)
	if err := mgr.MatchingRuns().SaveRun(ctx, run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	first := models.NewMatchingEvaluationLog(run.ID, target.ID, 1.5, 0.5, 0.5, "first pass")
	firstDetails := []*models.MatchingEvaluationDetailLog{
		models.NewMatchingEvaluationDetailLog(first.ID, 0, "skills", "Skills", "BAD", 1, "little overlap"),
	}
	if err := mgr.MatchingAudits().SaveEvaluationLog(ctx, first, firstDetails); err != nil {
		t.Fatalf("Failed to save evaluation: %v", err)
	}

	second := models.NewMatchingEvaluationLog(run.ID, target.ID, 2.5, 1.0, 1.0, "second pass")
	secondDetails := []*models.MatchingEvaluationDetailLog{
		models.NewMatchingEvaluationDetailLog(second.ID, 0, "skills", "Skills", "GOOD", 3, "strong overlap"),
		models.NewMatchingEvaluationDetailLog(second.ID, 1, "domain", "Domain", "NEUTRAL", 2, "adjacent field"),
	}
	if err := mgr.MatchingAudits().SaveEvaluationLog(ctx, second, secondDetails); err != nil {
		t.Fatalf("Failed to upsert evaluation: %v", err)
	}

	logs, err := mgr.MatchingAudits().ListEvaluationLogs(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListEvaluationLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Expected a single evaluation per (run, target), got %d", len(logs))
	}
	if logs[0].SummaryReason != "second pass" {
		t.Errorf("Expected second evaluation to win, got %q", logs[0].SummaryReason)
	}

	details, err := mgr.MatchingAudits().ListEvaluationDetails(ctx, logs[0].ID)
	if err != nil {
		t.Fatalf("ListEvaluationDetails: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("Expected 2 details, got %d", len(details))
	}
	if details[0].CriterionID != "skills" || details[1].CriterionID != "domain" {
		t.Errorf("Expected details in plan order, got %s then %s", details[0].CriterionID, details[1].CriterionID)
	}
}

func TestReplaceMatchesSwapsCompleteSet(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	ws, personType, projectType := seedWorkspace(t, mgr)
	source := seedEntity(t, mgr, ws, personType, "Ada")
	targetA := seedEntity(t, mgr, ws, projectType, "Apollo")
	targetB := seedEntity(t, mgr, ws, projectType, "Borealis")

	tmpl := models.NewMatchingTemplate(ws.ID, "tech-match", personType.ID, projectType.ID, nil)
	if err := mgr.Templates().SaveTemplate(ctx, tmpl); err != nil {
		t.Fatalf("Failed to save template: %v", err)
	}
	job := models.NewMatchingJob(ws.ID, tmpl.ID, source.ID, nil)
	if err := mgr.MatchingJobs().SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	ratio := 0.5
	firstSet := []interfaces.MatchEntry{
		{
			Match: models.NewMatch(job.ID, source.ID, targetA.ID, 1.0, "weak", 1),
			Features: []*models.MatchFeature{
				models.NewMatchFeature("", 0, "search_hit_ratio", &ratio, ""),
			},
		},
	}
	if err := mgr.Matches().ReplaceMatches(ctx, job.ID, firstSet); err != nil {
		t.Fatalf("Failed to write first match set: %v", err)
	}

	secondSet := []interfaces.MatchEntry{
		{Match: models.NewMatch(job.ID, source.ID, targetB.ID, 2.6, "strong", 1)},
		{Match: models.NewMatch(job.ID, source.ID, targetA.ID, 1.8, "moderate", 2)},
	}
	if err := mgr.Matches().ReplaceMatches(ctx, job.ID, secondSet); err != nil {
		t.Fatalf("Failed to replace match set: %v", err)
	}

	matches, err := mgr.Matches().ListMatches(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches after replace, got %d", len(matches))
	}
	if matches[0].TargetEntityID != targetB.ID || matches[0].Rank != 1 {
		t.Errorf("Expected rank 1 to be %s, got %s (rank %d)", targetB.ID, matches[0].TargetEntityID, matches[0].Rank)
	}
	if matches[1].Score >= matches[0].Score {
		t.Errorf("Expected descending scores, got %.2f then %.2f", matches[0].Score, matches[1].Score)
	}

	// Features of the replaced set are gone with their matches
	features, err := mgr.Matches().ListFeatures(ctx, firstSet[0].Match.ID)
	if err != nil {
		t.Fatalf("ListFeatures: %v", err)
	}
	if len(features) != 0 {
		t.Errorf("Expected old features to be removed, found %d", len(features))
	}
}

func TestListUpdatesReverseChronological(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	ws, personType, projectType := seedWorkspace(t, mgr)
	source := seedEntity(t, mgr, ws, personType, "Ada")

	tmpl := models.NewMatchingTemplate(ws.ID, "tech-match", personType.ID, projectType.ID, nil)
	if err := mgr.Templates().SaveTemplate(ctx, tmpl); err != nil {
		t.Fatalf("Failed to save template: %v", err)
	}
	job := models.NewMatchingJob(ws.ID, tmpl.ID, source.ID, nil)
	if err := mgr.MatchingJobs().SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		update := models.NewMatchingJobUpdate(job.ID, "", "matching.job.status", map[string]interface{}{"seq": i})
		update.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := mgr.Updates().AppendUpdate(ctx, update); err != nil {
			t.Fatalf("Failed to append update %d: %v", i, err)
		}
	}

	updates, err := mgr.Updates().ListUpdates(ctx, job.ID, 3)
	if err != nil {
		t.Fatalf("ListUpdates: %v", err)
	}
	if len(updates) != 3 {
		t.Fatalf("Expected limit of 3, got %d", len(updates))
	}
	for i := 1; i < len(updates); i++ {
		if updates[i].CreatedAt.After(updates[i-1].CreatedAt) {
			t.Errorf("Expected reverse-chronological order at index %d", i)
		}
	}

	count, err := mgr.Updates().CountUpdates(ctx, job.ID)
	if err != nil {
		t.Fatalf("CountUpdates: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 updates, got %d", count)
	}
}

func TestDeleteJobRemovesChildren(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	ws, personType, projectType := seedWorkspace(t, mgr)
	source := seedEntity(t, mgr, ws, personType, "Ada")
	target := seedEntity(t, mgr, ws, projectType, "Apollo")

	tmpl := models.NewMatchingTemplate(ws.ID, "tech-match", personType.ID, projectType.ID, nil)
	if err := mgr.Templates().SaveTemplate(ctx, tmpl); err != nil {
		t.Fatalf("Failed to save template: %v", err)
	}
	job := models.NewMatchingJob(ws.ID, tmpl.ID, source.ID, nil)
	if err := mgr.MatchingJobs().SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}
	if _, err := mgr.MatchingJobs().AddTarget(ctx, models.NewMatchingJobTarget(job.ID, target.ID)); err != nil {
		t.Fatalf("Failed to add target: %v", err)
	}

	run := models.NewMatchingJobRun(job.ID, nil, nil)
	if err := mgr.MatchingRuns().SaveRun(ctx, run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
	search := models.NewMatchingSearchLog(run.ID, "skills", models.SearchQueryTypeSource, "", "golang experience", 3, 1)
	hits := []*models.MatchingSearchHitLog{
		models.NewMatchingSearchHitLog(search.ID, 1, "chunk-1", "built services in Go", 0.91, nil),
	}
	if err := mgr.MatchingAudits().SaveSearchLog(ctx, search, hits); err != nil {
		t.Fatalf("Failed to save search log: %v", err)
	}
	if err := mgr.Updates().AppendUpdate(ctx, models.NewMatchingJobUpdate(job.ID, run.ID, "matching.job.status", nil)); err != nil {
		t.Fatalf("Failed to append update: %v", err)
	}
	if err := mgr.Matches().ReplaceMatches(ctx, job.ID, []interfaces.MatchEntry{
		{Match: models.NewMatch(job.ID, source.ID, target.ID, 2.0, "ok", 1)},
	}); err != nil {
		t.Fatalf("Failed to write matches: %v", err)
	}

	if err := mgr.MatchingJobs().DeleteJob(ctx, job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}

	if _, err := mgr.MatchingJobs().GetJob(ctx, job.ID); err == nil {
		t.Error("Expected job to be gone")
	}
	runs, err := mgr.MatchingRuns().ListRuns(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected runs to be deleted, found %d", len(runs))
	}
	logs, err := mgr.MatchingAudits().ListSearchLogs(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListSearchLogs: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("Expected search logs to be deleted, found %d", len(logs))
	}
	matches, err := mgr.Matches().ListMatches(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Expected matches to be deleted, found %d", len(matches))
	}
	updates, err := mgr.Updates().ListUpdates(ctx, job.ID, 0)
	if err != nil {
		t.Fatalf("ListUpdates: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("Expected updates to be deleted, found %d", len(updates))
	}
}
