package matchingjobs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/ternarybob/comparo/internal/storage/badger"
)

type recordingQueue struct {
	tasks []*models.TaskMessage
}

func (q *recordingQueue) Enqueue(ctx context.Context, msg *models.TaskMessage) error {
	q.tasks = append(q.tasks, msg)
	return nil
}

func (q *recordingQueue) EnqueueWithDelay(ctx context.Context, msg *models.TaskMessage, delay time.Duration) error {
	return q.Enqueue(ctx, msg)
}

func (q *recordingQueue) Receive(ctx context.Context) (*interfaces.ReceivedTask, func() error, error) {
	return nil, nil, models.ErrNoMessage
}

func (q *recordingQueue) Extend(ctx context.Context, taskID string, duration time.Duration) error {
	return nil
}

func (q *recordingQueue) Length(ctx context.Context) (int, error) { return len(q.tasks), nil }
func (q *recordingQueue) Close() error                            { return nil }

type fixture struct {
	svc        *Service
	mgr        interfaces.StorageManager
	queue      *recordingQueue
	ws         *models.Workspace
	sourceType *models.EntityType
	targetType *models.EntityType
	source     *models.Entity
	template   *models.MatchingTemplate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	ws := models.NewWorkspace("acme", "Acme")
	if err := mgr.Workspaces().SaveWorkspace(ctx, ws); err != nil {
		t.Fatalf("Failed to save workspace: %v", err)
	}
	sourceType := models.NewEntityType(ws.ID, "position", "Position")
	targetType := models.NewEntityType(ws.ID, "candidate", "Candidate")
	for _, et := range []*models.EntityType{sourceType, targetType} {
		if err := mgr.Entities().SaveEntityType(ctx, et); err != nil {
			t.Fatalf("Failed to save entity type: %v", err)
		}
	}
	source := models.NewEntity(ws.ID, sourceType.ID, "Backend Engineer")
	if err := mgr.Entities().SaveEntity(ctx, source); err != nil {
		t.Fatalf("Failed to save source entity: %v", err)
	}

	config := map[string]interface{}{
		"search_criteria": []interface{}{
			map[string]interface{}{"label": "Fit", "prompt": "does it fit"},
		},
	}
	template := models.NewMatchingTemplate(ws.ID, "position-candidate", sourceType.ID, targetType.ID, config)
	if err := mgr.Templates().SaveTemplate(ctx, template); err != nil {
		t.Fatalf("Failed to save template: %v", err)
	}

	queue := &recordingQueue{}
	return &fixture{
		svc:        NewService(mgr, queue, arbor.NewLogger()),
		mgr:        mgr,
		queue:      queue,
		ws:         ws,
		sourceType: sourceType,
		targetType: targetType,
		source:     source,
		template:   template,
	}
}

func (f *fixture) addCandidates(t *testing.T, n int) []*models.Entity {
	t.Helper()
	entities := make([]*models.Entity, n)
	for i := range entities {
		e := models.NewEntity(f.ws.ID, f.targetType.ID, fmt.Sprintf("Candidate %d", i+1))
		if err := f.mgr.Entities().SaveEntity(context.Background(), e); err != nil {
			t.Fatalf("Failed to save candidate: %v", err)
		}
		entities[i] = e
	}
	return entities
}

func TestCreateJobWithExplicitTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	candidates := f.addCandidates(t, 2)

	job, err := f.svc.CreateJob(ctx, &CreateJobRequest{
		WorkspaceID:    f.ws.ID,
		TemplateID:     f.template.ID,
		SourceEntityID: f.source.ID,
		TargetIDs:      []string{candidates[0].ID, candidates[1].ID},
		Enqueue:        true,
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	count, _ := f.mgr.MatchingJobs().CountTargets(ctx, job.ID)
	if count != 2 {
		t.Errorf("Expected 2 targets, got %d", count)
	}
	if len(f.queue.tasks) != 1 || f.queue.tasks[0].Type != models.TaskRunMatchingJob {
		t.Errorf("Expected one run task enqueued, got %+v", f.queue.tasks)
	}
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	candidates := f.addCandidates(t, 1)

	otherWS := models.NewWorkspace("other", "Other")
	if err := f.mgr.Workspaces().SaveWorkspace(ctx, otherWS); err != nil {
		t.Fatalf("Failed to save workspace: %v", err)
	}

	tests := []struct {
		name     string
		req      *CreateJobRequest
		contains string
	}{
		{
			name:     "missing fields",
			req:      &CreateJobRequest{WorkspaceID: f.ws.ID},
			contains: "invalid job request",
		},
		{
			name: "template in wrong workspace",
			req: &CreateJobRequest{
				WorkspaceID:    otherWS.ID,
				TemplateID:     f.template.ID,
				SourceEntityID: f.source.ID,
			},
			contains: "different workspace",
		},
		{
			name: "source of wrong type",
			req: &CreateJobRequest{
				WorkspaceID:    f.ws.ID,
				TemplateID:     f.template.ID,
				SourceEntityID: candidates[0].ID,
			},
			contains: "source entity type",
		},
		{
			name: "invalid override",
			req: &CreateJobRequest{
				WorkspaceID:    f.ws.ID,
				TemplateID:     f.template.ID,
				SourceEntityID: f.source.ID,
				ConfigOverride: map[string]interface{}{
					"search_criteria": []interface{}{
						map[string]interface{}{"label": "no prompt"},
					},
				},
			},
			contains: "missing a prompt",
		},
		{
			name: "source as target",
			req: &CreateJobRequest{
				WorkspaceID:    f.ws.ID,
				TemplateID:     f.template.ID,
				SourceEntityID: f.source.ID,
				TargetIDs:      []string{f.source.ID},
			},
			contains: "own target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateJob(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Error %q does not mention %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestPopulateTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	candidates := f.addCandidates(t, 5)

	job, err := f.svc.CreateJob(ctx, &CreateJobRequest{
		WorkspaceID:    f.ws.ID,
		TemplateID:     f.template.ID,
		SourceEntityID: f.source.ID,
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	// Pre-pin one candidate; population must skip it without double counting
	if _, err := f.mgr.MatchingJobs().AddTarget(ctx, models.NewMatchingJobTarget(job.ID, candidates[0].ID)); err != nil {
		t.Fatalf("Failed to pre-pin target: %v", err)
	}

	added, err := f.svc.PopulateTargets(ctx, job.ID, 0)
	if err != nil {
		t.Fatalf("PopulateTargets failed: %v", err)
	}
	if added != 4 {
		t.Errorf("Expected 4 added targets, got %d", added)
	}

	count, _ := f.mgr.MatchingJobs().CountTargets(ctx, job.ID)
	if count != 5 {
		t.Errorf("Expected 5 total targets, got %d", count)
	}

	targets, _ := f.mgr.MatchingJobs().ListTargets(ctx, job.ID)
	for _, target := range targets {
		if target.EntityID == f.source.ID {
			t.Error("Source entity must never be pinned as a target")
		}
	}
}

func TestPopulateTargetsHonorsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCandidates(t, 5)

	job, err := f.svc.CreateJob(ctx, &CreateJobRequest{
		WorkspaceID:    f.ws.ID,
		TemplateID:     f.template.ID,
		SourceEntityID: f.source.ID,
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	added, err := f.svc.PopulateTargets(ctx, job.ID, 2)
	if err != nil {
		t.Fatalf("PopulateTargets failed: %v", err)
	}
	if added != 2 {
		t.Errorf("Expected limit of 2, got %d", added)
	}
}

func TestPopulateTargetsOverrideCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCandidates(t, 5)

	job, err := f.svc.CreateJob(ctx, &CreateJobRequest{
		WorkspaceID:    f.ws.ID,
		TemplateID:     f.template.ID,
		SourceEntityID: f.source.ID,
		ConfigOverride: map[string]interface{}{
			"target_count": 3,
			"search_criteria": []interface{}{
				map[string]interface{}{"label": "Fit", "prompt": "fit"},
			},
		},
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	added, err := f.svc.PopulateTargets(ctx, job.ID, 0)
	if err != nil {
		t.Fatalf("PopulateTargets failed: %v", err)
	}
	if added != 3 {
		t.Errorf("Expected target_count override of 3, got %d", added)
	}
}

func TestEnqueueRunRequiresTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.CreateJob(ctx, &CreateJobRequest{
		WorkspaceID:    f.ws.ID,
		TemplateID:     f.template.ID,
		SourceEntityID: f.source.ID,
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	if err := f.svc.EnqueueRun(ctx, job.ID); err == nil || !strings.Contains(err.Error(), "no targets") {
		t.Fatalf("Expected no-targets error, got %v", err)
	}
}

func TestEnqueueRunRejectsRunningJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	candidates := f.addCandidates(t, 1)

	job, err := f.svc.CreateJob(ctx, &CreateJobRequest{
		WorkspaceID:    f.ws.ID,
		TemplateID:     f.template.ID,
		SourceEntityID: f.source.ID,
		TargetIDs:      []string{candidates[0].ID},
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	job.MarkRunning()
	if err := f.mgr.MatchingJobs().SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save running job: %v", err)
	}

	if err := f.svc.EnqueueRun(ctx, job.ID); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("Expected already-running error, got %v", err)
	}
}
