package matching

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/ternarybob/comparo/internal/storage/badger"
)

// fakeSearcher returns canned hits per (entity, query) pair and can be told
// to fail for a specific entity
type fakeSearcher struct {
	hits   map[string][]interfaces.VectorHit
	failOn map[string]error
	calls  int
	closed bool
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		hits:   make(map[string][]interfaces.VectorHit),
		failOn: make(map[string]error),
	}
}

func (s *fakeSearcher) add(entityID, query string, hits ...interfaces.VectorHit) {
	s.hits[entityID+"|"+query] = hits
}

func (s *fakeSearcher) Search(ctx context.Context, workspaceID, query string, limit int, filters interfaces.SearchFilters) ([]interfaces.VectorHit, error) {
	s.calls++
	if err := s.failOn[filters.EntityID]; err != nil {
		return nil, err
	}
	hits := s.hits[filters.EntityID+"|"+query]
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *fakeSearcher) Close() error {
	s.closed = true
	return nil
}

// fakeModel answers prompts through a routing function
type fakeModel struct {
	respond func(prompt string) string
	closed  bool
}

func (m *fakeModel) StructuredMatchReview(ctx context.Context, prompt string) (string, error) {
	return m.respond(prompt), nil
}

func (m *fakeModel) Close() error {
	m.closed = true
	return nil
}

type fakeProviders struct {
	searcher    *fakeSearcher
	model       *fakeModel
	searcherErr error
	modelErr    error
}

func (f *fakeProviders) NewSearcher(ctx context.Context, workspaceID string) (interfaces.VectorSearcher, error) {
	if f.searcherErr != nil {
		return nil, f.searcherErr
	}
	return f.searcher, nil
}

func (f *fakeProviders) NewLanguageModel(ctx context.Context) (interfaces.LanguageModel, error) {
	if f.modelErr != nil {
		return nil, f.modelErr
	}
	return f.model, nil
}

// pipelineFixture seeds one workspace with a source entity and n targets,
// each carrying one document
type pipelineFixture struct {
	mgr     interfaces.StorageManager
	ws      *models.Workspace
	source  *models.Entity
	targets []*models.Entity
	job     *models.MatchingJob
}

func newPipelineFixture(t *testing.T, templateCfg map[string]interface{}, targetCount int) *pipelineFixture {
	t.Helper()
	ctx := context.Background()

	cfg := &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")}
	mgr, err := badger.NewManager(arbor.NewLogger(), cfg)
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

	template := models.NewMatchingTemplate(ws.ID, "position-candidate", sourceType.ID, targetType.ID, templateCfg)
	if err := mgr.Templates().SaveTemplate(ctx, template); err != nil {
		t.Fatalf("Failed to save template: %v", err)
	}

	job := models.NewMatchingJob(ws.ID, template.ID, source.ID, nil)
	if err := mgr.MatchingJobs().SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	targets := make([]*models.Entity, targetCount)
	for i := range targets {
		target := models.NewEntity(ws.ID, targetType.ID, fmt.Sprintf("Candidate %d", i+1))
		if err := mgr.Entities().SaveEntity(ctx, target); err != nil {
			t.Fatalf("Failed to save target entity: %v", err)
		}
		if _, err := mgr.MatchingJobs().AddTarget(ctx, models.NewMatchingJobTarget(job.ID, target.ID)); err != nil {
			t.Fatalf("Failed to pin target: %v", err)
		}
		targets[i] = target
	}

	return &pipelineFixture{mgr: mgr, ws: ws, source: source, targets: targets, job: job}
}

// seedChunks creates one completed document for the entity with the given
// chunk texts and returns the persisted chunks
func (f *pipelineFixture) seedChunks(t *testing.T, entity *models.Entity, texts ...string) []*models.DocumentChunk {
	t.Helper()
	ctx := context.Background()

	doc := models.NewDocument(entity.ID, entity.Name+" profile")
	doc.MarkScrapeCompleted(strings.Join(texts, "\n"))
	if err := f.mgr.Documents().SaveDocument(ctx, doc); err != nil {
		t.Fatalf("Failed to save document: %v", err)
	}

	chunks := make([]*models.DocumentChunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.NewDocumentChunk(doc.ID, i, text)
	}
	if _, err := f.mgr.Documents().ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("Failed to save chunks: %v", err)
	}
	return chunks
}

func (f *pipelineFixture) runner(providers interfaces.MatchingProviderFactory) *Runner {
	logger := arbor.NewLogger()
	publisher := NewNullPublisher(f.mgr.Updates(), logger)
	return NewRunner(f.mgr, providers, publisher, logger)
}

func hitFor(chunk *models.DocumentChunk, score float64) interfaces.VectorHit {
	return interfaces.VectorHit{
		ID:    chunk.ID,
		Score: score,
		Metadata: map[string]interface{}{
			"chunk_id":    chunk.ID,
			"document_id": chunk.DocumentID,
			"chunk_index": chunk.ChunkIndex,
		},
	}
}

func singleCriterionConfig(id, prompt string) map[string]interface{} {
	return map[string]interface{}{
		"search_criteria": []interface{}{
			map[string]interface{}{"id": id, "label": id, "prompt": prompt},
		},
	}
}

func TestRunSingleCriterionSingleTarget(t *testing.T) {
	f := newPipelineFixture(t, singleCriterionConfig("fit", "match"), 1)
	ctx := context.Background()

	sourceChunks := f.seedChunks(t, f.source, "go services", "distributed systems")
	targetChunks := f.seedChunks(t, f.targets[0], "golang backend work")

	searcher := newFakeSearcher()
	searcher.add(f.source.ID, "match", hitFor(sourceChunks[0], 0.9))
	searcher.add(f.targets[0].ID, "match", hitFor(targetChunks[0], 0.8))

	model := &fakeModel{respond: func(prompt string) string {
		if strings.Contains(prompt, "Respond with a single rating token") {
			return "GOOD"
		}
		return "Strong overlap."
	}}

	runner := f.runner(&fakeProviders{searcher: searcher, model: model})
	if err := runner.Run(ctx, f.job.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	job, err := f.mgr.MatchingJobs().GetJob(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("Failed to reload job: %v", err)
	}
	if job.Status != models.JobStatusComplete {
		t.Fatalf("Expected job complete, got %s", job.Status)
	}

	matches, err := f.mgr.Matches().ListMatches(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("Failed to list matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}
	match := matches[0]
	if match.Rank != 1 || match.Score != 3.0 {
		t.Errorf("Expected rank 1 score 3.0, got rank %d score %v", match.Rank, match.Score)
	}
	if match.Explanation != "Strong overlap." {
		t.Errorf("Unexpected explanation: %q", match.Explanation)
	}

	features, err := f.mgr.Matches().ListFeatures(ctx, match.ID)
	if err != nil {
		t.Fatalf("Failed to list features: %v", err)
	}
	byLabel := make(map[string]*models.MatchFeature)
	for _, feature := range features {
		byLabel[feature.Label] = feature
	}
	if feature := byLabel["criterion:fit"]; feature == nil || *feature.ValueNumeric != 3 {
		t.Errorf("Expected criterion:fit feature with value 3, got %+v", feature)
	}
	if feature := byLabel["search_hit_ratio"]; feature == nil || *feature.ValueNumeric != 1.0 {
		t.Errorf("Expected search_hit_ratio feature 1.0, got %+v", feature)
	}

	run, err := f.mgr.MatchingRuns().GetLatestRun(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("Failed to load run: %v", err)
	}
	if run.Status != models.RunStatusComplete {
		t.Errorf("Expected run complete, got %s", run.Status)
	}

	sourceLogs, _ := f.mgr.MatchingAudits().CountSearchLogs(ctx, run.ID, models.SearchQueryTypeSource)
	targetLogs, _ := f.mgr.MatchingAudits().CountSearchLogs(ctx, run.ID, models.SearchQueryTypeTarget)
	if sourceLogs != 1 || targetLogs != 1 {
		t.Errorf("Expected 1 source and 1 target search log, got %d/%d", sourceLogs, targetLogs)
	}

	evaluations, err := f.mgr.MatchingAudits().ListEvaluationLogs(ctx, run.ID)
	if err != nil {
		t.Fatalf("Failed to list evaluation logs: %v", err)
	}
	if len(evaluations) != 1 {
		t.Fatalf("Expected 1 evaluation log, got %d", len(evaluations))
	}
	if evaluations[0].AverageScore != 3.0 || evaluations[0].Coverage != 1.0 {
		t.Errorf("Unexpected evaluation aggregates: %+v", evaluations[0])
	}

	details, err := f.mgr.MatchingAudits().ListEvaluationDetails(ctx, evaluations[0].ID)
	if err != nil {
		t.Fatalf("Failed to list details: %v", err)
	}
	if len(details) != 1 || details[0].RatingName != "GOOD" {
		t.Fatalf("Expected 1 GOOD detail, got %+v", details)
	}
	if !strings.Contains(details[0].RatingPrompt, "Criterion: fit") {
		t.Errorf("Rating prompt not preserved: %q", details[0].RatingPrompt)
	}
	if details[0].RatingResponse != "GOOD" || details[0].ReasoningResponse != "Strong overlap." {
		t.Errorf("Responses not preserved verbatim: %+v", details[0])
	}

	if !searcher.closed || !model.closed {
		t.Error("Expected providers to be closed on exit")
	}

	// Every emitted event has a persisted update row
	updates, err := f.mgr.Updates().ListUpdates(ctx, f.job.ID, 0)
	if err != nil {
		t.Fatalf("Failed to list updates: %v", err)
	}
	counts := make(map[string]int)
	for _, update := range updates {
		counts[update.EventType]++
	}
	for _, want := range []string{EventJobCriteria, EventSourceSnippets, EventTargetSearch, EventTargetEvaluation, EventTargetCandidate, EventMatchPersisted} {
		if counts[want] != 1 {
			t.Errorf("Expected exactly one %s update, got %d", want, counts[want])
		}
	}
	if counts[EventJobStatus] < 3 {
		t.Errorf("Expected status updates for queued, running and complete, got %d", counts[EventJobStatus])
	}
}

func TestRunCriterionWithoutTargetHitsIsSkipped(t *testing.T) {
	cfg := map[string]interface{}{
		"search_criteria": []interface{}{
			map[string]interface{}{"id": "a", "label": "A", "prompt": "prompt-a"},
			map[string]interface{}{"id": "b", "label": "B", "prompt": "prompt-b"},
		},
	}
	f := newPipelineFixture(t, cfg, 1)
	ctx := context.Background()

	sourceChunks := f.seedChunks(t, f.source, "source text")
	targetChunks := f.seedChunks(t, f.targets[0], "target text")

	searcher := newFakeSearcher()
	searcher.add(f.source.ID, "prompt-a", hitFor(sourceChunks[0], 0.9))
	searcher.add(f.targets[0].ID, "prompt-a", hitFor(targetChunks[0], 0.8))
	// criterion b retrieves nothing for the target

	model := &fakeModel{respond: func(prompt string) string {
		if strings.Contains(prompt, "Respond with a single rating token") {
			return "NEUTRAL"
		}
		return "Partial overlap."
	}}

	runner := f.runner(&fakeProviders{searcher: searcher, model: model})
	if err := runner.Run(ctx, f.job.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	run, _ := f.mgr.MatchingRuns().GetLatestRun(ctx, f.job.ID)
	evaluations, _ := f.mgr.MatchingAudits().ListEvaluationLogs(ctx, run.ID)
	if len(evaluations) != 1 {
		t.Fatalf("Expected 1 evaluation log, got %d", len(evaluations))
	}
	if evaluations[0].Coverage != 0.5 {
		t.Errorf("Expected coverage 0.5, got %v", evaluations[0].Coverage)
	}
	if evaluations[0].AverageScore != 2.0 {
		t.Errorf("Expected average score of the rated criterion, got %v", evaluations[0].AverageScore)
	}

	details, _ := f.mgr.MatchingAudits().ListEvaluationDetails(ctx, evaluations[0].ID)
	if len(details) != 1 || details[0].CriterionID != "a" {
		t.Fatalf("Expected only criterion a in details, got %+v", details)
	}

	// Search logs still cover the whole plan: 2 source + 2 target
	sourceLogs, _ := f.mgr.MatchingAudits().CountSearchLogs(ctx, run.ID, models.SearchQueryTypeSource)
	targetLogs, _ := f.mgr.MatchingAudits().CountSearchLogs(ctx, run.ID, models.SearchQueryTypeTarget)
	if sourceLogs != 2 || targetLogs != 2 {
		t.Errorf("Expected 2/2 search logs, got %d/%d", sourceLogs, targetLogs)
	}
}

func TestRunRanksTargetsByDescendingScore(t *testing.T) {
	cfg := map[string]interface{}{
		"search_criteria": []interface{}{
			map[string]interface{}{"id": "a", "label": "A", "prompt": "prompt-a"},
			map[string]interface{}{"id": "b", "label": "B", "prompt": "prompt-b"},
		},
	}
	f := newPipelineFixture(t, cfg, 2)
	ctx := context.Background()

	sourceChunks := f.seedChunks(t, f.source, "source text")
	t1Chunks := f.seedChunks(t, f.targets[0], "t1-marker text")
	t2Chunks := f.seedChunks(t, f.targets[1], "t2-marker text")

	searcher := newFakeSearcher()
	for _, prompt := range []string{"prompt-a", "prompt-b"} {
		searcher.add(f.source.ID, prompt, hitFor(sourceChunks[0], 0.9))
		searcher.add(f.targets[0].ID, prompt, hitFor(t1Chunks[0], 0.7))
		searcher.add(f.targets[1].ID, prompt, hitFor(t2Chunks[0], 0.7))
	}

	// T1 scores GOOD+NEUTRAL = 2.5, T2 scores GOOD+GOOD = 3.0
	model := &fakeModel{respond: func(prompt string) string {
		if !strings.Contains(prompt, "Respond with a single rating token") {
			return "Reasoning."
		}
		if strings.Contains(prompt, "t1-marker") && strings.Contains(prompt, "Criterion: B") {
			return "NEUTRAL"
		}
		return "GOOD"
	}}

	runner := f.runner(&fakeProviders{searcher: searcher, model: model})
	if err := runner.Run(ctx, f.job.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	matches, err := f.mgr.Matches().ListMatches(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("Failed to list matches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].TargetEntityID != f.targets[1].ID || matches[0].Rank != 1 || matches[0].Score != 3.0 {
		t.Errorf("Expected T2 at rank 1 with 3.0, got %+v", matches[0])
	}
	if matches[1].TargetEntityID != f.targets[0].ID || matches[1].Rank != 2 || matches[1].Score != 2.5 {
		t.Errorf("Expected T1 at rank 2 with 2.5, got %+v", matches[1])
	}

	// match.persisted events fire in rank order
	updates, _ := f.mgr.Updates().ListUpdates(ctx, f.job.ID, 0)
	var ranks []int
	for i := len(updates) - 1; i >= 0; i-- {
		if updates[i].EventType == EventMatchPersisted {
			rank, _ := updates[i].Payload["rank"].(float64)
			if rank == 0 {
				if r, ok := updates[i].Payload["rank"].(int); ok {
					rank = float64(r)
				}
			}
			ranks = append(ranks, int(rank))
		}
	}
	if len(ranks) != 2 || ranks[0] != 1 || ranks[1] != 2 {
		t.Errorf("Expected match.persisted events in rank order 1,2, got %v", ranks)
	}
}

func TestRunProviderFailureMidRun(t *testing.T) {
	f := newPipelineFixture(t, singleCriterionConfig("fit", "match"), 2)
	ctx := context.Background()

	sourceChunks := f.seedChunks(t, f.source, "source text")
	t1Chunks := f.seedChunks(t, f.targets[0], "t1 text")
	f.seedChunks(t, f.targets[1], "t2 text")

	// A prior successful run left a match behind
	prior := models.NewMatch(f.job.ID, f.source.ID, f.targets[0].ID, 2.0, "previous", 1)
	if err := f.mgr.Matches().ReplaceMatches(ctx, f.job.ID, []interfaces.MatchEntry{{Match: prior}}); err != nil {
		t.Fatalf("Failed to seed prior match: %v", err)
	}

	searcher := newFakeSearcher()
	searcher.add(f.source.ID, "match", hitFor(sourceChunks[0], 0.9))
	searcher.add(f.targets[0].ID, "match", hitFor(t1Chunks[0], 0.8))
	searcher.failOn[f.targets[1].ID] = errors.New("vector provider timeout")

	model := &fakeModel{respond: func(string) string { return "GOOD" }}

	runner := f.runner(&fakeProviders{searcher: searcher, model: model})
	err := runner.Run(ctx, f.job.ID)
	if err == nil {
		t.Fatal("Expected run to fail")
	}
	if !IsMatchingError(err) {
		t.Fatalf("Expected MatchingError, got %T: %v", err, err)
	}

	job, _ := f.mgr.MatchingJobs().GetJob(ctx, f.job.ID)
	if job.Status != models.JobStatusFailed {
		t.Errorf("Expected job failed, got %s", job.Status)
	}
	if job.ErrorMessage == "" || len(job.ErrorMessage) > 1000 {
		t.Errorf("Expected bounded error message, got %d chars", len(job.ErrorMessage))
	}

	run, _ := f.mgr.MatchingRuns().GetLatestRun(ctx, f.job.ID)
	if run.Status != models.RunStatusFailed {
		t.Errorf("Expected run failed, got %s", run.Status)
	}

	// Prior matches stay untouched
	matches, _ := f.mgr.Matches().ListMatches(ctx, f.job.ID)
	if len(matches) != 1 || matches[0].Explanation != "previous" {
		t.Errorf("Expected prior match to survive, got %+v", matches)
	}
}

func TestRunSkipsAlreadyRunningJob(t *testing.T) {
	f := newPipelineFixture(t, singleCriterionConfig("fit", "match"), 1)
	ctx := context.Background()

	f.job.MarkRunning()
	if err := f.mgr.MatchingJobs().SaveJob(ctx, f.job); err != nil {
		t.Fatalf("Failed to save running job: %v", err)
	}

	searcher := newFakeSearcher()
	runner := f.runner(&fakeProviders{searcher: searcher, model: &fakeModel{respond: func(string) string { return "GOOD" }}})
	if err := runner.Run(ctx, f.job.ID); err != nil {
		t.Fatalf("Duplicate execution should be a no-op, got %v", err)
	}
	if searcher.calls != 0 {
		t.Errorf("Expected no searches for a running job, got %d", searcher.calls)
	}
}

func TestRunMissingProviderIsFatal(t *testing.T) {
	f := newPipelineFixture(t, singleCriterionConfig("fit", "match"), 1)
	ctx := context.Background()

	runner := f.runner(&fakeProviders{searcherErr: errors.New("no searcher configured")})
	err := runner.Run(ctx, f.job.ID)
	if err == nil || !IsProviderConfigurationError(err) {
		t.Fatalf("Expected ProviderConfigurationError, got %v", err)
	}

	job, _ := f.mgr.MatchingJobs().GetJob(ctx, f.job.ID)
	if job.Status != models.JobStatusFailed {
		t.Errorf("Expected job failed, got %s", job.Status)
	}
}

func TestRunWritesBackCanonicalConfig(t *testing.T) {
	// Template config uses aliases and omits defaults; after a run the
	// stored config is canonical
	cfg := map[string]interface{}{
		"search_criteria": []interface{}{
			map[string]interface{}{"name": "Team fit", "query": "match"},
		},
	}
	f := newPipelineFixture(t, cfg, 1)
	ctx := context.Background()

	sourceChunks := f.seedChunks(t, f.source, "source text")
	targetChunks := f.seedChunks(t, f.targets[0], "target text")

	searcher := newFakeSearcher()
	searcher.add(f.source.ID, "match", hitFor(sourceChunks[0], 0.9))
	searcher.add(f.targets[0].ID, "match", hitFor(targetChunks[0], 0.8))

	runner := f.runner(&fakeProviders{searcher: searcher, model: &fakeModel{respond: func(string) string { return "GOOD" }}})
	if err := runner.Run(ctx, f.job.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	template, err := f.mgr.Templates().GetTemplate(ctx, f.job.TemplateID)
	if err != nil {
		t.Fatalf("Failed to reload template: %v", err)
	}
	criteria, ok := template.Config["search_criteria"].([]interface{})
	if !ok || len(criteria) != 1 {
		t.Fatalf("Expected canonical criteria list, got %+v", template.Config)
	}
	entry, ok := criteria[0].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected canonical criterion map, got %T", criteria[0])
	}
	if entry["label"] != "Team fit" || entry["prompt"] != "match" || entry["id"] != "team-fit" {
		t.Errorf("Config not canonicalized: %+v", entry)
	}
}
