package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/ternarybob/comparo/internal/models"
)

func TestReplaceChunksReturnsRemoved(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	ws, personType, _ := seedWorkspace(t, mgr)
	entity := seedEntity(t, mgr, ws, personType, "Ada")

	doc := models.NewDocument(entity.ID, "Resume")
	doc.Body = "Ten years of Go and distributed systems."
	if err := mgr.Documents().SaveDocument(ctx, doc); err != nil {
		t.Fatalf("Failed to save document: %v", err)
	}

	first := []*models.DocumentChunk{
		models.NewDocumentChunk(doc.ID, 0, "Ten years of Go"),
		models.NewDocumentChunk(doc.ID, 1, "and distributed systems."),
	}
	removed, err := mgr.Documents().ReplaceChunks(ctx, doc.ID, first)
	if err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("Expected nothing removed on first write, got %d", len(removed))
	}

	second := []*models.DocumentChunk{
		models.NewDocumentChunk(doc.ID, 0, "Ten years of Go and distributed systems."),
	}
	removed, err = mgr.Documents().ReplaceChunks(ctx, doc.ID, second)
	if err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("Expected 2 removed chunks, got %d", len(removed))
	}

	chunks, err := mgr.Documents().GetChunks(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk after replace, got %d", len(chunks))
	}
	if chunks[0].ChunkIndex != 0 {
		t.Errorf("Expected chunk index 0, got %d", chunks[0].ChunkIndex)
	}
}

func TestGetChunkByPositionAndVectorID(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	ws, personType, _ := seedWorkspace(t, mgr)
	entity := seedEntity(t, mgr, ws, personType, "Ada")

	doc := models.NewDocument(entity.ID, "Resume")
	doc.Body = "body"
	if err := mgr.Documents().SaveDocument(ctx, doc); err != nil {
		t.Fatalf("Failed to save document: %v", err)
	}

	chunks := make([]*models.DocumentChunk, 3)
	for i := range chunks {
		chunks[i] = models.NewDocumentChunk(doc.ID, i, fmt.Sprintf("part %d", i))
		chunks[i].VectorStoreID = fmt.Sprintf("vec-%d", i)
	}
	if _, err := mgr.Documents().ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	byPos, err := mgr.Documents().GetChunkByPosition(ctx, doc.ID, 1)
	if err != nil {
		t.Fatalf("GetChunkByPosition: %v", err)
	}
	if byPos.Text != "part 1" {
		t.Errorf("Expected chunk at index 1, got %q", byPos.Text)
	}

	byVec, err := mgr.Documents().GetChunkByVectorStoreID(ctx, "vec-2")
	if err != nil {
		t.Fatalf("GetChunkByVectorStoreID: %v", err)
	}
	if byVec.ChunkIndex != 2 {
		t.Errorf("Expected chunk index 2, got %d", byVec.ChunkIndex)
	}
}

func TestDeleteEntityRemovesDocumentsAndChunks(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	ws, personType, _ := seedWorkspace(t, mgr)
	entity := seedEntity(t, mgr, ws, personType, "Ada")

	doc := models.NewDocument(entity.ID, "Resume")
	doc.Body = "body"
	if err := mgr.Documents().SaveDocument(ctx, doc); err != nil {
		t.Fatalf("Failed to save document: %v", err)
	}
	if _, err := mgr.Documents().ReplaceChunks(ctx, doc.ID, []*models.DocumentChunk{
		models.NewDocumentChunk(doc.ID, 0, "body"),
	}); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	if err := mgr.Entities().DeleteEntity(ctx, entity.ID); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}

	if _, err := mgr.Documents().GetDocument(ctx, doc.ID); err == nil {
		t.Error("Expected document to be gone")
	}
	count, err := mgr.Documents().CountChunks(ctx, doc.ID)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected chunks to be gone, found %d", count)
	}
}
