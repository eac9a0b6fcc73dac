package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
)

type testEmbeddingItem struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type testEmbeddingResponse struct {
	Data []testEmbeddingItem `json:"data"`
}

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *OpenAIEmbedder {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &common.EmbeddingConfig{
		Provider:  "openai",
		Model:     "text-embedding-3-small",
		Dimension: 3,
		Endpoint:  server.URL,
		BatchSize: 2,
		Timeout:   "5s",
	}
	embedder, err := NewOpenAIEmbedder(cfg, arbor.NewLogger())
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	return embedder
}

func TestEmbedPreservesInputOrder(t *testing.T) {
	var requests int
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		// Answer out of order; the client must restore input order by index.
		// The first component encodes the in-request position.
		resp := testEmbeddingResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, testEmbeddingItem{
				Embedding: []float32{float32(i) + 1, 1, 0},
				Index:     i,
			})
		}
		json.NewEncoder(w).Encode(resp)
	})

	vectors, err := embedder.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("Expected 3 vectors, got %d", len(vectors))
	}
	if requests != 2 {
		t.Errorf("Expected 2 batched requests for batch size 2, got %d", requests)
	}

	// Batches are ["a","b"] and ["c"], so in-batch positions are 0, 1, 0.
	// Normalization preserves the component ratio.
	wantRatio := []float64{1, 2, 1}
	for i, v := range vectors {
		if len(v) != 3 {
			t.Fatalf("Vector %d has dimension %d", i, len(v))
		}
		var norm float64
		for _, val := range v {
			norm += float64(val) * float64(val)
		}
		if math.Abs(norm-1.0) > 1e-5 {
			t.Errorf("Vector %d is not unit length: %f", i, norm)
		}
		ratio := float64(v[0]) / float64(v[1])
		if math.Abs(ratio-wantRatio[i]) > 1e-5 {
			t.Errorf("Vector %d out of order: component ratio %f, want %f", i, ratio, wantRatio[i])
		}
	}
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := testEmbeddingResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, testEmbeddingItem{
				Embedding: []float32{1, 0, 0, 0}, // 4 dims, config says 3
				Index:     i,
			})
		}
		json.NewEncoder(w).Encode(resp)
	})

	if _, err := embedder.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("Expected dimension mismatch error")
	}
}

func TestEmbedSurfacesAPIError(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "invalid api key", "type": "auth"},
		})
	})

	_, err := embedder.EmbedQuery(context.Background(), "query")
	if err == nil {
		t.Fatal("Expected API error")
	}
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Expected [0.6 0.8], got %v", v)
	}

	zero := NormalizeVector([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("Zero vector should pass through, got %v", zero)
	}
}
