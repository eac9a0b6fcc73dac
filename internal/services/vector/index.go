package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
)

// Index is the in-process vector store backing snippet retrieval. Vectors
// live in an HNSW graph keyed by uint64; string vector-store ids map onto
// graph keys, and per-id metadata carries the provenance the searcher needs
// for scoping and chunk resolution.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]

	idMap    map[string]uint64
	keyMap   map[uint64]string
	metadata map[string]map[string]interface{}
	nextKey  uint64

	dimension int
	closed    bool
	logger    arbor.ILogger
}

// indexMetadata is the gob sidecar persisted next to the graph snapshot
type indexMetadata struct {
	IDMap     map[string]uint64
	Metadata  map[string]map[string]interface{}
	NextKey   uint64
	Dimension int
}

// NewIndex creates an empty index with the configured graph parameters
func NewIndex(cfg *common.VectorConfig, dimension int, logger arbor.ILogger) *Index {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Index{
		graph:     graph,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
		metadata:  make(map[string]map[string]interface{}),
		dimension: dimension,
		logger:    logger,
	}
}

// Add inserts vectors with their ids and metadata. Re-adding an existing id
// orphans the old graph node (lazy deletion) and inserts a fresh one.
func (x *Index) Add(ctx context.Context, ids []string, vectors [][]float32, metadata []map[string]interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) || len(ids) != len(metadata) {
		return fmt.Errorf("ids, vectors and metadata length mismatch: %d vs %d vs %d", len(ids), len(vectors), len(metadata))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != x.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", x.dimension, len(v))
		}
	}

	for i, id := range ids {
		// Lazy deletion: removing graph nodes directly can break the graph,
		// so an updated id just orphans its old node
		if existingKey, exists := x.idMap[id]; exists {
			delete(x.keyMap, existingKey)
			delete(x.idMap, id)
			delete(x.metadata, id)
		}

		key := x.nextKey
		x.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVector(vec)

		x.graph.Add(hnsw.MakeNode(key, vec))
		x.idMap[id] = key
		x.keyMap[key] = id
		x.metadata[id] = metadata[i]
	}

	return nil
}

// Search returns the k nearest vectors with their metadata. Orphaned graph
// nodes are filtered out by the key map.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]interfaces.VectorHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", x.dimension, len(query))
	}
	if x.graph.Len() == 0 {
		return []interfaces.VectorHit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVector(normalized)

	nodes := x.graph.Search(normalized, k)

	hits := make([]interfaces.VectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, exists := x.keyMap[node.Key]
		if !exists {
			continue // lazily deleted
		}
		distance := x.graph.Distance(normalized, node.Value)
		hits = append(hits, interfaces.VectorHit{
			ID:       id,
			Score:    cosineDistanceToScore(distance),
			Metadata: x.metadata[id],
		})
	}

	return hits, nil
}

// Delete removes vectors by id. Graph nodes are orphaned, not removed.
func (x *Index) Delete(ctx context.Context, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, id := range ids {
		if key, exists := x.idMap[id]; exists {
			delete(x.keyMap, key)
			delete(x.idMap, id)
			delete(x.metadata, id)
		}
	}

	return nil
}

// Count returns the number of live vectors (orphans excluded)
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return 0
	}
	return len(x.idMap)
}

// Save persists the graph and metadata sidecar atomically (temp + rename)
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := x.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	if err := x.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("save index metadata: %w", err)
	}

	x.logger.Debug().
		Str("path", path).
		Int("vectors", len(x.idMap)).
		Msg("Vector index snapshot saved")

	return nil
}

func (x *Index) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := indexMetadata{
		IDMap:     x.idMap,
		Metadata:  x.metadata,
		NextKey:   x.nextKey,
		Dimension: x.dimension,
	}

	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load restores a snapshot written by Save. Missing files are not an error;
// the index simply starts empty and ingestion rebuilds it.
func (x *Index) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}

	metaPath := path + ".meta"
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		x.logger.Debug().Str("path", path).Msg("No vector index snapshot found, starting empty")
		return nil
	}

	if err := x.loadMetadata(metaPath); err != nil {
		return fmt.Errorf("load index metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// Import requires an io.ByteReader
	if err := x.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	x.logger.Info().
		Str("path", path).
		Int("vectors", len(x.idMap)).
		Msg("Vector index snapshot loaded")

	return nil
}

func (x *Index) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta indexMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	x.idMap = meta.IDMap
	x.metadata = meta.Metadata
	x.nextKey = meta.NextKey
	x.dimension = meta.Dimension
	x.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range x.idMap {
		x.keyMap[key] = id
	}

	return nil
}

// Close releases the index
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	x.graph = nil

	return nil
}

var _ interfaces.VectorIndex = (*Index)(nil)

// normalizeVector scales v to unit length in place so cosine distance is
// well defined
func normalizeVector(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// cosineDistanceToScore maps cosine distance (0..2) to similarity (0..1)
func cosineDistanceToScore(distance float32) float64 {
	return float64(1.0 - distance/2.0)
}
