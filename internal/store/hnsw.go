package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// HNSWIndex implements VectorIndex on the coder/hnsw pure-Go graph.
// String chunk ids are mapped to internal uint64 keys. Deletions are
// lazy: the mapping is dropped and the graph node orphaned, which avoids
// a coder/hnsw bug when removing the last node; queries over-fetch to
// compensate for orphans.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	idMap    map[string]uint64 // chunk id -> internal key
	keyMap   map[uint64]string // internal key -> chunk id
	payloads map[string]document.Metadata
	nextKey  uint64

	closed bool
}

// hnswMetadata stores id mappings and payloads for persistence.
type hnswMetadata struct {
	IDMap    map[string]uint64
	Payloads map[string]document.Metadata
	NextKey  uint64
	Config   Config
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an HNSW-backed vector index.
func NewHNSWIndex(cfg Config) (*HNSWIndex, error) {
	cfg.applyDefaults()
	if cfg.Dimensions <= 0 {
		return nil, errors.ConfigError("vector index dimensions must be positive", nil)
	}

	s := &HNSWIndex{
		config:   cfg,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		payloads: make(map[string]document.Metadata),
	}
	s.graph = newGraph(cfg)
	return s, nil
}

func newGraph(cfg Config) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case MetricL2:
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Upsert inserts or replaces a record.
func (s *HNSWIndex) Upsert(ctx context.Context, id string, vector []float32, payload document.Metadata) error {
	return s.UpsertBatch(ctx, []VectorRecord{{ID: id, Vector: vector, Payload: payload}})
}

// UpsertBatch inserts or replaces multiple records. All dimensions are
// validated up front so a bad batch leaves the index unchanged.
func (s *HNSWIndex) UpsertBatch(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	for _, r := range records {
		if err := validateDimensions(s.config.Dimensions, r.Vector); err != nil {
			return err
		}
	}

	for _, r := range records {
		// Existing id: orphan the old graph node instead of deleting it.
		if existingKey, exists := s.idMap[r.ID]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, r.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		if s.config.Metric == MetricCosine {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[r.ID] = key
		s.keyMap[key] = r.ID
		s.payloads[r.ID] = clonePayload(r.Payload)
	}
	return nil
}

// Delete removes records by id using lazy deletion.
func (s *HNSWIndex) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.payloads, id)
		}
	}
	return nil
}

// Clear removes all records and resets the graph.
func (s *HNSWIndex) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	s.graph = newGraph(s.config)
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.payloads = make(map[string]document.Metadata)
	s.nextKey = 0
	return nil
}

// Query returns up to topK nearest records.
func (s *HNSWIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed()
	}
	if err := validateDimensions(s.config.Dimensions, vector); err != nil {
		return nil, err
	}
	if topK <= 0 || len(s.idMap) == 0 {
		return []QueryResult{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	if s.config.Metric == MetricCosine {
		normalizeVectorInPlace(query)
	}

	// Over-fetch past lazy-deleted orphans and filtered records.
	fetch := topK + (s.graph.Len() - len(s.idMap))
	if fetch > s.graph.Len() {
		fetch = s.graph.Len()
	}

	nodes := s.graph.Search(query, fetch)
	results := make([]QueryResult, 0, topK)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // orphaned by lazy deletion
		}
		payload := s.payloads[id]
		if filter != nil && !filter(id, payload) {
			continue
		}

		distance := s.graph.Distance(query, node.Value)
		results = append(results, QueryResult{
			ID:      id,
			Score:   distanceToScore(distance, s.config.Metric),
			Payload: clonePayload(payload),
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// Contains reports whether id is stored.
func (s *HNSWIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live records.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions returns the declared dimensionality.
func (s *HNSWIndex) Dimensions() int {
	return s.config.Dimensions
}

// Name returns the backend name.
func (s *HNSWIndex) Name() string {
	return string(BackendHNSW)
}

// Save persists the graph and mappings to disk.
// Uses atomic save (temp file + rename); mappings go to path + ".meta".
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errClosed()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeFilePermission, err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFilePermission, err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeFilePermission, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeFilePermission, err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFilePermission, err)
	}

	meta := hnswMetadata{
		IDMap:    s.idMap,
		Payloads: s.payloads,
		NextKey:  s.nextKey,
		Config:   s.config,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(errors.ErrCodeFilePermission, err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and mappings from disk.
func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	if err := s.loadMetadata(path + ".meta"); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return nil
}

func (s *HNSWIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	defer func() { _ = file.Close() }()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}

	s.idMap = meta.IDMap
	s.payloads = meta.Payloads
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	if s.payloads == nil {
		s.payloads = make(map[string]document.Metadata)
	}
	return nil
}

// Close releases resources.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}
