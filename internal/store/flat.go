package store

import (
	"context"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// FlatIndex is the exact brute-force backend. Every query scans all
// stored vectors, which keeps it dependency-free and makes it the
// reference implementation the approximate backends are tested against.
type FlatIndex struct {
	mu      sync.RWMutex
	config  Config
	records map[string]*flatRecord
	closed  bool
}

// flatRecord holds the stored vector (normalized for cosine) and payload.
type flatRecord struct {
	Vector  []float32
	Payload document.Metadata
}

// flatSnapshot is the gob persistence format.
type flatSnapshot struct {
	Config  Config
	Records map[string]*flatRecord
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex creates an exact-scan vector index.
func NewFlatIndex(cfg Config) (*FlatIndex, error) {
	cfg.applyDefaults()
	if cfg.Dimensions <= 0 {
		return nil, errors.ConfigError("vector index dimensions must be positive", nil)
	}
	return &FlatIndex{
		config:  cfg,
		records: make(map[string]*flatRecord),
	}, nil
}

// Upsert inserts or replaces a record.
func (s *FlatIndex) Upsert(ctx context.Context, id string, vector []float32, payload document.Metadata) error {
	return s.UpsertBatch(ctx, []VectorRecord{{ID: id, Vector: vector, Payload: payload}})
}

// UpsertBatch inserts or replaces multiple records. Dimensions are
// validated before any mutation so a bad batch leaves the index unchanged.
func (s *FlatIndex) UpsertBatch(ctx context.Context, records []VectorRecord) error {
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
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		if s.config.Metric == MetricCosine {
			normalizeVectorInPlace(vec)
		}
		s.records[r.ID] = &flatRecord{Vector: vec, Payload: clonePayload(r.Payload)}
	}
	return nil
}

// Delete removes records by id.
func (s *FlatIndex) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

// Clear removes all records.
func (s *FlatIndex) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	s.records = make(map[string]*flatRecord)
	return nil
}

// Query scans all records and returns the topK most similar.
func (s *FlatIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed()
	}
	if err := validateDimensions(s.config.Dimensions, vector); err != nil {
		return nil, err
	}
	if topK <= 0 || len(s.records) == 0 {
		return []QueryResult{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	if s.config.Metric == MetricCosine {
		normalizeVectorInPlace(query)
	}

	results := make([]QueryResult, 0, len(s.records))
	for id, rec := range s.records {
		if filter != nil && !filter(id, rec.Payload) {
			continue
		}
		results = append(results, QueryResult{
			ID:      id,
			Score:   s.score(query, rec.Vector),
			Payload: clonePayload(rec.Payload),
		})
	}

	// Equal scores order by id ascending for reproducible results.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// score computes the similarity between a normalized query and a stored
// vector under the configured metric.
func (s *FlatIndex) score(query, stored []float32) float32 {
	switch s.config.Metric {
	case MetricL2:
		var sum float64
		for i := range query {
			d := float64(query[i] - stored[i])
			sum += d * d
		}
		return distanceToScore(float32(math.Sqrt(sum)), MetricL2)
	default:
		// Both vectors are unit length; cosine distance is 1 - dot.
		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(stored[i])
		}
		return distanceToScore(float32(2*(1-dot))/2, MetricCosine)
	}
}

// Contains reports whether id is stored.
func (s *FlatIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, ok := s.records[id]
	return ok
}

// Count returns the number of stored records.
func (s *FlatIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.records)
}

// Dimensions returns the declared dimensionality.
func (s *FlatIndex) Dimensions() int {
	return s.config.Dimensions
}

// Name returns the backend name.
func (s *FlatIndex) Name() string {
	return string(BackendFlat)
}

// Save persists the index to disk atomically (temp file + rename).
func (s *FlatIndex) Save(path string) error {
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

	snap := flatSnapshot{Config: s.config, Records: s.records}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
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

// Load restores the index from disk.
func (s *FlatIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	defer func() { _ = file.Close() }()

	var snap flatSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}

	s.config = snap.Config
	s.records = snap.Records
	if s.records == nil {
		s.records = make(map[string]*flatRecord)
	}
	return nil
}

// Close releases resources.
func (s *FlatIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.records = nil
	return nil
}
