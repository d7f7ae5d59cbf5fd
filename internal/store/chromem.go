package store

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

const chromemCollectionName = "chunks"

// ChromemIndex implements VectorIndex on an embedded chromem-go database.
// The database persists itself under Config.Path on every write; Save and
// Load only handle the typed payload sidecar, since chromem metadata is
// string-only.
type ChromemIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	config     Config
	payloads   map[string]document.Metadata
	closed     bool
}

// chromemSidecar persists typed payloads next to the chromem data dir.
type chromemSidecar struct {
	Config   Config
	Payloads map[string]document.Metadata
}

var _ VectorIndex = (*ChromemIndex)(nil)

// NewChromemIndex creates a chromem-backed vector index persisted under
// cfg.Path.
func NewChromemIndex(cfg Config) (*ChromemIndex, error) {
	cfg.applyDefaults()
	if cfg.Dimensions <= 0 {
		return nil, errors.ConfigError("vector index dimensions must be positive", nil)
	}
	if cfg.Path == "" {
		return nil, errors.ConfigError("chromem backend requires a persistence path", nil).
			WithSuggestion("set the vector index path in the configuration")
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFilePermission, err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, false)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}

	s := &ChromemIndex{
		db:       db,
		config:   cfg,
		payloads: make(map[string]document.Metadata),
	}
	if err := s.openCollection(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChromemIndex) openCollection() error {
	// All embeddings are precomputed by the caller; chromem must never
	// invoke an embedding function on its own.
	collection, err := s.db.GetOrCreateCollection(chromemCollectionName, nil, rejectEmbedding)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	s.collection = collection
	return nil
}

func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New(errors.ErrCodeInternal, "embeddings must be precomputed", nil)
}

// Upsert inserts or replaces a record.
func (s *ChromemIndex) Upsert(ctx context.Context, id string, vector []float32, payload document.Metadata) error {
	return s.UpsertBatch(ctx, []VectorRecord{{ID: id, Vector: vector, Payload: payload}})
}

// UpsertBatch inserts or replaces multiple records. Dimensions are
// validated before any mutation so a bad batch leaves the index unchanged.
func (s *ChromemIndex) UpsertBatch(ctx context.Context, records []VectorRecord) error {
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

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if _, exists := s.payloads[r.ID]; exists {
			_ = s.collection.Delete(ctx, nil, nil, r.ID)
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Embedding: r.Vector,
			Content:   r.ID,
		})
	}

	// Concurrency 1: embeddings are precomputed, nothing to parallelize.
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	for _, r := range records {
		s.payloads[r.ID] = clonePayload(r.Payload)
	}
	return nil
}

// Delete removes records by id.
func (s *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	for _, id := range ids {
		if _, exists := s.payloads[id]; !exists {
			continue
		}
		if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err)
		}
		delete(s.payloads, id)
	}
	return nil
}

// Clear removes all records.
func (s *ChromemIndex) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	if err := s.db.DeleteCollection(chromemCollectionName); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	s.payloads = make(map[string]document.Metadata)
	return s.openCollection()
}

// Query returns up to topK nearest records.
func (s *ChromemIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed()
	}
	if err := validateDimensions(s.config.Dimensions, vector); err != nil {
		return nil, err
	}
	count := s.collection.Count()
	if topK <= 0 || count == 0 {
		return []QueryResult{}, nil
	}

	// chromem rejects nResults > document count. With a filter we fetch
	// everything, filter, and truncate.
	fetch := topK
	if filter != nil || fetch > count {
		fetch = count
	}

	hits, err := s.collection.QueryEmbedding(ctx, vector, fetch, nil, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	results := make([]QueryResult, 0, topK)
	for _, hit := range hits {
		payload := s.payloads[hit.ID]
		if filter != nil && !filter(hit.ID, payload) {
			continue
		}
		results = append(results, QueryResult{
			ID: hit.ID,
			// chromem similarity is cosine in [-1,1].
			Score:   (hit.Similarity + 1) / 2,
			Payload: clonePayload(payload),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
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

// Contains reports whether id is stored.
func (s *ChromemIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, exists := s.payloads[id]
	return exists
}

// Count returns the number of stored records.
func (s *ChromemIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return s.collection.Count()
}

// Dimensions returns the declared dimensionality.
func (s *ChromemIndex) Dimensions() int {
	return s.config.Dimensions
}

// Name returns the backend name.
func (s *ChromemIndex) Name() string {
	return string(BackendChromem)
}

// Save writes the typed payload sidecar. The chromem database itself is
// already persisted under Config.Path by every write.
func (s *ChromemIndex) Save(path string) error {
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

	sidecar := chromemSidecar{Config: s.config, Payloads: s.payloads}
	if err := gob.NewEncoder(file).Encode(sidecar); err != nil {
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

// Load restores the payload sidecar. The chromem collection was already
// reopened from Config.Path at construction.
func (s *ChromemIndex) Load(path string) error {
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

	var sidecar chromemSidecar
	if err := gob.NewDecoder(file).Decode(&sidecar); err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}

	s.config = sidecar.Config
	s.payloads = sidecar.Payloads
	if s.payloads == nil {
		s.payloads = make(map[string]document.Metadata)
	}
	return nil
}

// Close releases resources.
func (s *ChromemIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.collection = nil
	s.db = nil
	return nil
}
