package metaindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// BleveIndex implements MetadataIndex on a bleve keyword index. Fields
// are analyzed with the keyword analyzer so string values match whole,
// case-sensitively, the same way the in-memory backend matches them.
// Bleve writes through to disk, so Save and Load are no-ops for the
// persistent form.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ MetadataIndex = (*BleveIndex)(nil)

// NewBleveIndex opens or creates a bleve metadata index at path.
// An empty path builds an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = keyword.Name

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, errors.Wrap(errors.ErrCodeFilePermission, mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return &BleveIndex{index: idx, path: path}, nil
}

// Index records a chunk's metadata, replacing any previous entry.
func (b *BleveIndex) Index(ctx context.Context, chunkID string, metadata document.Metadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errIndexClosed()
	}
	if chunkID == "" {
		return errors.ValidationError("chunk id is empty", nil)
	}

	normalized := metadata.Normalized()
	if normalized == nil {
		normalized = document.Metadata{}
	}
	if err := b.index.Index(chunkID, map[string]any(normalized)); err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return nil
}

// Remove drops chunks from the index.
func (b *BleveIndex) Remove(ctx context.Context, chunkIDs ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errIndexClosed()
	}
	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	return nil
}

// Clear drops all entries.
func (b *BleveIndex) Clear(ctx context.Context) error {
	ids, err := b.AllIDs(ctx)
	if err != nil {
		return err
	}
	return b.Remove(ctx, ids...)
}

// Search returns the chunk ids matching all filters.
func (b *BleveIndex) Search(ctx context.Context, filters map[string][]any) (IDSet, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, errIndexClosed()
	}
	if len(filters) == 0 {
		return b.allIDSetLocked(ctx)
	}

	conjuncts := bleve.NewConjunctionQuery()
	for field, values := range filters {
		if len(values) == 0 {
			return IDSet{}, nil
		}
		disjuncts := bleve.NewDisjunctionQuery()
		for _, v := range values {
			switch val := document.NormalizeValue(v).(type) {
			case string:
				q := bleve.NewTermQuery(val)
				q.SetField(field)
				disjuncts.AddQuery(q)
			case float64:
				inclusive := true
				q := bleve.NewNumericRangeInclusiveQuery(&val, &val, &inclusive, &inclusive)
				q.SetField(field)
				disjuncts.AddQuery(q)
			case bool:
				q := bleve.NewBoolFieldQuery(val)
				q.SetField(field)
				disjuncts.AddQuery(q)
			case []string:
				for _, tag := range val {
					q := bleve.NewTermQuery(tag)
					q.SetField(field)
					disjuncts.AddQuery(q)
				}
			}
		}
		conjuncts.AddQuery(disjuncts)
	}

	return b.runLocked(ctx, conjuncts)
}

// RangeSearch returns chunks whose numeric field value lies in [min, max].
func (b *BleveIndex) RangeSearch(ctx context.Context, field string, min, max *float64) (IDSet, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, errIndexClosed()
	}

	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(min, max, &inclusive, &inclusive)
	q.SetField(field)
	return b.runLocked(ctx, q)
}

// runLocked executes a query and collects hit ids. Callers hold b.mu.
func (b *BleveIndex) runLocked(ctx context.Context, q query.Query) (IDSet, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	req := bleve.NewSearchRequest(q)
	req.Size = int(count)

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	set := make(IDSet, len(result.Hits))
	for _, hit := range result.Hits {
		set[hit.ID] = struct{}{}
	}
	return set, nil
}

// UniqueValues returns distinct field values with chunk counts.
func (b *BleveIndex) UniqueValues(ctx context.Context, field string) (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, errIndexClosed()
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{field}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}

	counts := make(map[string]int)
	for _, hit := range result.Hits {
		value, ok := hit.Fields[field]
		if !ok {
			continue
		}
		switch val := value.(type) {
		case []any:
			for _, item := range val {
				counts[formatValue(document.NormalizeValue(item))]++
			}
		default:
			counts[formatValue(document.NormalizeValue(val))]++
		}
	}
	return counts, nil
}

// AllIDs returns every indexed chunk id.
func (b *BleveIndex) AllIDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, errIndexClosed()
	}
	set, err := b.allIDSetLocked(ctx)
	if err != nil {
		return nil, err
	}
	return set.Sorted(), nil
}

func (b *BleveIndex) allIDSetLocked(ctx context.Context) (IDSet, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	set := make(IDSet, len(result.Hits))
	for _, hit := range result.Hits {
		set[hit.ID] = struct{}{}
	}
	return set, nil
}

// Count returns the number of indexed chunks.
func (b *BleveIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	count, err := b.index.DocCount()
	if err != nil {
		return 0
	}
	return int(count)
}

// Save is a no-op: bleve writes through to its index directory.
func (b *BleveIndex) Save(path string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errIndexClosed()
	}
	return nil
}

// Load is a no-op: the index was opened from its directory at construction.
func (b *BleveIndex) Load(path string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errIndexClosed()
	}
	return nil
}

// Close releases the underlying index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.index.Close(); err != nil {
		return fmt.Errorf("closing metadata index: %w", err)
	}
	return nil
}
