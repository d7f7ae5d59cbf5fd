package metaindex

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// MemoryIndex is the in-memory inverted index over chunk metadata.
// Postings are rebuilt from the entries map on Load, so a loaded index
// can never carry stale postings.
type MemoryIndex struct {
	mu sync.RWMutex
	// entries holds each chunk's normalized metadata.
	entries map[string]document.Metadata
	// postings maps field -> value key -> chunk ids.
	postings map[string]map[string]IDSet
	closed   bool
}

// memorySnapshot is the gob persistence format. Only entries are
// persisted; postings derive from them.
type memorySnapshot struct {
	Entries map[string]document.Metadata
}

var _ MetadataIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty in-memory metadata index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries:  make(map[string]document.Metadata),
		postings: make(map[string]map[string]IDSet),
	}
}

// Index records a chunk's metadata, replacing any previous entry.
func (m *MemoryIndex) Index(ctx context.Context, chunkID string, metadata document.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errIndexClosed()
	}
	if chunkID == "" {
		return errors.ValidationError("chunk id is empty", nil)
	}

	if _, exists := m.entries[chunkID]; exists {
		m.unpost(chunkID)
	}

	normalized := metadata.Normalized()
	if normalized == nil {
		normalized = document.Metadata{}
	}
	m.entries[chunkID] = normalized
	m.post(chunkID, normalized)
	return nil
}

// Remove drops chunks from the index.
func (m *MemoryIndex) Remove(ctx context.Context, chunkIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errIndexClosed()
	}
	for _, id := range chunkIDs {
		if _, exists := m.entries[id]; !exists {
			continue
		}
		m.unpost(id)
		delete(m.entries, id)
	}
	return nil
}

// Clear drops all entries.
func (m *MemoryIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errIndexClosed()
	}
	m.entries = make(map[string]document.Metadata)
	m.postings = make(map[string]map[string]IDSet)
	return nil
}

// post adds a chunk's values to the inverted index.
func (m *MemoryIndex) post(chunkID string, metadata document.Metadata) {
	for field, value := range metadata {
		for _, key := range postingKeys(value) {
			byValue := m.postings[field]
			if byValue == nil {
				byValue = make(map[string]IDSet)
				m.postings[field] = byValue
			}
			set := byValue[key]
			if set == nil {
				set = make(IDSet)
				byValue[key] = set
			}
			set[chunkID] = struct{}{}
		}
	}
}

// unpost removes a chunk's values and prunes empty posting lists.
func (m *MemoryIndex) unpost(chunkID string) {
	metadata := m.entries[chunkID]
	for field, value := range metadata {
		byValue := m.postings[field]
		for _, key := range postingKeys(value) {
			set := byValue[key]
			delete(set, chunkID)
			if len(set) == 0 {
				delete(byValue, key)
			}
		}
		if len(byValue) == 0 {
			delete(m.postings, field)
		}
	}
}

// postingKeys returns the posting keys a normalized value indexes under.
// Tag lists post one key per element.
func postingKeys(value any) []string {
	if tags, ok := value.([]string); ok {
		keys := make([]string, len(tags))
		copy(keys, tags)
		return keys
	}
	return []string{formatValue(value)}
}

// Search returns the chunk ids matching all filters.
func (m *MemoryIndex) Search(ctx context.Context, filters map[string][]any) (IDSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errIndexClosed()
	}
	if len(filters) == 0 {
		return m.allIDsLocked(), nil
	}

	var result IDSet
	for field, values := range filters {
		matched := make(IDSet)
		byValue := m.postings[field]
		for _, v := range values {
			for _, key := range postingKeys(document.NormalizeValue(v)) {
				for id := range byValue[key] {
					matched[id] = struct{}{}
				}
			}
		}
		if result == nil {
			result = matched
		} else {
			result = intersect(result, matched)
		}
		if len(result) == 0 {
			return IDSet{}, nil
		}
	}
	return result, nil
}

// RangeSearch returns chunks whose numeric field value lies in [min, max].
func (m *MemoryIndex) RangeSearch(ctx context.Context, field string, min, max *float64) (IDSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errIndexClosed()
	}

	result := make(IDSet)
	for id, metadata := range m.entries {
		value, ok := metadata[field].(float64)
		if !ok {
			continue
		}
		if min != nil && value < *min {
			continue
		}
		if max != nil && value > *max {
			continue
		}
		result[id] = struct{}{}
	}
	return result, nil
}

// UniqueValues returns distinct field values with chunk counts.
func (m *MemoryIndex) UniqueValues(ctx context.Context, field string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errIndexClosed()
	}

	counts := make(map[string]int)
	for key, set := range m.postings[field] {
		counts[key] = len(set)
	}
	return counts, nil
}

// AllIDs returns every indexed chunk id.
func (m *MemoryIndex) AllIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errIndexClosed()
	}
	return m.allIDsLocked().Sorted(), nil
}

func (m *MemoryIndex) allIDsLocked() IDSet {
	all := make(IDSet, len(m.entries))
	for id := range m.entries {
		all[id] = struct{}{}
	}
	return all
}

// Count returns the number of indexed chunks.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0
	}
	return len(m.entries)
}

// Save persists the entries to disk atomically (temp file + rename).
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errIndexClosed()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeFilePermission, err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFilePermission, err)
	}
	if err := gob.NewEncoder(file).Encode(memorySnapshot{Entries: m.entries}); err != nil {
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

// Load restores the entries from disk and rebuilds the postings.
func (m *MemoryIndex) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errIndexClosed()
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	defer func() { _ = file.Close() }()

	var snap memorySnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}

	m.entries = snap.Entries
	if m.entries == nil {
		m.entries = make(map[string]document.Metadata)
	}
	m.postings = make(map[string]map[string]IDSet)
	for id, metadata := range m.entries {
		m.post(id, metadata)
	}
	return nil
}

// Close releases resources.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.entries = nil
	m.postings = nil
	return nil
}

func intersect(a, b IDSet) IDSet {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(IDSet)
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}
