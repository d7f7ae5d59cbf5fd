// Package metaindex provides exact-match and range lookup over chunk
// metadata. Filters combine with AND across fields and OR within a
// field's value list. Two backends share the contract: an in-memory
// inverted index and a bleve keyword index.
package metaindex

import (
	"context"
	"sort"
	"strconv"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// BackendType identifies a metadata index backend.
type BackendType string

const (
	// BackendMemory is the in-memory inverted index.
	BackendMemory BackendType = "memory"
	// BackendBleve is the bleve keyword index.
	BackendBleve BackendType = "bleve"
)

// IDSet is a set of chunk ids.
type IDSet map[string]struct{}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the set's ids in ascending order.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MetadataIndex is the metadata lookup contract.
//
// Invariants all backends uphold:
//   - Indexing an existing chunk id replaces its previous entry; no
//     postings from the old entry survive.
//   - Search over an unrecognized field yields an empty set, not an error.
//   - An empty filter map matches every indexed chunk.
type MetadataIndex interface {
	// Index records a chunk's metadata, replacing any previous entry.
	Index(ctx context.Context, chunkID string, metadata document.Metadata) error

	// Remove drops chunks from the index. Unknown ids are ignored.
	Remove(ctx context.Context, chunkIDs ...string) error

	// Clear drops all entries.
	Clear(ctx context.Context) error

	// Search returns the chunk ids matching all filters. Within one
	// field the listed values are alternatives; across fields the
	// constraints compound.
	Search(ctx context.Context, filters map[string][]any) (IDSet, error)

	// RangeSearch returns chunks whose numeric field value lies in
	// [min, max]. A nil bound is open.
	RangeSearch(ctx context.Context, field string, min, max *float64) (IDSet, error)

	// UniqueValues returns every distinct value of a field with the
	// number of chunks carrying it.
	UniqueValues(ctx context.Context, field string) (map[string]int, error)

	// AllIDs returns every indexed chunk id.
	AllIDs(ctx context.Context) ([]string, error)

	// Count returns the number of indexed chunks.
	Count() int

	// Save persists the index to path where the backend does not
	// already write through to disk.
	Save(path string) error

	// Load restores the index from path.
	Load(path string) error

	// Close releases resources.
	Close() error
}

// Config configures metadata index construction.
type Config struct {
	Backend BackendType
	// Path is the persistence location for the bleve backend. Empty
	// means in-memory only.
	Path string
}

// New creates a metadata index for the configured backend.
func New(cfg Config) (MetadataIndex, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryIndex(), nil
	case BackendBleve:
		return NewBleveIndex(cfg.Path)
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownBackend,
			"unknown metadata index backend %q", cfg.Backend).
			WithSuggestion("use one of: memory, bleve")
	}
}

// formatValue renders a normalized metadata value as its posting key.
// Numbers use the shortest round-trip representation so 42 and 42.0
// collide, matching the normalization rules.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func errIndexClosed() error {
	return errors.ValidationError("metadata index is closed", nil)
}
