package metaindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

func newBackends(t *testing.T) map[string]MetadataIndex {
	t.Helper()

	bleveIdx, err := NewBleveIndex("")
	require.NoError(t, err)

	backends := map[string]MetadataIndex{
		"memory": NewMemoryIndex(),
		"bleve":  bleveIdx,
	}
	t.Cleanup(func() {
		for _, b := range backends {
			_ = b.Close()
		}
	})
	return backends
}

func seedChunks(t *testing.T, idx MetadataIndex) {
	t.Helper()
	ctx := context.Background()
	chunks := map[string]document.Metadata{
		"c1": {"lang": "go", "year": 2024, "tags": []string{"infra", "cli"}},
		"c2": {"lang": "go", "year": 2025, "tags": []string{"web"}},
		"c3": {"lang": "rust", "year": 2024, "tags": []string{"infra"}},
		"c4": {"lang": "python", "year": 2023},
	}
	for id, md := range chunks {
		require.NoError(t, idx.Index(ctx, id, md))
	}
}

func TestMetadataIndex_SingleFieldOR(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			seedChunks(t, idx)

			set, err := idx.Search(context.Background(), map[string][]any{
				"lang": {"go", "rust"},
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"c1", "c2", "c3"}, set.Sorted())
		})
	}
}

func TestMetadataIndex_MultiFieldAND(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			seedChunks(t, idx)

			set, err := idx.Search(context.Background(), map[string][]any{
				"lang": {"go", "rust"},
				"year": {2024},
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"c1", "c3"}, set.Sorted())
		})
	}
}

func TestMetadataIndex_TagListMatchesAnyElement(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			seedChunks(t, idx)

			set, err := idx.Search(context.Background(), map[string][]any{
				"tags": {"infra"},
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"c1", "c3"}, set.Sorted())
		})
	}
}

func TestMetadataIndex_UnknownFieldYieldsEmpty(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			seedChunks(t, idx)

			set, err := idx.Search(context.Background(), map[string][]any{
				"nonexistent": {"anything"},
			})
			require.NoError(t, err)
			assert.Empty(t, set)
		})
	}
}

func TestMetadataIndex_EmptyFiltersMatchAll(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			seedChunks(t, idx)

			set, err := idx.Search(context.Background(), nil)
			require.NoError(t, err)
			assert.Len(t, set, 4)
		})
	}
}

func TestMetadataIndex_NumericRepresentationsCollide(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			seedChunks(t, idx)

			// int and float64 filter values hit the same indexed number.
			forInt, err := idx.Search(context.Background(), map[string][]any{"year": {2024}})
			require.NoError(t, err)
			forFloat, err := idx.Search(context.Background(), map[string][]any{"year": {2024.0}})
			require.NoError(t, err)
			assert.Equal(t, forInt.Sorted(), forFloat.Sorted())
			assert.Len(t, forInt, 2)
		})
	}
}

func TestMetadataIndex_RangeSearch(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			seedChunks(t, idx)
			ctx := context.Background()

			min, max := 2024.0, 2025.0
			set, err := idx.RangeSearch(ctx, "year", &min, &max)
			require.NoError(t, err)
			assert.Equal(t, []string{"c1", "c2", "c3"}, set.Sorted())

			// Open upper bound.
			set, err = idx.RangeSearch(ctx, "year", &min, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"c1", "c2", "c3"}, set.Sorted())

			// Open lower bound.
			set, err = idx.RangeSearch(ctx, "year", nil, &min)
			require.NoError(t, err)
			assert.Equal(t, []string{"c1", "c3", "c4"}, set.Sorted())

			// Both bounds omitted: every chunk with a value for the field.
			set, err = idx.RangeSearch(ctx, "year", nil, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, set.Sorted())
		})
	}
}

func TestMetadataIndex_UniqueValues(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			seedChunks(t, idx)

			counts, err := idx.UniqueValues(context.Background(), "lang")
			require.NoError(t, err)
			assert.Equal(t, map[string]int{"go": 2, "rust": 1, "python": 1}, counts)

			counts, err = idx.UniqueValues(context.Background(), "tags")
			require.NoError(t, err)
			assert.Equal(t, map[string]int{"infra": 2, "cli": 1, "web": 1}, counts)
		})
	}
}

func TestMetadataIndex_ReindexLeavesNoStalePostings(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			seedChunks(t, idx)
			ctx := context.Background()

			require.NoError(t, idx.Index(ctx, "c1", document.Metadata{"lang": "zig", "year": 2026}))

			set, err := idx.Search(ctx, map[string][]any{"lang": {"go"}})
			require.NoError(t, err)
			assert.NotContains(t, set, "c1")

			set, err = idx.Search(ctx, map[string][]any{"tags": {"cli"}})
			require.NoError(t, err)
			assert.Empty(t, set)

			set, err = idx.Search(ctx, map[string][]any{"lang": {"zig"}})
			require.NoError(t, err)
			assert.Equal(t, []string{"c1"}, set.Sorted())
			assert.Equal(t, 4, idx.Count())
		})
	}
}

func TestMetadataIndex_RemoveAndClear(t *testing.T) {
	for name, idx := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			seedChunks(t, idx)
			ctx := context.Background()

			require.NoError(t, idx.Remove(ctx, "c2", "never-indexed"))
			assert.Equal(t, 3, idx.Count())

			set, err := idx.Search(ctx, map[string][]any{"lang": {"go"}})
			require.NoError(t, err)
			assert.Equal(t, []string{"c1"}, set.Sorted())

			require.NoError(t, idx.Clear(ctx))
			assert.Zero(t, idx.Count())

			ids, err := idx.AllIDs(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestMemoryIndex_SaveLoadRoundTrip(t *testing.T) {
	idx := NewMemoryIndex()
	seedChunks(t, idx)

	path := filepath.Join(t.TempDir(), "meta.gob")
	require.NoError(t, idx.Save(path))

	loaded := NewMemoryIndex()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, idx.Count(), loaded.Count())
	set, err := loaded.Search(context.Background(), map[string][]any{
		"lang": {"go"}, "tags": {"cli"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, set.Sorted())
}

func TestBleveIndex_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.bleve")
	ctx := context.Background()

	idx, err := NewBleveIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(ctx, "c1", document.Metadata{"lang": "go"}))
	require.NoError(t, idx.Close())

	reopened, err := NewBleveIndex(path)
	require.NoError(t, err)
	defer reopened.Close()

	set, err := reopened.Search(ctx, map[string][]any{"lang": {"go"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, set.Sorted())
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "elasticsearch"})

	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}
