package builder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe-dev/ragpipe/internal/config"
	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
	"github.com/ragpipe-dev/ragpipe/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Embedding.Provider = "static"
	cfg.Store.Backend = "flat"
	cfg.Store.DataDir = filepath.Join(t.TempDir(), "data")
	return cfg
}

func TestBuildCompletePipeline(t *testing.T) {
	ctx := context.Background()
	docs := []*document.Document{
		{ID: "a.md", Text: "Structured logging with slog. Handlers compose nicely."},
		{ID: "b.md", Text: "Vector search ranks by similarity score."},
	}

	p, summary, err := BuildCompletePipeline(ctx, testConfig(t), docs)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 2, summary.Added)

	results, err := p.Query(ctx, "similarity score ranking", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	stats, err := p.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocumentCount)
}

func TestPipeline_StateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	docs := []*document.Document{
		{ID: "a.md", Text: "Persistent indexes restore without reprocessing."},
	}

	p, _, err := BuildCompletePipeline(ctx, cfg, docs)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	reopened, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()

	// Unchanged document is recognized from the restored ledger + index.
	summary, err := reopened.BuildIndex(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)

	results, err := reopened.Query(ctx, "restore without reprocessing", 3, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestPipeline_DataDirLocked(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	p, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer p.Close()

	_, err = Open(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestPipeline_IncompatibleIndexRejected(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	p, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	// Simulate an index built by a different embedder.
	state, err := store.NewStateStore(filepath.Join(cfg.Store.DataDir, "state.db"))
	require.NoError(t, err)
	require.NoError(t, state.SetSetting(ctx, store.StateKeyEmbedderModel, "ollama/nomic-embed-text"))
	require.NoError(t, state.Close())

	_, err = Open(ctx, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Contains(t, err.Error(), store.StateKeyEmbedderModel)

	// A rebuild is the documented way out: it opens without the check,
	// clears everything, and re-records the current settings.
	reopened, err := OpenRebuild(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()

	docs := []*document.Document{{ID: "a.md", Text: "Start over from scratch."}}
	summary, err := reopened.RebuildIndex(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Added)

	model, err := reopened.state.Setting(ctx, store.StateKeyEmbedderModel)
	require.NoError(t, err)
	assert.Equal(t, reopened.embedder.ModelName(), model)
}
