package builder

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/ragpipe-dev/ragpipe/internal/chunk"
	"github.com/ragpipe-dev/ragpipe/internal/config"
	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/embed"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
	"github.com/ragpipe-dev/ragpipe/internal/metaindex"
	"github.com/ragpipe-dev/ragpipe/internal/store"
)

// Data-dir file layout.
const (
	lockFileName     = "ragpipe.lock"
	stateFileName    = "state.db"
	flatFileName     = "vectors.flat.gob"
	hnswFileName     = "vectors.hnsw"
	chromemDirName   = "chromem"
	chromemSidecar   = "chromem.payloads.gob"
	metadataGobName  = "metadata.gob"
	metadataBleveDir = "metadata.bleve"
)

// Pipeline owns a builder plus the resources behind it: the data-dir
// lock, the indexes, and the state ledger. It is the unit a command
// opens, uses, saves, and closes.
type Pipeline struct {
	*Builder

	cfg      *config.Config
	dataDir  string
	lock     *flock.Flock
	embedder embed.Embedder
	vectors  store.VectorIndex
	metadata metaindex.MetadataIndex
	state    *store.StateStore
}

// Open constructs the full pipeline from configuration: embedder,
// chunker, vector index, metadata index, and state ledger, with any
// previously saved index state loaded. The data dir is locked for the
// pipeline's lifetime; a second process opening it fails fast.
func Open(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	return open(ctx, cfg, true)
}

// OpenRebuild opens the pipeline without the index-compatibility check,
// for rebuilds that are about to clear the index anyway.
func OpenRebuild(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	return open(ctx, cfg, false)
}

func open(ctx context.Context, cfg *config.Config, checkCompat bool) (*Pipeline, error) {
	dataDir, err := filepath.Abs(cfg.Store.DataDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFilePermission, err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFilePermission, err)
	}

	lock := flock.New(filepath.Join(dataDir, lockFileName))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataDirLocked, err)
	}
	if !acquired {
		return nil, errors.Newf(errors.ErrCodeDataDirLocked,
			"data directory %s is locked by another process", dataDir).
			WithSuggestion("stop the other ragpipe process or use a different data dir")
	}

	p := &Pipeline{cfg: cfg, dataDir: dataDir, lock: lock}
	if err := p.build(ctx, checkCompat); err != nil {
		_ = lock.Unlock()
		p.closePartial()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build(ctx context.Context, checkCompat bool) error {
	cfg := p.cfg

	embedder, err := embed.NewEmbedder(ctx, embed.Config{
		Provider: embed.ProviderType(cfg.Embedding.Provider),
		Ollama: embed.OllamaConfig{
			Host:       cfg.Embedding.OllamaHost,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			BatchSize:  cfg.Embedding.BatchSize,
		},
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		return err
	}
	p.embedder = embedder

	chunker, err := chunk.New(chunk.Options{
		Strategy:          chunk.Strategy(cfg.Chunking.Strategy),
		ChunkSize:         cfg.Chunking.Size,
		ChunkOverlap:      cfg.Chunking.Overlap,
		SemanticThreshold: cfg.Chunking.SemanticThreshold,
		Embedder:          embedder,
	})
	if err != nil {
		return err
	}

	vectors, err := store.New(store.Config{
		Backend:    store.BackendType(cfg.Store.Backend),
		Dimensions: embedder.Dimensions(),
		M:          cfg.Store.HNSWM,
		EfSearch:   cfg.Store.HNSWEfSearch,
		Path:       filepath.Join(p.dataDir, chromemDirName),
	})
	if err != nil {
		return err
	}
	p.vectors = vectors
	if path := p.vectorsPath(); path != "" && fileExists(path) {
		if err := vectors.Load(path); err != nil {
			return err
		}
	}

	metadata, err := metaindex.New(metaindex.Config{
		Backend: metaindex.BackendType(cfg.Store.MetadataBackend),
		Path:    filepath.Join(p.dataDir, metadataBleveDir),
	})
	if err != nil {
		return err
	}
	p.metadata = metadata
	if cfg.Store.MetadataBackend == "memory" {
		if path := filepath.Join(p.dataDir, metadataGobName); fileExists(path) {
			if err := metadata.Load(path); err != nil {
				return err
			}
		}
	}

	state, err := store.NewStateStore(filepath.Join(p.dataDir, stateFileName))
	if err != nil {
		return err
	}
	p.state = state

	if checkCompat {
		if err := p.checkCompatibility(ctx); err != nil {
			return err
		}
	}

	builder, err := NewBuilder(chunker, embedder, vectors, metadata, state, Options{
		TopK:            cfg.Search.TopK,
		OverfetchFactor: cfg.Search.OverfetchFactor,
	})
	if err != nil {
		return err
	}
	p.Builder = builder
	return nil
}

// checkCompatibility refuses to reuse an index built with a different
// embedder model, backend, or dimensionality.
func (p *Pipeline) checkCompatibility(ctx context.Context) error {
	checks := []struct {
		key     string
		current string
	}{
		{store.StateKeyEmbedderModel, p.embedder.ModelName()},
		{store.StateKeyBackend, p.vectors.Name()},
		{store.StateKeyDimensions, strconv.Itoa(p.embedder.Dimensions())},
	}
	for _, check := range checks {
		stored, err := p.state.Setting(ctx, check.key)
		if err != nil {
			return err
		}
		if stored == "" {
			if err := p.state.SetSetting(ctx, check.key, check.current); err != nil {
				return err
			}
			continue
		}
		if stored != check.current {
			return errors.ConfigError(
				"index was built with "+check.key+"="+stored+", now configured as "+check.current, nil).
				WithSuggestion("run 'ragpipe rebuild' to reindex with the new settings")
		}
	}
	return nil
}

// RebuildIndex clears everything, reindexes, and re-records the
// compatibility settings the reset wiped.
func (p *Pipeline) RebuildIndex(ctx context.Context, docs []*document.Document) (*BuildSummary, error) {
	summary, err := p.Builder.RebuildIndex(ctx, docs)
	if err != nil {
		return summary, err
	}
	if err := p.checkCompatibility(ctx); err != nil {
		return summary, err
	}
	return summary, nil
}

// DocumentIDs lists every indexed document id.
func (p *Pipeline) DocumentIDs(ctx context.Context) ([]string, error) {
	return p.state.DocumentIDs(ctx)
}

func (p *Pipeline) vectorsPath() string {
	switch p.vectors.Name() {
	case string(store.BackendFlat):
		return filepath.Join(p.dataDir, flatFileName)
	case string(store.BackendHNSW):
		return filepath.Join(p.dataDir, hnswFileName)
	case string(store.BackendChromem):
		return filepath.Join(p.dataDir, chromemSidecar)
	}
	return ""
}

// Save persists every index to the data dir. The state ledger is
// already durable.
func (p *Pipeline) Save() error {
	if path := p.vectorsPath(); path != "" {
		if err := p.vectors.Save(path); err != nil {
			return err
		}
	}
	if p.cfg.Store.MetadataBackend == "memory" {
		if err := p.metadata.Save(filepath.Join(p.dataDir, metadataGobName)); err != nil {
			return err
		}
	}
	slog.Debug("pipeline state saved", slog.String("data_dir", p.dataDir))
	return nil
}

// Close releases every resource and the data-dir lock.
func (p *Pipeline) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.closePartialWith(keep)
	if p.lock != nil {
		keep(p.lock.Unlock())
	}
	return firstErr
}

func (p *Pipeline) closePartial() {
	p.closePartialWith(func(error) {})
}

func (p *Pipeline) closePartialWith(keep func(error)) {
	if p.state != nil {
		keep(p.state.Close())
	}
	if p.metadata != nil {
		keep(p.metadata.Close())
	}
	if p.vectors != nil {
		keep(p.vectors.Close())
	}
	if p.embedder != nil {
		keep(p.embedder.Close())
	}
}

// BuildCompletePipeline opens the pipeline, indexes docs, and persists
// the result. The returned pipeline stays open for queries.
func BuildCompletePipeline(ctx context.Context, cfg *config.Config, docs []*document.Document) (*Pipeline, *BuildSummary, error) {
	p, err := Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	summary, err := p.BuildIndex(ctx, docs)
	if err != nil {
		_ = p.Close()
		return nil, summary, err
	}
	if err := p.Save(); err != nil {
		_ = p.Close()
		return nil, summary, err
	}
	return p, summary, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

