package builder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragpipe-dev/ragpipe/internal/chunk"
	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/embed"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
	"github.com/ragpipe-dev/ragpipe/internal/metaindex"
	"github.com/ragpipe-dev/ragpipe/internal/store"
)

// PayloadTextKey is the vector payload key carrying the chunk text.
const PayloadTextKey = "chunk_text"

// Builder drives incremental index builds and hybrid queries.
type Builder struct {
	chunker  chunk.Chunker
	embedder embed.Embedder
	vectors  store.VectorIndex
	metadata metaindex.MetadataIndex
	state    *store.StateStore
	opts     Options

	// docLocks serializes all mutation of a single document's chunks.
	docLocks keyedMutex
}

// NewBuilder wires the pipeline stages together. The embedder's
// dimensionality must match the vector index.
func NewBuilder(
	chunker chunk.Chunker,
	embedder embed.Embedder,
	vectors store.VectorIndex,
	metadata metaindex.MetadataIndex,
	state *store.StateStore,
	opts Options,
) (*Builder, error) {
	if chunker == nil || embedder == nil || vectors == nil || metadata == nil || state == nil {
		return nil, errors.ConfigError("builder requires all pipeline stages", nil)
	}
	if embedder.Dimensions() != vectors.Dimensions() {
		return nil, errors.Newf(errors.ErrCodeDimensionMismatch,
			"embedder produces %d dimensions but vector index expects %d",
			embedder.Dimensions(), vectors.Dimensions()).
			WithSuggestion("rebuild the index or switch back to the original embedder")
	}
	opts.applyDefaults()
	return &Builder{
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		metadata: metadata,
		state:    state,
		opts:     opts,
	}, nil
}

// BuildIndex indexes the given documents incrementally: new documents
// are added, changed ones replaced, unchanged ones skipped. A failing
// document is reported in the summary and never aborts the batch; the
// run as a whole errors only when every document fails.
func (b *Builder) BuildIndex(ctx context.Context, docs []*document.Document) (*BuildSummary, error) {
	start := time.Now()
	summary := &BuildSummary{}

	type outcome struct {
		docID  string
		status DocStatus
		stats  chunk.Stats
		err    error
	}
	outcomes := make([]outcome, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			status, stats, err := b.processDocument(gctx, doc)
			docID := ""
			if doc != nil {
				docID = doc.ID
			}
			outcomes[i] = outcome{docID: docID, status: status, stats: stats, err: err}
			if err != nil {
				slog.Warn("document indexing failed",
					slog.String("doc_id", docID),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	for _, o := range outcomes {
		summary.record(o.docID, o.status, o.stats, o.err)
	}
	summary.Duration = time.Since(start)

	slog.Info("index build finished",
		slog.Int("added", summary.Added),
		slog.Int("updated", summary.Updated),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration))

	if len(docs) > 0 && summary.Failed == len(docs) {
		return summary, errors.Newf(errors.ErrCodeIndexFailed,
			"all %d documents failed to index", len(docs))
	}
	return summary, nil
}

// UpdateIndex is BuildIndex under its incremental name: the three-state
// machine makes the two operations identical.
func (b *Builder) UpdateIndex(ctx context.Context, docs []*document.Document) (*BuildSummary, error) {
	return b.BuildIndex(ctx, docs)
}

// RebuildIndex clears every index and the ledger, then indexes docs
// from scratch.
func (b *Builder) RebuildIndex(ctx context.Context, docs []*document.Document) (*BuildSummary, error) {
	if err := b.vectors.Clear(ctx); err != nil {
		return nil, err
	}
	if err := b.metadata.Clear(ctx); err != nil {
		return nil, err
	}
	if err := b.state.Reset(ctx); err != nil {
		return nil, err
	}
	return b.BuildIndex(ctx, docs)
}

// processDocument runs the three-state machine for one document:
// new (no ledger row), unchanged (fingerprint match and chunks intact),
// or changed (fingerprint differs, or the ledger references chunks the
// vector index lost, which self-heals as changed).
func (b *Builder) processDocument(ctx context.Context, doc *document.Document) (DocStatus, chunk.Stats, error) {
	if err := doc.Validate(); err != nil {
		return StatusFailed, chunk.Stats{}, err
	}
	if err := ctx.Err(); err != nil {
		return StatusFailed, chunk.Stats{}, err
	}

	unlock := b.docLocks.lock(doc.ID)
	defer unlock()

	fingerprint := doc.Fingerprint()
	prevFingerprint, known, err := b.state.Fingerprint(ctx, doc.ID)
	if err != nil {
		return StatusFailed, chunk.Stats{}, err
	}

	prevChunkIDs, err := b.state.ChunkIDs(ctx, doc.ID)
	if err != nil {
		return StatusFailed, chunk.Stats{}, err
	}

	if known && prevFingerprint == fingerprint {
		if b.chunksIntact(prevChunkIDs) {
			return StatusSkipped, chunk.Stats{}, nil
		}
		// Ledger references chunks the vector index no longer has.
		slog.Warn("index state inconsistent, reindexing document",
			slog.String("doc_id", doc.ID))
	}

	chunks, err := b.chunker.Split(ctx, doc)
	if err != nil {
		return StatusFailed, chunk.Stats{}, err
	}

	if len(chunks) == 0 {
		// Empty document: drop whatever was indexed before.
		if err := b.removeChunks(ctx, prevChunkIDs); err != nil {
			return StatusFailed, chunk.Stats{}, err
		}
		if err := b.state.Forget(ctx, doc.ID); err != nil {
			return StatusFailed, chunk.Stats{}, err
		}
		return StatusSkipped, chunk.Stats{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return StatusFailed, chunk.Stats{}, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	// Delete before reinsert so a changed document never leaves stale
	// chunks behind.
	if err := b.removeChunks(ctx, prevChunkIDs); err != nil {
		return StatusFailed, chunk.Stats{}, err
	}

	records := make([]store.VectorRecord, len(chunks))
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		payload := make(document.Metadata, len(c.Metadata)+1)
		for k, v := range c.Metadata {
			payload[k] = v
		}
		payload[PayloadTextKey] = c.Text
		records[i] = store.VectorRecord{ID: c.ID, Vector: vectors[i], Payload: payload}
		chunkIDs[i] = c.ID
	}
	if err := b.vectors.UpsertBatch(ctx, records); err != nil {
		return StatusFailed, chunk.Stats{}, err
	}
	for _, c := range chunks {
		if err := b.metadata.Index(ctx, c.ID, c.Metadata); err != nil {
			return StatusFailed, chunk.Stats{}, err
		}
	}

	// The ledger row is written last: a crash before this point leaves
	// the old row, and the document is reprocessed as changed next run.
	if err := b.state.Commit(ctx, doc.ID, fingerprint, chunkIDs); err != nil {
		return StatusFailed, chunk.Stats{}, err
	}

	status := StatusAdded
	if known {
		status = StatusUpdated
	}
	slog.Debug("document indexed",
		slog.String("doc_id", doc.ID),
		slog.String("status", string(status)),
		slog.Int("chunks", len(chunks)))
	return status, chunk.ComputeStats(chunks), nil
}

// chunksIntact reports whether every ledger chunk id is still present
// in the vector index.
func (b *Builder) chunksIntact(chunkIDs []string) bool {
	for _, id := range chunkIDs {
		if !b.vectors.Contains(id) {
			return false
		}
	}
	return true
}

func (b *Builder) removeChunks(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if err := b.vectors.Delete(ctx, chunkIDs...); err != nil {
		return err
	}
	return b.metadata.Remove(ctx, chunkIDs...)
}

// RemoveDocument deletes a document's chunks from every index and drops
// its ledger row. Unknown documents are a no-op.
func (b *Builder) RemoveDocument(ctx context.Context, docID string) error {
	unlock := b.docLocks.lock(docID)
	defer unlock()

	chunkIDs, err := b.state.ChunkIDs(ctx, docID)
	if err != nil {
		return err
	}
	if err := b.removeChunks(ctx, chunkIDs); err != nil {
		return err
	}
	return b.state.Forget(ctx, docID)
}

// Statistics reports the current index shape.
func (b *Builder) Statistics(ctx context.Context) (*Statistics, error) {
	docCount, err := b.state.DocumentCount(ctx)
	if err != nil {
		return nil, err
	}
	chunkCount, err := b.state.ChunkCount(ctx)
	if err != nil {
		return nil, err
	}
	return &Statistics{
		DocumentCount:      docCount,
		ChunkCount:         chunkCount,
		EmbeddingDimension: b.vectors.Dimensions(),
		BackendName:        b.vectors.Name(),
		EmbedderModel:      b.embedder.ModelName(),
	}, nil
}
