package builder

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
	"github.com/ragpipe-dev/ragpipe/internal/store"
)

// Query runs a hybrid search: the query text is embedded, the vector
// index is over-fetched, hits outside the metadata-allowed set are
// dropped without reordering the survivors, and the list is truncated
// to topK. Equal scores order by chunk id ascending.
func (b *Builder) Query(ctx context.Context, text string, topK int, filters map[string][]any) ([]SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.Newf(errors.ErrCodeQueryEmpty, "query text is empty")
	}
	if topK <= 0 {
		topK = b.opts.TopK
	}

	var filter store.Filter
	if len(filters) > 0 {
		allowed, err := b.metadata.Search(ctx, filters)
		if err != nil {
			return nil, err
		}
		if len(allowed) == 0 {
			return []SearchResult{}, nil
		}
		filter = func(id string, payload document.Metadata) bool {
			return allowed.Contains(id)
		}
	}

	vector, err := b.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	fetch := topK * b.opts.OverfetchFactor
	hits, err := b.vectors.Query(ctx, vector, fetch, filter)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		text, _ := hit.Payload[PayloadTextKey].(string)
		metadata := make(document.Metadata, len(hit.Payload))
		for k, v := range hit.Payload {
			if k == PayloadTextKey {
				continue
			}
			metadata[k] = v
		}
		results[i] = SearchResult{
			ChunkID:  hit.ID,
			Score:    hit.Score,
			Text:     text,
			Metadata: metadata,
		}
	}

	slog.Debug("hybrid query served",
		slog.Int("top_k", topK),
		slog.Int("fetched", fetch),
		slog.Int("results", len(results)))
	return results, nil
}
