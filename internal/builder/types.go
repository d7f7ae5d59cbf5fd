// Package builder orchestrates the indexing pipeline: it drives the
// chunker, embedder, vector index, metadata index, and state ledger
// through incremental builds, and serves hybrid queries over the result.
package builder

import (
	"sync"
	"time"

	"github.com/ragpipe-dev/ragpipe/internal/chunk"
	"github.com/ragpipe-dev/ragpipe/internal/document"
)

// DocStatus is the outcome of processing one document.
type DocStatus string

const (
	// StatusAdded marks a document indexed for the first time.
	StatusAdded DocStatus = "added"
	// StatusUpdated marks a changed document whose chunks were replaced.
	StatusUpdated DocStatus = "updated"
	// StatusSkipped marks an unchanged or empty document.
	StatusSkipped DocStatus = "skipped"
	// StatusFailed marks a document that could not be indexed.
	StatusFailed DocStatus = "failed"
)

// DocumentFailure records why one document failed. Failures never abort
// the rest of the batch.
type DocumentFailure struct {
	DocID  string
	Reason string
}

// BuildSummary reports the outcome of a build or update run.
type BuildSummary struct {
	Added   int
	Updated int
	Skipped int
	Failed  int

	Failures   []DocumentFailure
	ChunkStats chunk.Stats
	Duration   time.Duration
}

// Total returns the number of documents processed.
func (s *BuildSummary) Total() int {
	return s.Added + s.Updated + s.Skipped + s.Failed
}

// record merges one document outcome into the summary.
func (s *BuildSummary) record(docID string, status DocStatus, stats chunk.Stats, err error) {
	switch status {
	case StatusAdded:
		s.Added++
	case StatusUpdated:
		s.Updated++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
		reason := "unknown"
		if err != nil {
			reason = err.Error()
		}
		s.Failures = append(s.Failures, DocumentFailure{DocID: docID, Reason: reason})
	}
	s.ChunkStats = s.ChunkStats.Merge(stats)
}

// SearchResult is one hybrid query hit.
type SearchResult struct {
	ChunkID  string            `json:"chunk_id"`
	Score    float32           `json:"score"`
	Text     string            `json:"text"`
	Metadata document.Metadata `json:"metadata,omitempty"`
}

// Statistics describes the current index.
type Statistics struct {
	DocumentCount      int    `json:"document_count"`
	ChunkCount         int    `json:"chunk_count"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	BackendName        string `json:"backend"`
	EmbedderModel      string `json:"embedder_model"`
}

// Options tunes builder behavior.
type Options struct {
	// TopK is the default query result count.
	TopK int
	// OverfetchFactor widens the vector query before metadata filtering.
	OverfetchFactor int
	// Workers bounds concurrent document processing.
	Workers int
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	if o.OverfetchFactor < 1 {
		o.OverfetchFactor = 4
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
}

// keyedMutex serializes work per document id. Entries are kept for the
// builder's lifetime; the key space is the document set, which is small.
type keyedMutex struct {
	locks sync.Map // docID -> *sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	m, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
