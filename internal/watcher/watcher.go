// Package watcher turns filesystem activity under a document root into
// batched, debounced change events keyed by document id, ready to feed
// incremental index updates.
package watcher

import (
	"context"
	"time"
)

// Operation is the kind of change a FileEvent reports.
type Operation int

const (
	// OpCreate indicates a new document appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing document changed.
	OpModify
	// OpDelete indicates a document was removed.
	OpDelete
	// OpConfigChange indicates the .ragpipe.yaml config file changed.
	// Consumers typically reload configuration and reconcile.
	OpConfigChange
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one debounced change.
type FileEvent struct {
	// DocID is the slash-separated path relative to the watched root,
	// matching the document ids the filesystem source produces.
	DocID string

	// Path is the absolute path of the file.
	Path string

	// Operation is the kind of change.
	Operation Operation

	// Timestamp is when the change was first observed.
	Timestamp time.Time
}

// Watcher watches a directory tree and emits batches of debounced
// document events.
type Watcher interface {
	// Start begins watching root recursively and blocks until the
	// context is cancelled or Stop is called.
	Start(ctx context.Context, root string) error

	// Stop stops the watcher. Safe to call more than once.
	Stop() error

	// Events returns batches of coalesced events. Closed on stop.
	Events() <-chan []FileEvent

	// Errors returns non-fatal watcher errors. Closed on stop.
	Errors() <-chan error
}

// Options configures a watcher.
type Options struct {
	// DebounceWindow is how long to coalesce events before emitting a
	// batch. Default 200ms.
	DebounceWindow time.Duration

	// Extensions whitelists file extensions (with leading dot). Empty
	// means the document-source defaults.
	Extensions []string

	// EventBufferSize caps the batch channel. Default 100.
	EventBufferSize int
}

// WithDefaults fills zero values with defaults.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = 100
	}
	return o
}
