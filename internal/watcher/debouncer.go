package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// debouncer coalesces rapid events per document so a burst of editor
// writes becomes one index update. Coalescing rules for a single doc
// within one window:
//   - CREATE then MODIFY  = CREATE
//   - CREATE then DELETE  = dropped
//   - MODIFY then DELETE  = DELETE
//   - DELETE then CREATE  = MODIFY
type debouncer struct {
	window time.Duration
	output chan []FileEvent

	mu      sync.Mutex
	pending map[string]*pendingEvent
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

func newDebouncer(window time.Duration, bufferSize int) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, bufferSize),
	}
}

// add records an event, merging it with any pending event for the same
// document, and (re)arms the flush timer.
func (d *debouncer) add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	key := event.DocID
	if existing, ok := d.pending[key]; ok {
		merged := coalesce(existing, event)
		if merged == nil {
			delete(d.pending, key)
		} else {
			existing.event = *merged
		}
	} else {
		d.pending[key] = &pendingEvent{event: event, firstOp: event.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges a new event into a pending one. Nil means the pair
// cancelled out.
func coalesce(existing *pendingEvent, next FileEvent) *FileEvent {
	switch existing.firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return &existing.event
		case OpDelete:
			return nil
		}
	case OpDelete:
		if next.Operation == OpCreate {
			merged := next
			merged.Operation = OpModify
			return &merged
		}
	}
	return &next
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		batch = append(batch, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- batch:
	default:
		slog.Warn("watcher batch channel full, dropping batch",
			slog.Int("batch_size", len(batch)))
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
