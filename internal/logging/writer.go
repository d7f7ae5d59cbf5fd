package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer over a log file with size-based
// rotation. Rotated files shift through numbered suffixes, file.log.1
// newest, and the slot past maxFiles is dropped.
type RotatingWriter struct {
	path      string
	limit     int64
	maxFiles  int
	syncEvery bool

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending, creating its directory if
// needed. maxSizeMB caps the file size before rotation; syncEveryWrite
// makes each record visible to tail -f at the cost of a fsync per write.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int, syncEveryWrite bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	w := &RotatingWriter{
		path:      path,
		limit:     int64(maxSizeMB) << 20,
		maxFiles:  maxFiles,
		syncEvery: syncEveryWrite,
	}
	if err := w.reopen(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p, rotating first if the file would grow past the
// limit. A failed rotation keeps writing to the oversized file rather
// than lose records.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err == nil && w.syncEvery {
		_ = w.file.Sync()
	}
	return n, err
}

// Sync flushes the current file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) reopen() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// rotate shifts every numbered file up one slot, moves the live file to
// slot 1, and reopens a fresh one. Missing slots are skipped silently.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
		w.file = nil
	}

	_ = os.Remove(w.slot(w.maxFiles))
	for i := w.maxFiles - 1; i >= 1; i-- {
		_ = os.Rename(w.slot(i), w.slot(i+1))
	}
	renameErr := os.Rename(w.path, w.slot(1))

	// Reopen regardless: if the rename failed we append to the old file.
	if err := w.reopen(); err != nil {
		return err
	}
	if renameErr != nil && !os.IsNotExist(renameErr) {
		return fmt.Errorf("rotate log file: %w", renameErr)
	}
	return nil
}

func (w *RotatingWriter) slot(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}
