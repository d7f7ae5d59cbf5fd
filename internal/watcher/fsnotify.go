package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ragpipe-dev/ragpipe/internal/docsource"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

const configFileName = ".ragpipe.yaml"

// FSWatcher implements Watcher on top of fsnotify. Directories are
// watched recursively; raw events are filtered to indexable documents,
// translated to document ids, and coalesced by the debouncer.
type FSWatcher struct {
	opts       Options
	extensions map[string]bool
	debouncer  *debouncer
	errs       chan error
	stopCh     chan struct{}

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	root     string
	stopOnce sync.Once
}

var _ Watcher = (*FSWatcher)(nil)

// NewFSWatcher creates a watcher with the given options.
func NewFSWatcher(opts Options) (*FSWatcher, error) {
	opts = opts.WithDefaults()
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = docsource.DefaultExtensions
	}
	extSet := make(map[string]bool, len(exts))
	for _, ext := range exts {
		extSet[strings.ToLower(ext)] = true
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	return &FSWatcher{
		opts:       opts,
		extensions: extSet,
		debouncer:  newDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		errs:       make(chan error, 10),
		stopCh:     make(chan struct{}),
		fsw:        fsw,
	}, nil
}

// Start watches root recursively until the context ends or Stop is
// called.
func (w *FSWatcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	w.mu.Lock()
	w.root = absRoot
	w.mu.Unlock()

	if err := w.addRecursive(absRoot); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// addRecursive registers root and every subdirectory, skipping hidden
// directories.
func (w *FSWatcher) addRecursive(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	return nil
}

// handle filters one raw fsnotify event and feeds the debouncer.
func (w *FSWatcher) handle(event fsnotify.Event) {
	w.mu.Lock()
	root := w.root
	w.mu.Unlock()

	rel, err := filepath.Rel(root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}

	base := filepath.Base(event.Name)

	// New directories must be watched for the rest of the session. Files
	// written before the watch registration took effect produced no
	// events, so synthesize creates for whatever is already inside.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(base, ".") {
				if err := w.addRecursive(event.Name); err != nil {
					w.emitError(err)
				}
				w.emitExisting(event.Name, root)
			}
			return
		}
	}

	if base == configFileName {
		w.debouncer.add(FileEvent{
			DocID:     filepath.ToSlash(rel),
			Path:      event.Name,
			Operation: OpConfigChange,
			Timestamp: time.Now(),
		})
		return
	}

	if hiddenPath(rel) || !w.extensions[strings.ToLower(filepath.Ext(base))] {
		return
	}

	var op Operation
	switch {
	case event.Op.Has(fsnotify.Create):
		op = OpCreate
	case event.Op.Has(fsnotify.Write):
		op = OpModify
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		// A rename away from the watched tree looks like a delete; if
		// the file reappears the CREATE re-coalesces to MODIFY.
		op = OpDelete
	default:
		return
	}

	w.debouncer.add(FileEvent{
		DocID:     filepath.ToSlash(rel),
		Path:      event.Name,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// emitExisting queues creates for indexable files already under dir.
func (w *FSWatcher) emitExisting(dir, root string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || hiddenPath(rel) {
			return nil
		}
		if !w.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		w.debouncer.add(FileEvent{
			DocID:     filepath.ToSlash(rel),
			Path:      path,
			Operation: OpCreate,
			Timestamp: time.Now(),
		})
		return nil
	})
}

func hiddenPath(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func (w *FSWatcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

// Stop stops the watcher and closes both channels.
func (w *FSWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fsw.Close()
		w.debouncer.stop()
		close(w.errs)
	})
	return err
}

// Events returns coalesced event batches.
func (w *FSWatcher) Events() <-chan []FileEvent {
	return w.debouncer.output
}

// Errors returns non-fatal watcher errors.
func (w *FSWatcher) Errors() <-chan error {
	return w.errs
}
