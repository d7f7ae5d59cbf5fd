// Package docsource discovers source documents on the filesystem and
// turns them into pipeline documents with path-derived metadata.
package docsource

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// DefaultMaxFileSize is the largest file read into a document (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultExtensions are the file types indexed when none are configured.
var DefaultExtensions = []string{".txt", ".md", ".markdown"}

// Metadata field names set on every loaded document.
const (
	MetaPath    = "path"
	MetaExt     = "ext"
	MetaSize    = "size"
	MetaModTime = "mod_date"
)

// Options configures filesystem discovery.
type Options struct {
	// RootDir is the directory scanned for documents.
	RootDir string
	// Extensions whitelists file types (with leading dot). Empty means
	// DefaultExtensions.
	Extensions []string
	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64
}

func (o *Options) applyDefaults() {
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultExtensions
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
}

// Result is one discovered document or the error that prevented loading it.
type Result struct {
	Doc *document.Document
	Err error
	// Path is the document's relative path, set even on error.
	Path string
}

// FSSource loads documents from a directory tree. Document ids are the
// slash-separated paths relative to the root, so a file keeps its id
// across runs and machines.
type FSSource struct {
	opts Options
	root string
}

// New creates a filesystem document source.
func New(opts Options) (*FSSource, error) {
	opts.applyDefaults()
	if opts.RootDir == "" {
		return nil, errors.ConfigError("document source root directory is empty", nil)
	}

	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeInvalidInput,
			"document source root is not a directory: %s", absRoot)
	}
	return &FSSource{opts: opts, root: absRoot}, nil
}

// Root returns the absolute root directory.
func (s *FSSource) Root() string {
	return s.root
}

// Stream walks the tree and sends one Result per matching file. The
// channel closes when the walk finishes or ctx is cancelled.
func (s *FSSource) Stream(ctx context.Context) <-chan Result {
	results := make(chan Result, 16)
	go func() {
		defer close(results)
		_ = filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return err
			}
			if entry.IsDir() {
				if isHidden(entry.Name()) && path != s.root {
					return fs.SkipDir
				}
				return nil
			}
			if isHidden(entry.Name()) || !s.wantExtension(path) {
				return nil
			}

			rel, relErr := filepath.Rel(s.root, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			doc, loadErr := s.loadFile(path, rel, entry)
			select {
			case results <- Result{Doc: doc, Err: loadErr, Path: rel}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()
	return results
}

// LoadAll collects every loadable document. Per-file load errors are
// logged and skipped, matching the pipeline's per-document failure rule.
func (s *FSSource) LoadAll(ctx context.Context) ([]*document.Document, error) {
	var docs []*document.Document
	for res := range s.Stream(ctx) {
		if res.Err != nil {
			slog.Warn("document load failed",
				slog.String("path", res.Path),
				slog.String("error", res.Err.Error()))
			continue
		}
		if res.Doc != nil {
			docs = append(docs, res.Doc)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Load loads a single document by id (the slash path relative to the
// root). Oversized files return (nil, nil) like they do in Stream.
func (s *FSSource) Load(docID string) (*document.Document, error) {
	path := filepath.Join(s.opts.RootDir, filepath.FromSlash(docID))
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	return s.load(path, docID, info)
}

func (s *FSSource) loadFile(path, rel string, entry fs.DirEntry) (*document.Document, error) {
	info, err := entry.Info()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	return s.load(path, rel, info)
}

func (s *FSSource) load(path, rel string, info fs.FileInfo) (*document.Document, error) {
	if info.Size() > s.opts.MaxFileSize {
		slog.Debug("skipping oversized file",
			slog.String("path", rel),
			slog.Int64("size", info.Size()))
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errors.Wrap(errors.ErrCodeFilePermission, err)
		}
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return &document.Document{
		ID:   rel,
		Text: string(data),
		Metadata: document.Metadata{
			MetaPath:    rel,
			MetaExt:     ext,
			MetaSize:    info.Size(),
			MetaModTime: info.ModTime(),
		},
	}, nil
}

func (s *FSSource) wantExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range s.opts.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
