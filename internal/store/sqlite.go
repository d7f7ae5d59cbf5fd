package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// StateStore is the SQLite-backed index ledger. It records, per document,
// the fingerprint and chunk ids of the last committed indexing run, plus
// index-level settings (embedder model, backend, dimensions) used to detect
// incompatible reopens. A document's ledger row is written only after all
// of its chunks are stored, so a crash mid-document leaves the old row
// intact and the document is re-processed on the next run.
type StateStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// Ledger setting keys.
const (
	StateKeyEmbedderModel = "embedder_model"
	StateKeyBackend       = "vector_backend"
	StateKeyDimensions    = "embedding_dimensions"
)

// NewStateStore opens (or creates) the ledger database at path.
// Use ":memory:" for an ephemeral store.
func NewStateStore(path string) (*StateStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeFilePermission, err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}

	// Single connection: SQLite allows one writer, and the in-memory DSN
	// is per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(errors.ErrCodeCorruptIndex, err)
		}
	}

	s := &StateStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return s, nil
}

func (s *StateStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- One row per committed document: fingerprint of the indexed revision
	-- and the chunk ids it produced (JSON array).
	CREATE TABLE IF NOT EXISTS documents (
		doc_id      TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		chunk_ids   TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);

	-- Index-level settings used for compatibility checks on reopen.
	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Fingerprint returns the committed fingerprint for a document, and
// whether the document is known at all.
func (s *StateStore) Fingerprint(ctx context.Context, docID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, errClosed()
	}
	var fp string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM documents WHERE doc_id = ?`, docID).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return fp, true, nil
}

// ChunkIDs returns the chunk ids committed for a document. A document
// with no ledger row yields an empty slice.
func (s *StateStore) ChunkIDs(ctx context.Context, docID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errClosed()
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT chunk_ids FROM documents WHERE doc_id = ?`, docID).Scan(&raw)
	if err == sql.ErrNoRows {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptIndex,
			fmt.Errorf("decoding chunk ids for %s: %w", docID, err))
	}
	return ids, nil
}

// Commit records a document's fingerprint and chunk ids, replacing any
// previous row. Call only after every chunk has been stored.
func (s *StateStore) Commit(ctx context.Context, docID, fingerprint string, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	if chunkIDs == nil {
		chunkIDs = []string{}
	}
	raw, err := json.Marshal(chunkIDs)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id, fingerprint, chunk_ids, chunk_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			chunk_ids   = excluded.chunk_ids,
			chunk_count = excluded.chunk_count,
			updated_at  = excluded.updated_at`,
		docID, fingerprint, string(raw), len(chunkIDs), time.Now().Unix())
	if err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return nil
}

// Forget removes a document's ledger row. Unknown ids are ignored.
func (s *StateStore) Forget(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return nil
}

// DocumentIDs returns all committed document ids.
func (s *StateStore) DocumentIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errClosed()
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id FROM documents ORDER BY doc_id`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCorruptIndex, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return ids, nil
}

// DocumentCount returns the number of committed documents.
func (s *StateStore) DocumentCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errClosed()
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return count, nil
}

// ChunkCount returns the total number of committed chunks.
func (s *StateStore) ChunkCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errClosed()
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(chunk_count), 0) FROM documents`).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return count, nil
}

// Setting returns an index-level setting. Missing keys yield "".
func (s *StateStore) Setting(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", errClosed()
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return value, nil
}

// SetSetting stores an index-level setting.
func (s *StateStore) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return nil
}

// Reset removes all ledger rows and settings.
func (s *StateStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings`); err != nil {
		return errors.Wrap(errors.ErrCodeCorruptIndex, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *StateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
