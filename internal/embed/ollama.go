package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// Ollama API constants.
const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// ollamaPoolSize for the HTTP connection pool.
	ollamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434).
	Host string

	// Model is the embedding model to use.
	Model string

	// Dimensions overrides auto-detection when non-zero.
	Dimensions int

	// BatchSize for batch embedding requests (default: 32).
	BatchSize int

	// Timeout for API requests (default: 60s).
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3).
	MaxRetries int

	// QueryPrefix is prepended by EmbedQuery for models with asymmetric
	// query/document encoding (e.g. "search_query: " for nomic models).
	QueryPrefix string

	// SkipHealthCheck skips the initial availability check (for testing).
	SkipHealthCheck bool
}

// applyDefaults fills zero-valued config fields.
func (c *OllamaConfig) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultOllamaHost
	}
	if c.Model == "" {
		c.Model = DefaultOllamaModel
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaEmbedder generates embeddings via Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	breaker   *errors.CircuitBreaker
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder and verifies the endpoint
// is reachable unless SkipHealthCheck is set.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	cfg.applyDefaults()

	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		MaxConnsPerHost:     ollamaPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// Per-request context timeouts are used instead of a client timeout so
	// callers can impose their own deadlines.
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		breaker:   errors.NewCircuitBreaker("ollama"),
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		if e.dims == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, errors.Wrap(errors.ErrCodeProviderUnavailable, err).
					WithDetail("host", cfg.Host).
					WithSuggestion("check that Ollama is running and the model is pulled")
			}
			e.dims = dims
		}
	}

	return e, nil
}

// detectDimensions embeds a probe text to learn the model's dimensionality.
func (e *OllamaEmbedder) detectDimensions(ctx context.Context) (int, error) {
	vecs, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, errors.ProviderError("empty embedding returned", nil)
	}
	return len(vecs[0]), nil
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	vecs, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.ProviderError("no embedding returned", nil)
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Output order matches
// input order. Sub-batches that still fail after retries are reported via
// BatchError with the offending input indices; the rest of the batch is
// processed regardless.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	results := make([][]float32, len(texts))
	var nonEmpty []indexedText

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	var failed []BatchItemError
	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}
		batch := nonEmpty[start:end]

		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		vecs, err := e.embedWithRetry(ctx, batchTexts)
		if err != nil {
			slog.Warn("embedding sub-batch failed",
				slog.Int("batch_start", start),
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()))
			for _, it := range batch {
				failed = append(failed, BatchItemError{Index: it.idx, Err: err})
			}
			continue
		}

		for i, vec := range vecs {
			results[batch[i].idx] = vec
		}
	}

	if len(failed) > 0 {
		return results, &BatchError{Items: failed}
	}
	return results, nil
}

// EmbedQuery embeds a query string, applying the configured query prefix.
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.config.QueryPrefix != "" && strings.TrimSpace(text) != "" {
		text = e.config.QueryPrefix + text
	}
	return e.Embed(ctx, text)
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return "ollama/" + e.config.Model
}

// Available checks whether the Ollama endpoint responds.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if err := e.checkOpen(); err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases HTTP resources.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return errors.ValidationError("embedder is closed", nil)
	}
	return nil
}

// embedWithRetry runs doEmbed with bounded exponential backoff and the
// circuit breaker guarding the provider.
func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := errors.DefaultRetryConfig()
	cfg.MaxRetries = e.config.MaxRetries

	return errors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		if !e.breaker.Allow() {
			return nil, errors.ProviderError("ollama circuit open", errors.ErrCircuitOpen)
		}
		vecs, err := e.doEmbed(ctx, texts)
		if err != nil {
			e.breaker.RecordFailure()
			return nil, err
		}
		e.breaker.RecordSuccess()
		return vecs, nil
	})
}

// doEmbed performs one /api/embed call for a batch of texts.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf(errors.ErrCodeProviderUnavailable,
			"embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(errors.ErrCodeProviderUnavailable, err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, errors.Newf(errors.ErrCodeEmbeddingFailed,
			"expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}
