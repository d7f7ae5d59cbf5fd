package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// fakeOllama serves /api/embed returning a constant-dimension vector per
// input, and /api/tags for availability checks.
func fakeOllama(t *testing.T, dims int, failures *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text"}]}`))
		case "/api/embed":
			if failures != nil && atomic.AddInt64(failures, -1) >= 0 {
				http.Error(w, "model loading", http.StatusServiceUnavailable)
				return
			}
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			inputs, ok := req.Input.([]any)
			require.True(t, ok)

			embeddings := make([][]float32, len(inputs))
			for i := range inputs {
				vec := make([]float32, dims)
				vec[i%dims] = 1
				embeddings[i] = vec
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllamaEmbedder_DetectsDimensions(t *testing.T) {
	srv := fakeOllama(t, 8, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 8, e.Dimensions())
	assert.Equal(t, "ollama/nomic-embed-text", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_BatchPreservesOrderAndLength(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 4, SkipHealthCheck: true})
	require.NoError(t, err)
	defer e.Close()

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		require.Len(t, v, 4)
		assert.Equal(t, float32(1), v[i%4])
	}
}

func TestOllamaEmbedder_EmptyInputsGetZeroVectors(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 4, SkipHealthCheck: true})
	require.NoError(t, err)
	defer e.Close()

	vecs, err := e.EmbedBatch(context.Background(), []string{"", "real text", "  "})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Equal(t, make([]float32, 4), vecs[0])
	assert.Equal(t, make([]float32, 4), vecs[2])
	assert.NotEqual(t, make([]float32, 4), vecs[1])
}

func TestOllamaEmbedder_RetriesTransientFailures(t *testing.T) {
	failures := int64(2)
	srv := fakeOllama(t, 4, &failures)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 4, SkipHealthCheck: true})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "eventually works")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestOllamaEmbedder_UnreachableHost(t *testing.T) {
	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: "http://127.0.0.1:1"})

	require.Error(t, err)
	assert.True(t, errors.IsProviderUnavailable(err))
}

func TestOllamaEmbedder_QueryPrefix(t *testing.T) {
	var gotInput []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, in := range req.Input.([]any) {
			gotInput = append(gotInput, in.(string))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 0}}})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Dimensions:      2,
		QueryPrefix:     "search_query: ",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.EmbedQuery(context.Background(), "find the thing")
	require.NoError(t, err)
	require.Len(t, gotInput, 1)
	assert.Equal(t, "search_query: find the thing", gotInput[0])
}

func TestOllamaEmbedder_ClosedRejectsCalls(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 4, SkipHealthCheck: true})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "text")
	assert.Error(t, err)
}
