package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe-dev/ragpipe/internal/config"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// testProject writes documents and a static-embedder config into a temp
// project dir.
func testProject(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Embedding.Provider = "static"
	cfg.Store.Backend = "flat"
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, config.ConfigFileName)))

	docs := map[string]string{
		"go.md":    "Go ships a race detector. Goroutines are cheap.",
		"rust.md":  "Rust enforces ownership at compile time.",
		"notes.md": "Vector search ranks chunks by cosine similarity.",
	}
	for name, text := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644))
	}
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ragpipe")
}

func TestInitCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	_, err := runCLI(t, "--dir", dir, "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, config.ConfigFileName))

	// Second run without --force leaves the file alone and succeeds.
	_, err = runCLI(t, "--dir", dir, "init")
	require.NoError(t, err)
}

func TestIndexQueryStatsRoundTrip(t *testing.T) {
	dir := testProject(t)

	_, err := runCLI(t, "--dir", dir, "index")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, ".ragpipe"))

	_, err = runCLI(t, "--dir", dir, "query", "cosine", "similarity")
	require.NoError(t, err)

	_, err = runCLI(t, "--dir", dir, "query", "ownership", "--filter", "ext=md", "--json")
	require.NoError(t, err)

	_, err = runCLI(t, "--dir", dir, "stats", "--json")
	require.NoError(t, err)
}

func TestUpdateRemovesDeletedDocuments(t *testing.T) {
	dir := testProject(t)

	_, err := runCLI(t, "--dir", dir, "index")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "rust.md")))
	_, err = runCLI(t, "--dir", dir, "update")
	require.NoError(t, err)

	_, err = runCLI(t, "--dir", dir, "rebuild")
	require.NoError(t, err)
}

func TestLogsCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	logFile := filepath.Join(t.TempDir(), "ragpipe.log")
	require.NoError(t, os.WriteFile(logFile, []byte("one\ntwo\nthree\n"), 0o644))

	out, err := runCLI(t, "logs", "--file", logFile, "--tail", "2")
	require.NoError(t, err)
	assert.Equal(t, "two\nthree\n", out)
}

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters([]string{"lang=go,rust", "year=2024", "draft=false"})
	require.NoError(t, err)

	assert.Equal(t, []any{"go", "rust"}, filters["lang"])
	assert.Equal(t, []any{float64(2024)}, filters["year"])
	assert.Equal(t, []any{false}, filters["draft"])
}

func TestParseFilters_RejectsMalformed(t *testing.T) {
	_, err := parseFilters([]string{"lang"})
	assert.Error(t, err)

	_, err = parseFilters([]string{"=go"})
	assert.Error(t, err)
}
