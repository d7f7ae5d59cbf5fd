package docsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFSSource_LoadAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "intro.md", "# Intro\n\nSome text.")
	writeFile(t, root, "notes/todo.txt", "remember the milk")
	writeFile(t, root, "notes/data.json", `{"skip": true}`)
	writeFile(t, root, ".hidden/secret.md", "not indexed")

	src, err := New(Options{RootDir: root})
	require.NoError(t, err)

	docs, err := src.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byID := map[string]bool{}
	for _, d := range docs {
		byID[d.ID] = true
		assert.Equal(t, d.ID, d.Metadata[MetaPath])
		assert.NotEmpty(t, d.Metadata[MetaExt])
		assert.NotZero(t, d.Metadata[MetaSize])
	}
	assert.True(t, byID["intro.md"])
	assert.True(t, byID["notes/todo.txt"])
}

func TestFSSource_IDStableAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/doc.md", "content")

	src, err := New(Options{RootDir: root})
	require.NoError(t, err)

	first, err := src.LoadAll(context.Background())
	require.NoError(t, err)
	second, err := src.LoadAll(context.Background())
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "a/b/doc.md", first[0].ID)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Fingerprint(), second[0].Fingerprint())
}

func TestFSSource_ExtensionFilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.rst", "restructured")
	writeFile(t, root, "drop.md", "markdown")

	src, err := New(Options{RootDir: root, Extensions: []string{".rst"}})
	require.NoError(t, err)

	docs, err := src.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep.rst", docs[0].ID)
	assert.Equal(t, "rst", docs[0].Metadata[MetaExt])
}

func TestFSSource_SkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.txt", "0123456789")
	writeFile(t, root, "small.txt", "ok")

	src, err := New(Options{RootDir: root, MaxFileSize: 5})
	require.NoError(t, err)

	docs, err := src.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "small.txt", docs[0].ID)
}

func TestNew_InvalidRoot(t *testing.T) {
	_, err := New(Options{RootDir: ""})
	assert.Error(t, err)

	_, err = New(Options{RootDir: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}
