package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_PlainStatusLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithColor(&buf, false)

	w.Successf("indexed %d documents", 3)
	w.Warningf("skipped %d", 1)
	w.Errorf("failed: %s", "boom")
	w.Suggestionf("run 'ragpipe rebuild'")

	got := buf.String()
	assert.Contains(t, got, "✓ indexed 3 documents")
	assert.Contains(t, got, "! skipped 1")
	assert.Contains(t, got, "✗ failed: boom")
	assert.Contains(t, got, "→ run 'ragpipe rebuild'")
}

func TestWriter_KVAligned(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithColor(&buf, false)

	w.KV([][2]string{
		{"Documents", "12"},
		{"Chunks", "340"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	// Labels pad to equal width.
	assert.Equal(t, strings.Index(lines[0], "12"), strings.Index(lines[1], "340"))
}

func TestWriter_ResultSnippet(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithColor(&buf, false)

	long := strings.Repeat("word ", 100)
	w.Result(1, 0.9123, "doc.md#0", long)

	got := buf.String()
	assert.Contains(t, got, " 1. 0.9123  doc.md#0")
	assert.Contains(t, got, "…")
	assert.Less(t, len(got), len(long))
}

func TestSnippet_ShortTextUntouched(t *testing.T) {
	assert.Equal(t, "hello world", snippet("  hello world \n", 240))
}
