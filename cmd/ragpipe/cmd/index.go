package cmd

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragpipe-dev/ragpipe/internal/builder"
	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/output"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index the source directory",
		Long: `Scan the source directory, chunk and embed every document, and
build the local index. Already-indexed documents that have not changed
are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), buildModeIncremental)
		},
	}
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update the index with source changes",
		Long: `Reconcile the index with the source directory: new documents are
added, changed ones reindexed, unchanged ones skipped, and documents
that disappeared from the source are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), buildModeReconcile)
		},
	}
}

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from scratch",
		Long: `Clear the index and state ledger and reindex every document. Use
this after changing the embedder, backend, or chunking settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), buildModeRebuild)
		},
	}
}

type buildMode int

const (
	buildModeIncremental buildMode = iota
	buildModeReconcile
	buildModeRebuild
)

func runBuild(ctx context.Context, mode buildMode) error {
	w := output.New(os.Stdout)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	source, err := newSource(cfg)
	if err != nil {
		return err
	}
	docs, err := source.LoadAll(ctx)
	if err != nil {
		return err
	}

	open := builder.Open
	if mode == buildModeRebuild {
		// A rebuild replaces the index, so stale compatibility settings
		// must not block opening.
		open = builder.OpenRebuild
	}
	p, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	var summary *builder.BuildSummary
	switch mode {
	case buildModeRebuild:
		summary, err = p.RebuildIndex(ctx, docs)
	default:
		summary, err = p.UpdateIndex(ctx, docs)
	}
	if err != nil {
		return err
	}

	removed := 0
	if mode == buildModeReconcile {
		removed, err = removeMissing(ctx, p, docs)
		if err != nil {
			return err
		}
	}

	if err := p.Save(); err != nil {
		return err
	}

	w.Successf("indexed %d documents in %s", summary.Total(), summary.Duration.Round(time.Millisecond))
	w.KV([][2]string{
		{"Added", strconv.Itoa(summary.Added)},
		{"Updated", strconv.Itoa(summary.Updated)},
		{"Skipped", strconv.Itoa(summary.Skipped)},
		{"Removed", strconv.Itoa(removed)},
		{"Failed", strconv.Itoa(summary.Failed)},
		{"Chunks", strconv.Itoa(summary.ChunkStats.Count)},
	})
	for _, f := range summary.Failures {
		w.Warningf("%s: %s", f.DocID, f.Reason)
	}
	return nil
}

// removeMissing drops indexed documents that no longer exist in the
// source.
func removeMissing(ctx context.Context, p *builder.Pipeline, docs []*document.Document) (int, error) {
	present := make(map[string]bool, len(docs))
	for _, doc := range docs {
		present[doc.ID] = true
	}
	indexed, err := p.DocumentIDs(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range indexed {
		if present[id] {
			continue
		}
		if err := p.RemoveDocument(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
