package cmd

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragpipe-dev/ragpipe/internal/builder"
	"github.com/ragpipe-dev/ragpipe/internal/docsource"
	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/output"
	"github.com/ragpipe-dev/ragpipe/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the source directory and keep the index up to date",
		Long: `Run an initial index update, then watch the source directory and
apply document changes to the index as they happen. Stops on Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context())
		},
	}
}

func runWatch(ctx context.Context) error {
	w := output.New(os.Stdout)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	source, err := newSource(cfg)
	if err != nil {
		return err
	}
	p, err := builder.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	// Bring the index up to date before watching.
	docs, err := source.LoadAll(ctx)
	if err != nil {
		return err
	}
	summary, err := p.UpdateIndex(ctx, docs)
	if err != nil {
		return err
	}
	if _, err := removeMissing(ctx, p, docs); err != nil {
		return err
	}
	if err := p.Save(); err != nil {
		return err
	}
	w.Successf("index up to date (%d documents), watching %s", summary.Total(), cfg.Source.Dir)

	fw, err := watcher.NewFSWatcher(watcher.Options{Extensions: cfg.Source.Extensions})
	if err != nil {
		return err
	}
	defer fw.Stop()

	go func() {
		for err := range fw.Errors() {
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}()
	go func() {
		for batch := range fw.Events() {
			applyBatch(ctx, w, p, source, batch)
		}
	}()

	err = fw.Start(ctx, cfg.Source.Dir)
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// applyBatch applies one debounced event batch to the index. Per-event
// failures are reported and skipped so the watch keeps running.
func applyBatch(ctx context.Context, w *output.Writer, p *builder.Pipeline, source *docsource.FSSource, batch []watcher.FileEvent) {
	for _, ev := range batch {
		switch ev.Operation {
		case watcher.OpDelete:
			if err := p.RemoveDocument(ctx, ev.DocID); err != nil {
				w.Warningf("%s: %s", ev.DocID, err.Error())
				continue
			}
			w.Infof("- %s", ev.DocID)
		case watcher.OpCreate, watcher.OpModify:
			doc, err := source.Load(ev.DocID)
			if err != nil {
				w.Warningf("%s: %s", ev.DocID, err.Error())
				continue
			}
			if doc == nil {
				continue
			}
			if _, err := p.UpdateIndex(ctx, []*document.Document{doc}); err != nil {
				w.Warningf("%s: %s", ev.DocID, err.Error())
				continue
			}
			w.Infof("%s %s", ev.Operation, ev.DocID)
		case watcher.OpConfigChange:
			w.Warningf("config file changed, restart to apply")
		}
	}
	if err := p.Save(); err != nil {
		w.Warningf("save failed: %s", err.Error())
	}
}
