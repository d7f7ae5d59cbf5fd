package cmd

import (
	stderrors "errors"
	"os"
	"path/filepath"

	"github.com/ragpipe-dev/ragpipe/internal/config"
	"github.com/ragpipe-dev/ragpipe/internal/docsource"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
	"github.com/ragpipe-dev/ragpipe/internal/output"
)

// loadConfig reads the project config and applies CLI flag overrides.
// Relative source and data dirs resolve against the project dir.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagDir)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.Store.DataDir = flagDataDir
	}
	if !filepath.IsAbs(cfg.Source.Dir) {
		cfg.Source.Dir = filepath.Join(flagDir, cfg.Source.Dir)
	}
	if !filepath.IsAbs(cfg.Store.DataDir) {
		cfg.Store.DataDir = filepath.Join(flagDir, cfg.Store.DataDir)
	}
	return cfg, nil
}

// newSource builds the document source for the configured directory.
func newSource(cfg *config.Config) (*docsource.FSSource, error) {
	return docsource.New(docsource.Options{
		RootDir:     cfg.Source.Dir,
		Extensions:  cfg.Source.Extensions,
		MaxFileSize: int64(cfg.Source.MaxFileSizeMB) * 1024 * 1024,
	})
}

// reportError prints an error with its suggestion if it carries one.
func reportError(err error) {
	w := output.New(os.Stderr)
	w.Errorf("%s", err.Error())

	var ragErr *errors.RagError
	if stderrors.As(err, &ragErr) && ragErr.Suggestion != "" {
		w.Suggestionf("%s", ragErr.Suggestion)
	}
}
