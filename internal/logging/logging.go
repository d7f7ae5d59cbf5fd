package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Format selects the console log encoding.
type Format string

const (
	// FormatAuto picks text for terminals and JSON for pipes.
	FormatAuto Format = "auto"
	// FormatText forces the human-readable text handler.
	FormatText Format = "text"
	// FormatJSON forces JSON output.
	FormatJSON Format = "json"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format selects the stderr encoding. The log file is always JSON.
	Format Format
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// SyncEveryWrite fsyncs the log file after each record so tail -f
	// sees it immediately (default: true).
	SyncEveryWrite bool
	// WriteToStderr whether to also write to stderr (default: true).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         FormatAuto,
		FilePath:       DefaultLogPath(),
		MaxSizeMB:      10,
		MaxFiles:       5,
		SyncEveryWrite: true,
		WriteToStderr:  true,
	}
}

// DebugConfig returns configuration for debug mode.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup initializes logging and returns the logger plus a cleanup function.
// The cleanup function flushes and closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	var writer *RotatingWriter

	if cfg.FilePath != "" {
		w, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles, cfg.SyncEveryWrite)
		if err != nil {
			return nil, nil, err
		}
		writer = w
		handlers = append(handlers, slog.NewJSONHandler(writer, opts))
	}

	if cfg.WriteToStderr {
		handlers = append(handlers, newConsoleHandler(os.Stderr, cfg.Format, opts))
	}

	var logger *slog.Logger
	switch len(handlers) {
	case 0:
		logger = slog.New(slog.NewJSONHandler(io.Discard, opts))
	case 1:
		logger = slog.New(handlers[0])
	default:
		logger = slog.New(newMultiHandler(handlers...))
	}

	cleanup := func() {
		if writer != nil {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}

	return logger, cleanup, nil
}

// SetupDefault sets up logging with default configuration and installs it
// as the default logger. Returns the cleanup function.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DefaultConfig())
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}

// newConsoleHandler builds the stderr handler for the given format.
// With FormatAuto, terminals get text output and pipes get JSON.
func newConsoleHandler(f *os.File, format Format, opts *slog.HandlerOptions) slog.Handler {
	useText := false
	switch format {
	case FormatText:
		useText = true
	case FormatJSON:
		useText = false
	default:
		useText = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	if useText {
		return slog.NewTextHandler(f, opts)
	}
	return slog.NewJSONHandler(f, opts)
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString converts string level to slog.Level.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
