package logging

import (
	"context"
	"log/slog"
)

// fanoutHandler duplicates records to every child handler, typically
// the JSON log file plus the console.
type fanoutHandler struct {
	children []slog.Handler
}

func newMultiHandler(children ...slog.Handler) slog.Handler {
	return &fanoutHandler{children: children}
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.children {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled child. Delivery continues
// past failures; the first error is returned.
func (f *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range f.children {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	children := make([]slog.Handler, len(f.children))
	for i, h := range f.children {
		children[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{children: children}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	children := make([]slog.Handler, len(f.children))
	for i, h := range f.children {
		children[i] = h.WithGroup(name)
	}
	return &fanoutHandler{children: children}
}
