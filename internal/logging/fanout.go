package logging

import (
	"context"
	"log/slog"
)

// fanoutHandler delivers each record to every sink in the chain:
// stdout, the journal, and the rotating file when configured. Sinks
// filter by their own level, so a debug-level file can coexist with an
// info-level journal.
type fanoutHandler struct {
	sinks []slog.Handler
}

func newFanoutHandler(sinks ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{sinks: sinks}
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.sinks {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.sinks {
		if h.Enabled(ctx, r.Level) {
			// Clone per sink: handlers may retain the record.
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sinks := make([]slog.Handler, len(f.sinks))
	for i, h := range f.sinks {
		sinks[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{sinks: sinks}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	sinks := make([]slog.Handler, len(f.sinks))
	for i, h := range f.sinks {
		sinks[i] = h.WithGroup(name)
	}
	return &fanoutHandler{sinks: sinks}
}
