package logging

import (
	"context"
	"log/slog"
)

// AtLeast wraps h so that records below floor are dropped regardless of the
// level h itself was built with. errors.log uses it to stay quiet.
func AtLeast(h slog.Handler, floor slog.Level) slog.Handler {
	return levelFloor{Handler: h, min: floor}
}

type levelFloor struct {
	slog.Handler
	min slog.Level
}

func (f levelFloor) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= f.min && f.Handler.Enabled(ctx, level)
}

// Handle re-checks the level for callers that skip Enabled.
func (f levelFloor) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < f.min {
		return nil
	}
	return f.Handler.Handle(ctx, r)
}

func (f levelFloor) WithAttrs(attrs []slog.Attr) slog.Handler {
	return levelFloor{Handler: f.Handler.WithAttrs(attrs), min: f.min}
}

func (f levelFloor) WithGroup(name string) slog.Handler {
	return levelFloor{Handler: f.Handler.WithGroup(name), min: f.min}
}
