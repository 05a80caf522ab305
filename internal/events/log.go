package events

import (
	"context"
	"log/slog"
)

// LogTo returns a subscriber that writes every event to logger.
// Rejected uploads log at warn level.
func LogTo(logger *slog.Logger) func(Event) {
	logger = logger.With(slog.String("component", "events"))
	return func(e Event) {
		level := slog.LevelInfo
		if e.Kind == FileRejected {
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("kind", string(e.Kind)),
			slog.String("key", e.Key),
			slog.Int("count", e.Count),
		}
		if e.Name != "" {
			attrs = append(attrs, slog.String("name", e.Name))
		}
		if e.Detail != "" {
			attrs = append(attrs, slog.String("detail", e.Detail))
		}
		logger.LogAttrs(context.Background(), level, "archive event", attrs...)
	}
}
