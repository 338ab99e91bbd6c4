package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelHandler(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		want  []string
		drop  []string
	}{
		{"info drops debug", slog.LevelInfo, []string{"kept info", "kept warn"}, []string{"task operation ignored"}},
		{"debug keeps debug", slog.LevelDebug, []string{"task operation ignored", "kept info", "kept warn"}, nil},
		{"warn drops info", slog.LevelWarn, []string{"kept warn"}, []string{"task operation ignored", "kept info"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			// The inner handler accepts everything, like the otelslog bridge.
			inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
			logger := slog.New(NewLevelHandler(tt.level, inner)).With(slog.String("component", "repository"))

			ctx := context.Background()
			logger.DebugContext(ctx, "task operation ignored", slog.String("operation", "add"))
			logger.InfoContext(ctx, "kept info")
			logger.WithGroup("g").WarnContext(ctx, "kept warn")

			out := buf.String()
			for _, msg := range tt.want {
				if !strings.Contains(out, msg) {
					t.Errorf("missing %q in %s", msg, out)
				}
			}
			for _, msg := range tt.drop {
				if strings.Contains(out, msg) {
					t.Errorf("unexpected %q in %s", msg, out)
				}
			}
		})
	}
}

func TestNewLevelHandler_Defaults(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := NewLevelHandler(nil, inner)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("nil level should default to info")
	}
	rewrapped := NewLevelHandler(slog.LevelDebug, h)
	if !rewrapped.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("rewrapping should replace the level")
	}
}
