package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json by default", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger, err := New(Options{Writer: &buf})
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		logger.Info("hello", "key", "value")
		if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"key":"value"`) {
			t.Fatalf("expected a JSON record, got %q", buf.String())
		}
	})

	t.Run("text honours the level", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger, err := New(Options{Writer: &buf, Format: "TEXT", Level: "warn"})
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		logger.Info("dropped")
		logger.Warn("kept")
		if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "msg=kept") {
			t.Fatalf("unexpected output %q", buf.String())
		}
	})

	t.Run("rejects unknown settings", func(t *testing.T) {
		t.Parallel()
		if _, err := New(Options{Format: "xml"}); err == nil {
			t.Fatalf("expected unknown format to fail")
		}
		if _, err := New(Options{Level: "loud"}); err == nil {
			t.Fatalf("expected unknown level to fail")
		}
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" Info ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) != nil {
		t.Fatalf("expected no logger on a bare context")
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatalf("expected the attached logger")
	}
	if ContextWithLogger(ctx, nil) != ctx {
		t.Fatalf("expected nil logger to leave the context untouched")
	}
}
