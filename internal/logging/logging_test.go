package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatalf("expected logger from context")
	}
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected nil for bare context")
	}
	if got := ContextWithLogger(ctx, nil); got != ctx {
		t.Fatalf("nil logger should return the context unchanged")
	}
}

func TestNewSelectsHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&buf, false, slog.LevelInfo).Info("hello", "k", "v")
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "hello" || record["k"] != "v" {
		t.Fatalf("unexpected record %v", record)
	}

	buf.Reset()
	New(&buf, true, slog.LevelWarn).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	New(&buf, true, slog.LevelDebug).Debug("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}
