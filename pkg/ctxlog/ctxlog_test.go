package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger for a bare context")
	}
}

func TestWithAppendsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := With(WithLogger(context.Background(), logger), "node", "copy")

	FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "node=copy") {
		t.Errorf("log line missing attribute: %q", buf.String())
	}
}
