package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestChildSpansShareTraceID(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "live", "req-1")

	var wg sync.WaitGroup
	for _, name := range []string{"articles", "social", "markets"} {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			_, child := StartChildSpan(ctx, n)
			child.SetAttr("served", "fresh")
			child.End()
		}(name)
	}
	wg.Wait()
	root.End()

	if len(root.Children) != 3 {
		t.Fatalf("children = %d, want 3", len(root.Children))
	}
	for _, c := range root.Children {
		if c.TraceID != "req-1" {
			t.Errorf("child %s trace id = %q", c.Name, c.TraceID)
		}
	}
}

func TestLogOnlyAtDebug(t *testing.T) {
	_, root := StartSpan(context.Background(), "live", "req-2")
	root.End()

	var buf bytes.Buffer
	root.Log(context.Background(), slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	if buf.Len() != 0 {
		t.Fatalf("span logged at info level: %s", buf.String())
	}
	root.Log(context.Background(), slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if !strings.Contains(buf.String(), "trace_id=req-2") {
		t.Errorf("missing trace id in %q", buf.String())
	}
}
