package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/severstroy/matcat/internal/config"
)

func TestJSONLoggerCarriesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf, config.LogFormatJSON, "INFO")

	ctx := WithCorrelationID(context.Background(), "corr-1")
	ctx = WithRequestID(ctx, "req-1")
	l.InfoContext(ctx, "request done", "status", 200)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["correlation_id"] != "corr-1" || record["request_id"] != "req-1" {
		t.Fatalf("ids missing from record: %v", record)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf, config.LogFormatText, "WARN")

	l.Info("dropped")
	l.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatal("info record must be filtered at WARN level")
	}
	if !strings.Contains(out, "kept") {
		t.Fatal("warn record must pass")
	}
}

func TestContextIDExtraction(t *testing.T) {
	ctx := context.Background()
	if CorrelationID(ctx) != "" || RequestID(ctx) != "" {
		t.Fatal("empty context must yield empty ids")
	}
	ctx = WithCorrelationID(ctx, "c")
	if CorrelationID(ctx) != "c" {
		t.Fatal("correlation id not round-tripped")
	}
}
