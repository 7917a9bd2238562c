package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerEmitsServiceAndFields(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Output: &buf})

	ctx := logg.WithRequestID(context.Background(), "req-123")
	ctx = logg.WithOrderID(ctx, "ord-9")
	logg.Info(ctx, "checkout accepted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "api" {
		t.Fatalf("missing service field: %v", entry)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("missing request_id: %v", entry)
	}
	if entry["order_id"] != "ord-9" {
		t.Fatalf("missing order_id: %v", entry)
	}
	if entry["message"] != "checkout accepted" {
		t.Fatalf("unexpected message: %v", entry)
	}
}

func TestErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Output: &buf})

	logg.Error(context.Background(), "boom", nil)

	if !strings.Contains(buf.String(), "stack") {
		t.Fatal("expected stack field on error log")
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != zerolog.DebugLevel {
		t.Fatalf("unexpected level %v", got)
	}
	if got := ParseLevel(""); got != zerolog.InfoLevel {
		t.Fatalf("empty should default to info, got %v", got)
	}
	if got := ParseLevel("nonsense"); got != zerolog.InfoLevel {
		t.Fatalf("invalid should default to info, got %v", got)
	}
}
