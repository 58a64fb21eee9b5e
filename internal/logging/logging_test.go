package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("widget", "audience-counter")).Info(context.Background(), "cycle restarted",
		Int("cycle", 3),
		Uint64("generation", 4),
		Duration("dwell", 8*time.Second),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "cycle restarted" {
		t.Fatalf("msg = %v, want %q", rec["msg"], "cycle restarted")
	}
	if rec["widget"] != "audience-counter" {
		t.Fatalf("widget = %v, want audience-counter", rec["widget"])
	}
	if rec["cycle"] != float64(3) {
		t.Fatalf("cycle = %v, want 3", rec["cycle"])
	}
	if rec["error"] != "boom" {
		t.Fatalf("error = %v, want boom", rec["error"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "text", Output: &buf})

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden too")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestRequestScopedHelpers(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatalf("EnsureRequestID returned empty id")
	}
	if got := RequestIDFromContext(ctx); got != id {
		t.Fatalf("RequestIDFromContext = %q, want %q", got, id)
	}

	ctx2, id2 := EnsureRequestID(ctx)
	if id2 != id || ctx2 != ctx {
		t.Fatalf("EnsureRequestID should keep an existing id")
	}

	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on bare context")
	}
	ctx = ContextWithLogger(ctx, nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("expected Noop logger to be stored for nil input")
	}
}

func TestRequestLoggerTagsMintedUUID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "info", Format: "json", Output: &buf})

	ctx, reqLog := WithRequestLogger(context.Background(), base)
	id := RequestIDFromContext(ctx)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("request id %q is not a UUID: %v", id, err)
	}

	reqLog.Info(ctx, "stream started")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v\n%s", err, buf.String())
	}
	if rec["request_id"] != id {
		t.Fatalf("request_id = %v, want %q", rec["request_id"], id)
	}
}
