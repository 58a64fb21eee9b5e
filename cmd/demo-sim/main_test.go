package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/livedemo/internal/engine"
	"github.com/signalsfoundry/livedemo/internal/logging"
)

func TestSimulateFinalSnapshotAfterUnmount(t *testing.T) {
	var buf bytes.Buffer
	counts, err := simulate(context.Background(), Options{
		Kinds:     []string{"intent-heatmap"},
		Duration:  20 * time.Second,
		Tick:      10 * time.Millisecond,
		Seed:      3,
		FinalOnly: true,
	}, &buf, logging.Noop())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if counts["intent-heatmap"] == 0 {
		t.Fatalf("expected snapshots for intent-heatmap, got %v", counts)
	}

	var last engine.Snapshot
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &last); err != nil {
		t.Fatalf("decode final snapshot: %v\n%s", err, buf.String())
	}
	if last.State != engine.Unmounted {
		t.Fatalf("final state = %q, want %q", last.State, engine.Unmounted)
	}
	// 20s with a 9s dwell restarts twice.
	if last.Cycle != 2 {
		t.Fatalf("final cycle = %d, want 2", last.Cycle)
	}
	if len(last.Feed) == 0 || len(last.Feed) > 5 {
		t.Fatalf("final feed length = %d, want 1..5", len(last.Feed))
	}
}

func TestSimulateEveryWidgetStreamsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	counts, err := simulate(context.Background(), Options{
		Duration: 3 * time.Second,
		Tick:     10 * time.Millisecond,
		Seed:     1,
	}, &buf, logging.Noop())
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(counts) != 5 {
		t.Fatalf("counts = %v, want 5 kinds", counts)
	}

	lines := 0
	scanner := bufio.NewScanner(&buf)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var snap map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &snap); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines+1, err)
		}
		lines++
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if lines != total {
		t.Fatalf("printed %d lines, counted %d snapshots", lines, total)
	}
}

func TestSimulateUnknownKind(t *testing.T) {
	_, err := simulate(context.Background(), Options{
		Kinds:    []string{"nope"},
		Duration: time.Second,
		Tick:     10 * time.Millisecond,
	}, &bytes.Buffer{}, logging.Noop())
	if err == nil {
		t.Fatalf("expected an error for an unknown widget kind")
	}
}

// failingWriter accepts ok writes and then reports a closed pipe.
type failingWriter struct {
	ok     int
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.ok {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func TestSimulateReturnsFirstWriteError(t *testing.T) {
	out := &failingWriter{ok: 3}
	_, err := simulate(context.Background(), Options{
		Kinds:    []string{"attribution-flow"},
		Duration: time.Hour,
		Tick:     10 * time.Millisecond,
		Seed:     5,
	}, out, logging.Noop())
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("simulate err = %v, want the write failure", err)
	}
	if out.writes != out.ok+1 {
		t.Fatalf("writes = %d, want the run to stop writing after the first failure", out.writes)
	}
}
