package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/es2json/types"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_RunContext(t *testing.T) {
	var buf bytes.Buffer
	meta := &types.RunMeta{RunID: "run-1", Index: "logs", Mode: types.ModeIDFile, StartedAt: time.Now()}
	logger := NewLoggerWithWriter(meta, &buf)

	logger.Info("chunk resolved", map[string]any{"found": 3})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["run_id"] != "run-1" || e["index"] != "logs" || e["mode"] != "idfile" {
		t.Errorf("missing run context: %v", e)
	}
	if e["level"] != "info" || e["message"] != "chunk resolved" {
		t.Errorf("unexpected entry: %v", e)
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
	fields, ok := e["fields"].(map[string]any)
	if !ok || fields["found"] != float64(3) {
		t.Errorf("fields = %v", e["fields"])
	}
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(nil, &buf)
	logger.Debug("hidden", nil)
	logger.Warn("shown", nil)
	if entries := decodeLines(t, &buf); len(entries) != 1 || entries[0]["level"] != "warn" {
		t.Errorf("info logger entries = %v", entries)
	}

	buf.Reset()
	verbose := NewLoggerWithWriter(nil, &buf, WithVerbose(true))
	verbose.Debug("progress", nil)
	if entries := decodeLines(t, &buf); len(entries) != 1 || entries[0]["level"] != "debug" {
		t.Errorf("verbose logger entries = %v", entries)
	}
}

func TestLogger_WithOutput(t *testing.T) {
	var first, second bytes.Buffer
	logger := NewLoggerWithWriter(&types.RunMeta{RunID: "r"}, &first, WithVerbose(true))
	moved := logger.WithOutput(&second)

	moved.Debug("moved", nil)
	if first.Len() != 0 {
		t.Errorf("original writer received output: %q", first.String())
	}
	entries := decodeLines(t, &second)
	if len(entries) != 1 || entries[0]["run_id"] != "r" {
		t.Errorf("entries = %v", entries)
	}
}

func TestSugaredLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter(nil, &buf).Sugar().With("component", "cli").Infof("wrote %d records", 7)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0]["message"] != "wrote 7 records" || entries[0]["component"] != "cli" {
		t.Errorf("entry = %v", entries[0])
	}
}

func TestNop(t *testing.T) {
	Nop().Error("dropped", map[string]any{"x": 1})
}
