package idfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/justapithecus/es2json/log"
	"github.com/justapithecus/es2json/types"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ids.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error = %v", err)
	}
	return string(data)
}

func TestRead(t *testing.T) {
	ids, err := Read(strings.NewReader("a\nb  \r\n\n c\na\n\t\nb\n"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	// Leading whitespace is significant, trailing is not.
	if got, want := ids.Slice(), []string{"a", "b", " c"}; !slices.Equal(got, want) {
		t.Errorf("Read() = %q, want %q", got, want)
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "x\ny\nx\n")
	ids, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !slices.Equal(ids.Slice(), []string{"x", "y"}) {
		t.Errorf("Load() = %v", ids.Slice())
	}

	_, err = Load(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(absent) err = %v, want ErrNotExist", err)
	}
}

func TestOpen(t *testing.T) {
	path := writeFile(t, "p\nq\n")

	tests := []struct {
		name string
		src  any
		want []string
	}{
		{"path", path, []string{"p", "q"}},
		{"reader", strings.NewReader("r\ns\n"), []string{"r", "s"}},
		{"slice", []string{"u", "", "u ", "v"}, []string{"u", "v"}},
		{"set", types.NewIDSet("w"), []string{"w"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := Open(tt.src)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !slices.Equal(ids.Slice(), tt.want) {
				t.Errorf("Open() = %v, want %v", ids.Slice(), tt.want)
			}
		})
	}

	if _, err := Open(42); !types.IsConfigError(err) {
		t.Errorf("Open(42) err = %v, want ConfigError", err)
	}
}

func TestPersist_NonConsumingLeavesFile(t *testing.T) {
	path := writeFile(t, "a\nb\nc\n")
	var logs bytes.Buffer
	logger := log.NewLoggerWithWriter(nil, &logs)

	if err := Persist(path, types.NewIDSet("b", "c"), false, logger); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if got := readFile(t, path); got != "a\nb\nc\n" {
		t.Errorf("file changed to %q", got)
	}
	if n := strings.Count(logs.String(), "document not found"); n != 2 {
		t.Errorf("logged %d misses, want 2: %s", n, logs.String())
	}
	if !strings.Contains(logs.String(), `"id":"b"`) {
		t.Errorf("missing id not logged: %s", logs.String())
	}
}

func TestPersist_ConsumingAllFoundDeletes(t *testing.T) {
	path := writeFile(t, "a\nb\n")
	if err := Persist(path, types.NewIDSet(), true, nil); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still exists: %v", err)
	}

	// Deleting an already deleted file is not an error.
	if err := Persist(path, types.NewIDSet(), true, nil); err != nil {
		t.Errorf("second Persist() error = %v", err)
	}
}

func TestPersist_ConsumingRewritesMisses(t *testing.T) {
	path := writeFile(t, "a\nb\nc\n")
	if err := Persist(path, types.NewIDSet("c", "a"), true, nil); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if got := readFile(t, path); got != "c\na\n" {
		t.Errorf("file = %q, want %q", got, "c\na\n")
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	path := writeFile(t, "")
	missing := types.NewIDSet("id with space", "ünïcode", "7", "42")
	if err := Persist(path, missing, true, nil); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !slices.Equal(loaded.Slice(), missing.Slice()) {
		t.Errorf("round trip = %v, want %v", loaded.Slice(), missing.Slice())
	}
}

func TestWrite_MissingDir(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "no", "such", "ids.txt"), []string{"a"})
	if err == nil {
		t.Error("Write() into a missing directory should fail")
	}
}
